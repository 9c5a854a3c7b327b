package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/designedit/internal/httpapi"
	"github.com/manash/designedit/internal/identity"
	"github.com/manash/designedit/internal/infra"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), app, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&app.apiKey, "api-key", "", "provider API key")
	return cmd
}

func runServe(ctx context.Context, app *App, addr string) error {
	cfg, err := app.loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	log := newLogger(cfg)

	gw, err := app.gateway(cfg, log)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, gw, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	cookies := identity.NewCookies(cfg.Session.CookieName, cfg.CookieMaxAge())
	cookies.Secure = cfg.Session.SecureCookie

	handler := httpapi.NewRouter(httpapi.Deps{
		Sessions:       rt.sessions,
		Designs:        rt.designs,
		Cookies:        cookies,
		DesignIdentity: identity.NewDesigns(rt.ledger, rt.designs),
		Logger:         log,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MediaPrefix:    cfg.Storage.PublicURL,
	})

	srv := infra.NewHTTPServer(cfg, handler)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info().
		Str("addr", srv.Addr()).
		Str("provider", cfg.Provider.Name).
		Str("storage", cfg.Storage.Root).
		Msg("designedit listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
