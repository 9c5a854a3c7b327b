package main

import (
	"github.com/spf13/cobra"

	"github.com/manash/designedit/internal/display"
	"github.com/manash/designedit/internal/identity"
	"github.com/manash/designedit/internal/image"
	"github.com/manash/designedit/internal/repl"
	"github.com/manash/designedit/internal/security"
)

func newReplCmd(app *App) *cobra.Command {
	var (
		sessionID string
		design    string
		columns   int
	)

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Edit interactively in the terminal",
		Long: `Open an editing session in the terminal. Without --session a new session
is started; pass the id printed on start to resume it later. --design edits
the session bound to a design record instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
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

			ctrl := rt.sessions
			sid := security.SanitizeSessionID(sessionID)
			if design != "" {
				ctrl = rt.designs
				if sid, err = identity.NewDesigns(rt.ledger, rt.designs).Resolve(cmd.Context(), design); err != nil {
					return err
				}
			} else if sid == "" {
				sid = identity.NewSessionID()
			}

			disp := display.New(cmd.OutOrStdout())
			disp.SetColumns(columns)

			return repl.New(&repl.Config{
				In:         cmd.InOrStdin(),
				Out:        cmd.OutOrStdout(),
				Err:        cmd.ErrOrStderr(),
				Controller: ctrl,
				SessionID:  sid,
				Usage:      rt.ledger,
				Displayer:  disp,
				Saver:      image.NewSaver(),
			}).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to resume")
	cmd.Flags().StringVarP(&design, "design", "d", "", "edit the session of a design record")
	cmd.Flags().IntVar(&columns, "preview-columns", 60, "inline preview width in terminal cells (0 = natural size)")
	cmd.Flags().StringVar(&app.apiKey, "api-key", "", "provider API key")
	cmd.MarkFlagsMutuallyExclusive("session", "design")
	return cmd
}
