package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/manash/designedit/internal/config"
	"github.com/manash/designedit/internal/designs"
	"github.com/manash/designedit/internal/infra"
	"github.com/manash/designedit/internal/keys"
	"github.com/manash/designedit/internal/provider"
	"github.com/manash/designedit/internal/provider/gemini"
	"github.com/manash/designedit/internal/provider/openai"
	"github.com/manash/designedit/internal/session"
	"github.com/manash/designedit/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

// App holds the process-level dependencies so tests can swap them.
type App struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	Registry   *models.ModelRegistry
	NewGateway func(cfg *config.Config, apiKey string, log zerolog.Logger) (session.Gateway, error)

	configPath string
	envFile    string
	apiKey     string
}

func DefaultApp() *App {
	return &App{
		In:       os.Stdin,
		Out:      os.Stdout,
		Err:      os.Stderr,
		Registry: models.DefaultRegistry(),
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return newRootCmd(DefaultApp()).ExecuteContext(ctx)
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "designedit",
		Short: "Prompt-driven image editing with a versioned history",
		Long: `designedit keeps a version history per editing session. Each edit sends
the current image and a prompt to an image model and records the result,
so any earlier version can be brought back with undo or rollback.

Examples:
  designedit serve
  designedit repl --session mysession
  designedit designs add shirt.png --id tee42
  designedit batch prompts.txt --design tee42
  designedit keys set openai sk-...`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	cmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&app.envFile, "env-file", ".env", "dotenv file loaded before environment overrides")

	cmd.AddCommand(
		newServeCmd(app),
		newReplCmd(app),
		newKeysCmd(app),
		newDesignsCmd(app),
		newBatchCmd(app),
	)
	return cmd
}

func (app *App) loadConfig() (*config.Config, error) {
	return config.Load(app.configPath, app.envFile)
}

func (app *App) keyStore() *keys.Store {
	return keys.NewStore(config.DataDir())
}

// gateway builds the image backend named in the config, resolving its key
// through the flag, the config file, keys.json and the environment.
func (app *App) gateway(cfg *config.Config, log zerolog.Logger) (session.Gateway, error) {
	explicit := app.apiKey
	if explicit == "" {
		explicit = cfg.Provider.APIKey
	}
	key, source, err := keys.Resolve(app.keyStore(), explicit, cfg.ProviderType())
	if err != nil {
		return nil, err
	}
	log.Debug().Str("provider", cfg.Provider.Name).Str("key_source", source).Msg("api key resolved")

	if app.NewGateway != nil {
		return app.NewGateway(cfg, key, log)
	}
	return newProvider(app.Registry, cfg, key, log)
}

func newProvider(registry *models.ModelRegistry, cfg *config.Config, apiKey string, log zerolog.Logger) (provider.Provider, error) {
	pcfg := &provider.Config{
		APIKey:     apiKey,
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Provider.Model,
		TimeoutSec: cfg.Provider.TimeoutSec,
		Verbose:    cfg.Provider.Verbose,
		Logger:     &log,
	}

	factory := provider.NewFactory(registry)
	switch cfg.ProviderType() {
	case models.ProviderGemini:
		p, err := gemini.New(pcfg, registry)
		if err != nil {
			return nil, err
		}
		factory.Register(p)
	default:
		p, err := openai.New(pcfg, registry)
		if err != nil {
			return nil, err
		}
		factory.Register(p)
	}

	if cfg.Provider.Model != "" {
		p, err := factory.GetForModel(cfg.Provider.Model)
		if errors.Is(err, provider.ErrProviderNotFound) {
			return nil, fmt.Errorf("%w; configured providers: %v", err, factory.ListProviders())
		}
		return p, err
	}
	return factory.Get(cfg.ProviderType())
}

// runtime is everything an editing front end needs, opened from config.
type runtime struct {
	cfg      *config.Config
	log      zerolog.Logger
	ledger   *designs.Store
	sessions *session.Controller
	designs  *session.Controller
}

func openRuntime(cfg *config.Config, gw session.Gateway, log zerolog.Logger) (*runtime, error) {
	ledger, err := designs.NewStore(cfg.Database.Path, cfg.RecordsRoot())
	if err != nil {
		return nil, fmt.Errorf("open design database: %w", err)
	}

	controller := func(scope string) (*session.Controller, error) {
		store, err := session.NewStore(cfg.ScopeRoot(scope), cfg.ScopeURL(scope))
		if err != nil {
			return nil, err
		}
		return session.NewController(store, gw,
			session.WithUsageRecorder(ledger),
			session.WithLogger(log.With().Str("scope", scope).Logger()),
		), nil
	}

	sessions, err := controller(config.ScopeSessions)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	designCtrl, err := controller(config.ScopeDesigns)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, log: log, ledger: ledger, sessions: sessions, designs: designCtrl}, nil
}

func (rt *runtime) Close() error {
	return rt.ledger.Close()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return infra.NewLogger(cfg.Log.Env, cfg.Log.Level)
}
