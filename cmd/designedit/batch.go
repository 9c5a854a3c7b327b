package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manash/designedit/internal/batch"
	"github.com/manash/designedit/internal/identity"
	"github.com/manash/designedit/internal/security"
)

func newBatchCmd(app *App) *cobra.Command {
	var (
		sessionID string
		design    string
		opts      batch.Options
	)

	cmd := &cobra.Command{
		Use:   "batch <prompts.txt|prompts.json>",
		Short: "Apply a file of prompts to a session",
		Long: `Apply every prompt in a file to one session. By default each edit builds
on the previous one. With --parallel N, up to N edits run at once and each
starts from whatever image is current when it begins.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := batch.ParseFile(args[0])
			if err != nil {
				return err
			}

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
			}
			if sid == "" {
				return fmt.Errorf("--session or --design is required")
			}

			proc := batch.NewProcessor(ctrl, cmd.OutOrStdout(), cmd.ErrOrStderr())
			results, err := proc.Process(cmd.Context(), sid, items, &opts)
			proc.PrintSummary(results)
			return err
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to edit")
	cmd.Flags().StringVarP(&design, "design", "d", "", "edit the session of a design record")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 1, "number of concurrent edits")
	cmd.Flags().BoolVar(&opts.StopOnError, "stop-on-error", false, "stop at the first failed edit")
	cmd.Flags().IntVar(&opts.DelayMs, "delay-ms", 0, "pause between sequential edits")
	cmd.Flags().StringVar(&app.apiKey, "api-key", "", "provider API key")
	cmd.MarkFlagsMutuallyExclusive("session", "design")
	return cmd
}
