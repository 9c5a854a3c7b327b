package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manash/designedit/internal/keys"
	"github.com/manash/designedit/pkg/models"
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored provider API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider> <key>",
		Short: "Store an API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParseProviderType(args[0])
			if err != nil {
				return err
			}
			store := app.keyStore()
			if err := store.Set(p, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s key in %s\n", p, store.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <provider>",
		Short: "Show the key that would be used, masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParseProviderType(args[0])
			if err != nil {
				return err
			}
			key, source, err := keys.Resolve(app.keyStore(), "", p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (from %s)\n", p, keys.MaskKey(key), source)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParseProviderType(args[0])
			if err != nil {
				return err
			}
			if err := app.keyStore().Delete(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s key\n", p)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List providers with a stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := app.keyStore().List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored keys")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	return cmd
}
