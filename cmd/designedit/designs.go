package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/manash/designedit/internal/designs"
	"github.com/manash/designedit/internal/image"
)

func newDesignsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "designs",
		Short: "Manage design records that seed per-design sessions",
	}

	open := func() (*designs.Store, error) {
		cfg, err := app.loadConfig()
		if err != nil {
			return nil, err
		}
		return designs.NewStore(cfg.Database.Path, cfg.RecordsRoot())
	}

	var id, title string
	add := &cobra.Command{
		Use:   "add <image>",
		Short: "Register an image as a design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			mime := image.DetectMIME(data)
			if !strings.HasPrefix(mime, "image/") {
				return fmt.Errorf("%s is not an image", args[0])
			}

			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			norm := image.Normalize(data, mime)
			if norm.ConversionErr != nil {
				return fmt.Errorf("%s: %w", args[0], norm.ConversionErr)
			}
			d, err := store.CreateDesign(cmd.Context(), id, title, norm.Data, "."+image.ExtensionForMIME(norm.MIME))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created design %s (%s)\n", d.ID, d.Title)
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "design id (generated when empty)")
	add.Flags().StringVar(&title, "title", "", "design title (defaults to the file name)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List design records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.ListDesigns(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No designs")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tIMAGE\tCREATED")
			for _, d := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Title, d.ImagePath, humanize.Time(d.CreatedAt))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
