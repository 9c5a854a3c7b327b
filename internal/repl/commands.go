package repl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/manash/designedit/internal/image"
	"github.com/manash/designedit/internal/security"
	"github.com/manash/designedit/internal/session"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&UploadCommand{},
		&EditCommand{},
		&UndoCommand{},
		&RollbackCommand{},
		&HistoryCommand{},
		&ShowCommand{},
		&SaveCommand{},
		&CostCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// showCurrent previews the current base, warning instead of failing.
func (r *REPL) showCurrent(ctx context.Context) {
	if !r.displayer.Enabled() {
		return
	}
	h, err := r.controller.List(ctx, r.sessionID)
	if err != nil || h.Current() == "" {
		return
	}
	data, mime, err := r.controller.Store().ReadImage(h.Current())
	if err == nil {
		err = r.displayer.Show(data, mime)
	}
	if err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
}

type UploadCommand struct{}

func (c *UploadCommand) Name() string        { return "upload" }
func (c *UploadCommand) Aliases() []string   { return []string{"open", "o"} }
func (c *UploadCommand) Description() string { return "Start over from a local image file" }
func (c *UploadCommand) Usage() string       { return "upload <file>" }

func (c *UploadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	res, err := r.controller.Upload(ctx, r.sessionID, session.Upload{
		Data:     data,
		MIME:     image.MIMEForExtension(filepath.Ext(args[0])),
		Filename: filepath.Base(args[0]),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Original: %s\n", res.Version.Path)
	r.showCurrent(ctx)
	return nil
}

type EditCommand struct{}

func (c *EditCommand) Name() string        { return "edit" }
func (c *EditCommand) Aliases() []string   { return []string{"e"} }
func (c *EditCommand) Description() string { return "Edit the current image with a prompt" }
func (c *EditCommand) Usage() string       { return "edit <prompt>" }

func (c *EditCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	fmt.Fprintln(r.out, "Editing...")
	res, err := r.controller.Edit(ctx, r.sessionID, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("edit failed: %w", err)
	}

	fmt.Fprintf(r.out, "Saved: %s\n", res.Version.Path)
	if cost, ok := res.Version.Usage["estimated_cost_usd"].(float64); ok {
		model, _ := res.Version.Usage["model"].(string)
		fmt.Fprintf(r.out, "Cost: $%.4f (%s)\n", cost, model)
	}
	r.showCurrent(ctx)
	return nil
}

type UndoCommand struct{}

func (c *UndoCommand) Name() string        { return "undo" }
func (c *UndoCommand) Aliases() []string   { return []string{"u", "back"} }
func (c *UndoCommand) Description() string { return "Step back to the image the current one was made from" }
func (c *UndoCommand) Usage() string       { return "undo" }

func (c *UndoCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	current, err := r.controller.Undo(ctx, r.sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Current: %s\n", current)
	r.showCurrent(ctx)
	return nil
}

type RollbackCommand struct{}

func (c *RollbackCommand) Name() string        { return "rollback" }
func (c *RollbackCommand) Aliases() []string   { return []string{"rb", "goto"} }
func (c *RollbackCommand) Description() string { return "Make any stored image the current one" }
func (c *RollbackCommand) Usage() string       { return "rollback <path|history number>" }

func (c *RollbackCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	target := args[0]

	if n, err := strconv.Atoi(target); err == nil {
		h, err := r.controller.List(ctx, r.sessionID)
		if err != nil {
			return err
		}
		if n < 1 || n > len(h.Versions) {
			return fmt.Errorf("no version %d (history has %d)", n, len(h.Versions))
		}
		target = h.Versions[n-1].Path
	}

	current, err := r.controller.Rollback(ctx, r.sessionID, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Current: %s\n", current)
	r.showCurrent(ctx)
	return nil
}

type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist", "ls"} }
func (c *HistoryCommand) Description() string { return "List versions, newest first" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	h, err := r.controller.List(ctx, r.sessionID)
	if err != nil {
		return err
	}
	if h.IsEmpty() {
		fmt.Fprintln(r.out, "No history yet")
		return nil
	}

	now := r.now()
	for i, v := range h.Versions {
		marker := "  "
		if v.Path == h.Current() {
			marker = "> "
		}

		size := "missing"
		if path, err := r.controller.Store().Resolve(v.Path); err == nil {
			if info, err := os.Stat(path); err == nil {
				size = humanize.Bytes(uint64(info.Size()))
			}
		}

		label := string(v.Type)
		if v.Type == session.TypeEdit {
			label = fmt.Sprintf("edit %q", truncate(v.PromptText(), 50))
		}
		fmt.Fprintf(r.out, "%s[%d] %-14s %-8s %s\n",
			marker, i+1, humanize.RelTime(v.Timestamp, now, "ago", "from now"), size, label)
	}
	return nil
}

type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display", "view"} }
func (c *ShowCommand) Description() string { return "Display the current image" }
func (c *ShowCommand) Usage() string       { return "show" }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	h, err := r.controller.List(ctx, r.sessionID)
	if err != nil {
		return err
	}
	if h.Current() == "" {
		return fmt.Errorf("no current image to display")
	}
	if !r.displayer.Enabled() {
		fmt.Fprintf(r.out, "Current: %s (inline preview not supported by this terminal)\n", h.Current())
		return nil
	}
	data, mime, err := r.controller.Store().ReadImage(h.Current())
	if err != nil {
		return fmt.Errorf("read current image: %w", err)
	}
	return r.displayer.Show(data, mime)
}

type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"s"} }
func (c *SaveCommand) Description() string { return "Copy the current image to a file" }
func (c *SaveCommand) Usage() string       { return "save [filename]" }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	h, err := r.controller.List(ctx, r.sessionID)
	if err != nil {
		return err
	}
	current := h.Current()
	if current == "" {
		return fmt.Errorf("no current image to save")
	}

	dest := filepath.Base(current)
	if len(args) > 0 {
		dest = args[0]
		if err := security.ValidateSavePath(dest); err != nil {
			return fmt.Errorf("invalid save path: %w", err)
		}
	}

	data, _, err := r.controller.Store().ReadImage(current)
	if err != nil {
		return fmt.Errorf("read current image: %w", err)
	}
	if err := r.saver.Save(data, dest); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved: %s\n", dest)
	return nil
}

type CostCommand struct{}

func (c *CostCommand) Name() string        { return "cost" }
func (c *CostCommand) Aliases() []string   { return []string{"$"} }
func (c *CostCommand) Description() string { return "View estimated spend (session, total, provider)" }
func (c *CostCommand) Usage() string       { return "cost [session|total|provider]" }

func (c *CostCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if r.usage == nil {
		return fmt.Errorf("usage ledger is not configured")
	}

	sub := "session"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "session":
		s, err := r.usage.SessionUsage(ctx, r.sessionID)
		if err != nil {
			return err
		}
		if s.EditCount == 0 {
			fmt.Fprintln(r.out, "No costs in this session.")
			return nil
		}
		fmt.Fprintf(r.out, "Session cost: $%.4f (%d edit(s))\n", s.TotalCost, s.EditCount)
	case "total":
		s, err := r.usage.TotalUsage(ctx)
		if err != nil {
			return err
		}
		if s.EditCount == 0 {
			fmt.Fprintln(r.out, "No costs recorded yet.")
			return nil
		}
		fmt.Fprintf(r.out, "Total cost: $%.4f (%d edit(s))\n", s.TotalCost, s.EditCount)
	case "provider":
		rows, err := r.usage.UsageByProvider(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(r.out, "No costs recorded yet.")
			return nil
		}
		fmt.Fprintf(r.out, "%-12s  %-8s  %s\n", "Provider", "Edits", "Cost")
		fmt.Fprintln(r.out, strings.Repeat("-", 35))
		for _, p := range rows {
			fmt.Fprintf(r.out, "%-12s  %-8d  $%.4f\n", p.Provider, p.EditCount, p.TotalCost)
		}
	default:
		return fmt.Errorf("unknown cost command: %s\nUsage: %s", sub, c.Usage())
	}
	return nil
}

type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-24s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-24sUsage: %s\n", "", cmd.Usage())
	}
	return nil
}

type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
