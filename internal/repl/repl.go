// Package repl is a terminal front end for one edit session.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/manash/designedit/internal/designs"
	"github.com/manash/designedit/internal/display"
	"github.com/manash/designedit/internal/image"
	"github.com/manash/designedit/internal/session"
)

// Usage is the slice of the usage ledger the cost command reads.
type Usage interface {
	SessionUsage(ctx context.Context, sessionID string) (*designs.UsageSummary, error)
	TotalUsage(ctx context.Context) (*designs.UsageSummary, error)
	UsageByProvider(ctx context.Context) ([]designs.ProviderUsage, error)
}

type REPL struct {
	in         io.Reader
	out        io.Writer
	err        io.Writer
	controller *session.Controller
	sessionID  string
	usage      Usage
	displayer  *display.Displayer
	saver      *image.Saver
	now        func() time.Time
	commands   map[string]Command
	running    bool
}

type Config struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	Controller *session.Controller
	SessionID  string
	Usage      Usage
	Displayer  *display.Displayer
	Saver      *image.Saver
	Now        func() time.Time
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:         cfg.In,
		out:        cfg.Out,
		err:        cfg.Err,
		controller: cfg.Controller,
		sessionID:  cfg.SessionID,
		usage:      cfg.Usage,
		displayer:  cfg.Displayer,
		saver:      cfg.Saver,
		now:        cfg.Now,
		commands:   make(map[string]Command),
	}
	if r.err == nil {
		r.err = r.out
	}
	if r.displayer == nil {
		r.displayer = display.New(r.out)
	}
	if r.saver == nil {
		r.saver = image.NewSaver()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.registerCommands()
	return r
}

func (r *REPL) SessionID() string { return r.sessionID }

func (r *REPL) Run(ctx context.Context) error {
	if _, err := r.controller.Bootstrap(ctx, r.sessionID, nil); err != nil {
		return err
	}

	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt(ctx)
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(parts[0])
	cmd, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", name)
	}
	return cmd.Execute(ctx, r, parts[1:])
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintf(r.out, "designedit session %s\n", r.sessionID)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt(ctx context.Context) {
	h, err := r.controller.List(ctx, r.sessionID)
	if err != nil || h.IsEmpty() {
		fmt.Fprint(r.out, "designedit> ")
		return
	}
	label := "?"
	if v, ok := h.Find(h.Current()); ok {
		label = string(v.Type)
	}
	fmt.Fprintf(r.out, "designedit [%d versions] (%s)> ", len(h.Versions), label)
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
