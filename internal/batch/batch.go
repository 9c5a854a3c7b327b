// Package batch applies a file of prompts to one edit session.
package batch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/manash/designedit/internal/session"
)

type Result struct {
	Index    int
	Prompt   string
	Path     string
	Base     string
	Cost     float64
	Error    error
	Duration time.Duration
}

// Options controls how prompts are applied. With Parallel <= 1 every edit
// builds on the one before it. Otherwise up to Parallel edits run at once
// and each starts from whatever is current when it begins.
type Options struct {
	Parallel    int
	StopOnError bool
	DelayMs     int
}

type Processor struct {
	controller *session.Controller
	out        io.Writer
	err        io.Writer
	outMu      sync.Mutex
}

func NewProcessor(controller *session.Controller, out, errOut io.Writer) *Processor {
	return &Processor{
		controller: controller,
		out:        out,
		err:        errOut,
	}
}

func (p *Processor) printf(format string, args ...any) {
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) errorf(format string, args ...any) {
	p.outMu.Lock()
	fmt.Fprintf(p.err, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) Process(ctx context.Context, sessionID string, items []Item, opts *Options) ([]Result, error) {
	if opts.Parallel <= 1 {
		return p.processSequential(ctx, sessionID, items, opts)
	}
	return p.processParallel(ctx, sessionID, items, opts)
}

func (p *Processor) processSequential(ctx context.Context, sessionID string, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := p.processItem(ctx, sessionID, item, i+1, len(items))
		results = append(results, result)

		if result.Error != nil && opts.StopOnError {
			return results, fmt.Errorf("stopped at item %d: %w", item.Index, result.Error)
		}

		if opts.DelayMs > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(time.Duration(opts.DelayMs) * time.Millisecond):
			}
		}
	}

	return results, nil
}

func (p *Processor) processParallel(ctx context.Context, sessionID string, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	done := make([]bool, len(items))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for range min(opts.Parallel, len(items)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result := p.processItem(ctx, sessionID, items[i], i+1, len(items))

				mu.Lock()
				results[i] = result
				done[i] = true
				if result.Error != nil && opts.StopOnError && firstErr == nil {
					firstErr = result.Error
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	finished := results[:0]
	for i, r := range results {
		if done[i] {
			finished = append(finished, r)
		}
	}

	if firstErr != nil {
		return finished, fmt.Errorf("batch stopped due to error: %w", firstErr)
	}
	return finished, ctx.Err()
}

func (p *Processor) processItem(ctx context.Context, sessionID string, item Item, current, total int) Result {
	start := time.Now()
	result := Result{Index: item.Index, Prompt: item.Prompt}

	p.printf("[%d/%d] Editing: %q...\n", current, total, truncate(item.Prompt, 50))

	res, err := p.controller.Edit(ctx, sessionID, item.Prompt)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		p.errorf("       Error: %v\n", err)
		return result
	}

	result.Path = res.Version.Path
	result.Base = res.Version.BaseRef()
	if c, ok := res.Version.Usage["estimated_cost_usd"].(float64); ok {
		result.Cost = c
		p.printf("       Saved: %s ($%.4f)\n", result.Path, result.Cost)
	} else {
		p.printf("       Saved: %s\n", result.Path)
	}
	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (p *Processor) PrintSummary(results []Result) {
	var successful int
	var totalCost float64
	var failed []Result

	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, r)
			continue
		}
		successful++
		totalCost += r.Cost
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Successful: %d/%d edits\n", successful, len(results))
	if len(failed) > 0 {
		fmt.Fprintf(p.out, "  Failed: %d (see errors below)\n", len(failed))
	}
	fmt.Fprintf(p.out, "  Total cost: $%.4f\n", totalCost)

	if len(failed) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Errors:")
		for _, e := range failed {
			fmt.Fprintf(p.out, "  [%d] %q: %v\n", e.Index, truncate(e.Prompt, 40), e.Error)
		}
	}
}
