// Package gather copies candle history from remote providers into the local
// archive.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backtester/internal/domain"
	"backtester/internal/provider"
	"backtester/internal/store"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// Compile-time interface check.
var _ Gatherer = (*CandleGatherer)(nil)

// candlesPerFetch bounds the window requested from the source at once.
const candlesPerFetch = 1000

// CandleGatherer syncs [Start, End] for a set of symbols from a provider
// into a CandleStore. When ProgressDir is set, the synced range of each
// symbol is checkpointed there and the next run only fetches what lies
// outside it.
type CandleGatherer struct {
	Source      provider.CandleProvider
	Store       store.CandleStore
	Symbols     []string
	Interval    domain.Interval
	Start       int64
	End         int64
	ProgressDir string

	name string
	log  *slog.Logger
}

// NewCandleGatherer creates a gatherer identified by name (usually the
// source kind). A nil log uses slog.Default().
func NewCandleGatherer(name string, src provider.CandleProvider, st store.CandleStore, symbols []string, interval domain.Interval, start, end int64, log *slog.Logger) *CandleGatherer {
	if log == nil {
		log = slog.Default()
	}
	return &CandleGatherer{
		Source:   src,
		Store:    st,
		Symbols:  symbols,
		Interval: interval,
		Start:    start,
		End:      end,
		name:     name,
		log:      log.With("gatherer", name),
	}
}

// Name returns the gatherer identifier.
func (g *CandleGatherer) Name() string { return g.name }

// Run fetches each symbol window by window and writes every window to the
// store before moving on.
func (g *CandleGatherer) Run(ctx context.Context) error {
	if !g.Interval.Valid() {
		return fmt.Errorf("interval %q: %w", g.Interval, domain.ErrInvalidInterval)
	}
	if g.Start > g.End {
		return fmt.Errorf("start %d after end %d", g.Start, g.End)
	}

	var tracker *progressTracker
	if g.ProgressDir != "" {
		var err error
		if tracker, err = newProgressTracker(g.ProgressDir, g.Interval); err != nil {
			return err
		}
		defer tracker.Close()
	}

	window := int64(g.Interval.Duration()/time.Second) * candlesPerFetch
	runStart := time.Now()
	var total int

	for _, sym := range g.Symbols {
		want := span{from: g.Start, to: g.End}
		var covered span
		var ok bool
		if tracker != nil {
			covered, ok = tracker.Range(sym)
		}
		// A disjoint earlier range is forgotten; only one contiguous range
		// is tracked per symbol.
		if ok && !covered.touches(want) {
			ok = false
		}
		missing := []span{want}
		if ok {
			missing = want.gaps(covered)
		}
		if len(missing) == 0 {
			g.log.Info("already synced", "symbol", sym)
			continue
		}

		var count int
		for _, gap := range missing {
			for from := gap.from; from <= gap.to; {
				if err := ctx.Err(); err != nil {
					return err
				}
				to := min(from+window-1, gap.to)

				candles, err := g.Source.GetCandles(ctx, sym, g.Interval, from, to)
				if err != nil {
					return fmt.Errorf("fetching %s [%d, %d]: %w", sym, from, to, err)
				}
				if err := g.Store.WriteCandles(ctx, candles); err != nil {
					return fmt.Errorf("writing %s: %w", sym, err)
				}
				count += len(candles)
				from = to + 1

				// A leading gap only extends the range once it reaches it.
				done := span{from: gap.from, to: to}
				if tracker == nil || (ok && !covered.touches(done)) {
					continue
				}
				if ok {
					done = covered.union(done)
				}
				covered, ok = done, true
				if err := tracker.Mark(sym, covered); err != nil {
					return err
				}
			}
		}

		total += count
		g.log.Info("symbol synced", "symbol", sym, "interval", g.Interval, "candles", count)
	}

	g.log.Info("sync complete",
		"symbols", len(g.Symbols),
		"candles", total,
		"elapsed", time.Since(runStart).Round(time.Millisecond).String(),
	)
	return nil
}
