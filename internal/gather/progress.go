package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"backtester/internal/domain"
)

// span is a closed range [from, to] of Unix seconds.
type span struct {
	from, to int64
}

// touches reports whether s and o overlap or are adjacent.
func (s span) touches(o span) bool {
	return s.from <= o.to+1 && o.from <= s.to+1
}

func (s span) union(o span) span {
	return span{from: min(s.from, o.from), to: max(s.to, o.to)}
}

// gaps returns the parts of s not covered by have, oldest first.
func (s span) gaps(have span) []span {
	if !s.touches(have) {
		return []span{s}
	}
	var out []span
	if s.from < have.from {
		out = append(out, span{from: s.from, to: have.from - 1})
	}
	if s.to > have.to {
		out = append(out, span{from: max(s.from, have.to+1), to: s.to})
	}
	return out
}

// progressTracker checkpoints the contiguous synced range per symbol in
// <dir>/.sync-<interval> as "SYMBOL FROM TO" lines. Later lines win.
type progressTracker struct {
	mu     sync.Mutex
	synced map[string]span
	writer *bufio.Writer
	file   *os.File
}

// newProgressTracker opens (or creates) the checkpoint file for interval and
// loads its entries.
func newProgressTracker(dir string, interval domain.Interval) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{synced: make(map[string]span)}

	path := filepath.Join(dir, ".sync-"+string(interval))
	data, err := os.ReadFile(path)
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			fields := strings.Fields(line)
			if len(fields) != 3 {
				continue
			}
			from, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				continue
			}
			to, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil || to < from {
				continue
			}
			pt.synced[fields[0]] = span{from: from, to: to}
		}
	}

	// Open for appending.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)

	return pt, nil
}

// Range returns the synced range for symbol.
func (p *progressTracker) Range(symbol string) (span, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.synced[symbol]
	return r, ok
}

// Mark records that symbol is synced over r, replacing any earlier range.
func (p *progressTracker) Mark(symbol string, r span) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.synced[symbol] = r
	if _, err := fmt.Fprintf(p.writer, "%s %d %d\n", symbol, r.from, r.to); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return p.writer.Flush()
}

// Close flushes and closes the checkpoint file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
