// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry that builds strategies by name.
package strategy

import (
	"errors"
	"fmt"
	"sort"

	"backtester/internal/domain"
)

var (
	// ErrUnknownStrategy is returned by Registry.Build for an unregistered name.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidParams is returned by factories rejecting their parameters.
	ErrInvalidParams = errors.New("invalid strategy parameters")
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the identifier used for reporting.
	Name() string

	// OnCandle evaluates the current candle given every earlier candle of
	// the run (oldest first, current excluded). It returns nil to hold.
	OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal
}

// Params carries the tunables shared by the builtin strategies. Each
// strategy reads only the fields it needs.
type Params struct {
	ShortPeriod  int     `yaml:"short_period"`
	LongPeriod   int     `yaml:"long_period"`
	Period       int     `yaml:"period"`
	Overbought   int     `yaml:"overbought"`
	Oversold     int     `yaml:"oversold"`
	NumStd       float64 `yaml:"num_std"`
	FastPeriod   int     `yaml:"fast_period"`
	SlowPeriod   int     `yaml:"slow_period"`
	SignalPeriod int     `yaml:"signal_period"`
	KPeriod      int     `yaml:"k_period"`
	DPeriod      int     `yaml:"d_period"`
	ZThreshold   float64 `yaml:"z_threshold"`
}

// DefaultParams returns the parameter set used when none is configured.
func DefaultParams() Params {
	return Params{
		ShortPeriod:  10,
		LongPeriod:   20,
		Period:       14,
		Overbought:   70,
		Oversold:     30,
		NumStd:       2,
		FastPeriod:   12,
		SlowPeriod:   26,
		SignalPeriod: 9,
		KPeriod:      14,
		DPeriod:      3,
		ZThreshold:   2,
	}
}

// Factory constructs a strategy from parameters.
type Factory func(p Params) (Strategy, error)

// Registry maps strategy names to factories. Build a fresh one per process
// (or per test) and pass it where lookups are needed.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Build looks up name and constructs the strategy with p.
func (r *Registry) Build(name string, p Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	s, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("building strategy %q: %w", name, err)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
