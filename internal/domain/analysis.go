package domain

import "github.com/shopspring/decimal"

// Fold is one walk-forward split: the strategy that ranked best on the
// train window and how it then did on the unseen test window.
type Fold struct {
	Index    int             `json:"index"`
	Strategy string          `json:"strategy"` // registry name
	Train    *BacktestResult `json:"train"`
	Test     *BacktestResult `json:"test"`
}

// WalkForwardResult aggregates the test windows of every fold. Metrics are
// computed over the concatenated test trades.
type WalkForwardResult struct {
	Symbol         string                     `json:"symbol"`
	Interval       Interval                   `json:"interval"`
	SelectMetric   string                     `json:"select_metric"`
	InitialCapital decimal.Decimal            `json:"initial_capital"`
	FinalCapital   decimal.Decimal            `json:"final_capital"`
	Folds          []Fold                     `json:"folds"`
	Metrics        map[string]decimal.Decimal `json:"metrics"`
}

// Metric returns the named aggregate metric, or zero when it is absent.
func (r *WalkForwardResult) Metric(key string) decimal.Decimal {
	return r.Metrics[key]
}

// Distribution summarizes one metric over every shuffle. Percentiles use
// the nearest rank.
type Distribution struct {
	Metric string          `json:"metric"`
	Actual decimal.Decimal `json:"actual"`
	Mean   decimal.Decimal `json:"mean"`
	Std    decimal.Decimal `json:"std"`
	P5     decimal.Decimal `json:"p5"`
	P25    decimal.Decimal `json:"p25"`
	P50    decimal.Decimal `json:"p50"`
	P75    decimal.Decimal `json:"p75"`
	P95    decimal.Decimal `json:"p95"`
}

// MonteCarloResult describes how a run's metrics vary when its trades are
// replayed in random order.
type MonteCarloResult struct {
	StrategyName  string         `json:"strategy_name"`
	Symbol        string         `json:"symbol"`
	Trades        int            `json:"trades"`
	Shuffles      int            `json:"shuffles"`
	Seed          int64          `json:"seed"`
	Distributions []Distribution `json:"distributions"`
}
