package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
	"backtester/internal/strategy/builtins"
	"backtester/internal/util"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type sliceProvider struct {
	candles []domain.Candle
	err     error
	calls   int
}

func (p *sliceProvider) GetCandles(_ context.Context, _ string, _ domain.Interval, _, _ int64) ([]domain.Candle, error) {
	p.calls++
	return p.candles, p.err
}

// scripted emits a fixed signal at given candle indexes.
type scripted struct {
	name    string
	signals map[int]domain.Signal
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) OnCandle(c domain.Candle, history []domain.Candle) *domain.Signal {
	sig, ok := s.signals[len(history)]
	if !ok {
		return nil
	}
	sig.Symbol = c.Symbol
	return &sig
}

func buy() domain.Signal  { return *domain.NewSignal(domain.SideBuy, "", "test") }
func sell() domain.Signal { return *domain.NewSignal(domain.SideSell, "", "test") }

func candles(closes ...string) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		px := decimal.RequireFromString(c)
		out[i] = domain.Candle{
			Symbol:    "BTC-USD",
			Timestamp: 1_700_000_000 + int64(i)*3600,
			Open:      px,
			High:      px,
			Low:       px,
			Close:     px,
			Volume:    decimal.NewFromInt(1),
			Interval:  domain.Interval1h,
		}
	}
	return out
}

func request(capital string) Request {
	return Request{
		Symbol:         "BTC-USD",
		Interval:       domain.Interval1h,
		Start:          0,
		End:            2_000_000_000,
		InitialCapital: decimal.RequireFromString(capital),
	}
}

func newTester(p *sliceProvider) *Backtester {
	return NewBacktester(p, util.Discard())
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func assertConserved(t *testing.T, r *domain.BacktestResult) {
	t.Helper()
	total := r.InitialCapital
	for _, tr := range r.Trades {
		total = total.Add(tr.PnL)
	}
	if !r.FinalCapital.Equal(total) {
		t.Errorf("final capital %s != initial + sum(pnl) %s", r.FinalCapital, total)
	}
}

// ---------------------------------------------------------------------------
// Engine scenarios
// ---------------------------------------------------------------------------

func TestRunBuyThenSell(t *testing.T) {
	src := &sliceProvider{candles: candles("100", "110", "90")}
	strat := &scripted{name: "script", signals: map[int]domain.Signal{0: buy(), 1: sell()}}

	r, err := newTester(src).Run(context.Background(), strat, request("1000"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(r.Trades))
	}
	tr := r.Trades[0]
	assertDecimal(t, "entry", tr.EntryPrice, "100")
	assertDecimal(t, "quantity", tr.Quantity, "10")
	assertDecimal(t, "exit", tr.ExitPrice, "110")
	assertDecimal(t, "pnl", tr.PnL, "100")
	assertDecimal(t, "final capital", r.FinalCapital, "1100")
	assertDecimal(t, "total_return", r.Metric(domain.MetricTotalReturn), "0.10")
	assertDecimal(t, "total_trades", r.Metric(domain.MetricTotalTrades), "1")
	if r.StrategyName != "script" || r.Symbol != "BTC-USD" || r.Interval != domain.Interval1h {
		t.Errorf("result header = %s/%s/%s", r.StrategyName, r.Symbol, r.Interval)
	}
	if src.calls != 1 {
		t.Errorf("provider called %d times, want 1", src.calls)
	}
	assertConserved(t, r)
}

func TestRunForcesCloseAtLastCandle(t *testing.T) {
	cs := candles("100", "110", "90")
	strat := &scripted{name: "script", signals: map[int]domain.Signal{0: buy()}}

	r, err := newTester(&sliceProvider{candles: cs}).Run(context.Background(), strat, request("1000"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(r.Trades))
	}
	tr := r.Trades[0]
	assertDecimal(t, "exit", tr.ExitPrice, "90")
	if tr.ExitTime != cs[2].Timestamp {
		t.Errorf("exit time = %d, want %d", tr.ExitTime, cs[2].Timestamp)
	}
	assertDecimal(t, "pnl", tr.PnL, "-100")
	assertDecimal(t, "final capital", r.FinalCapital, "900")
	assertDecimal(t, "total_return", r.Metric(domain.MetricTotalReturn), "-0.10")
	assertConserved(t, r)
}

func TestRunNoCandles(t *testing.T) {
	strat := &scripted{name: "script"}
	r, err := newTester(&sliceProvider{}).Run(context.Background(), strat, request("1000"))
	if !errors.Is(err, ErrNoCandles) {
		t.Fatalf("Run error = %v, want ErrNoCandles", err)
	}
	if r != nil {
		t.Errorf("Run returned a result alongside an error: %+v", r)
	}
}

func TestRunRejectsInvalidStrength(t *testing.T) {
	cs := candles("100", "110", "90")
	bad := buy()
	bad.Strength = dec("1.5")
	strat := &scripted{name: "script", signals: map[int]domain.Signal{0: buy(), 1: bad}}

	r, err := newTester(&sliceProvider{candles: cs}).Run(context.Background(), strat, request("1000"))
	if r != nil {
		t.Errorf("Run returned a result: %+v", r)
	}
	var ce *ContractError
	if !errors.As(err, &ce) {
		t.Fatalf("Run error = %v, want *ContractError", err)
	}
	if ce.Strategy != "script" || ce.Timestamp != cs[1].Timestamp {
		t.Errorf("ContractError = %+v, want strategy script at %d", ce, cs[1].Timestamp)
	}
	if !errors.Is(err, domain.ErrInvalidStrength) {
		t.Errorf("Run error = %v, want ErrInvalidStrength", err)
	}
}

func TestRunRejectsInvalidSide(t *testing.T) {
	bad := buy()
	bad.Side = "HOLD"
	strat := &scripted{name: "script", signals: map[int]domain.Signal{0: bad}}

	_, err := newTester(&sliceProvider{candles: candles("100")}).Run(context.Background(), strat, request("1000"))
	if !errors.Is(err, domain.ErrInvalidSide) {
		t.Errorf("Run error = %v, want ErrInvalidSide", err)
	}
}

func TestRunRejectsBadRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"zero capital", request("0"), ErrInvalidCapital},
		{"negative capital", request("-5"), ErrInvalidCapital},
		{"bad interval", func() Request { r := request("100"); r.Interval = "2h"; return r }(), domain.ErrInvalidInterval},
		{"inverted range", func() Request { r := request("100"); r.Start, r.End = 10, 5; return r }(), ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceProvider{candles: candles("100")}
			_, err := newTester(src).Run(context.Background(), &scripted{name: "s"}, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Run error = %v, want %v", err, tt.want)
			}
			if src.calls != 0 {
				t.Errorf("provider called %d times before validation failed", src.calls)
			}
		})
	}
}

func TestRunPropagatesSourceError(t *testing.T) {
	ioErr := errors.New("connection reset")
	_, err := newTester(&sliceProvider{err: ioErr}).Run(context.Background(), &scripted{name: "s"}, request("1000"))
	if !errors.Is(err, ioErr) {
		t.Errorf("Run error = %v, want %v", err, ioErr)
	}
}

func TestRunIgnoresRedundantSignals(t *testing.T) {
	// SELL while flat, BUY while holding, then a real exit.
	strat := &scripted{name: "script", signals: map[int]domain.Signal{
		0: sell(), 1: buy(), 2: buy(), 3: sell(), 4: sell(),
	}}
	r, err := newTester(&sliceProvider{candles: candles("50", "100", "200", "150", "10")}).
		Run(context.Background(), strat, request("1000"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(r.Trades))
	}
	assertDecimal(t, "entry", r.Trades[0].EntryPrice, "100")
	assertDecimal(t, "exit", r.Trades[0].ExitPrice, "150")
	assertDecimal(t, "final capital", r.FinalCapital, "1500")
}

func TestRunConservesCapitalOnInexactDivision(t *testing.T) {
	strat := &scripted{name: "script", signals: map[int]domain.Signal{0: buy(), 2: sell(), 3: buy()}}
	r, err := newTester(&sliceProvider{candles: candles("3", "3.5", "4", "7", "6.1")}).
		Run(context.Background(), strat, request("1000"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(r.Trades))
	}
	assertDecimal(t, "quantity", r.Trades[0].Quantity, "333.3333333333333333")
	assertConserved(t, r)
}

func TestRunRejectsBuyAtZeroPrice(t *testing.T) {
	strat := &scripted{name: "script", signals: map[int]domain.Signal{0: buy()}}
	_, err := newTester(&sliceProvider{candles: candles("0", "1")}).Run(context.Background(), strat, request("1000"))
	if !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("Run error = %v, want ErrInvalidPrice", err)
	}
}

// historyRecorder records what it was shown.
type historyRecorder struct {
	lens []int
	caps []int
}

func (h *historyRecorder) Name() string { return "recorder" }

func (h *historyRecorder) OnCandle(c domain.Candle, history []domain.Candle) *domain.Signal {
	h.lens = append(h.lens, len(history))
	h.caps = append(h.caps, cap(history))
	if len(history) > 0 && history[len(history)-1].Timestamp >= c.Timestamp {
		panic("history contains the current or a future candle")
	}
	return nil
}

func TestSimulateHidesFutureCandles(t *testing.T) {
	rec := &historyRecorder{}
	_, err := newTester(&sliceProvider{candles: candles("1", "2", "3", "4")}).
		Run(context.Background(), rec, request("100"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range rec.lens {
		if rec.lens[i] != i || rec.caps[i] != i {
			t.Errorf("call %d: len %d cap %d, want %d", i, rec.lens[i], rec.caps[i], i)
		}
	}
}

func wave(n int) []string {
	out := make([]string, n)
	for i := range out {
		px := decimal.NewFromInt(int64(100 + (i*37)%23 - (i*13)%7 + i/5))
		out[i] = px.Add(decimal.New(int64(i%4), -1)).String()
	}
	return out
}

func TestRunIsDeterministic(t *testing.T) {
	cs := candles(wave(200)...)
	reg := builtins.NewRegistry()
	params := strategy.Params{
		ShortPeriod: 3, LongPeriod: 8, Period: 5, Overbought: 65, Oversold: 35,
		NumStd: 1.5, FastPeriod: 3, SlowPeriod: 8, SignalPeriod: 3,
		KPeriod: 5, DPeriod: 3, ZThreshold: 1.5,
	}

	for _, name := range reg.List() {
		t.Run(name, func(t *testing.T) {
			var outputs [][]byte
			for run := 0; run < 2; run++ {
				strat, err := reg.Build(name, params)
				if err != nil {
					t.Fatalf("Build: %v", err)
				}
				r, err := newTester(&sliceProvider{candles: cs}).Run(context.Background(), strat, request("10000"))
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				assertConserved(t, r)
				b, err := json.Marshal(r)
				if err != nil {
					t.Fatalf("Marshal: %v", err)
				}
				outputs = append(outputs, b)
			}
			if !bytes.Equal(outputs[0], outputs[1]) {
				t.Errorf("runs differ:\n%s\n%s", outputs[0], outputs[1])
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Portfolio
// ---------------------------------------------------------------------------

func TestPortfolioStateMachine(t *testing.T) {
	cs := candles("100", "120")
	p := NewPortfolio(dec("1000"))
	if p.State() != Flat {
		t.Fatalf("new portfolio state = %s, want flat", p.State())
	}

	if changed, err := p.Apply(sell(), cs[0]); err != nil || changed {
		t.Errorf("SELL while flat: changed=%v err=%v, want no-op", changed, err)
	}
	if changed, err := p.Apply(buy(), cs[0]); err != nil || !changed {
		t.Fatalf("BUY while flat: changed=%v err=%v", changed, err)
	}
	if p.State() != InPosition || !p.Cash().IsZero() {
		t.Errorf("after BUY: state %s cash %s, want in_position/0", p.State(), p.Cash())
	}
	if changed, _ := p.Apply(buy(), cs[1]); changed {
		t.Error("BUY while in position changed state")
	}
	if changed, _ := p.Apply(sell(), cs[1]); !changed {
		t.Fatal("SELL while in position did not close")
	}
	if p.State() != Flat || p.Position() != nil {
		t.Errorf("after SELL: state %s, want flat", p.State())
	}
	assertDecimal(t, "cash", p.Cash(), "1200")
	if len(p.Trades()) != 1 {
		t.Errorf("trades = %d, want 1", len(p.Trades()))
	}
	if p.ForceClose(cs[1]) {
		t.Error("ForceClose on a flat portfolio reported a close")
	}
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func trade(entry, exit, qty string) domain.Trade {
	p := domain.Position{Symbol: "BTC-USD", Quantity: dec(qty), EntryPrice: dec(entry)}
	return p.Close(dec(exit), 1)
}

func TestMetricsNoTrades(t *testing.T) {
	m := CalculateMetrics(dec("1000"), dec("1000"), nil)
	for _, k := range domain.MetricKeys() {
		v, ok := m[k]
		if !ok {
			t.Errorf("metric %s missing", k)
			continue
		}
		if !v.IsZero() {
			t.Errorf("metric %s = %s, want 0", k, v)
		}
	}
}

func TestMetricsOnlyWinners(t *testing.T) {
	trades := []domain.Trade{trade("100", "110", "10"), trade("110", "121", "10")}
	m := CalculateMetrics(dec("1000"), dec("1210"), trades)
	assertDecimal(t, "profit_factor", m[domain.MetricProfitFactor], "0")
	assertDecimal(t, "win_rate", m[domain.MetricWinRate], "1")
	assertDecimal(t, "max_drawdown", m[domain.MetricMaxDrawdown], "0")
	// Both trades return 10%, so the deviation is zero.
	assertDecimal(t, "sharpe_ratio", m[domain.MetricSharpeRatio], "0")
}

func TestMetricsMixed(t *testing.T) {
	trades := []domain.Trade{
		trade("100", "110", "10"), // +100
		trade("100", "95", "10"),  // -50
		trade("100", "103", "10"), // +30
	}
	m := CalculateMetrics(dec("1000"), dec("1080"), trades)

	assertDecimal(t, "total_return", m[domain.MetricTotalReturn], "0.08")
	if want := decimal.NewFromInt(2).Div(decimal.NewFromInt(3)); !m[domain.MetricWinRate].Equal(want) {
		t.Errorf("win_rate = %s, want %s", m[domain.MetricWinRate], want)
	}
	assertDecimal(t, "profit_factor", m[domain.MetricProfitFactor], "2.6")
	if want := dec("50").Div(dec("1100")); !m[domain.MetricMaxDrawdown].Equal(want) {
		t.Errorf("max_drawdown = %s, want %s", m[domain.MetricMaxDrawdown], want)
	}
	assertDecimal(t, "total_trades", m[domain.MetricTotalTrades], "3")
}

func TestMetricsSharpe(t *testing.T) {
	// Returns 0.1 and 0.3: mean 0.2, population std 0.1.
	trades := []domain.Trade{trade("100", "110", "1"), trade("100", "130", "1")}
	m := CalculateMetrics(dec("100"), dec("140"), trades)
	assertDecimal(t, "sharpe_ratio", m[domain.MetricSharpeRatio], "2")

	single := CalculateMetrics(dec("100"), dec("110"), trades[:1])
	assertDecimal(t, "sharpe_ratio (one trade)", single[domain.MetricSharpeRatio], "0")
}

func TestSqrt(t *testing.T) {
	tests := map[string]string{
		"4":    "2",
		"0.01": "0.1",
		"2":    "1.4142135623730950",
	}
	for in, want := range tests {
		if got := sqrt(dec(in)); !got.Equal(dec(want)) {
			t.Errorf("sqrt(%s) = %s, want %s", in, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Compare
// ---------------------------------------------------------------------------

func TestCompare(t *testing.T) {
	src := &sliceProvider{candles: candles("100", "110", "90")}
	strats := []strategy.Strategy{
		&scripted{name: "round_trip", signals: map[int]domain.Signal{0: buy(), 1: sell()}},
		&scripted{name: "hold", signals: map[int]domain.Signal{0: buy()}},
		&scripted{name: "idle"},
	}

	results, err := newTester(src).Compare(context.Background(), strats, request("1000"), 2)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("provider called %d times, want 1", src.calls)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"round_trip", "hold", "idle"} {
		if results[i].StrategyName != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].StrategyName, want)
		}
	}
	assertDecimal(t, "round_trip final", results[0].FinalCapital, "1100")
	assertDecimal(t, "hold final", results[1].FinalCapital, "900")
	assertDecimal(t, "idle final", results[2].FinalCapital, "1000")

	ranked := RankResults(results, domain.MetricTotalReturn)
	for i, want := range []string{"round_trip", "idle", "hold"} {
		if ranked[i].StrategyName != want {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].StrategyName, want)
		}
	}
	if results[0].StrategyName != "round_trip" {
		t.Error("RankResults reordered its input")
	}
}

func TestCompareFailsOnAnyError(t *testing.T) {
	bad := buy()
	bad.Strength = dec("-0.1")
	strats := []strategy.Strategy{
		&scripted{name: "ok", signals: map[int]domain.Signal{0: buy()}},
		&scripted{name: "broken", signals: map[int]domain.Signal{1: bad}},
	}

	results, err := newTester(&sliceProvider{candles: candles("1", "2", "3")}).
		Compare(context.Background(), strats, request("10"), 0)
	var ce *ContractError
	if !errors.As(err, &ce) || ce.Strategy != "broken" {
		t.Fatalf("Compare error = %v, want ContractError from broken", err)
	}
	if results != nil {
		t.Errorf("Compare returned results alongside an error")
	}
}

func TestRankResultsDrawdownAscending(t *testing.T) {
	mk := func(name, dd string) *domain.BacktestResult {
		return &domain.BacktestResult{StrategyName: name, Metrics: map[string]decimal.Decimal{domain.MetricMaxDrawdown: dec(dd)}}
	}
	ranked := RankResults([]*domain.BacktestResult{mk("c", "0.3"), mk("b", "0.1"), mk("a", "0.1")}, domain.MetricMaxDrawdown)
	for i, want := range []string{"a", "b", "c"} {
		if ranked[i].StrategyName != want {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].StrategyName, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Walk-forward
// ---------------------------------------------------------------------------

func walkForwardRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register("buyer", func(strategy.Params) (strategy.Strategy, error) {
		return &scripted{name: "buyer", signals: map[int]domain.Signal{0: buy()}}, nil
	})
	reg.Register("idle", func(strategy.Params) (strategy.Strategy, error) {
		return &scripted{name: "idle"}, nil
	})
	reg.Register("broken", func(strategy.Params) (strategy.Strategy, error) {
		return nil, strategy.ErrInvalidParams
	})
	return reg
}

func TestWalkForward(t *testing.T) {
	src := &sliceProvider{candles: candles("100", "110", "120", "130", "140", "150", "140", "130", "120", "110")}
	cfg := WalkForwardConfig{TrainWindow: 4, TestWindow: 2, Step: 2, Metric: domain.MetricTotalReturn}

	r, err := newTester(src).WalkForward(context.Background(), walkForwardRegistry(), strategy.DefaultParams(), request("1000"), cfg)
	if err != nil {
		t.Fatalf("WalkForward: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("provider called %d times, want 1", src.calls)
	}

	// Rising train windows pick buyer; the falling one picks idle.
	want := []string{"buyer", "buyer", "idle"}
	if len(r.Folds) != len(want) {
		t.Fatalf("got %d folds, want %d", len(r.Folds), len(want))
	}
	for i, f := range r.Folds {
		if f.Index != i || f.Strategy != want[i] || f.Train.StrategyName != want[i] {
			t.Errorf("fold %d = %d %s (train %s), want %s", i, f.Index, f.Strategy, f.Train.StrategyName, want[i])
		}
	}
	assertDecimal(t, "fold 0 test pnl", r.Folds[0].Test.FinalCapital.Sub(dec("1000")).Round(8), "71.42857143")
	assertDecimal(t, "fold 1 test pnl", r.Folds[1].Test.FinalCapital.Sub(dec("1000")).Round(8), "-71.42857143")

	// The two test trades cancel out.
	assertDecimal(t, "final capital", r.FinalCapital, "1000")
	assertDecimal(t, "total_return", r.Metric(domain.MetricTotalReturn), "0")
	assertDecimal(t, "total_trades", r.Metric(domain.MetricTotalTrades), "2")
	assertDecimal(t, "win_rate", r.Metric(domain.MetricWinRate), "0.5")
}

func TestWalkForwardErrors(t *testing.T) {
	ok := WalkForwardConfig{TrainWindow: 4, TestWindow: 2, Step: 2, Metric: domain.MetricSharpeRatio}
	onlyBroken := strategy.NewRegistry()
	onlyBroken.Register("broken", func(strategy.Params) (strategy.Strategy, error) {
		return nil, strategy.ErrInvalidParams
	})

	tests := []struct {
		name    string
		reg     *strategy.Registry
		cfg     WalkForwardConfig
		candles int
		want    error
	}{
		{"short history", walkForwardRegistry(), ok, 5, ErrInsufficientCandles},
		{"zero step", walkForwardRegistry(), WalkForwardConfig{TrainWindow: 4, TestWindow: 2, Metric: domain.MetricTotalReturn}, 10, ErrInvalidWindow},
		{"unknown metric", walkForwardRegistry(), WalkForwardConfig{TrainWindow: 4, TestWindow: 2, Step: 1, Metric: "alpha"}, 10, ErrUnknownMetric},
		{"nothing buildable", onlyBroken, ok, 10, ErrNoStrategies},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceProvider{candles: candles(wave(tt.candles)...)}
			_, err := newTester(src).WalkForward(context.Background(), tt.reg, strategy.DefaultParams(), request("1000"), tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("WalkForward error = %v, want %v", err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Monte Carlo
// ---------------------------------------------------------------------------

func monteCarloFixture() *domain.BacktestResult {
	trades := []domain.Trade{
		trade("100", "110", "1"),
		trade("100", "80", "1"),
		trade("100", "130", "1"),
	}
	return &domain.BacktestResult{
		StrategyName:   "fixture",
		Symbol:         "BTC-USD",
		InitialCapital: dec("100"),
		FinalCapital:   dec("120"),
		Trades:         trades,
		Metrics:        CalculateMetrics(dec("100"), dec("120"), trades),
	}
}

func TestMonteCarlo(t *testing.T) {
	r := monteCarloFixture()
	mc, err := MonteCarlo(r, 200, 42)
	if err != nil {
		t.Fatalf("MonteCarlo: %v", err)
	}
	if mc.Shuffles != 200 || mc.Trades != 3 || len(mc.Distributions) != 3 {
		t.Fatalf("result = %+v", mc)
	}

	byMetric := make(map[string]domain.Distribution)
	for _, d := range mc.Distributions {
		byMetric[d.Metric] = d
	}

	// Order never changes the end capital.
	ret := byMetric[domain.MetricTotalReturn]
	assertDecimal(t, "return mean", ret.Mean, "0.2")
	assertDecimal(t, "return std", ret.Std, "0")
	assertDecimal(t, "return p5", ret.P5, "0.2")
	assertDecimal(t, "return actual", ret.Actual, "0.2")

	// Best order is +10 +30 -20 (20 off a 140 peak); worst starts with -20.
	dd := byMetric[domain.MetricMaxDrawdown]
	best := maxDrawdown(dec("100"), []domain.Trade{r.Trades[0], r.Trades[2], r.Trades[1]})
	if !dd.P5.Equal(best) {
		t.Errorf("drawdown p5 = %s, want %s", dd.P5, best)
	}
	assertDecimal(t, "drawdown p95", dd.P95, "0.2")
	if dd.P25.GreaterThan(dd.P50) || dd.P50.GreaterThan(dd.P75) || dd.P75.GreaterThan(dd.P95) {
		t.Errorf("drawdown percentiles out of order: %+v", dd)
	}
	if !dd.Std.IsPositive() {
		t.Errorf("drawdown std = %s, want positive", dd.Std)
	}

	sharpe := byMetric[domain.MetricSharpeRatio]
	if !sharpe.P5.Equal(sharpe.P95) || !sharpe.Mean.Equal(r.Metric(domain.MetricSharpeRatio)) {
		t.Errorf("sharpe distribution = %+v, want constant %s", sharpe, r.Metric(domain.MetricSharpeRatio))
	}

	// The input keeps its trade order.
	if !r.Trades[1].PnL.Equal(dec("-20")) {
		t.Error("MonteCarlo reordered the result's trades")
	}
}

func TestMonteCarloSeeded(t *testing.T) {
	var outputs [][]byte
	for run := 0; run < 2; run++ {
		mc, err := MonteCarlo(monteCarloFixture(), 50, 7)
		if err != nil {
			t.Fatalf("MonteCarlo: %v", err)
		}
		b, err := json.Marshal(mc)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		outputs = append(outputs, b)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Errorf("seeded runs differ:\n%s\n%s", outputs[0], outputs[1])
	}
}

func TestMonteCarloErrors(t *testing.T) {
	r := monteCarloFixture()
	if _, err := MonteCarlo(r, 0, 1); !errors.Is(err, ErrInvalidShuffles) {
		t.Errorf("zero shuffles error = %v, want ErrInvalidShuffles", err)
	}
	r.Trades = r.Trades[:1]
	if _, err := MonteCarlo(r, 10, 1); !errors.Is(err, ErrTooFewTrades) {
		t.Errorf("one trade error = %v, want ErrTooFewTrades", err)
	}
}

func TestDistributionNearestRank(t *testing.T) {
	values := make([]decimal.Decimal, 10)
	for i := range values {
		values[i] = decimal.NewFromInt(int64(10 - i))
	}
	d := distribution(values)
	assertDecimal(t, "mean", d.Mean, "5.5")
	assertDecimal(t, "p5", d.P5, "1")   // index 0
	assertDecimal(t, "p25", d.P25, "3") // index 2
	assertDecimal(t, "p50", d.P50, "6") // index 5
	assertDecimal(t, "p75", d.P75, "8") // index 7
	assertDecimal(t, "p95", d.P95, "10")
}
