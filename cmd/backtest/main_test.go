package main

import (
	"bytes"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backtester/internal/config"
	"backtester/internal/domain"
	"backtester/internal/provider"
	"backtester/internal/strategy"
	"backtester/internal/strategy/builtins"
	"backtester/internal/util"
)

func TestOptionsOverrideConfig(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := bindOptions(fs)
	if err := fs.Parse([]string{"-symbol", "ETH-USD", "-interval", "4h", "-capital", "500"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg := config.Default()
	opts.apply(cfg)

	if cfg.Backtest.Symbol != "ETH-USD" || cfg.Backtest.Interval != "4h" || cfg.Backtest.InitialCapital != "500" {
		t.Errorf("Backtest = %+v, want flag values", cfg.Backtest)
	}
	// Flags left empty keep the configured value.
	if cfg.Data.Source != config.SourceCSV || cfg.Backtest.Strategy != "sma_crossover" {
		t.Errorf("untouched fields changed: source %q strategy %q", cfg.Data.Source, cfg.Backtest.Strategy)
	}
}

func TestBuildRequest(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b := config.Default().Backtest
	b.Start = "2024-01-01"

	req, err := buildRequest(b, now)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Symbol != "BTC-USD" || req.Interval != domain.Interval1h {
		t.Errorf("req = %+v", req)
	}
	if req.Start != 1704067200 {
		t.Errorf("Start = %d, want 1704067200", req.Start)
	}
	if req.End != now.Unix() {
		t.Errorf("End = %d, want now (%d)", req.End, now.Unix())
	}
	if req.InitialCapital.String() != "10000" {
		t.Errorf("InitialCapital = %s, want 10000", req.InitialCapital)
	}

	b.End = "1704153600"
	if req, err = buildRequest(b, now); err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.End != 1704153600 {
		t.Errorf("End = %d, want 1704153600", req.End)
	}
}

func TestBuildRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Backtest)
	}{
		{"interval", func(b *config.Backtest) { b.Interval = "3h" }},
		{"capital", func(b *config.Backtest) { b.InitialCapital = "ten" }},
		{"start", func(b *config.Backtest) { b.Start = "yesterday" }},
		{"end", func(b *config.Backtest) { b.End = "01/02/2024" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := config.Default().Backtest
			tt.mutate(&b)
			if _, err := buildRequest(b, time.Now()); err == nil {
				t.Error("buildRequest succeeded, want error")
			}
		})
	}
}

func TestBuildProvider(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		source string
		check  func(provider.CandleProvider) bool
	}{
		{config.SourceCSV, func(p provider.CandleProvider) bool { _, ok := p.(*provider.CSVProvider); return ok }},
		{config.SourceParquet, func(p provider.CandleProvider) bool { _, ok := p.(*provider.StoreProvider); return ok }},
		{config.SourceAlpaca, func(p provider.CandleProvider) bool { _, ok := p.(*provider.AlpacaProvider); return ok }},
		{config.SourceBinance, func(p provider.CandleProvider) bool { _, ok := p.(*provider.BinanceProvider); return ok }},
	}
	for _, tt := range tests {
		cfg.Data.Source = tt.source
		p, err := buildProvider(cfg, util.Discard())
		if err != nil {
			t.Errorf("buildProvider(%s): %v", tt.source, err)
			continue
		}
		if !tt.check(p) {
			t.Errorf("buildProvider(%s) = %T", tt.source, p)
		}
	}

	cfg.Data.Source = "ftp"
	if _, err := buildProvider(cfg, util.Discard()); err == nil {
		t.Error("buildProvider(ftp) succeeded, want error")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" rsi, ,buy_and_hold,")
	if len(got) != 2 || got[0] != "rsi" || got[1] != "buy_and_hold" {
		t.Errorf("splitList = %q, want [rsi buy_and_hold]", got)
	}
	if got := splitList(""); len(got) != 0 {
		t.Errorf("splitList(\"\") = %q, want empty", got)
	}
}

func TestBuildStrategies(t *testing.T) {
	registry := builtins.NewRegistry()
	p := strategy.DefaultParams()

	strats, err := buildStrategies(registry, []string{"buy_and_hold", "sma_crossover"}, p)
	if err != nil {
		t.Fatalf("buildStrategies: %v", err)
	}
	if len(strats) != 2 || strats[1].Name() != "sma_crossover_10_20" {
		t.Errorf("strategies = %v", strats)
	}

	if _, err := buildStrategies(registry, []string{"rsi", "rsi"}, p); err == nil {
		t.Error("duplicate names accepted, want error")
	}
	if _, err := buildStrategies(registry, []string{"martingale"}, p); !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Errorf("unknown name error = %v, want ErrUnknownStrategy", err)
	}
}

func TestListStrategies(t *testing.T) {
	var buf bytes.Buffer
	p := strategy.DefaultParams()
	p.LongPeriod = p.ShortPeriod // rejected by both crossovers

	if err := listStrategies(&buf, builtins.NewRegistry(), p); err != nil {
		t.Fatalf("listStrategies: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Fatalf("got %d lines, want 10:\n%s", len(lines), buf.String())
	}
	byName := make(map[string]string, len(lines))
	for _, line := range lines {
		name, detail, _ := strings.Cut(line, " ")
		byName[name] = strings.TrimSpace(detail)
	}
	if got := byName["buy_and_hold"]; got != "buy_and_hold" {
		t.Errorf("buy_and_hold detail = %q", got)
	}
	if got := byName["macd"]; got != "macd_12_26_9" {
		t.Errorf("macd detail = %q", got)
	}
	if got := byName["ema_crossover"]; !strings.Contains(got, "invalid strategy parameters") {
		t.Errorf("ema_crossover detail = %q, want the parameter error", got)
	}
}

func TestExportTrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trades.csv")
	if err := exportTrades(path, nil); err != nil {
		t.Fatalf("exportTrades: %v", err)
	}
}

func TestIsSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int64("seed", 0, "")
	fs.Int("shuffles", 0, "")
	if err := fs.Parse([]string{"-seed", "0"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !isSet(fs, "seed") {
		t.Error("seed given explicitly but reported unset")
	}
	if isSet(fs, "shuffles") {
		t.Error("shuffles reported set")
	}
}
