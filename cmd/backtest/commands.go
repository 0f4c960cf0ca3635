package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/samber/lo"

	"backtester/internal/backtest"
	"backtester/internal/config"
	"backtester/internal/domain"
	"backtester/internal/gather"
	"backtester/internal/report"
	"backtester/internal/store"
	"backtester/internal/strategy"
	"backtester/internal/strategy/builtins"
)

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	opts := bindOptions(fs)
	name := fs.String("strategy", "", "strategy name (see the strategies command)")
	save := fs.Bool("save", false, "store the result in the sqlite database")
	asJSON := fs.Bool("json", false, "print the result as JSON instead of a report")
	tradesCSV := fs.String("trades-csv", "", "also write the trade log to this CSV file")
	fs.Parse(args)

	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	if *name != "" {
		cfg.Backtest.Strategy = *name
	}

	registry := builtins.NewRegistry()
	strat, err := registry.Build(cfg.Backtest.Strategy, cfg.Backtest.Params)
	if err != nil {
		return err
	}
	req, err := buildRequest(cfg.Backtest, time.Now())
	if err != nil {
		return err
	}
	src, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	result, err := backtest.NewBacktester(src, log).Run(ctx, strat, req)
	if err != nil {
		return err
	}

	if err := writeResult(os.Stdout, result, *asJSON); err != nil {
		return err
	}
	if *tradesCSV != "" {
		if err := exportTrades(*tradesCSV, result.Trades); err != nil {
			return err
		}
	}
	if *save {
		ids, err := saveResults(ctx, cfg, log, result)
		if err != nil {
			return err
		}
		fmt.Printf("Run ID: %s\n", ids[0])
	}
	return nil
}

// ---------------------------------------------------------------------------
// compare
// ---------------------------------------------------------------------------

func cmdCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	opts := bindOptions(fs)
	names := fs.String("strategies", "", "comma-separated strategy names (default: config, then all)")
	rank := fs.String("rank", domain.MetricTotalReturn, "metric to rank by")
	concurrency := fs.Int("concurrency", 0, "parallel runs (default from config)")
	save := fs.Bool("save", false, "store every result in the sqlite database")
	asJSON := fs.Bool("json", false, "print the ranked results as JSON")
	fs.Parse(args)

	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	if !lo.Contains(domain.MetricKeys(), *rank) {
		return fmt.Errorf("unknown rank metric %q", *rank)
	}
	if *concurrency > 0 {
		cfg.Backtest.Concurrency = *concurrency
	}

	registry := builtins.NewRegistry()
	selected := splitList(*names)
	if len(selected) == 0 {
		selected = cfg.Backtest.Strategies
	}
	if len(selected) == 0 {
		selected = registry.List()
	}
	strats, err := buildStrategies(registry, selected, cfg.Backtest.Params)
	if err != nil {
		return err
	}

	req, err := buildRequest(cfg.Backtest, time.Now())
	if err != nil {
		return err
	}
	src, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	results, err := backtest.NewBacktester(src, log).Compare(ctx, strats, req, cfg.Backtest.Concurrency)
	if err != nil {
		return err
	}
	ranked := backtest.RankResults(results, *rank)

	if *asJSON {
		if err := report.WriteJSON(os.Stdout, ranked); err != nil {
			return err
		}
	} else if err := report.WriteComparison(os.Stdout, ranked); err != nil {
		return err
	}

	if *save {
		ids, err := saveResults(ctx, cfg, log, ranked...)
		if err != nil {
			return err
		}
		for i, id := range ids {
			fmt.Printf("%-28s %s\n", ranked[i].StrategyName, id)
		}
	}
	return nil
}

// buildStrategies constructs one fresh instance per name, rejecting
// duplicates so no two concurrent runs share indicator state.
func buildStrategies(registry *strategy.Registry, names []string, p strategy.Params) ([]strategy.Strategy, error) {
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, fmt.Errorf("strategy listed more than once: %v", dups)
	}
	strats := make([]strategy.Strategy, 0, len(names))
	for _, name := range names {
		s, err := registry.Build(name, p)
		if err != nil {
			return nil, err
		}
		strats = append(strats, s)
	}
	return strats, nil
}

// ---------------------------------------------------------------------------
// walkforward / montecarlo
// ---------------------------------------------------------------------------

func cmdWalkForward(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("walkforward", flag.ExitOnError)
	opts := bindOptions(fs)
	train := fs.Int("train", 0, "train window in candles (default from config)")
	test := fs.Int("test", 0, "test window in candles (default from config)")
	step := fs.Int("step", 0, "candles to advance between folds (default from config)")
	metric := fs.String("metric", "", "metric that picks each fold's strategy (default from config)")
	asJSON := fs.Bool("json", false, "print the folds as JSON")
	fs.Parse(args)

	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	wf := cfg.Backtest.WalkForward
	if *train > 0 {
		wf.TrainWindow = *train
	}
	if *test > 0 {
		wf.TestWindow = *test
	}
	if *step > 0 {
		wf.Step = *step
	}
	if *metric != "" {
		wf.Metric = *metric
	}

	req, err := buildRequest(cfg.Backtest, time.Now())
	if err != nil {
		return err
	}
	src, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	result, err := backtest.NewBacktester(src, log).WalkForward(ctx, builtins.NewRegistry(), cfg.Backtest.Params, req,
		backtest.WalkForwardConfig{
			TrainWindow: wf.TrainWindow,
			TestWindow:  wf.TestWindow,
			Step:        wf.Step,
			Metric:      wf.Metric,
			Concurrency: cfg.Backtest.Concurrency,
		})
	if err != nil {
		return err
	}
	if *asJSON {
		return report.WriteJSON(os.Stdout, result)
	}
	return report.WriteWalkForward(os.Stdout, result)
}

func cmdMonteCarlo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("montecarlo", flag.ExitOnError)
	opts := bindOptions(fs)
	name := fs.String("strategy", "", "strategy to run first (see the strategies command)")
	runID := fs.String("run", "", "resample a saved run instead of running a strategy")
	shuffles := fs.Int("shuffles", 0, "number of shuffles (default from config)")
	seed := fs.Int64("seed", 0, "random seed (default from config)")
	asJSON := fs.Bool("json", false, "print the distributions as JSON")
	fs.Parse(args)

	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	mc := cfg.Backtest.MonteCarlo
	if *shuffles > 0 {
		mc.Shuffles = *shuffles
	}
	if isSet(fs, "seed") {
		mc.Seed = *seed
	}

	var result *domain.BacktestResult
	if *runID != "" {
		st, err := openResults(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if result, err = st.GetResult(ctx, *runID); err != nil {
			return err
		}
	} else {
		if *name != "" {
			cfg.Backtest.Strategy = *name
		}
		strat, err := builtins.NewRegistry().Build(cfg.Backtest.Strategy, cfg.Backtest.Params)
		if err != nil {
			return err
		}
		req, err := buildRequest(cfg.Backtest, time.Now())
		if err != nil {
			return err
		}
		src, err := buildProvider(cfg, log)
		if err != nil {
			return err
		}
		if result, err = backtest.NewBacktester(src, log).Run(ctx, strat, req); err != nil {
			return err
		}
	}

	dist, err := backtest.MonteCarlo(result, mc.Shuffles, mc.Seed)
	if err != nil {
		return err
	}
	if *asJSON {
		return report.WriteJSON(os.Stdout, dist)
	}
	return report.WriteMonteCarlo(os.Stdout, dist)
}

// ---------------------------------------------------------------------------
// sync
// ---------------------------------------------------------------------------

func cmdSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	opts := bindOptions(fs)
	symbols := fs.String("symbols", "", "comma-separated symbols (default: the configured symbol)")
	fresh := fs.Bool("fresh", false, "ignore saved progress and fetch the whole range")
	fs.Parse(args)

	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	if cfg.Data.Source == config.SourceParquet {
		return errors.New("sync needs a csv, alpaca or binance source; parquet is the destination")
	}
	if cfg.Backtest.Start == "" {
		return errors.New("sync needs -start (or backtest.start in the config)")
	}

	interval, err := domain.ParseInterval(cfg.Backtest.Interval)
	if err != nil {
		return err
	}
	start, end, err := timeRange(cfg.Backtest, time.Now())
	if err != nil {
		return err
	}
	list := splitList(*symbols)
	if len(list) == 0 {
		list = []string{cfg.Backtest.Symbol}
	}
	src, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	g := gather.NewCandleGatherer(cfg.Data.Source, src, store.NewParquetStore(cfg.Data.DataDir), list, interval, start, end, log)
	if !*fresh {
		g.ProgressDir = cfg.Data.DataDir
	}
	return g.Run(ctx)
}

// ---------------------------------------------------------------------------
// strategies / runs / show
// ---------------------------------------------------------------------------

func cmdStrategies(args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	opts := bindOptions(fs)
	fs.Parse(args)

	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return listStrategies(os.Stdout, builtins.NewRegistry(), cfg.Backtest.Params)
}

// listStrategies prints each registered name next to the instance name the
// given params produce, or the reason they are rejected.
func listStrategies(w io.Writer, registry *strategy.Registry, p strategy.Params) error {
	for _, name := range registry.List() {
		var detail string
		if s, err := registry.Build(name, p); err != nil {
			detail = err.Error()
		} else {
			detail = s.Name()
		}
		if _, err := fmt.Fprintf(w, "%-16s %s\n", name, detail); err != nil {
			return err
		}
	}
	return nil
}

func cmdRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	opts := bindOptions(fs)
	limit := fs.Int("limit", 20, "number of runs to list (0 lists all)")
	fs.Parse(args)

	cfg, _, err := opts.load()
	if err != nil {
		return err
	}
	st, err := openResults(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	return report.WriteRuns(os.Stdout, runs)
}

func cmdShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	opts := bindOptions(fs)
	asJSON := fs.Bool("json", false, "print the result as JSON instead of a report")
	tradesCSV := fs.String("trades-csv", "", "also write the trade log to this CSV file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: backtest show [options] <run-id>")
	}
	cfg, _, err := opts.load()
	if err != nil {
		return err
	}
	st, err := openResults(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := st.GetResult(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if err := writeResult(os.Stdout, result, *asJSON); err != nil {
		return err
	}
	if *tradesCSV != "" {
		return exportTrades(*tradesCSV, result.Trades)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output helpers
// ---------------------------------------------------------------------------

func writeResult(w io.Writer, r *domain.BacktestResult, asJSON bool) error {
	if asJSON {
		return report.WriteJSON(w, r)
	}
	return report.WriteResult(w, r)
}

func exportTrades(path string, trades []domain.Trade) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if err := report.WriteTradesCSV(f, trades); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func saveResults(ctx context.Context, cfg *config.Config, log *slog.Logger, results ...*domain.BacktestResult) ([]string, error) {
	st, err := openResults(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ids := make([]string, 0, len(results))
	for _, r := range results {
		id, err := st.SaveResult(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("saving %s: %w", r.StrategyName, err)
		}
		log.Info("result saved", "run_id", id, "strategy", r.StrategyName)
		ids = append(ids, id)
	}
	return ids, nil
}
