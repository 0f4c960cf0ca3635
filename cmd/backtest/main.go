// Command backtest replays historical candles through trading strategies
// and reports how they would have performed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: backtest <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run          Backtest one strategy and print the report\n")
		fmt.Fprintf(os.Stderr, "  compare      Backtest several strategies on the same candles and rank them\n")
		fmt.Fprintf(os.Stderr, "  walkforward  Pick the best strategy per train window and score it on the next test window\n")
		fmt.Fprintf(os.Stderr, "  montecarlo   Reshuffle a run's trades and report metric percentiles\n")
		fmt.Fprintf(os.Stderr, "  sync         Copy candles from csv, alpaca or binance into the parquet archive\n")
		fmt.Fprintf(os.Stderr, "  strategies   List registered strategies\n")
		fmt.Fprintf(os.Stderr, "  runs         List saved runs\n")
		fmt.Fprintf(os.Stderr, "  show         Print a saved run by id\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\nRun 'backtest <command> -h' for command options.\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "version":
		fmt.Printf("backtest %s\n", version)

	case "run":
		err = cmdRun(ctx, args)

	case "compare":
		err = cmdCompare(ctx, args)

	case "walkforward":
		err = cmdWalkForward(ctx, args)

	case "montecarlo":
		err = cmdMonteCarlo(ctx, args)

	case "sync":
		err = cmdSync(ctx, args)

	case "strategies":
		err = cmdStrategies(args)

	case "runs":
		err = cmdRuns(ctx, args)

	case "show":
		err = cmdShow(ctx, args)

	case "help", "-h", "--help":
		flag.Usage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "backtest %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
