// cmd/trader runs the EMA/VWAP pullback strategy in paper mode, live or over
// archived bars.
//
// Usage:
//
//	trader run --config trader.yaml
//	trader backtest --source archive --db data/bars.db --from 2026-01-01T00:00:00Z
//	trader backtest --source mock --bars 2000 --seed 42
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:    filepath.Base(os.Args[0]),
		Usage:   "EMA/VWAP pullback paper trader",
		Version: "0.3.0",
	}

	app.Commands = []*cli.Command{
		runCommand,
		backtestCommand,
	}
	app.Flags = []cli.Flag{
		configFlag,
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := app.RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
