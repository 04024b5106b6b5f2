package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"pullback-engine/internal/execution"
	"pullback-engine/internal/indicator"
	"pullback-engine/internal/logger"
	"pullback-engine/internal/marketdata/mock"
	"pullback-engine/internal/marketdata/replay"
	"pullback-engine/internal/model"
	"pullback-engine/internal/portfolio"
	sqlitestore "pullback-engine/internal/store/sqlite"
	"pullback-engine/internal/strategy"
	"pullback-engine/internal/trader"
)

var backtestCommand = &cli.Command{
	Action: backtest,
	Name:   "backtest",
	Usage:  "Replay archived or generated bars through the strategy and paper gateway",
	Flags: []cli.Flag{
		sourceFlag,
		dbFlag,
		fromFlag,
		barsFlag,
		seedFlag,
		speedFlag,
		verboseFlag,
	},
}

func backtest(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init("backtest", level)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	var rs *replay.Source
	switch c.String(sourceFlag.Name) {
	case "archive":
		dbPath := c.String(dbFlag.Name)
		if dbPath == "" {
			dbPath = cfg.SQLitePath
		}
		from, err := parseFrom(c.String(fromFlag.Name))
		if err != nil {
			return err
		}
		reader, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return fmt.Errorf("[backtest] sqlite open failed: %w", err)
		}
		defer reader.Close()
		rs, err = replay.FromArchive(reader, cfg.Symbol, from, c.Float64(speedFlag.Name))
		if err != nil {
			return err
		}
		if rs.Len() == 0 {
			return fmt.Errorf("[backtest] no archived bars for %s in %s", cfg.Symbol, dbPath)
		}
	case "mock":
		spacing, err := cfg.BarSpacing()
		if err != nil {
			return err
		}
		gen := mock.New(mock.Config{Symbol: cfg.Symbol, Spacing: spacing, Seed: c.Int64(seedFlag.Name)},
			time.Now().UTC().Truncate(spacing))
		rs = replay.New(gen.Seed(c.Int(barsFlag.Name)), c.Float64(speedFlag.Name))
	default:
		return fmt.Errorf("[backtest] unknown --source %q (archive | mock)", c.String(sourceFlag.Name))
	}

	eng, err := indicator.NewEngine(cfg.EMAPeriod)
	if err != nil {
		return err
	}
	book := portfolio.New(cfg.Capital)
	runner, err := trader.New(trader.Config{
		Symbol:   cfg.Symbol,
		Quantity: cfg.Quantity,
		Retain:   cfg.HistoryRetain,
	}, trader.Deps{
		Source:   rs,
		Engine:   eng,
		Strategy: strategy.NewPullback(cfg.EMAPeriod),
		Gateway:  execution.NewPaperGateway(book, cfg.SlippageBps),
		Book:     book,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	if err := runner.Run(c.Context); err != nil {
		return err
	}
	st := runner.Status()

	if c.Bool(verboseFlag.Name) {
		for _, o := range st.Orders {
			fmt.Printf("  [%s] %s %-4s %d @ %.2f (%s)\n",
				o.CreatedAt.Format("15:04:05"), o.ID, o.Side, o.Qty, o.Price, o.Signal)
		}
	}
	printSummary(os.Stdout, st)
	replayed := rs.Len() - rs.Remaining()
	if rs.Remaining() > 0 {
		log.Printf("[backtest] interrupted after %d/%d bars", replayed, rs.Len())
	}
	log.Printf("[backtest] replayed %d bars in %s", replayed, time.Since(start).Round(time.Millisecond))
	return nil
}

func printSummary(w io.Writer, st trader.Status) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        PULLBACK SESSION SUMMARY      ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Strategy:      %-20s ║\n", st.Strategy)
	fmt.Fprintf(w, "║  Symbol:        %-20s ║\n", st.Symbol)
	fmt.Fprintf(w, "║  Bars:          %-20d ║\n", st.HistoryTotal)
	fmt.Fprintf(w, "║  Cycles:        %-20d ║\n", st.Cycles)
	fmt.Fprintf(w, "║  Cycle errors:  %-20d ║\n", st.Errors)
	fmt.Fprintf(w, "║  BUY_CALL:      %-20d ║\n", st.Signals[model.SignalBuyCall])
	fmt.Fprintf(w, "║  BUY_PUT:       %-20d ║\n", st.Signals[model.SignalBuyPut])
	fmt.Fprintf(w, "║  Orders:        %-20d ║\n", st.OrderCount)
	for _, p := range st.Positions {
		fmt.Fprintf(w, "║  Position:      %-20s ║\n", fmt.Sprintf("%s %d @ %.2f", p.Symbol, p.Qty, p.AvgPrice))
	}
	if st.PnL != nil {
		fmt.Fprintf(w, "║  Cash:          %-20s ║\n", st.PnL.Cash.StringFixed(2))
		fmt.Fprintf(w, "║  Realized P&L:  %-20s ║\n", st.PnL.RealizedPnL.StringFixed(2))
		fmt.Fprintf(w, "║  Unrealized:    %-20s ║\n", st.PnL.UnrealizedPnL.StringFixed(2))
		fmt.Fprintf(w, "║  Closed trades: %-20s ║\n", fmt.Sprintf("%d (%dW / %dL)", st.PnL.ClosedTrades, st.PnL.WinningTrades, st.PnL.LosingTrades))
		fmt.Fprintf(w, "║  Win rate:      %-20s ║\n", fmt.Sprintf("%.2f%%", st.PnL.WinRate))
		fmt.Fprintf(w, "║  Avg win:       %-20s ║\n", st.PnL.AvgWin.StringFixed(2))
		fmt.Fprintf(w, "║  Avg loss:      %-20s ║\n", st.PnL.AvgLoss.StringFixed(2))
	}
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
}
