package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"pullback-engine/config"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "optional config file (yaml, json, toml or .env); env vars override it",
		EnvVars: []string{"TRADER_CONFIG"},
	}
	sourceFlag = &cli.StringFlag{
		Name:  "source",
		Value: "archive",
		Usage: "bar source for the backtest: archive | mock",
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "SQLite archive to replay (default: sqlite_path from config)",
	}
	fromFlag = &cli.StringFlag{
		Name:  "from",
		Usage: "replay bars after this time (RFC3339 or unix seconds, empty = all)",
	}
	barsFlag = &cli.IntFlag{
		Name:  "bars",
		Value: 2000,
		Usage: "number of mock bars to generate",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Value: 42,
		Usage: "mock random seed",
	}
	speedFlag = &cli.Float64Flag{
		Name:  "speed",
		Value: 0,
		Usage: "playback speed multiplier (0=max, 1=realtime, 100=100x)",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "print every actionable signal",
	}
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String(configFlag.Name))
}

// parseFrom accepts RFC3339 or unix seconds.
func parseFrom(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--from %q: want RFC3339 or unix seconds", s)
	}
	return t, nil
}
