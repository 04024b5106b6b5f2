package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/urfave/cli/v2"

	"pullback-engine/config"
	"pullback-engine/internal/api"
	"pullback-engine/internal/execution"
	"pullback-engine/internal/indicator"
	"pullback-engine/internal/logger"
	"pullback-engine/internal/markethours"
	"pullback-engine/internal/metrics"
	"pullback-engine/internal/model"
	"pullback-engine/internal/portfolio"
	redisstore "pullback-engine/internal/store/redis"
	sqlitestore "pullback-engine/internal/store/sqlite"
	"pullback-engine/internal/strategy"
	"pullback-engine/internal/trader"
)

var runCommand = &cli.Command{
	Action: run,
	Name:   "run",
	Usage:  "Paper trade on the configured feed until interrupted",
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init("trader", level)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	ctx := c.Context
	log.Printf("[trader] symbol=%s timeframe=%s period=%d mode=%s feed=%s capital=%.2f qty=%d",
		cfg.Symbol, cfg.Timeframe, cfg.EMAPeriod, cfg.Mode, cfg.Feed, cfg.Capital, cfg.Quantity)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(10 * cfg.PollInterval)

	// ---- SQLite archive ----
	writer, reader := openArchive(cfg)

	// ---- Market data ----
	var archive barArchive
	if reader != nil {
		archive = reader
	}
	src, seed, err := openSource(ctx, cfg, archive, prom, health)
	if err != nil {
		if writer != nil {
			writer.Close()
		}
		if reader != nil {
			reader.Close()
		}
		return err
	}

	// ---- Core ----
	eng, err := indicator.NewEngine(cfg.EMAPeriod)
	if err != nil {
		return err
	}
	book := portfolio.New(cfg.Capital)
	deps := trader.Deps{
		Source:   src,
		Engine:   eng,
		Strategy: strategy.NewPullback(cfg.EMAPeriod),
		Gateway:  execution.NewPaperGateway(book, cfg.SlippageBps),
		Book:     book,
		Metrics:  prom,
		Health:   health,
		Notifier: buildNotifier(cfg),
	}
	if cfg.MarketHours {
		s := markethours.NSE()
		deps.Session = &s
	}

	var (
		archiveWG sync.WaitGroup
		barCh     chan model.Bar
	)
	if writer != nil {
		barCh = make(chan model.Bar, 1024)
		deps.Bars = barCh
		deps.Fills = writer
		health.EnableSQLite()
		archiveWG.Add(1)
		go func() {
			defer archiveWG.Done()
			writer.Run(context.Background(), barCh)
		}()
	}

	// ---- Redis publisher ----
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[trader] WARNING: redis unavailable: %v (continuing without publishing)", err)
		} else {
			defer pub.Close()
			rdb = pub.Client()
			pub.OnError = func(error) { prom.RedisPublishErrors.Inc() }
			logChange := pub.Breaker().OnStateChange
			pub.Breaker().OnStateChange = func(from, to redisstore.State) {
				logChange(from, to)
				prom.RedisCircuitBreakerState.Set(float64(to))
			}
			events := make(chan redisstore.Event, 1024)
			deps.Events = events
			health.EnableRedis()
			go pub.Run(ctx, events)
		}
	}

	var sqlDB *sql.DB
	if writer != nil {
		sqlDB = writer.DB()
	}
	health.StartLivenessChecker(ctx, rdb, sqlDB, 15*time.Second)

	runner, err := trader.New(trader.Config{
		Symbol:       cfg.Symbol,
		Quantity:     cfg.Quantity,
		PollInterval: cfg.PollInterval,
		Retain:       cfg.HistoryRetain,
	}, deps)
	if err != nil {
		return err
	}
	if len(seed) > 0 {
		if err := runner.Seed(seed); err != nil {
			return err
		}
	}

	// ---- HTTP surfaces ----
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, prom, health)
		metricsSrv.Start()
	}
	var apiSrv *api.Server
	if cfg.APIAddr != "" {
		opts := api.Options{TOTPSecret: cfg.APITOTPSecret, Health: health}
		if reader != nil {
			opts.Fills = reader
		}
		apiSrv = api.NewServer(cfg.APIAddr, api.NewRouter(runner, opts))
		apiSrv.Start()
	}

	// ---- Loop ----
	runErr := runner.Run(ctx)

	// ---- Shutdown ----
	log.Println("[trader] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if apiSrv != nil {
		apiSrv.Stop(shutdownCtx)
	}
	if metricsSrv != nil {
		metricsSrv.Stop(shutdownCtx)
	}
	if writer != nil {
		close(barCh)
		archiveWG.Wait()
		writer.Close()
	}
	if reader != nil {
		reader.Close()
	}

	printSummary(os.Stdout, runner.Status())
	return runErr
}

// openArchive opens the SQLite writer and reader, pruning bars and fills
// past the retention window. Failures are logged and leave the archive
// disabled; a nil writer means no archive.
func openArchive(cfg *config.Config) (*sqlitestore.Writer, *sqlitestore.Reader) {
	if cfg.SQLitePath == "" {
		return nil, nil
	}
	dir := filepath.Dir(cfg.SQLitePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[trader] WARNING: create %s: %v (continuing without archive)", dir, err)
		return nil, nil
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[trader] WARNING: sqlite init failed: %v (continuing without archive)", err)
		return nil, nil
	}
	if cfg.ArchiveRetention > 0 {
		if _, _, err := writer.Prune(time.Now().Add(-cfg.ArchiveRetention)); err != nil {
			log.Printf("[trader] WARNING: archive prune failed: %v", err)
		}
	}
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[trader] WARNING: sqlite reader failed: %v", err)
		return writer, nil
	}
	return writer, reader
}
