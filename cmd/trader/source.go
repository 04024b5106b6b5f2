package main

import (
	"context"
	"log"
	"time"

	"pullback-engine/config"
	"pullback-engine/internal/marketdata"
	"pullback-engine/internal/marketdata/mock"
	"pullback-engine/internal/marketdata/wsfeed"
	"pullback-engine/internal/metrics"
	"pullback-engine/internal/model"
	"pullback-engine/internal/notification"
)

// barArchive reads the newest archived bars.
type barArchive interface {
	Tail(symbol string, n int) ([]model.Bar, error)
}

// openSource builds the configured live source and the bars to seed the
// history with. A mock feed resumes after the archived bars of archive, when
// non-nil, so consecutive runs extend one continuous series.
func openSource(ctx context.Context, cfg *config.Config, archive barArchive, prom *metrics.Metrics, health *metrics.HealthStatus) (marketdata.Source, []model.Bar, error) {
	spacing, err := cfg.BarSpacing()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Feed {
	case config.FeedWS:
		feed, err := wsfeed.New(wsfeed.Config{URL: cfg.FeedURL, Symbol: cfg.Symbol})
		if err != nil {
			return nil, nil, err
		}
		feed.OnConnect = func() { health.SetFeedConnected(true) }
		feed.OnReconnect = func() {
			prom.FeedReconnects.Inc()
			health.SetFeedConnected(false)
		}
		health.SetFeedConnected(false)
		go feed.Start(ctx)
		if cfg.SeedBars > 0 {
			log.Printf("[trader] seed_bars=%d ignored for ws feed", cfg.SeedBars)
		}
		return feed, nil, nil

	default:
		mcfg := mock.Config{
			Symbol:  cfg.Symbol,
			Spacing: spacing,
			Seed:    cfg.Seed,
		}
		if archive != nil {
			tail, err := archive.Tail(cfg.Symbol, max(cfg.SeedBars, 1))
			if err != nil {
				log.Printf("[trader] WARNING: read archive tail: %v (starting a fresh walk)", err)
			} else if len(tail) > 0 {
				last := tail[len(tail)-1]
				seed := tail[max(0, len(tail)-cfg.SeedBars):]
				log.Printf("[trader] resuming mock after archived bar %s close=%.2f (seed=%d)",
					last.TS.Format(time.RFC3339), last.Close, len(seed))
				return mock.Resume(mcfg, last, time.Now()), seed, nil
			}
		}
		gen := mock.NewBackfilled(mcfg, cfg.SeedBars, time.Now())
		return gen, gen.Seed(cfg.SeedBars), nil
	}
}

// buildNotifier always logs alerts and adds the configured remote channels.
func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("[trader] WARNING: telegram disabled: %v", err)
		} else {
			n = append(n, tg)
		}
	}
	return n
}
