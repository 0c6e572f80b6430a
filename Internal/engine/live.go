package engine

import (
	"context"
	"log"
	"time"

	"github.com/coveport/tidebot/Internal/utils/config"
)

// RunLive polls the connector on a fixed interval and processes one tick of
// position management per poll, plus one signal scan per new period
// boundary. Interruptible at the tick boundary; state is persisted every
// tick and once more on shutdown.
func RunLive(ctx context.Context, eng *Engine, cfg *config.Config) error {
	interval := time.Duration(cfg.Engine.PollSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	period := time.Duration(cfg.TimeframeMin) * time.Minute

	log.Printf("🌊 Live loop started: %s %s, poll every %s, scan every %s",
		cfg.Symbol, cfg.Timeframe, interval, period)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastPeriod time.Time
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Shutdown requested, persisting state")
			eng.persist()
			return ctx.Err()
		case <-ticker.C:
			periodStart := time.Now().UTC().Truncate(period)
			scan := periodStart.After(lastPeriod)

			if err := eng.Step(scan); err != nil {
				// connector fault: skip the tick, state untouched, retry on
				// the next poll
				log.Printf("⚠️  Tick skipped: %v", err)
				continue
			}
			if scan {
				lastPeriod = periodStart
			}
		}
	}
}
