package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/coveport/tidebot/Internal/broker"
	"github.com/coveport/tidebot/Internal/strategy/metrics"
	"github.com/coveport/tidebot/Internal/strategy/position"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

// warmupBars is how many candles must accumulate before the first step;
// covers the widest lookback in the scorer set (squeeze window + period).
const warmupBars = 80

// BacktestResult is the outcome of a finite replay
type BacktestResult struct {
	Report  metrics.Report
	Trades  []position.ClosedTrade
	Candles int
}

// RunBacktest replays a candle series through the same engine the live
// loop drives, using a paper connector. Each candle is one period: manage
// first, then scan. Remaining positions are force-closed at the final
// close.
func RunBacktest(cfg *config.Config, candles []types.Candle, initialBalance, contractSize float64) (*BacktestResult, error) {
	if len(candles) <= warmupBars {
		return nil, fmt.Errorf("backtest: need more than %d candles, got %d", warmupBars, len(candles))
	}

	paper := broker.NewPaper(initialBalance, contractSize)
	eng := New(cfg, paper)

	trendAgg := newTrendAggregator(time.Duration(cfg.TrendTFMin) * time.Minute)

	for i, c := range candles {
		paper.Append(cfg.Timeframe, c)
		if done, ok := trendAgg.push(c); ok {
			paper.Append(cfg.TrendTimeframe, done)
		}
		if i < warmupBars {
			continue
		}
		if err := eng.Step(true); err != nil {
			// insufficient trend history early on is expected; anything
			// else is worth seeing in the log
			log.Printf("⏭️  Candle %d skipped: %v", i, err)
		}
	}

	last := candles[len(candles)-1]
	eng.ForceCloseAll(last.Close, last.Timestamp)

	trades := eng.History()
	return &BacktestResult{
		Report:  metrics.BuildReport(trades, initialBalance),
		Trades:  trades,
		Candles: len(candles),
	}, nil
}

// trendAggregator compresses primary-timeframe candles into completed
// higher-timeframe buckets. Only finished buckets are emitted, so the trend
// window never contains lookahead from an unfinished period.
type trendAggregator struct {
	bucket   time.Duration
	current  types.Candle
	started  bool
	deadline time.Time
}

func newTrendAggregator(bucket time.Duration) *trendAggregator {
	return &trendAggregator{bucket: bucket}
}

// push absorbs one primary candle; when the candle starts a new bucket the
// completed previous bucket is returned
func (a *trendAggregator) push(c types.Candle) (types.Candle, bool) {
	start := c.Timestamp.Truncate(a.bucket)

	if !a.started {
		a.begin(c, start)
		return types.Candle{}, false
	}

	if !c.Timestamp.Before(a.deadline) {
		done := a.current
		a.begin(c, start)
		return done, true
	}

	a.current.High = max(a.current.High, c.High)
	a.current.Low = min(a.current.Low, c.Low)
	a.current.Close = c.Close
	a.current.Volume += c.Volume
	return types.Candle{}, false
}

func (a *trendAggregator) begin(c types.Candle, start time.Time) {
	a.current = types.Candle{
		Timestamp: start,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
	a.started = true
	a.deadline = start.Add(a.bucket)
}
