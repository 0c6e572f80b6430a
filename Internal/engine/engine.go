package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coveport/tidebot/Internal/broker"
	"github.com/coveport/tidebot/Internal/handlers/risk"
	"github.com/coveport/tidebot/Internal/state"
	"github.com/coveport/tidebot/Internal/strategy/position"
	"github.com/coveport/tidebot/Internal/strategy/signals"
	"github.com/coveport/tidebot/Internal/telemetry"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

// Journal receives every closed-trade record, e.g. for database persistence
type Journal interface {
	LogTrade(position.ClosedTrade) error
}

// Engine is the decision core shared identically between historical replay
// and live polling. One Step processes one tick: manage all open positions
// in time-priority order, then, at most once per new period, scan for a
// new entry. Steps run on a single logical thread; the mutex guards the
// portfolio fields shared with the status-API goroutine.
type Engine struct {
	cfg       *config.Config
	connector broker.Connector
	agg       *signals.Aggregator
	riskMgr   *risk.Manager
	lifecycle *position.Manager

	store   *state.Store
	metrics *telemetry.Metrics
	journal Journal

	mu            sync.RWMutex
	active        []*position.Position
	history       []position.ClosedTrade
	cooldownUntil time.Time
	lastBreakdown signals.ScoreBreakdown
}

// New wires the engine around a connector and an immutable config snapshot
func New(cfg *config.Config, connector broker.Connector) *Engine {
	return &Engine{
		cfg:       cfg,
		connector: connector,
		agg:       signals.NewAggregator(cfg),
		riskMgr:   risk.NewManager(&cfg.Risk),
		lifecycle: position.NewManager(cfg, connector),
	}
}

// SetStore attaches a persisted-state store
func (e *Engine) SetStore(s *state.Store) { e.store = s }

// SetMetrics attaches Prometheus collectors
func (e *Engine) SetMetrics(m *telemetry.Metrics) { e.metrics = m }

// SetJournal attaches a closed-trade journal
func (e *Engine) SetJournal(j Journal) { e.journal = j }

// Restore loads a previously persisted snapshot into the engine
func (e *Engine) Restore(snap state.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = snap.ActiveTrades
	e.history = snap.TradeHistory
	e.cooldownUntil = snap.CooldownUntil
	if len(e.active) > 0 {
		log.Printf("♻️  Restored %d active trade(s), %d historical", len(e.active), len(e.history))
	}
}

// Step processes one tick. Position management always runs; the entry scan
// runs only when scan is true (once per new period boundary). A connector
// fault on the candle fetch skips the whole tick without corrupting state.
func (e *Engine) Step(scan bool) error {
	if e.metrics != nil {
		e.metrics.TicksTotal.Inc()
	}

	window, err := e.connector.GetHistoricalData(e.cfg.Symbol, e.cfg.Timeframe, e.cfg.Engine.WindowSize)
	if err != nil {
		e.countTickError()
		return fmt.Errorf("primary candles: %w", err)
	}
	trendWindow, err := e.connector.GetHistoricalData(e.cfg.Symbol, e.cfg.TrendTimeframe, e.cfg.Engine.WindowSize)
	if err != nil {
		e.countTickError()
		return fmt.Errorf("trend candles: %w", err)
	}
	if len(window) < 2 {
		return fmt.Errorf("primary window too short: %d candles", len(window))
	}
	candle := window[len(window)-1]

	// one snapshot per tick: the same windows and breakdown feed position
	// management (score exit, trailing stop) and the entry scan
	bd := e.agg.Evaluate(window, trendWindow)
	e.mu.Lock()
	e.lastBreakdown = bd
	e.mu.Unlock()

	e.managePositions(candle, window, bd)

	if scan {
		e.scanForEntry(candle, window, bd)
	}

	e.persist()
	e.updateGauges()
	return nil
}

// managePositions runs the lifecycle state machine over every active
// position in time-priority order
func (e *Engine) managePositions(candle types.Candle, window []types.Candle, bd signals.ScoreBreakdown) {
	connectorSide := map[string]bool{}
	openPositions, openErr := e.connector.GetAllOpenPositions()
	if openErr == nil {
		for _, p := range openPositions {
			connectorSide[p.Ticket] = true
		}
	}

	in := position.TickInput{
		Candle:     candle,
		Window:     window,
		LongScore:  bd.Long.FinalTotal,
		ShortScore: bd.Short.FinalTotal,
	}

	// filter into a fresh slice: the status-API goroutine may be iterating
	// e.active's backing array under RLock while this runs
	remaining := make([]*position.Position, 0, len(e.active))
	for _, pos := range e.active {
		// a position the connector no longer knows was closed externally:
		// record it once and stop processing it
		if openErr == nil && !connectorSide[pos.Ticket] {
			pos.Status = position.StatusClosed
			e.appendHistory(position.ClosedTrade{
				Ticket:     pos.Ticket,
				Symbol:     pos.Symbol,
				Direction:  pos.Direction,
				EntryPrice: pos.EntryPrice,
				ExitPrice:  candle.Close,
				Lot:        pos.LotSize,
				ProfitUSD:  e.connector.CalculateProfit(pos.Symbol, pos.Direction, pos.LotSize, pos.EntryPrice, candle.Close),
				PnlR:       pos.PnlR(candle.Close),
				Reason:     "External Close",
				EntryTime:  pos.EntryTime,
				ExitTime:   candle.Timestamp,
			})
			continue
		}

		events, err := e.lifecycle.ManageTick(pos, in)
		if err != nil {
			// connector fault: skip this position this tick, state untouched
			log.Printf("⚠️  Manage %s failed, retrying next tick: %v", pos.Ticket, err)
			e.countTickError()
			remaining = append(remaining, pos)
			continue
		}
		for _, ev := range events {
			e.appendHistory(ev)
		}
		if pos.Status == position.StatusClosed {
			e.startCooldown(candle.Timestamp)
			continue
		}
		remaining = append(remaining, pos)
	}

	e.mu.Lock()
	e.active = remaining
	e.mu.Unlock()
}

// scanForEntry consults the aggregator decision and the risk manager,
// opening at most one new position per period
func (e *Engine) scanForEntry(candle types.Candle, window []types.Candle, bd signals.ScoreBreakdown) {
	if e.metrics != nil {
		e.metrics.Decisions.WithLabelValues(string(bd.Decision)).Inc()
	}
	if bd.Decision == types.DirectionNone {
		return
	}
	e.mu.RLock()
	activeCount := len(e.active)
	cooldownUntil := e.cooldownUntil
	e.mu.RUnlock()
	if activeCount >= e.cfg.Engine.MaxActiveTrades {
		log.Printf("⏸️  Signal %s skipped: %d/%d positions open",
			bd.Decision, activeCount, e.cfg.Engine.MaxActiveTrades)
		return
	}
	if candle.Timestamp.Before(cooldownUntil) {
		log.Printf("⏸️  Signal %s skipped: cooldown until %s", bd.Decision, cooldownUntil.Format(time.RFC3339))
		return
	}

	account, err := e.connector.GetAccountInfo()
	if err != nil {
		log.Printf("⚠️  Account fetch failed, skipping entry: %v", err)
		e.countTickError()
		return
	}

	plan, reason := e.riskMgr.SizeTrade(window, candle.Close, bd.Decision, account.Equity, bd.EntryLevel)
	if plan == nil {
		// an informational decision, not an error
		log.Printf("🚫 Risk rejected %s L%d: %s", bd.Decision, bd.EntryLevel, reason)
		if e.metrics != nil {
			e.metrics.Rejections.Inc()
		}
		return
	}

	tag := fmt.Sprintf("tidebot L%d", bd.EntryLevel)
	fill, err := e.connector.PlaceOrder(e.cfg.Symbol, bd.Decision, plan.LotSize, plan.StopLoss, plan.TakeProfit, tag)
	if err != nil || fill == nil {
		log.Printf("⚠️  Order placement failed: %v", err)
		e.countTickError()
		return
	}

	// the position carries the confirmed fill, which may be partial
	pos := &position.Position{
		Ticket:         fill.Ticket,
		Symbol:         e.cfg.Symbol,
		Direction:      bd.Decision,
		EntryPrice:     fill.FillPrice,
		EntryTime:      candle.Timestamp,
		LotSize:        fill.FillVolume,
		InitialLot:     fill.FillVolume,
		StopLoss:       plan.StopLoss,
		TakeProfit:     plan.TakeProfit,
		InitialSLDist:  plan.SLDistance,
		InitialRiskUSD: fill.FillVolume * plan.SLDistance,
		EntryLevel:     bd.EntryLevel,
		Status:         position.StatusOpen,
	}

	e.mu.Lock()
	e.active = append(e.active, pos)
	e.mu.Unlock()
	e.startCooldown(candle.Timestamp)

	log.Printf("✅ Opened %s %s lot=%.2f @ %.5f SL=%.5f TP=%.5f (L%d, risk $%.2f)",
		pos.Direction, pos.Symbol, pos.LotSize, pos.EntryPrice, pos.StopLoss, pos.TakeProfit,
		pos.EntryLevel, pos.InitialRiskUSD)
	log.Printf("🧮 %s", signals.Format(bd))
}

// ForceCloseAll liquidates every remaining position at the given price,
// appending each to history exactly once. Used at the end of a finite
// replay and on operator request.
func (e *Engine) ForceCloseAll(price float64, at time.Time) {
	e.mu.Lock()
	active := e.active
	e.active = nil
	e.mu.Unlock()

	for _, pos := range active {
		ct, err := e.lifecycle.CloseAll(pos, price, at, "End of Run")
		if err != nil {
			log.Printf("⚠️  Forced close of %s failed: %v", pos.Ticket, err)
			continue
		}
		e.appendHistory(ct)
	}
	e.persist()
}

// startCooldown pushes the no-entry deadline out from the given time
func (e *Engine) startCooldown(from time.Time) {
	d := time.Duration(e.cfg.Engine.CooldownCandles*e.cfg.TimeframeMin) * time.Minute
	e.mu.Lock()
	e.cooldownUntil = from.Add(d)
	e.mu.Unlock()
}

func (e *Engine) appendHistory(ct position.ClosedTrade) {
	e.mu.Lock()
	e.history = append(e.history, ct)
	e.mu.Unlock()
	if e.journal != nil {
		if err := e.journal.LogTrade(ct); err != nil {
			log.Printf("⚠️  Trade journal write failed: %v", err)
		}
	}
}

// persist saves the portfolio snapshot; a failed save is logged, the
// in-memory state stays authoritative
func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	if err := e.store.Save(e.Snapshot()); err != nil {
		log.Printf("⚠️  State save failed: %v", err)
	}
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	if account, err := e.connector.GetAccountInfo(); err == nil {
		e.metrics.Equity.Set(account.Equity)
	}
	e.mu.RLock()
	e.metrics.OpenPositions.Set(float64(len(e.active)))
	e.mu.RUnlock()
}

func (e *Engine) countTickError() {
	if e.metrics != nil {
		e.metrics.TickErrors.Inc()
	}
}

// Snapshot exports the persisted-state view of the portfolio
func (e *Engine) Snapshot() state.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	active := make([]*position.Position, len(e.active))
	copy(active, e.active)
	history := make([]position.ClosedTrade, len(e.history))
	copy(history, e.history)
	return state.Snapshot{
		ActiveTrades:  active,
		TradeHistory:  history,
		CooldownUntil: e.cooldownUntil,
	}
}

// ActivePositions returns a copy of the open positions for read-side
// consumers
func (e *Engine) ActivePositions() []position.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]position.Position, 0, len(e.active))
	for _, p := range e.active {
		out = append(out, *p)
	}
	return out
}

// History returns a copy of the closed-trade history
func (e *Engine) History() []position.ClosedTrade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]position.ClosedTrade, len(e.history))
	copy(out, e.history)
	return out
}

// LastBreakdown returns the score breakdown of the most recent evaluation
func (e *Engine) LastBreakdown() signals.ScoreBreakdown {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastBreakdown
}
