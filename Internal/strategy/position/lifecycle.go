package position

import (
	"log"
	"time"

	"github.com/coveport/tidebot/Internal/broker"
	"github.com/coveport/tidebot/Internal/indicators"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

const lotEpsilon = 1e-9

// TickInput is the per-tick snapshot the lifecycle manager works from. The
// window and the side scores come from the same snapshot the aggregator
// scored, so trailing-stop and score-exit never see drifted data within
// one tick.
type TickInput struct {
	Candle     types.Candle
	Window     []types.Candle
	LongScore  float64
	ShortScore float64
}

// Manager owns the mutable state of open positions and evaluates, each
// tick, whether to trigger SL/TP fills, score-decay exits, TP1 partials,
// profit protection, or trailing-stop ratchets.
//
// Transition priority is fixed; the first match wins and the position
// re-enters evaluation on the next tick for the remaining checks. No
// position state is mutated until the connector confirms the operation.
type Manager struct {
	cfg       *config.Config
	connector broker.Connector
}

// NewManager creates a lifecycle manager
func NewManager(cfg *config.Config, connector broker.Connector) *Manager {
	return &Manager{cfg: cfg, connector: connector}
}

// ManageTick evaluates one position against one tick. It returns the
// history records produced this tick. A connector error leaves the position
// untouched so the loop can retry next tick.
func (m *Manager) ManageTick(pos *Position, in TickInput) ([]ClosedTrade, error) {
	// peak favorable excursion ratchets before any exit check
	pos.UpdatePeak(in.Candle.Close)

	// 1. hard stop/target fill: SL before TP when both are touched in the
	// same candle, since the stop protects capital
	if pos.StopHit(in.Candle) {
		ct, err := m.closeAll(pos, pos.StopLoss, in.Candle.Timestamp, "Stop Loss")
		if err != nil {
			return nil, err
		}
		return []ClosedTrade{ct}, nil
	}
	if pos.TargetHit(in.Candle) {
		ct, err := m.closeAll(pos, pos.TakeProfit, in.Candle.Timestamp, "Take Profit")
		if err != nil {
			return nil, err
		}
		return []ClosedTrade{ct}, nil
	}

	// 2. score-decay exit, at most once per position: a persistently low
	// score must not shave the remaining lot again every tick
	if m.cfg.Exits.ScoreExit && !pos.ScoreExited {
		side := in.LongScore
		if pos.Direction == types.DirectionShort {
			side = in.ShortScore
		}
		if side < m.cfg.Exits.ScoreExitLevel {
			closeLot := pos.LotSize * m.cfg.Exits.ScoreExitPct / 100
			ct, err := m.closePartial(pos, closeLot, in.Candle.Close, in.Candle.Timestamp, "Score Exit")
			if err != nil {
				return nil, err
			}
			pos.ScoreExited = true
			return []ClosedTrade{ct}, nil
		}
	}

	// 3. first partial take-profit
	if m.cfg.Exits.TP1Enabled && !pos.TP1Hit && pos.PnlR(in.Candle.Close) >= m.cfg.Exits.TP1TriggerR {
		closeLot := pos.InitialLot * m.cfg.Exits.TP1ClosePct / 100
		ct, err := m.closePartial(pos, closeLot, in.Candle.Close, in.Candle.Timestamp, "TP1")
		if err != nil {
			return nil, err
		}
		pos.TP1Hit = true
		if m.cfg.Exits.TP1Breakeven && pos.Status != StatusClosed {
			if err := m.breakevenStop(pos); err != nil {
				log.Printf("⚠️  TP1 breakeven move failed for %s: %v", pos.Ticket, err)
			}
		}
		return []ClosedTrade{ct}, nil
	}

	// 4. profit protection after a retracement from the peak
	if m.cfg.Exits.PPEnabled && !pos.ProfitProtected && !pos.TP1Hit &&
		pos.PeakPnlR >= m.cfg.Exits.PPMinPeakR &&
		pos.PeakPnlR-pos.PnlR(in.Candle.Close) >= m.cfg.Exits.PPDropR {
		closeLot := pos.InitialLot * m.cfg.Exits.PPClosePct / 100
		ct, err := m.closePartial(pos, closeLot, in.Candle.Close, in.Candle.Timestamp, "Profit Protection")
		if err != nil {
			return nil, err
		}
		pos.ProfitProtected = true
		if m.cfg.Exits.PPBreakeven && pos.Status != StatusClosed {
			if err := m.breakevenStop(pos); err != nil {
				log.Printf("⚠️  PP breakeven move failed for %s: %v", pos.Ticket, err)
			}
		}
		return []ClosedTrade{ct}, nil
	}

	// 5. trailing stop ratchet
	if m.cfg.Exits.TSLEnabled {
		if err := m.trailStop(pos, in); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// trailStop recomputes ATR on the tick's window and ratchets the stop.
// The candidate replaces the current stop only when strictly more favorable
// than both the current stop and the entry price; it never loosens.
func (m *Manager) trailStop(pos *Position, in TickInput) error {
	atr, err := indicators.ATR(in.Window, m.cfg.Risk.ATRPeriod)
	if err != nil {
		return nil // insufficient history is a neutral outcome, not a fault
	}
	dist := atr * m.cfg.Exits.TSLMultiplier
	price := in.Candle.Close

	if pos.Direction == types.DirectionLong {
		candidate := price - dist
		if candidate > pos.StopLoss && candidate > pos.EntryPrice {
			return m.moveStop(pos, candidate)
		}
		return nil
	}
	candidate := price + dist
	if candidate < pos.StopLoss && candidate < pos.EntryPrice {
		return m.moveStop(pos, candidate)
	}
	return nil
}

// breakevenStop moves the stop to the entry price unless the stop has
// already ratcheted to or past entry; a ratcheted stop never moves back
func (m *Manager) breakevenStop(pos *Position) error {
	if pos.Direction == types.DirectionLong && pos.StopLoss >= pos.EntryPrice {
		return nil
	}
	if pos.Direction == types.DirectionShort && pos.StopLoss <= pos.EntryPrice {
		return nil
	}
	return m.moveStop(pos, pos.EntryPrice)
}

// moveStop modifies the connector-side stop first; local state changes only
// on confirmation
func (m *Manager) moveStop(pos *Position, newSL float64) error {
	if err := m.connector.ModifyPosition(pos.Ticket, newSL, pos.TakeProfit); err != nil {
		return err
	}
	pos.StopLoss = newSL
	return nil
}

// closeAll fully closes a position at the given price
func (m *Manager) closeAll(pos *Position, price float64, at time.Time, reason string) (ClosedTrade, error) {
	return m.closePartial(pos, pos.LotSize, price, at, reason)
}

// CloseAll fully closes a position outside the normal tick cascade, e.g.
// forced liquidation at the end of a replay
func (m *Manager) CloseAll(pos *Position, price float64, at time.Time, reason string) (ClosedTrade, error) {
	return m.closeAll(pos, price, at, reason)
}

// closePartial closes part (or all) of a position. The connector must
// confirm before the lot size or flags change.
// markSetter is implemented by simulated connectors that fill closes at
// their current mark price
type markSetter interface {
	SetMark(price float64)
}

func (m *Manager) closePartial(pos *Position, lot, price float64, at time.Time, reason string) (ClosedTrade, error) {
	if lot > pos.LotSize {
		lot = pos.LotSize
	}
	// a simulated fill happens at the mark: pin it to the exit level so SL
	// and TP closures book at their real prices, not the candle close
	if ms, ok := m.connector.(markSetter); ok {
		ms.SetMark(price)
	}
	if err := m.connector.ClosePosition(pos.Ticket, lot, reason); err != nil {
		return ClosedTrade{}, err
	}

	pos.LotSize -= lot
	full := pos.LotSize <= lotEpsilon
	if full {
		pos.LotSize = 0
		pos.Status = StatusClosed
	} else {
		pos.Status = StatusPartial
	}

	profit := m.connector.CalculateProfit(pos.Symbol, pos.Direction, lot, pos.EntryPrice, price)
	ct := ClosedTrade{
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Lot:        lot,
		ProfitUSD:  profit,
		PnlR:       pos.PnlR(price),
		Reason:     reason,
		EntryTime:  pos.EntryTime,
		ExitTime:   at,
	}

	log.Printf("📤 %s %s %s lot=%.2f @ %.5f (R=%.2f, $%.2f)",
		reason, pos.Symbol, pos.Direction, lot, price, ct.PnlR, profit)
	return ct, nil
}
