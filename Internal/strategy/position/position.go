package position

import (
	"time"

	"github.com/coveport/tidebot/Internal/types"
)

// Status of a position through its lifecycle
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusPartial Status = "PARTIAL"
	StatusClosed  Status = "CLOSED"
)

// Position is the core mutable trade entity. It is created when the risk
// manager approves a signal and the connector confirms the fill, mutated
// only by the lifecycle manager, and moved to history when fully closed.
//
// Invariants: 0 < LotSize <= InitialLot while open; InitialRiskUSD > 0 for
// any position with a valid stop; the stop only ever moves in the
// position's favor once ratcheted.
type Position struct {
	Ticket     string          `json:"ticket"`
	Symbol     string          `json:"symbol"`
	Direction  types.Direction `json:"direction"`
	EntryPrice float64         `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`

	LotSize    float64 `json:"lot_size"`
	InitialLot float64 `json:"initial_lot"`

	StopLoss       float64 `json:"stop_loss"`
	TakeProfit     float64 `json:"take_profit"`
	InitialSLDist  float64 `json:"initial_sl_distance"`
	InitialRiskUSD float64 `json:"initial_risk_usd"`

	PeakPnlR        float64 `json:"peak_pnl_r"`
	TP1Hit          bool    `json:"tp1_hit"`
	ProfitProtected bool    `json:"profit_protected"`
	ScoreExited     bool    `json:"score_exited"`
	EntryLevel      int     `json:"entry_level"`
	Status          Status  `json:"status"`
}

// PnlR is the unrealized profit at price expressed in R-multiples of the
// initial stop distance
func (p *Position) PnlR(price float64) float64 {
	if p.InitialSLDist <= 0 {
		return 0
	}
	if p.Direction == types.DirectionLong {
		return (price - p.EntryPrice) / p.InitialSLDist
	}
	return (p.EntryPrice - price) / p.InitialSLDist
}

// UpdatePeak ratchets the peak favorable excursion. Called unconditionally
// each tick before any exit check; PeakPnlR never decreases.
func (p *Position) UpdatePeak(price float64) {
	if r := p.PnlR(price); r > p.PeakPnlR {
		p.PeakPnlR = r
	}
}

// StopHit reports whether the candle traded through the stop level
func (p *Position) StopHit(c types.Candle) bool {
	if p.Direction == types.DirectionLong {
		return c.Low <= p.StopLoss
	}
	return c.High >= p.StopLoss
}

// TargetHit reports whether the candle traded through the take-profit level
func (p *Position) TargetHit(c types.Candle) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Direction == types.DirectionLong {
		return c.High >= p.TakeProfit
	}
	return c.Low <= p.TakeProfit
}

// ClosedTrade is an immutable history record of a full or partial closure
type ClosedTrade struct {
	Ticket     string          `json:"ticket"`
	Symbol     string          `json:"symbol"`
	Direction  types.Direction `json:"direction"`
	EntryPrice float64         `json:"entry_price"`
	ExitPrice  float64         `json:"exit_price"`
	Lot        float64         `json:"lot"`
	ProfitUSD  float64         `json:"profit_usd"`
	PnlR       float64         `json:"pnl_r"`
	Reason     string          `json:"reason"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
}
