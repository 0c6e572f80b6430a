package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coveport/tidebot/Internal/indicators"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

// TradePlan is an approved sizing decision: a concrete lot with its stop
// and target levels
type TradePlan struct {
	LotSize    float64
	StopLoss   float64
	TakeProfit float64
	SLDistance float64
	RiskUSD    float64
	RiskPct    float64 // actual risk percent of equity at this lot
}

// Manager turns a signal into a sized trade or a rejection. Rejection is a
// normal, frequent outcome, and the caller treats it as "no trade this cycle".
type Manager struct {
	cfg *config.RiskConfig
}

// NewManager creates a risk manager bound to an immutable config snapshot
func NewManager(cfg *config.RiskConfig) *Manager {
	return &Manager{cfg: cfg}
}

// SizeTrade computes the stop distance from ATR, sizes the lot from the
// risk-percent-of-equity rule, and derives the take-profit from the
// configured reward:risk multiple. A nil plan means no trade; the reason
// string says why.
func (m *Manager) SizeTrade(window []types.Candle, entry float64, dir types.Direction, equity float64, level int) (*TradePlan, string) {
	if equity <= 0 {
		return nil, "no account equity"
	}
	if dir != types.DirectionLong && dir != types.DirectionShort {
		return nil, "no direction"
	}

	atr, err := indicators.ATR(window, m.cfg.ATRPeriod)
	if err != nil {
		return nil, fmt.Sprintf("insufficient history for ATR(%d)", m.cfg.ATRPeriod)
	}

	distance := atr * m.cfg.SLMultiplier
	if distance > m.cfg.MaxSLDistance {
		return nil, fmt.Sprintf("SL distance %.5f exceeds max %.5f", distance, m.cfg.MaxSLDistance)
	}
	if distance < m.cfg.MinSLDistance {
		if !m.cfg.ForceMinDistance {
			return nil, fmt.Sprintf("SL distance %.5f below min %.5f", distance, m.cfg.MinSLDistance)
		}
		distance = m.cfg.MinSLDistance
	}

	var sl, tp float64
	tpDistance := distance * (m.cfg.TPMultiplier / m.cfg.SLMultiplier)
	if dir == types.DirectionLong {
		sl = entry - distance
		tp = entry + tpDistance
	} else {
		sl = entry + distance
		tp = entry - tpDistance
	}

	riskPct := m.riskPercentForLevel(level)
	riskAmount := equity * riskPct / 100
	idealLot := riskAmount / distance

	lot := idealLot
	if idealLot < m.cfg.MinLot {
		if !m.cfg.ForceMinLot {
			return nil, fmt.Sprintf("ideal lot %.4f below minimum %.2f", idealLot, m.cfg.MinLot)
		}
		// the forced minimum lot is allowed only while the actual risk it
		// carries stays under the configured ceiling
		actualRiskPct := m.cfg.MinLot * distance / equity * 100
		if actualRiskPct > m.cfg.MaxActualRiskPct {
			return nil, fmt.Sprintf("forced minimum lot would risk %.2f%% (ceiling %.2f%%)",
				actualRiskPct, m.cfg.MaxActualRiskPct)
		}
		lot = m.cfg.MinLot
	}

	lot = roundToStep(lot, m.cfg.LotStep)
	if lot < m.cfg.BrokerMinLot {
		return nil, fmt.Sprintf("lot %.4f rounds below broker minimum %.2f", lot, m.cfg.BrokerMinLot)
	}

	return &TradePlan{
		LotSize:    lot,
		StopLoss:   sl,
		TakeProfit: tp,
		SLDistance: distance,
		RiskUSD:    lot * distance,
		RiskPct:    lot * distance / equity * 100,
	}, ""
}

// riskPercentForLevel scales the base risk percent by the entry-level tier
func (m *Manager) riskPercentForLevel(level int) float64 {
	if level < 1 {
		level = 1
	}
	if level > len(m.cfg.TierRiskMultiplier) {
		level = len(m.cfg.TierRiskMultiplier)
	}
	return m.cfg.RiskPercent * m.cfg.TierRiskMultiplier[level-1]
}

// roundToStep floors the lot to the instrument's lot-step precision.
// Floating-point division alone drifts at small steps, hence decimal.
func roundToStep(lot, step float64) float64 {
	if step <= 0 {
		return lot
	}
	d := decimal.NewFromFloat(lot)
	s := decimal.NewFromFloat(step)
	out, _ := d.Div(s).Floor().Mul(s).Float64()
	return out
}
