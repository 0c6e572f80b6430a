package metrics

import (
	"math"
	"testing"

	"github.com/coveport/tidebot/Internal/strategy/position"
	"github.com/coveport/tidebot/Internal/types"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBuildReport_MixedHistory(t *testing.T) {
	trades := []position.ClosedTrade{
		{Direction: types.DirectionLong, ProfitUSD: 100, PnlR: 1.0},
		{Direction: types.DirectionShort, ProfitUSD: -50, PnlR: -1.0},
		{Direction: types.DirectionLong, ProfitUSD: -150, PnlR: -1.5},
		{Direction: types.DirectionShort, ProfitUSD: 300, PnlR: 3.0},
	}

	r := BuildReport(trades, 10000)

	if r.TotalTrades != 4 || r.Wins != 2 || r.Losses != 2 {
		t.Errorf("counts = %d/%d/%d, want 4/2/2", r.TotalTrades, r.Wins, r.Losses)
	}
	if !approx(r.FinalBalance, 10200) {
		t.Errorf("FinalBalance = %f, want 10200", r.FinalBalance)
	}
	if !approx(r.WinRate, 50) {
		t.Errorf("WinRate = %f, want 50", r.WinRate)
	}
	if !approx(r.ProfitFactor, 2.0) {
		t.Errorf("ProfitFactor = %f, want 2.0", r.ProfitFactor)
	}
	if !approx(r.AvgRR, 1.5/4) {
		t.Errorf("AvgRR = %f, want 0.375", r.AvgRR)
	}
	// deepest trough is 9900 against the 10100 peak after trade one
	if !approx(r.MaxDrawdownPct, 200.0/10100*100) {
		t.Errorf("MaxDrawdownPct = %f, want %f", r.MaxDrawdownPct, 200.0/10100*100)
	}

	if r.Long.Trades != 2 || r.Long.Wins != 1 || !approx(r.Long.ProfitUSD, -50) {
		t.Errorf("long side = %+v", r.Long)
	}
	if r.Short.Trades != 2 || r.Short.Wins != 1 || !approx(r.Short.ProfitUSD, 250) {
		t.Errorf("short side = %+v", r.Short)
	}
}

func TestBuildReport_NoLossesMeansInfiniteProfitFactor(t *testing.T) {
	trades := []position.ClosedTrade{
		{Direction: types.DirectionLong, ProfitUSD: 40, PnlR: 0.8},
	}
	r := BuildReport(trades, 1000)
	if !math.IsInf(r.ProfitFactor, 1) {
		t.Errorf("ProfitFactor = %f, want +inf", r.ProfitFactor)
	}
	if r.MaxDrawdownPct != 0 {
		t.Errorf("drawdown = %f on a monotone equity curve", r.MaxDrawdownPct)
	}
}

func TestBuildReport_EmptyHistory(t *testing.T) {
	r := BuildReport(nil, 500)
	if r.TotalTrades != 0 || r.FinalBalance != 500 || r.WinRate != 0 || r.ProfitFactor != 0 {
		t.Errorf("empty report = %+v", r)
	}
}
