package risk

import (
	"math"
	"strings"
	"testing"

	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

// rangeCandles builds flat candles with a fixed true range, so ATR is exact
func rangeCandles(n int, price, halfRange float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = types.Candle{Open: price, High: price + halfRange, Low: price - halfRange, Close: price}
	}
	return out
}

func testRiskConfig() *config.RiskConfig {
	return &config.RiskConfig{
		RiskPercent:        1.0,
		ATRPeriod:          14,
		SLMultiplier:       1.5,
		TPMultiplier:       3.0,
		MinSLDistance:      0.0005,
		MaxSLDistance:      0.05,
		ForceMinDistance:   true,
		ForceMinLot:        true,
		MinLot:             0.01,
		LotStep:            0.01,
		BrokerMinLot:       0.01,
		MaxActualRiskPct:   2.0,
		TierRiskMultiplier: [3]float64{1.0, 1.25, 1.5},
	}
}

func TestSizeTrade_LongPlanGeometry(t *testing.T) {
	m := NewManager(testRiskConfig())
	window := rangeCandles(20, 1.2, 0.01) // ATR 0.02, distance 0.03

	plan, reason := m.SizeTrade(window, 1.2, types.DirectionLong, 10000, 1)
	if plan == nil {
		t.Fatalf("expected a plan, rejected: %s", reason)
	}

	if math.Abs(plan.SLDistance-0.03) > 1e-9 {
		t.Errorf("SLDistance = %f, want 0.03", plan.SLDistance)
	}
	if math.Abs((1.2-plan.StopLoss)-plan.SLDistance) > 1e-9 {
		t.Errorf("|entry-sl| = %f, want the plan distance %f", 1.2-plan.StopLoss, plan.SLDistance)
	}
	// reward:risk follows the TP/SL multiplier ratio
	if math.Abs((plan.TakeProfit-1.2)-plan.SLDistance*2) > 1e-9 {
		t.Errorf("tp distance = %f, want 2x sl distance", plan.TakeProfit-1.2)
	}
	// 1% of 10000 over 0.03 distance
	if math.Abs(plan.LotSize-3333.33) > 1e-6 {
		t.Errorf("LotSize = %f, want 3333.33", plan.LotSize)
	}
	if plan.RiskPct > 1.0+1e-9 {
		t.Errorf("actual risk %f%% exceeds the configured 1%%", plan.RiskPct)
	}
}

func TestSizeTrade_ShortPlanGeometry(t *testing.T) {
	m := NewManager(testRiskConfig())
	window := rangeCandles(20, 1.2, 0.01)

	plan, reason := m.SizeTrade(window, 1.2, types.DirectionShort, 10000, 1)
	if plan == nil {
		t.Fatalf("expected a plan, rejected: %s", reason)
	}
	if plan.StopLoss <= 1.2 {
		t.Errorf("short stop %f must sit above entry", plan.StopLoss)
	}
	if plan.TakeProfit >= 1.2 {
		t.Errorf("short target %f must sit below entry", plan.TakeProfit)
	}
}

func TestSizeTrade_EntryLevelScalesRisk(t *testing.T) {
	m := NewManager(testRiskConfig())
	window := rangeCandles(20, 1.2, 0.01)

	base, _ := m.SizeTrade(window, 1.2, types.DirectionLong, 10000, 1)
	top, _ := m.SizeTrade(window, 1.2, types.DirectionLong, 10000, 3)
	if base == nil || top == nil {
		t.Fatal("both plans should be approved")
	}
	if math.Abs(top.LotSize-base.LotSize*1.5) > 0.02 {
		t.Errorf("level 3 lot %f, want about 1.5x level 1 lot %f", top.LotSize, base.LotSize)
	}

	// out-of-range levels clamp to the tier table
	clamped, _ := m.SizeTrade(window, 1.2, types.DirectionLong, 10000, 9)
	if clamped == nil || clamped.LotSize != top.LotSize {
		t.Errorf("level 9 should clamp to the top tier")
	}
}

func TestSizeTrade_Rejections(t *testing.T) {
	m := NewManager(testRiskConfig())
	window := rangeCandles(20, 1.2, 0.01)

	if plan, reason := m.SizeTrade(window, 1.2, types.DirectionLong, 0, 1); plan != nil || reason == "" {
		t.Errorf("zero equity must reject")
	}
	if plan, reason := m.SizeTrade(window, 1.2, types.DirectionNone, 10000, 1); plan != nil || reason == "" {
		t.Errorf("no direction must reject")
	}
	if plan, _ := m.SizeTrade(rangeCandles(5, 1.2, 0.01), 1.2, types.DirectionLong, 10000, 1); plan != nil {
		t.Errorf("short history must reject")
	}

	// volatile market pushes the stop past the hard ceiling
	wide := rangeCandles(20, 1.2, 0.1) // distance 0.3 > max 0.05
	if plan, reason := m.SizeTrade(wide, 1.2, types.DirectionLong, 10000, 1); plan != nil || !strings.Contains(reason, "exceeds max") {
		t.Errorf("wide stop should reject, got %q", reason)
	}
}

func TestSizeTrade_ForceMinDistance(t *testing.T) {
	cfg := testRiskConfig()
	m := NewManager(cfg)
	quiet := rangeCandles(20, 1.2, 0.00005) // distance 0.00015 < min 0.0005

	plan, reason := m.SizeTrade(quiet, 1.2, types.DirectionLong, 10000, 1)
	if plan == nil {
		t.Fatalf("forced minimum distance should approve, rejected: %s", reason)
	}
	if math.Abs(plan.SLDistance-cfg.MinSLDistance) > 1e-12 {
		t.Errorf("SLDistance = %f, want forced minimum %f", plan.SLDistance, cfg.MinSLDistance)
	}

	cfg.ForceMinDistance = false
	if plan, reason := m.SizeTrade(quiet, 1.2, types.DirectionLong, 10000, 1); plan != nil || !strings.Contains(reason, "below min") {
		t.Errorf("without the override a tight stop must reject, got %q", reason)
	}
}

func TestSizeTrade_ForcedMinLotGatedByActualRisk(t *testing.T) {
	cfg := testRiskConfig()
	m := NewManager(cfg)
	window := rangeCandles(20, 1.2, 0.01) // distance 0.03

	// tiny account: ideal lot under MinLot, forced lot risks 1.5% of equity
	plan, reason := m.SizeTrade(window, 1.2, types.DirectionLong, 0.02, 1)
	if plan == nil {
		t.Fatalf("forced minimum lot should approve at 1.5%% actual risk, rejected: %s", reason)
	}
	if plan.LotSize != cfg.MinLot {
		t.Errorf("LotSize = %f, want forced minimum %f", plan.LotSize, cfg.MinLot)
	}

	// even smaller account: forced lot would risk 3%, over the 2% ceiling
	plan, reason = m.SizeTrade(window, 1.2, types.DirectionLong, 0.01, 1)
	if plan != nil || !strings.Contains(reason, "ceiling") {
		t.Errorf("over-ceiling forced lot must reject, got %q", reason)
	}

	cfg.ForceMinLot = false
	plan, reason = m.SizeTrade(window, 1.2, types.DirectionLong, 0.02, 1)
	if plan != nil || !strings.Contains(reason, "below minimum") {
		t.Errorf("without the override a dust lot must reject, got %q", reason)
	}
}

func TestRoundToStep_FloorsNotRounds(t *testing.T) {
	if got := roundToStep(0.119, 0.01); got != 0.11 {
		t.Errorf("roundToStep(0.119, 0.01) = %f, want 0.11", got)
	}
	if got := roundToStep(3333.339, 0.01); got != 3333.33 {
		t.Errorf("roundToStep(3333.339, 0.01) = %f, want 3333.33", got)
	}
	if got := roundToStep(0.05, 0.01); got != 0.05 {
		t.Errorf("roundToStep(0.05, 0.01) = %f, want 0.05", got)
	}
	if got := roundToStep(1.23, 0); got != 1.23 {
		t.Errorf("zero step must pass through")
	}
}
