package detection

import (
	"testing"

	"github.com/coveport/tidebot/Internal/types"
)

func candlesFromLows(lows []float64) []types.Candle {
	out := make([]types.Candle, len(lows))
	for i, l := range lows {
		out[i] = types.Candle{Low: l, High: l + 10, Open: l + 5, Close: l + 5}
	}
	return out
}

func candlesFromHighs(highs []float64) []types.Candle {
	out := make([]types.Candle, len(highs))
	for i, h := range highs {
		out[i] = types.Candle{High: h, Low: h - 10, Open: h - 5, Close: h - 5}
	}
	return out
}

func TestDivergenceDetector_RegularBullish(t *testing.T) {
	// price prints a lower low while the indicator prints a higher low
	lows := []float64{100, 95, 100, 101, 92, 100, 101, 102, 103}
	rsi := []float64{50, 30, 50, 50, 38, 50, 50, 50, 50}

	detector := NewDivergenceDetector(50, 3, 1.0)
	sig := detector.Detect(candlesFromLows(lows), rsi, "RSI")

	if !sig.Detected {
		t.Fatalf("bullish divergence should be detected")
	}
	if sig.Type != DivergenceBullish {
		t.Errorf("Type = %s, want BULLISH", sig.Type)
	}
	if sig.Direction != types.DirectionLong {
		t.Errorf("Direction = %s, want LONG", sig.Direction)
	}
	if sig.PriceAction != "LOWER_LOW" || sig.IndicatorAction != "HIGHER_LOW" {
		t.Errorf("actions = (%s, %s), want (LOWER_LOW, HIGHER_LOW)", sig.PriceAction, sig.IndicatorAction)
	}
}

func TestDivergenceDetector_RegularBearish(t *testing.T) {
	// price prints a higher high while the indicator prints a lower high
	highs := []float64{100, 110, 100, 100, 112, 100, 100, 99, 98}
	rsi := []float64{50, 70, 50, 50, 62, 50, 50, 50, 50}

	detector := NewDivergenceDetector(50, 3, 1.0)
	sig := detector.Detect(candlesFromHighs(highs), rsi, "RSI")

	if !sig.Detected {
		t.Fatalf("bearish divergence should be detected")
	}
	if sig.Type != DivergenceBearish {
		t.Errorf("Type = %s, want BEARISH", sig.Type)
	}
	if sig.Direction != types.DirectionShort {
		t.Errorf("Direction = %s, want SHORT", sig.Direction)
	}
}

func TestDivergenceDetector_ConfirmingMoveIsNone(t *testing.T) {
	// lower low in price confirmed by a lower low in the indicator
	lows := []float64{100, 95, 100, 101, 92, 100, 101, 102, 103}
	rsi := []float64{50, 35, 50, 50, 28, 50, 50, 50, 50}

	detector := NewDivergenceDetector(50, 3, 1.0)
	sig := detector.Detect(candlesFromLows(lows), rsi, "RSI")

	if sig.Detected {
		t.Errorf("confirming indicator move should not flag divergence, got %s", sig.Type)
	}
}

func TestDivergenceDetector_MismatchedLengths(t *testing.T) {
	detector := NewDivergenceDetector(50, 3, 1.0)
	sig := detector.Detect(candlesFromLows([]float64{1, 2, 3, 4}), []float64{1, 2}, "RSI")
	if sig.Detected || sig.Type != DivergenceNone {
		t.Errorf("mismatched inputs should return NONE")
	}
}
