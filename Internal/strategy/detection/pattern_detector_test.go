package detection

import (
	"testing"

	"github.com/coveport/tidebot/Internal/types"
)

func TestPatternDetector_Marubozu_Bullish(t *testing.T) {
	candles := []types.Candle{
		{Open: 100, High: 101, Low: 99, Close: 100.5},
		{Open: 100, High: 110.5, Low: 99.8, Close: 110}, // body dominates the range
	}

	sig := NewPatternDetector().Detect(candles)

	if !sig.Detected {
		t.Fatalf("marubozu should be detected")
	}
	if sig.Pattern != PatternMarubozu {
		t.Errorf("Pattern = %s, want MARUBOZU", sig.Pattern)
	}
	if sig.Direction != types.DirectionLong {
		t.Errorf("bullish marubozu direction = %s, want LONG", sig.Direction)
	}
}

func TestPatternDetector_Marubozu_Bearish(t *testing.T) {
	candles := []types.Candle{
		{Open: 100, High: 101, Low: 99, Close: 100.5},
		{Open: 110, High: 110.2, Low: 99.5, Close: 100},
	}

	sig := NewPatternDetector().Detect(candles)

	if sig.Pattern != PatternMarubozu || sig.Direction != types.DirectionShort {
		t.Errorf("got (%s, %s), want (MARUBOZU, SHORT)", sig.Pattern, sig.Direction)
	}
}

func TestPatternDetector_EngulfingStrong(t *testing.T) {
	candles := []types.Candle{
		{Open: 105, High: 105.5, Low: 102.5, Close: 103}, // bearish, body 2
		{Open: 102.5, High: 107.5, Low: 101.5, Close: 106.5}, // bullish, body 4
	}

	sig := NewPatternDetector().Detect(candles)

	if sig.Pattern != PatternEngulfingStrong {
		t.Errorf("Pattern = %s, want ENGULFING_STRONG", sig.Pattern)
	}
	if sig.Direction != types.DirectionLong {
		t.Errorf("Direction = %s, want LONG", sig.Direction)
	}
}

func TestPatternDetector_EngulfingMedium(t *testing.T) {
	candles := []types.Candle{
		{Open: 102, High: 105.5, Low: 101.5, Close: 105}, // bullish, body 3
		{Open: 105.2, High: 106, Low: 100.5, Close: 101.6}, // bearish, body 3.6
	}

	sig := NewPatternDetector().Detect(candles)

	if sig.Pattern != PatternEngulfingMedium {
		t.Errorf("Pattern = %s, want ENGULFING_MEDIUM", sig.Pattern)
	}
	if sig.Direction != types.DirectionShort {
		t.Errorf("Direction = %s, want SHORT", sig.Direction)
	}
}

func TestPatternDetector_Hammer(t *testing.T) {
	candles := []types.Candle{
		{Open: 99, High: 100.5, Low: 98.5, Close: 100},
		{Open: 100.4, High: 101, Low: 95, Close: 100.8}, // long lower wick
	}

	sig := NewPatternDetector().Detect(candles)

	if sig.Pattern != PatternPinBar {
		t.Errorf("Pattern = %s, want PIN_BAR", sig.Pattern)
	}
	if sig.Direction != types.DirectionLong {
		t.Errorf("hammer direction = %s, want LONG", sig.Direction)
	}
}

func TestPatternDetector_ShootingStar(t *testing.T) {
	candles := []types.Candle{
		{Open: 99, High: 100.5, Low: 98.5, Close: 100},
		{Open: 100.8, High: 106, Low: 100.2, Close: 100.4}, // long upper wick
	}

	sig := NewPatternDetector().Detect(candles)

	if sig.Pattern != PatternPinBar {
		t.Errorf("Pattern = %s, want PIN_BAR", sig.Pattern)
	}
	if sig.Direction != types.DirectionShort {
		t.Errorf("shooting star direction = %s, want SHORT", sig.Direction)
	}
}

func TestPatternDetector_PlainCandleIsNone(t *testing.T) {
	candles := []types.Candle{
		{Open: 100, High: 102, Low: 98, Close: 101},
		{Open: 101, High: 103, Low: 99.5, Close: 102}, // balanced wicks, modest body
	}

	sig := NewPatternDetector().Detect(candles)

	if sig.Detected || sig.Pattern != PatternNone {
		t.Errorf("plain candle should not match, got %s", sig.Pattern)
	}
}

func TestPatternDetector_TooFewCandles(t *testing.T) {
	sig := NewPatternDetector().Detect([]types.Candle{{Open: 1, High: 2, Low: 0.5, Close: 1.5}})
	if sig.Detected {
		t.Errorf("single candle should never detect an engulfing-capable pattern set")
	}
}
