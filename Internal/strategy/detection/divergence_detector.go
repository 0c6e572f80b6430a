package detection

import (
	"fmt"

	"github.com/coveport/tidebot/Internal/indicators"
	"github.com/coveport/tidebot/Internal/types"
)

// DivergenceType defines the type of divergence detected
type DivergenceType string

const (
	DivergenceBullish DivergenceType = "BULLISH"
	DivergenceBearish DivergenceType = "BEARISH"
	DivergenceNone    DivergenceType = "NONE"
)

// DivergenceSignal represents a detected divergence between price and indicator
type DivergenceSignal struct {
	Type            DivergenceType
	Detected        bool
	Direction       types.Direction
	IndicatorName   string // "RSI" or "MACD"
	PriceAction     string // "HIGHER_HIGH", "LOWER_LOW"
	IndicatorAction string // "LOWER_HIGH", "HIGHER_LOW"
	Reasoning       string
	FormationBars   int
}

// DivergenceDetector compares price swings against indicator swings over a
// trailing lookback window
type DivergenceDetector struct {
	Lookback      int     // bars to analyze (default 50)
	MinSeparation int     // minimum bars between two extrema
	MinProminence float64 // minimum indicator prominence for an extremum
}

// NewDivergenceDetector creates a detector with the configured window
func NewDivergenceDetector(lookback, minSeparation int, minProminence float64) *DivergenceDetector {
	if lookback <= 0 {
		lookback = 50
	}
	if minSeparation <= 0 {
		minSeparation = 3
	}
	return &DivergenceDetector{
		Lookback:      lookback,
		MinSeparation: minSeparation,
		MinProminence: minProminence,
	}
}

// Detect identifies regular divergence between price and an indicator series.
// Bullish: lower lows in price but higher lows in the indicator.
// Bearish: higher highs in price but lower highs in the indicator.
// Indicator values must be aligned 1:1 with the candles.
func (dd *DivergenceDetector) Detect(candles []types.Candle, values []float64, indicatorName string) DivergenceSignal {
	signal := DivergenceSignal{
		Type:          DivergenceNone,
		IndicatorName: indicatorName,
		Direction:     types.DirectionNone,
	}

	if len(candles) < 3 || len(values) != len(candles) {
		return signal
	}

	start := len(candles) - dd.Lookback
	if start < 0 {
		start = 0
	}
	recent := candles[start:]
	recentVals := values[start:]

	lows := make([]float64, len(recent))
	highs := make([]float64, len(recent))
	for i, c := range recent {
		lows[i] = c.Low
		highs[i] = c.High
	}

	priceLows := indicators.FindTroughs(lows, dd.MinSeparation, 0)
	priceHighs := indicators.FindPeaks(highs, dd.MinSeparation, 0)
	indLows := indicators.FindTroughs(recentVals, dd.MinSeparation, dd.MinProminence)
	indHighs := indicators.FindPeaks(recentVals, dd.MinSeparation, dd.MinProminence)

	// bullish: price lower low, indicator higher low
	if len(priceLows) >= 2 && len(indLows) >= 2 {
		p1 := priceLows[len(priceLows)-2]
		p2 := priceLows[len(priceLows)-1]
		v1 := indLows[len(indLows)-2]
		v2 := indLows[len(indLows)-1]

		if p2.Value < p1.Value && v2.Value > v1.Value {
			signal.Type = DivergenceBullish
			signal.Detected = true
			signal.Direction = types.DirectionLong
			signal.PriceAction = "LOWER_LOW"
			signal.IndicatorAction = "HIGHER_LOW"
			signal.FormationBars = p2.Index - p1.Index + 1
			signal.Reasoning = fmt.Sprintf("Bullish divergence: price lower low (%.5f → %.5f) but %s higher low (%.2f → %.2f)",
				p1.Value, p2.Value, indicatorName, v1.Value, v2.Value)
			return signal
		}
	}

	// bearish: price higher high, indicator lower high
	if len(priceHighs) >= 2 && len(indHighs) >= 2 {
		p1 := priceHighs[len(priceHighs)-2]
		p2 := priceHighs[len(priceHighs)-1]
		v1 := indHighs[len(indHighs)-2]
		v2 := indHighs[len(indHighs)-1]

		if p2.Value > p1.Value && v2.Value < v1.Value {
			signal.Type = DivergenceBearish
			signal.Detected = true
			signal.Direction = types.DirectionShort
			signal.PriceAction = "HIGHER_HIGH"
			signal.IndicatorAction = "LOWER_HIGH"
			signal.FormationBars = p2.Index - p1.Index + 1
			signal.Reasoning = fmt.Sprintf("Bearish divergence: price higher high (%.5f → %.5f) but %s lower high (%.2f → %.2f)",
				p1.Value, p2.Value, indicatorName, v1.Value, v2.Value)
			return signal
		}
	}

	return signal
}
