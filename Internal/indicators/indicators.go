package indicators

import (
	"errors"
	"math"

	"github.com/coveport/tidebot/Internal/types"
)

var ErrInsufficientData = errors.New("insufficient data for indicator period")

// SMA calculates simple moving average over the whole slice
func SMA(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// SMAWithPeriod calculates SMA over the trailing period
func SMAWithPeriod(data []float64, period int) float64 {
	if period <= 0 || len(data) < period {
		return 0
	}
	return SMA(data[len(data)-period:])
}

// StdDev calculates standard deviation over the whole slice
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	mean := SMA(data)
	sum := 0.0
	for _, v := range data {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

// EMA calculates the exponential moving average series.
// Seeded with the SMA of the first period values.
func EMA(src []float64, period int) ([]float64, error) {
	if period <= 0 || len(src) < period {
		return nil, ErrInsufficientData
	}
	out := make([]float64, len(src))
	k := 2.0 / float64(period+1)
	seed := SMA(src[:period])
	out[period-1] = seed
	for i := 0; i < period-1; i++ {
		out[i] = seed
	}
	for i := period; i < len(src); i++ {
		out[i] = src[i]*k + out[i-1]*(1-k)
	}
	return out, nil
}

// RSI calculates the Wilder-smoothed relative strength index series
func RSI(src []float64, period int) ([]float64, error) {
	if period <= 0 || len(src) < period+1 {
		return nil, ErrInsufficientData
	}
	out := make([]float64, len(src))
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := src[i] - src[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)
	for i := 0; i < period; i++ {
		out[i] = 50
	}
	for i := period + 1; i < len(src); i++ {
		d := src[i] - src[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD calculates the MACD line, signal line and histogram series
// using the standard 12/26/9 style parameters.
func MACD(src []float64, fast, slow, signal int) (macdLine, signalLine, histogram []float64, err error) {
	if len(src) < slow+signal {
		return nil, nil, nil, ErrInsufficientData
	}
	fastEMA, err := EMA(src, fast)
	if err != nil {
		return nil, nil, nil, err
	}
	slowEMA, err := EMA(src, slow)
	if err != nil {
		return nil, nil, nil, err
	}
	macdLine = make([]float64, len(src))
	for i := range src {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine, err = EMA(macdLine, signal)
	if err != nil {
		return nil, nil, nil, err
	}
	histogram = make([]float64, len(src))
	for i := range src {
		histogram[i] = macdLine[i] - signalLine[i]
	}
	return macdLine, signalLine, histogram, nil
}

// TrueRange of a candle against the previous close
func TrueRange(current, previous types.Candle) float64 {
	hl := current.High - current.Low
	hc := math.Abs(current.High - previous.Close)
	lc := math.Abs(current.Low - previous.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR calculates the Wilder-smoothed average true range of the latest bar
func ATR(candles []types.Candle, period int) (float64, error) {
	series, err := ATRSeries(candles, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// ATRSeries calculates the full average true range series
func ATRSeries(candles []types.Candle, period int) ([]float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return nil, ErrInsufficientData
	}
	out := make([]float64, len(candles))
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += TrueRange(candles[i], candles[i-1])
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(candles); i++ {
		tr := TrueRange(candles[i], candles[i-1])
		out[i] = (out[i-1]*float64(period-1) + tr) / float64(period)
	}
	for i := 0; i < period; i++ {
		out[i] = out[period]
	}
	return out, nil
}

// ADXResult holds the latest ADX value and directional movement lines
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX calculates the average directional index with +DI/-DI
func ADX(candles []types.Candle, period int) (ADXResult, error) {
	if period <= 0 || len(candles) < 2*period+1 {
		return ADXResult{}, ErrInsufficientData
	}

	n := len(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		tr[i] = TrueRange(candles[i], candles[i-1])
	}

	// Wilder smoothing
	smPlus, smMinus, smTR := 0.0, 0.0, 0.0
	for i := 1; i <= period; i++ {
		smPlus += plusDM[i]
		smMinus += minusDM[i]
		smTR += tr[i]
	}

	dxSum := 0.0
	dxCount := 0
	var plusDI, minusDI, adx float64
	for i := period + 1; i < n; i++ {
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		smTR = smTR - smTR/float64(period) + tr[i]
		if smTR == 0 {
			continue
		}
		plusDI = 100 * smPlus / smTR
		minusDI = 100 * smMinus / smTR
		diSum := plusDI + minusDI
		dx := 0.0
		if diSum > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / diSum
		}
		if dxCount < period {
			dxSum += dx
			dxCount++
			if dxCount == period {
				adx = dxSum / float64(period)
			}
		} else {
			adx = (adx*float64(period-1) + dx) / float64(period)
		}
	}

	return ADXResult{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}, nil
}

// BollingerBands calculates upper, middle and lower bands of the latest bar
func BollingerBands(closes []float64, period int, mult float64) (upper, middle, lower float64, err error) {
	if period <= 0 || len(closes) < period {
		return 0, 0, 0, ErrInsufficientData
	}
	window := closes[len(closes)-period:]
	middle = SMA(window)
	sd := StdDev(window)
	upper = middle + mult*sd
	lower = middle - mult*sd
	return upper, middle, lower, nil
}

// BandWidth is the normalized width of a Bollinger band pair
func BandWidth(upper, middle, lower float64) float64 {
	if middle == 0 {
		return 0
	}
	return (upper - lower) / middle
}

// SupertrendResult is the latest Supertrend line value and its direction
type SupertrendResult struct {
	Line    float64
	Bullish bool
}

// Supertrend calculates the ATR-banded Supertrend of the latest bar
func Supertrend(candles []types.Candle, period int, mult float64) (SupertrendResult, error) {
	atr, err := ATRSeries(candles, period)
	if err != nil {
		return SupertrendResult{}, err
	}

	n := len(candles)
	upper := make([]float64, n)
	lower := make([]float64, n)
	bullish := make([]bool, n)
	for i := period; i < n; i++ {
		mid := (candles[i].High + candles[i].Low) / 2
		basicUpper := mid + mult*atr[i]
		basicLower := mid - mult*atr[i]

		if i == period {
			upper[i] = basicUpper
			lower[i] = basicLower
			bullish[i] = candles[i].Close > mid
			continue
		}

		// bands ratchet toward price until a flip
		if basicUpper < upper[i-1] || candles[i-1].Close > upper[i-1] {
			upper[i] = basicUpper
		} else {
			upper[i] = upper[i-1]
		}
		if basicLower > lower[i-1] || candles[i-1].Close < lower[i-1] {
			lower[i] = basicLower
		} else {
			lower[i] = lower[i-1]
		}

		if bullish[i-1] {
			bullish[i] = candles[i].Close >= lower[i]
		} else {
			bullish[i] = candles[i].Close > upper[i]
		}
	}

	line := upper[n-1]
	if bullish[n-1] {
		line = lower[n-1]
	}
	return SupertrendResult{Line: line, Bullish: bullish[n-1]}, nil
}

// Extremum is a local peak or trough in a series
type Extremum struct {
	Index int
	Value float64
}

// FindPeaks scans for local maxima with a minimum index separation and a
// minimum prominence above the surrounding window. Small, dependency-free
// replacement for a scientific peak finder.
func FindPeaks(values []float64, minSeparation int, minProminence float64) []Extremum {
	peaks := []Extremum{}
	if len(values) < 3 {
		return peaks
	}
	for i := 1; i < len(values)-1; i++ {
		if values[i] <= values[i-1] || values[i] <= values[i+1] {
			continue
		}
		if !hasProminence(values, i, minProminence, true) {
			continue
		}
		if len(peaks) > 0 && i-peaks[len(peaks)-1].Index < minSeparation {
			// keep the stronger of the two crowded peaks
			if values[i] > peaks[len(peaks)-1].Value {
				peaks[len(peaks)-1] = Extremum{Index: i, Value: values[i]}
			}
			continue
		}
		peaks = append(peaks, Extremum{Index: i, Value: values[i]})
	}
	return peaks
}

// FindTroughs is FindPeaks for local minima
func FindTroughs(values []float64, minSeparation int, minProminence float64) []Extremum {
	inverted := make([]float64, len(values))
	for i, v := range values {
		inverted[i] = -v
	}
	peaks := FindPeaks(inverted, minSeparation, minProminence)
	troughs := make([]Extremum, len(peaks))
	for i, p := range peaks {
		troughs[i] = Extremum{Index: p.Index, Value: values[p.Index]}
	}
	return troughs
}

func hasProminence(values []float64, idx int, minProminence float64, isPeak bool) bool {
	if minProminence <= 0 {
		return true
	}
	// lowest saddle within a small neighborhood on each side
	window := 5
	lo := idx - window
	if lo < 0 {
		lo = 0
	}
	hi := idx + window
	if hi > len(values)-1 {
		hi = len(values) - 1
	}
	leftMin, rightMin := values[idx], values[idx]
	for i := lo; i < idx; i++ {
		if values[i] < leftMin {
			leftMin = values[i]
		}
	}
	for i := idx + 1; i <= hi; i++ {
		if values[i] < rightMin {
			rightMin = values[i]
		}
	}
	base := math.Max(leftMin, rightMin)
	return values[idx]-base >= minProminence
}

// SwingHigh returns the highest high over the trailing lookback bars
func SwingHigh(candles []types.Candle, lookback int) float64 {
	if len(candles) == 0 {
		return 0
	}
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	high := candles[start].High
	for _, c := range candles[start:] {
		if c.High > high {
			high = c.High
		}
	}
	return high
}

// SwingLow returns the lowest low over the trailing lookback bars
func SwingLow(candles []types.Candle, lookback int) float64 {
	if len(candles) == 0 {
		return 0
	}
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	low := candles[start].Low
	for _, c := range candles[start:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low
}
