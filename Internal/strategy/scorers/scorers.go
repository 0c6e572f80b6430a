package scorers

import (
	"math"

	"github.com/coveport/tidebot/Internal/indicators"
	"github.com/coveport/tidebot/Internal/strategy/detection"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

// Every scorer returns a non-negative (long, short) pair, each capped at the
// configured per-scorer maximum. Disabled scorers and scorers without enough
// history return (0, 0): "no signal" is an ordinary value here, never an
// error.

// TrendBias is the higher-timeframe directional hint consumed by several
// scorers: +1 bullish, -1 bearish, 0 unknown.
func TrendBias(trendWindow []types.Candle, cfg config.SupertrendScorer) int {
	st, err := indicators.Supertrend(trendWindow, cfg.Period, cfg.Mult)
	if err != nil {
		return 0
	}
	if st.Bullish {
		return 1
	}
	return -1
}

func cap2(long, short, max float64) (float64, float64) {
	return math.Min(long, max), math.Min(short, max)
}

// TrendScore compares fast and slow EMAs on the primary window. Price and
// both EMAs stacked in order gets the full score; a plain EMA cross gets half.
func TrendScore(window []types.Candle, cfg config.TrendScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	closes := types.Closes(window)
	fast, err := indicators.EMA(closes, cfg.FastPeriod)
	if err != nil {
		return 0, 0
	}
	slow, err := indicators.EMA(closes, cfg.SlowPeriod)
	if err != nil {
		return 0, 0
	}

	price := closes[len(closes)-1]
	f := fast[len(fast)-1]
	s := slow[len(slow)-1]

	long, short := 0.0, 0.0
	switch {
	case price > f && f > s:
		long = cfg.MaxScore
	case f > s:
		long = cfg.MaxScore / 2
	case price < f && f < s:
		short = cfg.MaxScore
	case f < s:
		short = cfg.MaxScore / 2
	}
	return cap2(long, short, cfg.MaxScore)
}

// RSIScore layers oversold/overbought crosses over midline positioning.
// The cross tier outranks the midline tier; midline scoring requires an
// externally supplied trend bias.
func RSIScore(window []types.Candle, bias int, cfg config.RSIScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	closes := types.Closes(window)
	rsi, err := indicators.RSI(closes, cfg.Period)
	if err != nil {
		return 0, 0
	}

	curr := rsi[len(rsi)-1]
	prev := rsi[len(rsi)-2]

	long, short := 0.0, 0.0
	switch {
	// tier 1: crossing back out of an extreme zone
	case prev < cfg.Oversold && curr >= cfg.Oversold:
		long = cfg.MaxScore
	case prev > cfg.Overbought && curr <= cfg.Overbought:
		short = cfg.MaxScore
	// tier 2: inside the extreme zone
	case curr < cfg.Oversold:
		long = cfg.MaxScore * 2 / 3
	case curr > cfg.Overbought:
		short = cfg.MaxScore * 2 / 3
	// tier 3: midline cross, trend-bias gated
	case bias > 0 && prev < 50 && curr >= 50:
		long = cfg.MaxScore / 3
	case bias < 0 && prev > 50 && curr <= 50:
		short = cfg.MaxScore / 3
	}
	return cap2(long, short, cfg.MaxScore)
}

// MACDScore layers signal-line and zero-line crossovers over histogram
// momentum confirmation. Histogram scoring requires a trend bias.
func MACDScore(window []types.Candle, bias int, cfg config.MACDScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	closes := types.Closes(window)
	macd, signal, hist, err := indicators.MACD(closes, cfg.FastPeriod, cfg.SlowPeriod, cfg.SignalPeriod)
	if err != nil {
		return 0, 0
	}

	n := len(closes)
	long, short := 0.0, 0.0
	switch {
	// tier 1: signal-line crossover
	case macd[n-2] <= signal[n-2] && macd[n-1] > signal[n-1]:
		long = cfg.MaxScore
	case macd[n-2] >= signal[n-2] && macd[n-1] < signal[n-1]:
		short = cfg.MaxScore
	// tier 2: zero-line crossover
	case macd[n-2] <= 0 && macd[n-1] > 0:
		long = cfg.MaxScore * 2 / 3
	case macd[n-2] >= 0 && macd[n-1] < 0:
		short = cfg.MaxScore * 2 / 3
	// tier 3: histogram momentum in the bias direction
	case bias > 0 && hist[n-1] > 0 && hist[n-1] > hist[n-2]:
		long = cfg.MaxScore / 3
	case bias < 0 && hist[n-1] < 0 && hist[n-1] < hist[n-2]:
		short = cfg.MaxScore / 3
	}
	return cap2(long, short, cfg.MaxScore)
}

// ADXScore fires only in a trending regime (ADX above threshold); direction
// follows the dominant directional-movement line. A no-trend regime is zero
// for both sides.
func ADXScore(window []types.Candle, cfg config.ADXScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	res, err := indicators.ADX(window, cfg.Period)
	if err != nil {
		return 0, 0
	}
	if res.ADX < cfg.Threshold {
		return 0, 0
	}
	if res.PlusDI > res.MinusDI {
		return cfg.MaxScore, 0
	}
	if res.MinusDI > res.PlusDI {
		return 0, cfg.MaxScore
	}
	return 0, 0
}

// BollingerScore runs a strict priority cascade so concurrent band events
// are never double counted: squeeze breakout, walking the band, reversal
// confirmation, middle-band rejection, wick touch. The first matching tier
// scores; the rest are skipped.
func BollingerScore(window []types.Candle, bias int, cfg config.BollingerScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	if len(window) < cfg.Period+2 {
		return 0, 0
	}
	closes := types.Closes(window)
	upper, middle, lower, err := indicators.BollingerBands(closes, cfg.Period, cfg.Mult)
	if err != nil {
		return 0, 0
	}
	prevUpper, _, prevLower, err := indicators.BollingerBands(closes[:len(closes)-1], cfg.Period, cfg.Mult)
	if err != nil {
		return 0, 0
	}

	last := window[len(window)-1]
	prev := window[len(window)-2]

	// tier 1, squeeze breakout: narrowest band width in the lookback,
	// previous close inside, current close outside
	if isSqueeze(closes, cfg) {
		if prev.Close <= prevUpper && last.Close > upper {
			return cfg.MaxScore, 0
		}
		if prev.Close >= prevLower && last.Close < lower {
			return 0, cfg.MaxScore
		}
	}

	// tier 2: walking the band with an agreeing trend bias
	if bias > 0 && prev.Close > prevUpper && last.Close > upper {
		return cfg.MaxScore * 0.75, 0
	}
	if bias < 0 && prev.Close < prevLower && last.Close < lower {
		return 0, cfg.MaxScore * 0.75
	}

	// tier 3, reversal confirmation: previous close outside, current back
	// inside, confirming candle direction
	if prev.Close < prevLower && last.Close > lower && last.IsBullish() {
		return cfg.MaxScore * 0.6, 0
	}
	if prev.Close > prevUpper && last.Close < upper && last.IsBearish() {
		return 0, cfg.MaxScore * 0.6
	}

	// tier 4: middle-band rejection when trend-biased
	if bias > 0 && last.Low <= middle && last.Close > middle && last.IsBullish() {
		return cfg.MaxScore * 0.4, 0
	}
	if bias < 0 && last.High >= middle && last.Close < middle && last.IsBearish() {
		return 0, cfg.MaxScore * 0.4
	}

	// tier 5: wick touch without a confirmed close-through
	if last.Low <= lower && last.Close > lower {
		return cfg.MaxScore * 0.25, 0
	}
	if last.High >= upper && last.Close < upper {
		return 0, cfg.MaxScore * 0.25
	}

	return 0, 0
}

// isSqueeze reports whether the current band width is the narrowest over
// the configured lookback
func isSqueeze(closes []float64, cfg config.BollingerScorer) bool {
	lookback := cfg.SqueezeLookback
	if len(closes) < cfg.Period+lookback {
		return false
	}
	upper, middle, lower, err := indicators.BollingerBands(closes, cfg.Period, cfg.Mult)
	if err != nil {
		return false
	}
	current := indicators.BandWidth(upper, middle, lower)
	for i := 1; i < lookback; i++ {
		end := len(closes) - i
		u, m, l, err := indicators.BollingerBands(closes[:end], cfg.Period, cfg.Mult)
		if err != nil {
			return false
		}
		if indicators.BandWidth(u, m, l) < current {
			return false
		}
	}
	return true
}

// PatternScore scores the single strongest candle pattern on the latest bar.
// Marubozu outranks engulfing, which outranks pin bar; the detector
// enforces the cascade.
func PatternScore(window []types.Candle, cfg config.PatternScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	sig := detection.NewPatternDetector().Detect(window)
	if !sig.Detected {
		return 0, 0
	}

	var score float64
	switch sig.Pattern {
	case detection.PatternMarubozu:
		score = cfg.MaxScore
	case detection.PatternEngulfingStrong:
		score = cfg.MaxScore * 0.75
	case detection.PatternEngulfingMedium:
		score = cfg.MaxScore * 0.5
	case detection.PatternPinBar:
		score = cfg.MaxScore * 0.5
	default:
		return 0, 0
	}

	if sig.Direction == types.DirectionLong {
		return score, 0
	}
	return 0, score
}

// VolumeScore is a confirmation-only multiplier: it scores both directions
// equally when the latest bar's volume exceeds its moving average by the
// configured multiple. It never originates a directional signal alone.
func VolumeScore(window []types.Candle, cfg config.VolumeScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	if len(window) < cfg.Period+1 {
		return 0, 0
	}
	vols := types.Volumes(window)
	avg := indicators.SMAWithPeriod(vols[:len(vols)-1], cfg.Period)
	if avg <= 0 {
		return 0, 0
	}
	if vols[len(vols)-1] >= avg*cfg.Multiple {
		return cfg.MaxScore, cfg.MaxScore
	}
	return 0, 0
}

// SupertrendScore is binary: price above or below the higher-timeframe
// Supertrend line yields a fixed bonus to the corresponding side.
func SupertrendScore(trendWindow []types.Candle, cfg config.SupertrendScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	st, err := indicators.Supertrend(trendWindow, cfg.Period, cfg.Mult)
	if err != nil {
		return 0, 0
	}
	bonus := math.Min(cfg.Bonus, cfg.MaxScore)
	if st.Bullish {
		return bonus, 0
	}
	return 0, bonus
}

// DivergenceScore checks RSI divergence first, then MACD divergence; the
// first detected divergence wins and the other is skipped.
func DivergenceScore(window []types.Candle, cfg config.DivergenceScorer, rsiCfg config.RSIScorer, macdCfg config.MACDScorer) (float64, float64) {
	if !cfg.Enabled {
		return 0, 0
	}
	closes := types.Closes(window)
	detector := detection.NewDivergenceDetector(cfg.Lookback, cfg.MinSeparation, cfg.MinProminence)

	if rsi, err := indicators.RSI(closes, rsiCfg.Period); err == nil {
		if sig := detector.Detect(window, rsi, "RSI"); sig.Detected {
			return divergenceSides(sig, cfg.MaxScore)
		}
	}
	if macd, _, _, err := indicators.MACD(closes, macdCfg.FastPeriod, macdCfg.SlowPeriod, macdCfg.SignalPeriod); err == nil {
		if sig := detector.Detect(window, macd, "MACD"); sig.Detected {
			// MACD divergence scores slightly below RSI divergence
			return divergenceSides(sig, cfg.MaxScore*0.8)
		}
	}
	return 0, 0
}

func divergenceSides(sig detection.DivergenceSignal, score float64) (float64, float64) {
	if sig.Direction == types.DirectionLong {
		return score, 0
	}
	return 0, score
}

// EMAAdjustment computes the signed distance from price to the slow EMA in
// ATR units and maps it through the configured tier table. The most extreme
// matching tier wins. Positive output favors long, negative favors short;
// the aggregator applies it symmetrically.
func EMAAdjustment(window []types.Candle, cfg config.EMATierScorer) float64 {
	if !cfg.Enabled || len(cfg.Tiers) == 0 {
		return 0
	}
	closes := types.Closes(window)
	ema, err := indicators.EMA(closes, cfg.EMAPeriod)
	if err != nil {
		return 0
	}
	atr, err := indicators.ATR(window, cfg.ATRPeriod)
	if err != nil || atr <= 0 {
		return 0
	}

	distance := (closes[len(closes)-1] - ema[len(ema)-1]) / atr
	abs := math.Abs(distance)

	adjustment := 0.0
	for _, tier := range cfg.Tiers {
		if abs >= tier.ThresholdATR && tier.Score > adjustment {
			adjustment = tier.Score
		}
	}
	if distance < 0 {
		return -adjustment
	}
	return adjustment
}
