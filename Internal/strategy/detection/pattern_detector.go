package detection

import (
	"fmt"

	"github.com/coveport/tidebot/Internal/types"
)

// PatternType identifies a single-candle or two-candle reversal pattern
type PatternType string

const (
	PatternMarubozu        PatternType = "MARUBOZU"
	PatternEngulfingStrong PatternType = "ENGULFING_STRONG"
	PatternEngulfingMedium PatternType = "ENGULFING_MEDIUM"
	PatternPinBar          PatternType = "PIN_BAR"
	PatternNone            PatternType = "NONE"
)

// PatternSignal is a detected candle pattern with its direction
type PatternSignal struct {
	Pattern   PatternType
	Detected  bool
	Direction types.Direction
	Strength  float64 // 0-1, relative conviction within the pattern tier
	Reasoning string
}

// PatternDetector scans the most recent candles for reversal patterns.
// Tiers are checked in priority order: marubozu outranks engulfing, which
// outranks pin bar. Only the first matching tier fires.
type PatternDetector struct {
	MarubozuBodyRatio float64 // body / range, default 0.90
	PinBarWickRatio   float64 // dominant wick / range, default 0.50
	PinBarCounterWick float64 // opposite wick / range, default 0.20
}

// NewPatternDetector creates a detector with the standard ratios
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		MarubozuBodyRatio: 0.90,
		PinBarWickRatio:   0.50,
		PinBarCounterWick: 0.20,
	}
}

// Detect checks the latest candle (and its predecessor for engulfing) and
// returns the first qualifying pattern
func (pd *PatternDetector) Detect(candles []types.Candle) PatternSignal {
	if len(candles) < 2 {
		return PatternSignal{Pattern: PatternNone, Direction: types.DirectionNone}
	}

	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	if sig := pd.detectMarubozu(last); sig.Detected {
		return sig
	}
	if sig := pd.detectEngulfing(prev, last); sig.Detected {
		return sig
	}
	if sig := pd.detectPinBar(last); sig.Detected {
		return sig
	}
	return PatternSignal{Pattern: PatternNone, Direction: types.DirectionNone}
}

func (pd *PatternDetector) detectMarubozu(c types.Candle) PatternSignal {
	rng := c.Range()
	if rng <= 0 {
		return PatternSignal{}
	}
	ratio := c.Body() / rng
	if ratio < pd.MarubozuBodyRatio {
		return PatternSignal{}
	}

	dir := types.DirectionLong
	if c.IsBearish() {
		dir = types.DirectionShort
	} else if !c.IsBullish() {
		return PatternSignal{}
	}

	return PatternSignal{
		Pattern:   PatternMarubozu,
		Detected:  true,
		Direction: dir,
		Strength:  ratio,
		Reasoning: fmt.Sprintf("Marubozu: body is %.0f%% of range", ratio*100),
	}
}

func (pd *PatternDetector) detectEngulfing(prev, last types.Candle) PatternSignal {
	if prev.Body() <= 0 || last.Body() <= 0 {
		return PatternSignal{}
	}

	bullish := last.IsBullish() && prev.IsBearish() &&
		last.Close >= prev.Open && last.Open <= prev.Close
	bearish := last.IsBearish() && prev.IsBullish() &&
		last.Close <= prev.Open && last.Open >= prev.Close
	if !bullish && !bearish {
		return PatternSignal{}
	}

	dir := types.DirectionLong
	if bearish {
		dir = types.DirectionShort
	}

	// relative size separates strong from medium engulfing
	sizeRatio := last.Body() / prev.Body()
	pattern := PatternEngulfingMedium
	strength := 0.5
	if sizeRatio >= 1.5 {
		pattern = PatternEngulfingStrong
		strength = 0.8
	}

	return PatternSignal{
		Pattern:   pattern,
		Detected:  true,
		Direction: dir,
		Strength:  strength,
		Reasoning: fmt.Sprintf("Engulfing candle %.1fx previous body", sizeRatio),
	}
}

func (pd *PatternDetector) detectPinBar(c types.Candle) PatternSignal {
	rng := c.Range()
	if rng <= 0 {
		return PatternSignal{}
	}

	lowerRatio := c.LowerWick() / rng
	upperRatio := c.UpperWick() / rng

	// hammer: long lower wick, small upper wick
	if lowerRatio >= pd.PinBarWickRatio && upperRatio <= pd.PinBarCounterWick {
		return PatternSignal{
			Pattern:   PatternPinBar,
			Detected:  true,
			Direction: types.DirectionLong,
			Strength:  lowerRatio,
			Reasoning: fmt.Sprintf("Hammer: lower wick %.0f%% of range", lowerRatio*100),
		}
	}
	// shooting star: long upper wick, small lower wick
	if upperRatio >= pd.PinBarWickRatio && lowerRatio <= pd.PinBarCounterWick {
		return PatternSignal{
			Pattern:   PatternPinBar,
			Detected:  true,
			Direction: types.DirectionShort,
			Strength:  upperRatio,
			Reasoning: fmt.Sprintf("Shooting star: upper wick %.0f%% of range", upperRatio*100),
		}
	}
	return PatternSignal{}
}
