package signals

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/coveport/tidebot/Internal/strategy/scorers"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

// SideBreakdown is the audit trail for one side of the book
type SideBreakdown struct {
	Contributions map[string]float64 // scorer name -> weighted contribution
	RawTotal      float64            // weighted sum before adjustment
	Adjustment    float64            // signed trend-bias adjustment applied
	FinalTotal    float64            // raw + adjustment, floored at zero
}

// ScoreBreakdown is produced fresh on every evaluation and never mutated
// after creation
type ScoreBreakdown struct {
	Long       SideBreakdown
	Short      SideBreakdown
	Decision   types.Direction
	EntryLevel int // 1..3 tier reached by the winning side, 0 when no signal
}

// Aggregator sums weighted scorer outputs and resolves the final decision
type Aggregator struct {
	cfg *config.Config
}

// NewAggregator creates an aggregator bound to an immutable config snapshot
func NewAggregator(cfg *config.Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Evaluate runs the full scorer set over the primary window and the
// higher-timeframe trend window and aggregates the results. Determinism:
// identical inputs always yield identical breakdowns.
func (a *Aggregator) Evaluate(window, trendWindow []types.Candle) ScoreBreakdown {
	sc := a.cfg.Scorers
	bias := scorers.TrendBias(trendWindow, sc.Supertrend)

	longContrib := map[string]float64{}
	shortContrib := map[string]float64{}

	add := func(name string, long, short, weight float64) {
		longContrib[name] = long * weight
		shortContrib[name] = short * weight
	}

	l, s := scorers.TrendScore(window, sc.Trend)
	add("trend", l, s, sc.Trend.Weight)
	l, s = scorers.RSIScore(window, bias, sc.RSI)
	add("rsi", l, s, sc.RSI.Weight)
	l, s = scorers.MACDScore(window, bias, sc.MACD)
	add("macd", l, s, sc.MACD.Weight)
	l, s = scorers.ADXScore(window, sc.ADX)
	add("adx", l, s, sc.ADX.Weight)
	l, s = scorers.BollingerScore(window, bias, sc.Bollinger)
	add("bollinger", l, s, sc.Bollinger.Weight)
	l, s = scorers.PatternScore(window, sc.Pattern)
	add("pattern", l, s, sc.Pattern.Weight)
	l, s = scorers.VolumeScore(window, sc.Volume)
	add("volume", l, s, sc.Volume.Weight)
	l, s = scorers.SupertrendScore(trendWindow, sc.Supertrend)
	add("supertrend", l, s, sc.Supertrend.Weight)
	l, s = scorers.DivergenceScore(window, sc.Divergence, sc.RSI, sc.MACD)
	add("divergence", l, s, sc.Divergence.Weight)

	adjustment := scorers.EMAAdjustment(window, sc.EMATiers)

	return a.aggregate(longContrib, shortContrib, adjustment)
}

// aggregate folds the weighted contributions into totals, applies the signed
// adjustment symmetrically, and resolves the decision. The weighted sum is
// order-independent; contribution maps carry the audit detail.
func (a *Aggregator) aggregate(longContrib, shortContrib map[string]float64, adjustment float64) ScoreBreakdown {
	longRaw, shortRaw := 0.0, 0.0
	for _, v := range longContrib {
		longRaw += v
	}
	for _, v := range shortContrib {
		shortRaw += v
	}

	// the adjustment benefits one side and symmetrically penalizes the other
	longFinal := math.Max(0, longRaw+adjustment)
	shortFinal := math.Max(0, shortRaw-adjustment)

	bd := ScoreBreakdown{
		Long: SideBreakdown{
			Contributions: longContrib,
			RawTotal:      longRaw,
			Adjustment:    adjustment,
			FinalTotal:    longFinal,
		},
		Short: SideBreakdown{
			Contributions: shortContrib,
			RawTotal:      shortRaw,
			Adjustment:    -adjustment,
			FinalTotal:    shortFinal,
		},
		Decision: types.DirectionNone,
	}

	if a.cfg.Signals.Mode == "legacy" {
		bd.Decision = a.legacyDecision(longFinal, shortFinal)
		if bd.Decision != types.DirectionNone {
			bd.EntryLevel = 1
		}
		return bd
	}

	bd.Decision, bd.EntryLevel = a.tieredDecision(longFinal, shortFinal)
	return bd
}

// tieredDecision: the side with the strictly higher final score wins when it
// clears the lowest entry tier and is enabled. Unclamped scores choose the
// entry tier: the highest tier whose threshold the winning score meets.
func (a *Aggregator) tieredDecision(long, short float64) (types.Direction, int) {
	tiers := a.cfg.Signals.EntryTiers

	winner := types.DirectionNone
	score := 0.0
	if long > short && a.cfg.Signals.AllowLong {
		winner, score = types.DirectionLong, long
	} else if short > long && a.cfg.Signals.AllowShort {
		winner, score = types.DirectionShort, short
	}
	if winner == types.DirectionNone || score < tiers[0] {
		return types.DirectionNone, 0
	}

	level := 1
	for i := 1; i < len(tiers); i++ {
		if score >= tiers[i] {
			level = i + 1
		}
	}
	return winner, level
}

// legacyDecision is the retained single-threshold path: clamp each side to a
// fixed symmetric range, then compare against one threshold
func (a *Aggregator) legacyDecision(long, short float64) types.Direction {
	clamp := a.cfg.Signals.LegacyClamp
	long = math.Min(long, clamp)
	short = math.Min(short, clamp)

	if long > short && long >= a.cfg.Signals.LegacyThreshold && a.cfg.Signals.AllowLong {
		return types.DirectionLong
	}
	if short > long && short >= a.cfg.Signals.LegacyThreshold && a.cfg.Signals.AllowShort {
		return types.DirectionShort
	}
	return types.DirectionNone
}

// Format renders the breakdown for decision logging
func Format(bd ScoreBreakdown) string {
	var b strings.Builder
	fmt.Fprintf(&b, "decision=%s level=%d long=%.2f short=%.2f adj=%+.2f |",
		bd.Decision, bd.EntryLevel, bd.Long.FinalTotal, bd.Short.FinalTotal, bd.Long.Adjustment)

	names := make([]string, 0, len(bd.Long.Contributions))
	for name := range bd.Long.Contributions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		l := bd.Long.Contributions[name]
		s := bd.Short.Contributions[name]
		if l == 0 && s == 0 {
			continue
		}
		fmt.Fprintf(&b, " %s=%.2f/%.2f", name, l, s)
	}
	return b.String()
}
