package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full structured configuration document. It is read once at
// startup, validated, and treated as immutable by the engine.
type Config struct {
	Symbol         string `yaml:"symbol"`
	Timeframe      string `yaml:"timeframe"`
	TrendTimeframe string `yaml:"trend_timeframe"`
	TimeframeMin   int    `yaml:"timeframe_minutes"`
	TrendTFMin     int    `yaml:"trend_timeframe_minutes"`

	Scorers ScorerConfig `yaml:"scorers"`
	Signals SignalConfig `yaml:"signals"`
	Risk    RiskConfig   `yaml:"risk"`
	Exits   ExitConfig   `yaml:"exits"`
	Engine  EngineConfig `yaml:"engine"`
}

// ScorerConfig holds per-scorer toggles, weights, caps and thresholds
type ScorerConfig struct {
	Trend      TrendScorer      `yaml:"trend"`
	RSI        RSIScorer        `yaml:"rsi"`
	MACD       MACDScorer       `yaml:"macd"`
	ADX        ADXScorer        `yaml:"adx"`
	Bollinger  BollingerScorer  `yaml:"bollinger"`
	Pattern    PatternScorer    `yaml:"pattern"`
	Volume     VolumeScorer     `yaml:"volume"`
	Supertrend SupertrendScorer `yaml:"supertrend"`
	Divergence DivergenceScorer `yaml:"divergence"`
	EMATiers   EMATierScorer    `yaml:"ema_tiers"`
}

type TrendScorer struct {
	Enabled    bool    `yaml:"enabled"`
	Weight     float64 `yaml:"weight"`
	MaxScore   float64 `yaml:"max_score"`
	FastPeriod int     `yaml:"fast_period"`
	SlowPeriod int     `yaml:"slow_period"`
}

type RSIScorer struct {
	Enabled    bool    `yaml:"enabled"`
	Weight     float64 `yaml:"weight"`
	MaxScore   float64 `yaml:"max_score"`
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

type MACDScorer struct {
	Enabled      bool    `yaml:"enabled"`
	Weight       float64 `yaml:"weight"`
	MaxScore     float64 `yaml:"max_score"`
	FastPeriod   int     `yaml:"fast_period"`
	SlowPeriod   int     `yaml:"slow_period"`
	SignalPeriod int     `yaml:"signal_period"`
}

type ADXScorer struct {
	Enabled   bool    `yaml:"enabled"`
	Weight    float64 `yaml:"weight"`
	MaxScore  float64 `yaml:"max_score"`
	Period    int     `yaml:"period"`
	Threshold float64 `yaml:"threshold"`
}

type BollingerScorer struct {
	Enabled         bool    `yaml:"enabled"`
	Weight          float64 `yaml:"weight"`
	MaxScore        float64 `yaml:"max_score"`
	Period          int     `yaml:"period"`
	Mult            float64 `yaml:"mult"`
	SqueezeLookback int     `yaml:"squeeze_lookback"`
}

type PatternScorer struct {
	Enabled  bool    `yaml:"enabled"`
	Weight   float64 `yaml:"weight"`
	MaxScore float64 `yaml:"max_score"`
}

type VolumeScorer struct {
	Enabled  bool    `yaml:"enabled"`
	Weight   float64 `yaml:"weight"`
	MaxScore float64 `yaml:"max_score"`
	Period   int     `yaml:"period"`
	Multiple float64 `yaml:"multiple"`
}

type SupertrendScorer struct {
	Enabled  bool    `yaml:"enabled"`
	Weight   float64 `yaml:"weight"`
	MaxScore float64 `yaml:"max_score"`
	Period   int     `yaml:"period"`
	Mult     float64 `yaml:"mult"`
	Bonus    float64 `yaml:"bonus"`
}

type DivergenceScorer struct {
	Enabled       bool    `yaml:"enabled"`
	Weight        float64 `yaml:"weight"`
	MaxScore      float64 `yaml:"max_score"`
	Lookback      int     `yaml:"lookback"`
	MinSeparation int     `yaml:"min_separation"`
	MinProminence float64 `yaml:"min_prominence"`
}

// EMATierScorer maps price distance from the slow EMA (in ATR units) to a
// signed adjustment. Tiers are ordered by threshold; the most extreme
// matching tier wins.
type EMATierScorer struct {
	Enabled   bool      `yaml:"enabled"`
	EMAPeriod int       `yaml:"ema_period"`
	ATRPeriod int       `yaml:"atr_period"`
	Tiers     []EMATier `yaml:"tiers"`
}

type EMATier struct {
	ThresholdATR float64 `yaml:"threshold_atr"`
	Score        float64 `yaml:"score"`
}

// SignalConfig controls the aggregator decision policy
type SignalConfig struct {
	Mode            string     `yaml:"mode"` // "tiered" (authoritative) or "legacy"
	AllowLong       bool       `yaml:"allow_long"`
	AllowShort      bool       `yaml:"allow_short"`
	EntryTiers      [3]float64 `yaml:"entry_tiers"` // ascending thresholds, tier 1..3
	LegacyClamp     float64    `yaml:"legacy_clamp"`
	LegacyThreshold float64    `yaml:"legacy_threshold"`
}

// RiskConfig drives stop distance and lot sizing
type RiskConfig struct {
	RiskPercent        float64 `yaml:"risk_percent"`
	ATRPeriod          int     `yaml:"atr_period"`
	SLMultiplier       float64 `yaml:"sl_multiplier"`
	TPMultiplier       float64 `yaml:"tp_multiplier"`
	MinSLDistance      float64 `yaml:"min_sl_distance"`
	MaxSLDistance      float64 `yaml:"max_sl_distance"`
	ForceMinDistance   bool    `yaml:"force_min_distance"`
	ForceMinLot        bool    `yaml:"force_min_lot"`
	MinLot             float64 `yaml:"min_lot"`
	LotStep            float64 `yaml:"lot_step"`
	BrokerMinLot       float64 `yaml:"broker_min_lot"`
	MaxActualRiskPct   float64 `yaml:"max_actual_risk_percent"`
	TierRiskMultiplier [3]float64 `yaml:"tier_risk_multiplier"`
}

// ExitConfig drives the trade lifecycle state machine
type ExitConfig struct {
	TP1Enabled      bool    `yaml:"tp1_enabled"`
	TP1TriggerR     float64 `yaml:"tp1_trigger_r"`
	TP1ClosePct     float64 `yaml:"tp1_close_percent"`
	TP1Breakeven    bool    `yaml:"tp1_breakeven"`
	PPEnabled       bool    `yaml:"pp_enabled"`
	PPMinPeakR      float64 `yaml:"pp_min_peak_r"`
	PPDropR         float64 `yaml:"pp_drop_r"`
	PPClosePct      float64 `yaml:"pp_close_percent"`
	PPBreakeven     bool    `yaml:"pp_breakeven"`
	TSLEnabled      bool    `yaml:"tsl_enabled"`
	TSLMultiplier   float64 `yaml:"tsl_multiplier"`
	ScoreExit       bool    `yaml:"score_exit_enabled"`
	ScoreExitLevel  float64 `yaml:"score_exit_level"`
	ScoreExitPct    float64 `yaml:"score_exit_percent"`
}

// EngineConfig bounds the execution loop
type EngineConfig struct {
	MaxActiveTrades int    `yaml:"max_active_trades"`
	CooldownCandles int    `yaml:"cooldown_candles"`
	WindowSize      int    `yaml:"window_size"`
	PollSeconds     int    `yaml:"poll_seconds"`
	StatePath       string `yaml:"state_path"`
}

// Default returns the central defaults. Every threshold named by a scorer or
// exit rule lives here; a missing key in the YAML file keeps its default.
func Default() *Config {
	return &Config{
		Symbol:         "EURUSD",
		Timeframe:      "15m",
		TrendTimeframe: "1h",
		TimeframeMin:   15,
		TrendTFMin:     60,
		Scorers: ScorerConfig{
			Trend:      TrendScorer{Enabled: true, Weight: 1.0, MaxScore: 2.0, FastPeriod: 20, SlowPeriod: 50},
			RSI:        RSIScorer{Enabled: true, Weight: 1.0, MaxScore: 3.0, Period: 14, Oversold: 30, Overbought: 70},
			MACD:       MACDScorer{Enabled: true, Weight: 1.0, MaxScore: 3.0, FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
			ADX:        ADXScorer{Enabled: true, Weight: 1.0, MaxScore: 2.0, Period: 14, Threshold: 25},
			Bollinger:  BollingerScorer{Enabled: true, Weight: 1.0, MaxScore: 3.0, Period: 20, Mult: 2.0, SqueezeLookback: 50},
			Pattern:    PatternScorer{Enabled: true, Weight: 1.0, MaxScore: 2.0},
			Volume:     VolumeScorer{Enabled: true, Weight: 1.0, MaxScore: 1.0, Period: 20, Multiple: 1.5},
			Supertrend: SupertrendScorer{Enabled: true, Weight: 1.0, MaxScore: 2.0, Period: 10, Mult: 3.0, Bonus: 2.0},
			Divergence: DivergenceScorer{Enabled: true, Weight: 1.0, MaxScore: 3.0, Lookback: 50, MinSeparation: 3, MinProminence: 1.0},
			EMATiers: EMATierScorer{
				Enabled:   true,
				EMAPeriod: 50,
				ATRPeriod: 14,
				Tiers: []EMATier{
					{ThresholdATR: 1.0, Score: 1.0},
					{ThresholdATR: 2.0, Score: 2.0},
					{ThresholdATR: 3.0, Score: 3.0},
				},
			},
		},
		Signals: SignalConfig{
			Mode:            "tiered",
			AllowLong:       true,
			AllowShort:      true,
			EntryTiers:      [3]float64{5.0, 8.0, 11.0},
			LegacyClamp:     10.0,
			LegacyThreshold: 5.0,
		},
		Risk: RiskConfig{
			RiskPercent:        1.0,
			ATRPeriod:          14,
			SLMultiplier:       1.5,
			TPMultiplier:       3.0,
			MinSLDistance:      0.0005,
			MaxSLDistance:      0.02,
			ForceMinDistance:   true,
			ForceMinLot:        true,
			MinLot:             0.01,
			LotStep:            0.01,
			BrokerMinLot:       0.01,
			MaxActualRiskPct:   2.0,
			TierRiskMultiplier: [3]float64{1.0, 1.25, 1.5},
		},
		Exits: ExitConfig{
			TP1Enabled:     true,
			TP1TriggerR:    1.0,
			TP1ClosePct:    50,
			TP1Breakeven:   true,
			PPEnabled:      true,
			PPMinPeakR:     1.2,
			PPDropR:        0.4,
			PPClosePct:     50,
			PPBreakeven:    true,
			TSLEnabled:     true,
			TSLMultiplier:  2.0,
			ScoreExit:      true,
			ScoreExitLevel: 2.0,
			ScoreExitPct:   100,
		},
		Engine: EngineConfig{
			MaxActiveTrades: 3,
			CooldownCandles: 2,
			WindowSize:      200,
			PollSeconds:     30,
			StatePath:       "tidebot_state.json",
		},
	}
}

// Load reads the YAML config at path over the defaults and validates it
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run safely with.
// Missing keys become load-time errors here, not silent runtime fallbacks.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	if c.TimeframeMin <= 0 {
		return fmt.Errorf("config: timeframe_minutes must be positive, got %d", c.TimeframeMin)
	}
	if c.TrendTFMin < c.TimeframeMin || c.TrendTFMin%c.TimeframeMin != 0 {
		return fmt.Errorf("config: trend_timeframe_minutes %d must be a multiple of timeframe_minutes %d",
			c.TrendTFMin, c.TimeframeMin)
	}
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 10 {
		return fmt.Errorf("config: risk_percent %.2f out of range (0, 10]", c.Risk.RiskPercent)
	}
	if c.Risk.SLMultiplier <= 0 || c.Risk.TPMultiplier <= 0 {
		return fmt.Errorf("config: sl_multiplier and tp_multiplier must be positive")
	}
	if c.Risk.MinSLDistance < 0 || c.Risk.MaxSLDistance <= c.Risk.MinSLDistance {
		return fmt.Errorf("config: sl distance bounds invalid (min %.5f, max %.5f)",
			c.Risk.MinSLDistance, c.Risk.MaxSLDistance)
	}
	if c.Risk.LotStep <= 0 || c.Risk.MinLot <= 0 || c.Risk.BrokerMinLot <= 0 {
		return fmt.Errorf("config: lot sizes must be positive")
	}
	if c.Signals.Mode != "tiered" && c.Signals.Mode != "legacy" {
		return fmt.Errorf("config: signal mode %q unknown (want tiered or legacy)", c.Signals.Mode)
	}
	for i := 1; i < len(c.Signals.EntryTiers); i++ {
		if c.Signals.EntryTiers[i] <= c.Signals.EntryTiers[i-1] {
			return fmt.Errorf("config: entry_tiers must be strictly ascending")
		}
	}
	if c.Exits.TP1ClosePct <= 0 || c.Exits.TP1ClosePct > 100 {
		return fmt.Errorf("config: tp1_close_percent %.1f out of range (0, 100]", c.Exits.TP1ClosePct)
	}
	if c.Exits.PPClosePct <= 0 || c.Exits.PPClosePct > 100 {
		return fmt.Errorf("config: pp_close_percent %.1f out of range (0, 100]", c.Exits.PPClosePct)
	}
	if c.Exits.ScoreExitPct <= 0 || c.Exits.ScoreExitPct > 100 {
		return fmt.Errorf("config: score_exit_percent %.1f out of range (0, 100]", c.Exits.ScoreExitPct)
	}
	if c.Engine.MaxActiveTrades <= 0 {
		return fmt.Errorf("config: max_active_trades must be positive")
	}
	if c.Engine.WindowSize < 60 {
		return fmt.Errorf("config: window_size %d too small for indicator lookbacks", c.Engine.WindowSize)
	}
	if len(c.Scorers.EMATiers.Tiers) == 0 && c.Scorers.EMATiers.Enabled {
		return fmt.Errorf("config: ema_tiers enabled with no tiers")
	}
	return nil
}
