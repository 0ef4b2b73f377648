package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Analysis bundles the per-module thresholds shared by the three
// analysis modules.
type Analysis struct {
	VolumeMAPeriod      int     `yaml:"volume_ma_period"`
	RangeWindow         int     `yaml:"range_window"`
	AggressionThreshold float64 `yaml:"aggression_threshold"`
	AbsorptionThreshold float64 `yaml:"absorption_threshold"`
	FastPeriod          int     `yaml:"fast_period"`
	SlowPeriod          int     `yaml:"slow_period"`
	ROCThreshold        float64 `yaml:"roc_threshold"`
}

// Resolved is the immutable configuration one profile evaluates with.
// It is produced once by Resolve, never mutated per tick.
type Resolved struct {
	Name                string
	MinConfidence       float64
	SignalInterval      time.Duration
	MinRiskReward       float64
	RequireConfirmation bool
	TieBreak            string // "buy" or "sell"; applied when directions tie
	DiagnosticInterval  time.Duration
	Analysis            Analysis
}

// Instrument describes one traded symbol.
type Instrument struct {
	Symbol       string `yaml:"symbol"`
	Lookback     int    `yaml:"lookback"`
	SessionStart string `yaml:"session_start"`
	SessionEnd   string `yaml:"session_end"`
}

// Execution carries the executor-side risk settings.
type Execution struct {
	MaxOpenTrades   int     `yaml:"max_open_trades"`
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	TradingStart    string  `yaml:"trading_start"`
	TradingEnd      string  `yaml:"trading_end"`
	CloseBeforeEnd  int     `yaml:"close_before_end_minutes"`
}

// overlay holds per-profile overrides; nil pointer means "inherit base".
type overlay struct {
	MinConfidence       *float64  `yaml:"min_confidence"`
	SignalInterval      *int      `yaml:"signal_interval"`
	MinRiskReward       *float64  `yaml:"min_risk_reward"`
	RequireConfirmation *bool     `yaml:"require_confirmation"`
	TieBreak            *string   `yaml:"tie_break"`
	DiagnosticInterval  *int      `yaml:"diagnostic_interval"`
	Analysis            *Analysis `yaml:"analysis"`
}

type base struct {
	MinConfidence       float64  `yaml:"min_confidence"`
	SignalInterval      int      `yaml:"signal_interval"` // seconds
	MinRiskReward       float64  `yaml:"min_risk_reward"`
	RequireConfirmation bool     `yaml:"require_confirmation"`
	TieBreak            string   `yaml:"tie_break"`
	DiagnosticInterval  int      `yaml:"diagnostic_interval"` // seconds
	Analysis            Analysis `yaml:"analysis"`
}

// File is the top-level YAML document.
type File struct {
	Instruments []Instrument       `yaml:"instruments"`
	Base        base               `yaml:"base"`
	Profiles    map[string]overlay `yaml:"profiles"`
	Execution   Execution          `yaml:"execution"`
}

// Load reads and resolves the profile configuration. When the file does
// not exist it is created with defaults first, so a fresh deployment
// starts with a sane conservative/moderate/aggressive trio.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := writeDefault(path); werr != nil {
			return nil, fmt.Errorf("write default config: %w", werr)
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read profile config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profile config: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("profile config %s declares no profiles", path)
	}
	return &f, nil
}

// Resolve merges the base settings with one profile's overlay. Unknown
// profile names are a configuration error and skip that evaluation.
func (f *File) Resolve(name string) (Resolved, error) {
	o, ok := f.Profiles[name]
	if !ok {
		return Resolved{}, fmt.Errorf("unknown profile %q", name)
	}

	r := Resolved{
		Name:                name,
		MinConfidence:       f.Base.MinConfidence,
		SignalInterval:      time.Duration(f.Base.SignalInterval) * time.Second,
		MinRiskReward:       f.Base.MinRiskReward,
		RequireConfirmation: f.Base.RequireConfirmation,
		TieBreak:            f.Base.TieBreak,
		DiagnosticInterval:  time.Duration(f.Base.DiagnosticInterval) * time.Second,
		Analysis:            f.Base.Analysis,
	}
	if o.MinConfidence != nil {
		r.MinConfidence = *o.MinConfidence
	}
	if o.SignalInterval != nil {
		r.SignalInterval = time.Duration(*o.SignalInterval) * time.Second
	}
	if o.MinRiskReward != nil {
		r.MinRiskReward = *o.MinRiskReward
	}
	if o.RequireConfirmation != nil {
		r.RequireConfirmation = *o.RequireConfirmation
	}
	if o.TieBreak != nil {
		r.TieBreak = *o.TieBreak
	}
	if o.DiagnosticInterval != nil {
		r.DiagnosticInterval = time.Duration(*o.DiagnosticInterval) * time.Second
	}
	if o.Analysis != nil {
		r.Analysis = *o.Analysis
	}
	if r.TieBreak == "" {
		r.TieBreak = "sell"
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return Resolved{}, fmt.Errorf("profile %q: min_confidence %v out of [0,1]", name, r.MinConfidence)
	}
	return r, nil
}

// ResolveAll resolves every declared profile, sorted by name for a
// deterministic evaluation order.
func (f *File) ResolveAll() ([]Resolved, error) {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Resolved, 0, len(names))
	for _, name := range names {
		r, err := f.Resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// FindInstrument returns the configured instrument for a symbol.
func (f *File) FindInstrument(symbol string) (Instrument, bool) {
	for _, in := range f.Instruments {
		if in.Symbol == symbol {
			return in, true
		}
	}
	return Instrument{}, false
}

// ParseClock parses "HH:MM" into minutes past midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}

// MinuteOfDay converts a wall time to minutes past midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

const defaultConfig = `instruments:
  - symbol: WIN$N
    lookback: 120
    session_start: "09:05"
    session_end: "17:30"

base:
  min_confidence: 0.65
  signal_interval: 180
  min_risk_reward: 1.5
  require_confirmation: true
  tie_break: sell
  diagnostic_interval: 300
  analysis:
    volume_ma_period: 5
    range_window: 20
    aggression_threshold: 2.0
    absorption_threshold: 1.5
    fast_period: 5
    slow_period: 20
    roc_threshold: 0.1

profiles:
  conservative:
    min_confidence: 0.75
    signal_interval: 300
    min_risk_reward: 2.0
  moderate: {}
  aggressive:
    min_confidence: 0.55
    signal_interval: 60
    min_risk_reward: 1.0
    require_confirmation: false

execution:
  max_open_trades: 3
  risk_per_trade_pct: 1.0
  max_daily_loss_pct: 3.0
  trading_start: "09:05"
  trading_end: "17:30"
  close_before_end_minutes: 2
`

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfig), 0o644)
}
