// Package plannerconfig provides the builder-style configuration for the
// planner (§6.5), matching the teacher's layered option pattern: explicit
// builder calls override a loaded YAML document, which overrides the
// compiled-in defaults.
package plannerconfig

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of recognized planner options (§6.5).
type Config struct {
	MaxIterations      int     `yaml:"maxIterations"`
	BeamWidth          int     `yaml:"beamWidth"`
	MinScore           float64 `yaml:"minScore"`
	Debug              bool    `yaml:"debug"`
	Validator          ValidatorConfig `yaml:"validator"`
	ScenarioPrediction ScenarioConfig  `yaml:"scenarioPrediction"`
}

// ValidatorConfig holds the validator.* keys.
type ValidatorConfig struct {
	Every            int     `yaml:"every"`
	MinConfidence    float64 `yaml:"minConfidence"`
	Mode             string  `yaml:"mode"`
	ValueTrigger     float64 `yaml:"valueTrigger"`
	Cooldown         int     `yaml:"cooldown"`
	HintBoost        float64 `yaml:"hintBoost"`
	SpecialHintBoost float64 `yaml:"specialHintBoost"`
}

// ScenarioConfig holds the scenarioPrediction.* keys.
type ScenarioConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	MaxScenariosPerTool     int     `yaml:"maxScenariosPerTool"`
	MinProbabilityThreshold float64 `yaml:"minProbabilityThreshold"`
	ConfidenceThreshold     float64 `yaml:"confidenceThreshold"`
	LearnFromOutcomes       bool    `yaml:"learnFromOutcomes"`
	CacheDurationMs         int     `yaml:"cacheDuration"`
	RedisAddr               string  `yaml:"redisAddr"`
}

// CacheDuration returns ScenarioPrediction.CacheDurationMs as a
// time.Duration.
func (c Config) CacheDuration() time.Duration {
	return time.Duration(c.ScenarioPrediction.CacheDurationMs) * time.Millisecond
}

// Default returns the §6.5 compiled-in defaults.
func Default() Config {
	return Config{
		MaxIterations: 40,
		BeamWidth:     4,
		MinScore:      0.4,
		Debug:         false,
		Validator: ValidatorConfig{
			Every:            1,
			MinConfidence:    0.4,
			Mode:             "action",
			ValueTrigger:     0.8,
			Cooldown:         1,
			HintBoost:        0.35,
			SpecialHintBoost: 0.1,
		},
		ScenarioPrediction: ScenarioConfig{
			Enabled:                 true,
			MaxScenariosPerTool:     5,
			MinProbabilityThreshold: 0.1,
			ConfidenceThreshold:     0.6,
			LearnFromOutcomes:       true,
			CacheDurationMs:         300000,
			RedisAddr:               "",
		},
	}
}

// Builder constructs a Config via chained With<Field> calls, starting from
// the compiled-in defaults (or a loaded YAML document via FromYAML).
type Builder struct {
	cfg Config
}

// New starts a Builder from the compiled-in defaults.
func New() *Builder {
	return &Builder{cfg: Default()}
}

// FromYAML starts a Builder from a YAML document layered over the
// compiled-in defaults; subsequent With<Field> calls override it.
func FromYAML(r io.Reader) (*Builder, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return &Builder{cfg: cfg}, nil
}

// Build returns the assembled Config.
func (b *Builder) Build() Config { return b.cfg }

func (b *Builder) WithMaxIterations(v int) *Builder { b.cfg.MaxIterations = v; return b }
func (b *Builder) WithBeamWidth(v int) *Builder      { b.cfg.BeamWidth = v; return b }
func (b *Builder) WithMinScore(v float64) *Builder   { b.cfg.MinScore = v; return b }
func (b *Builder) WithDebug(v bool) *Builder         { b.cfg.Debug = v; return b }

func (b *Builder) WithValidatorEvery(v int) *Builder              { b.cfg.Validator.Every = v; return b }
func (b *Builder) WithValidatorMinConfidence(v float64) *Builder   { b.cfg.Validator.MinConfidence = v; return b }
func (b *Builder) WithValidatorMode(v string) *Builder             { b.cfg.Validator.Mode = v; return b }
func (b *Builder) WithValidatorValueTrigger(v float64) *Builder    { b.cfg.Validator.ValueTrigger = v; return b }
func (b *Builder) WithValidatorCooldown(v int) *Builder            { b.cfg.Validator.Cooldown = v; return b }
func (b *Builder) WithValidatorHintBoost(v float64) *Builder       { b.cfg.Validator.HintBoost = v; return b }
func (b *Builder) WithValidatorSpecialHintBoost(v float64) *Builder {
	b.cfg.Validator.SpecialHintBoost = v
	return b
}

func (b *Builder) WithScenarioPredictionEnabled(v bool) *Builder { b.cfg.ScenarioPrediction.Enabled = v; return b }
func (b *Builder) WithScenarioMaxPerTool(v int) *Builder {
	b.cfg.ScenarioPrediction.MaxScenariosPerTool = v
	return b
}
func (b *Builder) WithScenarioMinProbability(v float64) *Builder {
	b.cfg.ScenarioPrediction.MinProbabilityThreshold = v
	return b
}
func (b *Builder) WithScenarioConfidenceThreshold(v float64) *Builder {
	b.cfg.ScenarioPrediction.ConfidenceThreshold = v
	return b
}
func (b *Builder) WithScenarioLearnFromOutcomes(v bool) *Builder {
	b.cfg.ScenarioPrediction.LearnFromOutcomes = v
	return b
}
func (b *Builder) WithScenarioCacheDurationMs(v int) *Builder {
	b.cfg.ScenarioPrediction.CacheDurationMs = v
	return b
}
func (b *Builder) WithScenarioRedisAddr(v string) *Builder {
	b.cfg.ScenarioPrediction.RedisAddr = v
	return b
}
