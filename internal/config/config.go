// Package config provides presage configuration. Values are resolved from
// (highest to lowest priority): PRESAGE_* environment variables, a YAML
// config file, defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all presage configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Learning LearningConfig `yaml:"learning"`
	Workers  WorkersConfig  `yaml:"workers"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LearningConfig holds every knob of the pattern-learning core.
type LearningConfig struct {
	// MinProbability is the scheduler's admission threshold for ordinary
	// (transition-sourced) candidates. Routine-sourced candidates bypass it.
	MinProbability float64 `yaml:"min_probability"`

	// ExecuteThreshold is the confidence floor for auto-execution.
	ExecuteThreshold float64 `yaml:"execute_threshold"`

	// AskFloor is the bottom of the medium confidence band; below it the
	// evaluator only suggests.
	AskFloor float64 `yaml:"ask_floor"`

	// AllowAutoExecute is the user's global opt-in for auto-execution.
	AllowAutoExecute bool `yaml:"allow_auto_execute"`

	// WindowMinutes is the length of a routine observation window.
	WindowMinutes int `yaml:"window_minutes"`

	// TimeOffsetMinutes is how far past window start an action may still be
	// learned from.
	TimeOffsetMinutes int `yaml:"time_offset_minutes"`

	// MatchByStateSignals enables the exact state-match gate.
	MatchByStateSignals bool `yaml:"match_by_state_signals"`

	// Signal selection and similarity gating.
	SignalSelectionEnabled bool    `yaml:"signal_selection_enabled"`
	SignalTopK             int     `yaml:"signal_top_k"`
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	SignalUpdateAlpha      float64 `yaml:"signal_update_alpha"`

	// DecayRate is the daily multiplicative confidence decay.
	DecayRate float64 `yaml:"decay_rate"`

	// DefaultRoutineProbability is the starting confidence of a new reminder.
	DefaultRoutineProbability float64 `yaml:"default_routine_probability"`

	// ProbabilityStep is the additive confidence increase per observation
	// and per positive feedback.
	ProbabilityStep float64 `yaml:"probability_step"`

	// TransitionAlpha and DelayBeta drive the transition learner's EMAs.
	TransitionAlpha float64 `yaml:"transition_alpha"`
	DelayBeta       float64 `yaml:"delay_beta"`

	// Delay learning for routine reminders.
	DelayBaseAlpha      float64 `yaml:"delay_base_alpha"`
	DelayHalfLifeDays   float64 `yaml:"delay_half_life_days"`
	MaxEvidenceItems    int     `yaml:"max_evidence_items"`
	MinSamplesForTiming int     `yaml:"min_samples_for_timing"`

	// DefaultReminderDelayMinutes schedules a reminder with no learned
	// timing yet.
	DefaultReminderDelayMinutes float64 `yaml:"default_reminder_delay_minutes"`

	// MaxTransitionGapMinutes caps how far apart two actions may be and
	// still count as a transition.
	MaxTransitionGapMinutes int `yaml:"max_transition_gap_minutes"`

	// NegativeFeedbackFactor is the multiplicative confidence reduction on
	// negative feedback.
	NegativeFeedbackFactor float64 `yaml:"negative_feedback_factor"`
}

// WorkersConfig holds the background loop intervals.
type WorkersConfig struct {
	PollIntervalSeconds   int `yaml:"poll_interval_seconds"`
	BatchSize             int `yaml:"batch_size"`
	WindowSweepMinutes    int `yaml:"window_sweep_minutes"`
	RetentionDays         int `yaml:"retention_days"`
	CandidateStaleMinutes int `yaml:"candidate_stale_minutes"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37791,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Learning: LearningConfig{
			MinProbability:              0.70,
			ExecuteThreshold:            0.95,
			AskFloor:                    0.40,
			AllowAutoExecute:            false,
			WindowMinutes:               60,
			TimeOffsetMinutes:           45,
			MatchByStateSignals:         true,
			SignalSelectionEnabled:      true,
			SignalTopK:                  5,
			SimilarityThreshold:         0.55,
			SignalUpdateAlpha:           0.30,
			DecayRate:                   0.01,
			DefaultRoutineProbability:   0.30,
			ProbabilityStep:             0.10,
			TransitionAlpha:             0.15,
			DelayBeta:                   0.30,
			DelayBaseAlpha:              0.30,
			DelayHalfLifeDays:           14,
			MaxEvidenceItems:            20,
			MinSamplesForTiming:         3,
			DefaultReminderDelayMinutes: 10,
			MaxTransitionGapMinutes:     240,
			NegativeFeedbackFactor:      0.25,
		},
		Workers: WorkersConfig{
			PollIntervalSeconds:   30,
			BatchSize:             25,
			WindowSweepMinutes:    10,
			RetentionDays:         30,
			CandidateStaleMinutes: 120,
		},
	}
}

// Load returns the defaults overlaid with the YAML config file (if one
// exists) and environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// no file, defaults stand
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaultConfigPath() string {
	if override := os.Getenv("PRESAGE_CONFIG"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".presage", "config.yaml")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRESAGE_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("PRESAGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PRESAGE_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PRESAGE_ALLOW_AUTO_EXECUTE"); v == "true" || v == "1" {
		cfg.Learning.AllowAutoExecute = true
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
