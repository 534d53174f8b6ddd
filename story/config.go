package story

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fableforge/storyflow/guardrail"
)

// Config holds the workflow-level knobs. Zero values are filled from
// DefaultConfig by the loader.
type Config struct {
	// AutoRejectOnHardFail bypasses the human review gate when the
	// aggregated guardrails fail. The pointer distinguishes "unset"
	// from an explicit false; unset means on.
	AutoRejectOnHardFail *bool `yaml:"auto_reject_on_hard_fail"`

	// MediaRetryMax is the number of regeneration attempts a media
	// guardrail may spend per asset. Values above 1 are allowed but
	// discouraged: every retry is a full generation plus a vision check.
	MediaRetryMax int `yaml:"media_retry_max"`

	// FearThresholdByAge and ViolenceThresholdByAge override the
	// guardrail limits per age group.
	FearThresholdByAge     map[string]float64 `yaml:"fear_threshold_by_age"`
	ViolenceThresholdByAge map[string]float64 `yaml:"violence_hard_threshold_by_age"`

	// ReviewDeadline is how long a suspended thread waits for a human
	// decision before the sweeper rejects it.
	ReviewDeadline time.Duration `yaml:"review_deadline"`

	// WorkerPoolSize bounds concurrent handler invocations per thread.
	WorkerPoolSize int `yaml:"worker_pool_size"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	defaults := guardrail.DefaultThresholds()
	autoReject := true
	return Config{
		AutoRejectOnHardFail:   &autoReject,
		MediaRetryMax:          1,
		FearThresholdByAge:     defaults.FearByAge,
		ViolenceThresholdByAge: defaults.ViolenceByAge,
		ReviewDeadline:         72 * time.Hour,
		WorkerPoolSize:         8,
	}
}

// LoadConfig reads a YAML config file over the defaults. Missing keys
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.AutoRejectOnHardFail == nil {
		c.AutoRejectOnHardFail = d.AutoRejectOnHardFail
	}
	if c.MediaRetryMax <= 0 {
		c.MediaRetryMax = d.MediaRetryMax
	}
	if len(c.FearThresholdByAge) == 0 {
		c.FearThresholdByAge = d.FearThresholdByAge
	}
	if len(c.ViolenceThresholdByAge) == 0 {
		c.ViolenceThresholdByAge = d.ViolenceThresholdByAge
	}
	if c.ReviewDeadline <= 0 {
		c.ReviewDeadline = d.ReviewDeadline
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = d.WorkerPoolSize
	}
	return c
}

// autoReject reports the effective auto-reject setting; nil means on.
func (c Config) autoReject() bool {
	return c.AutoRejectOnHardFail == nil || *c.AutoRejectOnHardFail
}

// Thresholds projects the config onto the guardrail threshold set.
func (c Config) Thresholds() guardrail.Thresholds {
	t := guardrail.DefaultThresholds()
	t.FearByAge = c.FearThresholdByAge
	t.ViolenceByAge = c.ViolenceThresholdByAge
	return t
}
