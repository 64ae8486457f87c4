// Package config holds the tunables of an analysis run.
//
// A Config can come from a YAML or CUE file (see Load) and is then
// overridden by command-line flags. Every field has a default, so the zero
// Config plus ApplyDefaults is a complete configuration.
package config

import (
	"fmt"
	"strings"
)

// Host fallback strategies for a component whose host is missing or not
// an open screen.
const (
	// HostFallbackMostRecent attaches the component to the most recently
	// opened screen and marks the attribution low-confidence.
	HostFallbackMostRecent = "most-recent"

	// HostFallbackDetached leaves the component unattached, keeping the
	// declared host name, and marks it low-confidence.
	HostFallbackDetached = "detached"
)

// Defaults.
const (
	DefaultSlowCallThresholdMs        = 1000
	DefaultBackgroundTimeoutMs        = 30000
	DefaultBackgroundResumeWindowMs   = 2000
	DefaultBackgroundReQueryThreshold = 3
	DefaultSlowestCalls               = 5
)

// Config is the complete set of analysis options.
type Config struct {
	SlowCallThresholdMs        int64    `yaml:"slow_call_threshold_ms" json:"slow_call_threshold_ms,omitempty"`
	BackgroundTimeoutMs        int64    `yaml:"background_timeout_ms" json:"background_timeout_ms,omitempty"`
	BackgroundResumeWindowMs   int64    `yaml:"background_resume_window_ms" json:"background_resume_window_ms,omitempty"`
	BackgroundReQueryThreshold int      `yaml:"background_requery_threshold" json:"background_requery_threshold,omitempty"`
	TolerantParsing            *bool    `yaml:"tolerant_parsing" json:"tolerant_parsing,omitempty"` // pointer to distinguish unset from false; default true
	HostFallback               string   `yaml:"host_fallback" json:"host_fallback,omitempty"`
	SlowestCalls               int      `yaml:"slowest_calls" json:"slowest_calls,omitempty"`
	Marker                     string   `yaml:"marker" json:"marker,omitempty"`
	Rules                      []string `yaml:"rules" json:"rules,omitempty"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.SlowCallThresholdMs == 0 {
		c.SlowCallThresholdMs = DefaultSlowCallThresholdMs
	}
	if c.BackgroundTimeoutMs == 0 {
		c.BackgroundTimeoutMs = DefaultBackgroundTimeoutMs
	}
	if c.BackgroundResumeWindowMs == 0 {
		c.BackgroundResumeWindowMs = DefaultBackgroundResumeWindowMs
	}
	if c.BackgroundReQueryThreshold == 0 {
		c.BackgroundReQueryThreshold = DefaultBackgroundReQueryThreshold
	}
	if c.TolerantParsing == nil {
		t := true
		c.TolerantParsing = &t
	}
	if c.HostFallback == "" {
		c.HostFallback = HostFallbackMostRecent
	}
	if c.SlowestCalls == 0 {
		c.SlowestCalls = DefaultSlowestCalls
	}
}

// Tolerant reports whether malformed lines are skipped rather than fatal.
func (c Config) Tolerant() bool {
	if c.TolerantParsing == nil {
		return true
	}
	return *c.TolerantParsing
}

// ValidationError lists every problem found in a Config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks value ranges. Rule names are checked by the detector
// registry, which owns the list of rules.
func (c Config) Validate() error {
	var problems []string
	positive := func(name string, v int64) {
		if v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %d", name, v))
		}
	}
	positive("slow_call_threshold_ms", c.SlowCallThresholdMs)
	positive("background_timeout_ms", c.BackgroundTimeoutMs)
	positive("background_resume_window_ms", c.BackgroundResumeWindowMs)
	positive("background_requery_threshold", int64(c.BackgroundReQueryThreshold))
	positive("slowest_calls", int64(c.SlowestCalls))

	switch c.HostFallback {
	case HostFallbackMostRecent, HostFallbackDetached:
	default:
		problems = append(problems, fmt.Sprintf("host_fallback must be %q or %q, got %q",
			HostFallbackMostRecent, HostFallbackDetached, c.HostFallback))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Bool returns a pointer to b, for building configs in code.
func Bool(b bool) *bool {
	return &b
}
