package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/engine"
)

// Rule is one detector. Detect must be a pure function of tl: no writes
// to tl, no shared state between calls.
type Rule interface {
	Kind() Kind
	Detect(tl *engine.Timeline) []Issue
}

// Registry is an ordered set of rules, at most one per Kind.
type Registry struct {
	rules []Rule
}

// NewRegistry creates a registry holding rules in order.
// Panics on duplicate kinds; registries are built at startup.
func NewRegistry(rules ...Rule) *Registry {
	r := &Registry{}
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			panic(err)
		}
	}
	return r
}

// DefaultRegistry holds every built-in rule configured from cfg.
func DefaultRegistry(cfg config.Config) *Registry {
	cfg.ApplyDefaults()
	return NewRegistry(
		DuplicateQuery{},
		MissingLoad{},
		ZeroRowQuery{},
		SlowCall{ThresholdMs: cfg.SlowCallThresholdMs},
		BackgroundReQuery{WindowMs: cfg.BackgroundResumeWindowMs, Threshold: cfg.BackgroundReQueryThreshold},
		UnbalancedLifecycle{},
		AmbiguousAttribution{},
		LowConfidenceHost{},
	)
}

// Register appends a rule.
func (r *Registry) Register(rule Rule) error {
	for _, have := range r.rules {
		if have.Kind() == rule.Kind() {
			return fmt.Errorf("rule %s already registered", rule.Kind())
		}
	}
	r.rules = append(r.rules, rule)
	return nil
}

// Rules returns the registered rules in order.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Names returns the registered rule names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = string(rule.Kind())
	}
	return names
}

// Select returns a registry limited to names (matched case-insensitively),
// keeping registration order. An empty list selects everything.
func (r *Registry) Select(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	out := &Registry{}
	for _, rule := range r.rules {
		key := strings.ToLower(string(rule.Kind()))
		if want[key] {
			out.rules = append(out.rules, rule)
			delete(want, key)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown rules: %s (available: %s)",
			strings.Join(unknown, ", "), strings.Join(r.Names(), ", "))
	}
	return out, nil
}
