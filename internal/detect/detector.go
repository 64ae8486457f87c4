package detect

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/screentrace/internal/engine"
)

// Detector runs a registry's rules over a timeline.
type Detector struct {
	registry *Registry
	log      *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for per-rule timings.
func WithLogger(log *zap.Logger) Option {
	return func(d *Detector) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDetector creates a Detector over reg.
func NewDetector(reg *Registry, opts ...Option) *Detector {
	d := &Detector{registry: reg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run evaluates every rule concurrently and returns the merged, sorted
// issue list. Rules only read tl; each writes its own result slot.
func (d *Detector) Run(ctx context.Context, tl *engine.Timeline) ([]Issue, error) {
	rules := d.registry.Rules()
	results := make([][]Issue, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			results[i] = rule.Detect(tl)
			d.log.Debug("rule evaluated",
				zap.String("rule", string(rule.Kind())),
				zap.Int("issues", len(results[i])),
				zap.Duration("took", time.Since(start)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Issue
	for _, r := range results {
		merged = append(merged, r...)
	}
	Sort(merged)
	return merged, nil
}
