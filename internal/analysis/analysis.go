// Package analysis wires the pipeline together: input source, engine,
// detector and report builder.
//
// Analyze handles a complete capture. Watch follows a growing capture,
// handing out partial results while it runs and a final one when its
// context ends.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/report"
	"github.com/roach88/screentrace/internal/source"
)

// Result is everything one run produced.
type Result struct {
	RunID    string
	Timeline *engine.Timeline
	Issues   []detect.Issue
	Report   *report.Report
}

// Analyzer runs captures through the pipeline. It holds configuration
// only; every run gets fresh engine state, so one Analyzer may serve
// concurrent runs.
type Analyzer struct {
	cfg       config.Config
	log       *zap.Logger
	observer  engine.Observer
	extractor *source.Extractor
	ids       engine.RunIDGenerator
	detector  *detect.Detector
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger handed to the engine and detector.
func WithLogger(log *zap.Logger) Option {
	return func(a *Analyzer) {
		if log != nil {
			a.log = log
		}
	}
}

// WithObserver sets the engine's counter sink.
func WithObserver(o engine.Observer) Option {
	return func(a *Analyzer) {
		a.observer = o
	}
}

// WithExtractor unwraps JSON-lines envelopes before parsing.
func WithExtractor(x *source.Extractor) Option {
	return func(a *Analyzer) {
		a.extractor = x
	}
}

// WithRunIDGenerator replaces the UUIDv7 run IDs, for golden tests.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(a *Analyzer) {
		a.ids = g
	}
}

// New validates cfg and resolves its rule selection.
func New(cfg config.Config, opts ...Option) (*Analyzer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Analyzer{
		cfg: cfg,
		log: zap.NewNop(),
		ids: engine.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(a)
	}

	reg, err := detect.DefaultRegistry(cfg).Select(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}
	a.detector = detect.NewDetector(reg, detect.WithLogger(a.log))
	return a, nil
}

// Config returns the effective configuration.
func (a *Analyzer) Config() config.Config {
	return a.cfg
}

func (a *Analyzer) newEngine() *engine.Engine {
	opts := []engine.EngineOption{engine.WithLogger(a.log)}
	if a.observer != nil {
		opts = append(opts, engine.WithObserver(a.observer))
	}
	return engine.New(a.cfg, opts...)
}

// Analyze reads a complete capture from r.
//
// Empty or binary input fails before anything is parsed. In strict mode
// the first malformed line fails the run. If ctx ends while reading, the
// result covers the prefix read so far; that is not an error.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader) (*Result, error) {
	rc, err := source.Open(r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	e := a.newEngine()
	err = source.Scan(ctx, rc, a.extractor, e.FeedLine)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		a.log.Info("input cancelled; reporting the prefix read so far")
	default:
		return nil, err
	}
	return a.Evaluate(context.WithoutCancel(ctx), e.Finish())
}

// Evaluate runs the detector over tl and builds the report. tl may be a
// partial snapshot.
func (a *Analyzer) Evaluate(ctx context.Context, tl *engine.Timeline) (*Result, error) {
	issues, err := a.detector.Run(ctx, tl)
	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:    a.ids.Generate(),
		Timeline: tl,
		Issues:   issues,
		Report:   report.Build(tl, issues, report.Options{SlowestCalls: a.cfg.SlowestCalls}),
	}, nil
}

// WatchOptions configure Watch.
type WatchOptions struct {
	// Interval between partial results. Zero disables them.
	Interval time.Duration

	// Poll is passed to source.Tail.
	Poll time.Duration
}

// Watch follows the capture at path until ctx ends, calling onPartial with
// a partial result every Interval. It then returns the final result, with
// frames still open reported as unterminated.
//
// An error from onPartial stops the watch and is returned.
func (a *Analyzer) Watch(ctx context.Context, path string, opts WatchOptions, onPartial func(*Result) error) (*Result, error) {
	e := a.newEngine()
	g, gctx := errgroup.WithContext(ctx)

	// The loop stops on Stop, not on ctx, so lines the tailer flushes
	// during shutdown still reach the engine.
	g.Go(func() error {
		return e.Run(context.WithoutCancel(gctx))
	})

	g.Go(func() error {
		defer e.Stop()
		return source.Tail(gctx, path, source.TailOptions{
			Extractor: a.extractor,
			Poll:      opts.Poll,
			Log:       a.log,
		}, func(line string) error {
			if !e.Enqueue(line) {
				return engine.ErrStopped
			}
			return nil
		})
	})

	if opts.Interval > 0 && onPartial != nil {
		g.Go(func() error {
			ticker := time.NewTicker(opts.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
				tl, err := e.RequestSnapshot(gctx)
				if err != nil {
					// Stopped or cancelled; the final result follows.
					return nil
				}
				res, err := a.Evaluate(gctx, tl)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
				if err := onPartial(res); err != nil {
					return err
				}
			}
		})
	}

	if err := g.Wait(); err != nil && !(ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return nil, err
	}
	a.log.Info("watch stopped; building final report", zap.String("path", path))
	return a.Evaluate(context.WithoutCancel(ctx), e.Finish())
}
