package network

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Parser turns raw network-description text into a Model.
type Parser interface {
	Parse(ctx context.Context, source string) (*Model, error)
}

// Default composite-parser policy.
const (
	// DefaultAcceleratedThreshold is the document size, in bytes, above
	// which the accelerated strategy is worth attempting.
	DefaultAcceleratedThreshold = 1 << 20 // 1 MiB

	// DefaultParseTimeout bounds an offloaded parse attempt. Documents can
	// reach tens of megabytes, so the deadline is generous.
	DefaultParseTimeout = 2 * time.Minute
)

// CompositeConfig holds configuration for the composite parser.
type CompositeConfig struct {
	// Accelerated is the fast strategy, attempted first for large
	// documents. Optional; failures are absorbed and logged.
	Accelerated Parser

	// Interpreted is the required fallback strategy.
	Interpreted Parser

	// AcceleratedThreshold is the minimum document size for attempting
	// the accelerated strategy. Zero uses the default.
	AcceleratedThreshold int

	// Timeout bounds each offloaded attempt. Zero uses the default.
	Timeout time.Duration

	// Offload runs parse attempts on a separate goroutine bounded by
	// Timeout. When disabled, parsing runs synchronously in the caller.
	Offload bool

	Logger zerolog.Logger
}

// CompositeParser selects between the accelerated and interpreted
// strategies. Callers never see which strategy ran, only the result or a
// final failure from the interpreted strategy.
type CompositeParser struct {
	cfg CompositeConfig
}

// NewCompositeParser creates the strategy-selecting parser.
func NewCompositeParser(cfg CompositeConfig) *CompositeParser {
	if cfg.AcceleratedThreshold <= 0 {
		cfg.AcceleratedThreshold = DefaultAcceleratedThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultParseTimeout
	}
	return &CompositeParser{cfg: cfg}
}

// Parse attempts the accelerated strategy when the document is large
// enough, falling back transparently to the interpreted strategy on any
// failure, including timeouts.
func (p *CompositeParser) Parse(ctx context.Context, source string) (*Model, error) {
	if p.cfg.Accelerated != nil && len(source) >= p.cfg.AcceleratedThreshold {
		start := time.Now()
		model, err := p.run(ctx, p.cfg.Accelerated, source)
		if err == nil {
			p.cfg.Logger.Debug().
				Dur("duration", time.Since(start)).
				Int("lanes", len(model.Lanes)).
				Msg("accelerated parse succeeded")
			return model, nil
		}
		p.cfg.Logger.Warn().Err(err).Msg("accelerated parse failed, falling back to interpreted")
	}

	return p.run(ctx, p.cfg.Interpreted, source)
}

type parseResult struct {
	model *Model
	err   error
}

// run executes one strategy, offloaded to a goroutine with a hard timeout
// when offloading is enabled. The result channel is buffered so the
// worker goroutine always completes and releases its resources even after
// a timeout abandons the attempt.
func (p *CompositeParser) run(ctx context.Context, parser Parser, source string) (*Model, error) {
	if !p.cfg.Offload {
		return parser.Parse(ctx, source)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	done := make(chan parseResult, 1)
	go func() {
		model, err := parser.Parse(ctx, source)
		done <- parseResult{model: model, err: err}
	}()

	select {
	case res := <-done:
		return res.model, res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrParseTimeout
		}
		return nil, ctx.Err()
	}
}
