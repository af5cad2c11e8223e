package network

import (
	"context"
	"fmt"
	"plugin"
	"sync"

	"github.com/rs/zerolog"
)

// ParseFunc is the symbol signature an accelerated parser plugin must
// export under the name "ParseNetwork".
type ParseFunc func(source string) (*Model, error)

// AcceleratedParser loads a precompiled parsing module (a Go plugin built
// for this host) and delegates parsing to it. Any failure to load or run
// the module is reported as ErrAccelerationUnavailable so the composite
// parser can fall back; the failure never propagates past the composite.
type AcceleratedParser struct {
	path   string
	logger zerolog.Logger

	once    sync.Once
	parseFn ParseFunc
	loadErr error
}

// NewAcceleratedParser creates a parser backed by the plugin at path.
// The module is loaded lazily on first use.
func NewAcceleratedParser(path string, logger zerolog.Logger) *AcceleratedParser {
	return &AcceleratedParser{path: path, logger: logger}
}

// Parse runs the accelerated module against the source text. Panics inside
// the module are recovered and reported as load failures.
func (p *AcceleratedParser) Parse(_ context.Context, source string) (model *Model, err error) {
	p.once.Do(p.load)
	if p.loadErr != nil {
		return nil, p.loadErr
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn().Interface("panic", r).Msg("accelerated parser panicked")
			model = nil
			err = fmt.Errorf("%w: panic during parse: %v", ErrAccelerationUnavailable, r)
		}
	}()

	model, err = p.parseFn(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccelerationUnavailable, err)
	}
	if model == nil || len(model.Lanes) == 0 {
		return nil, fmt.Errorf("%w: module returned no geometry", ErrAccelerationUnavailable)
	}
	return model, nil
}

func (p *AcceleratedParser) load() {
	if p.path == "" {
		p.loadErr = fmt.Errorf("%w: no module path configured", ErrAccelerationUnavailable)
		return
	}

	plug, err := plugin.Open(p.path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("accelerated parser module failed to load")
		p.loadErr = fmt.Errorf("%w: %v", ErrAccelerationUnavailable, err)
		return
	}

	sym, err := plug.Lookup("ParseNetwork")
	if err != nil {
		p.loadErr = fmt.Errorf("%w: %v", ErrAccelerationUnavailable, err)
		return
	}

	fn, ok := sym.(func(string) (*Model, error))
	if !ok {
		p.loadErr = fmt.Errorf("%w: ParseNetwork has wrong signature", ErrAccelerationUnavailable)
		return
	}

	p.parseFn = fn
	p.logger.Info().Str("path", p.path).Msg("accelerated parser module loaded")
}
