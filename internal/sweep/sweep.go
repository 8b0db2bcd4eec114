package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/blocksim/internal/ctxlog"
	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

var (
	ErrConfig = errors.New("sweep: invalid config")
	ErrPort   = errors.New("sweep: port is not vector-valued")
	ErrEval   = errors.New("sweep: evaluation failed")
)

type Config struct {
	Start float64
	Stop  float64
	Dt    float64
}

// Steps is the number of samples the grid holds, both ends included.
func (c Config) Steps() int {
	return int(math.Floor((c.Stop-c.Start)/c.Dt+1e-9)) + 1
}

func (c Config) validate() error {
	if c.Dt <= 0 || math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrConfig, c.Dt)
	}
	if c.Stop < c.Start {
		return fmt.Errorf("%w: stop %g before start %g", ErrConfig, c.Stop, c.Start)
	}
	return nil
}

// Observer is notified of every sample as it is taken.
type Observer interface {
	OnSample(t float64, y vector.Vector)
}

type ObserverFunc func(t float64, y vector.Vector)

func (f ObserverFunc) OnSample(t float64, y vector.Vector) { f(t, y) }

type Result struct {
	Port    string
	Times   []float64
	Samples []vector.Vector
}

func (r *Result) Len() int { return len(r.Times) }

// Width is the size of each sample, or 0 for an empty result.
func (r *Result) Width() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

// Column returns element i of every sample.
func (r *Result) Column(i int) []float64 {
	col := make([]float64, len(r.Samples))
	for k, s := range r.Samples {
		col[k] = s[i]
	}
	return col
}

// Last returns the final sample, or nil.
func (r *Result) Last() vector.Vector {
	if len(r.Samples) == 0 {
		return nil
	}
	return r.Samples[len(r.Samples)-1]
}

// Run evaluates port on a time grid from cfg.Start to cfg.Stop. State is not
// advanced: at each time the context clock is set, its caches are marked out
// of date and the port is evaluated. On cancellation the samples taken so
// far are returned with the context error.
func Run(ctx context.Context, sys framework.System, sctx framework.Context, port framework.OutputPort, cfg Config, observers ...Observer) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if port.DataType() != framework.VectorValued {
		return nil, fmt.Errorf("%w: %s", ErrPort, port.Name())
	}
	if err := validate(sys, sctx); err != nil {
		return nil, err
	}

	steps := cfg.Steps()
	result := &Result{
		Port:    port.Name(),
		Times:   make([]float64, 0, steps),
		Samples: make([]vector.Vector, 0, steps),
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("sweep started", "system", sys.Name(), "port", port.Name(), "steps", steps)

	for i := range steps {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		t := cfg.Start + float64(i)*cfg.Dt
		y, err := sample(sctx, port, t)
		if err != nil {
			return result, err
		}
		result.Times = append(result.Times, t)
		result.Samples = append(result.Samples, y)
		for _, obs := range observers {
			obs.OnSample(t, y)
		}
	}

	logger.Debug("sweep finished", "system", sys.Name(), "samples", result.Len())
	return result, nil
}

func sample(sctx framework.Context, port framework.OutputPort, t float64) (y vector.Vector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("t=%g: %w", t, recovered(r))
		}
	}()
	sctx.SetTime(t)
	sctx.MarkCachesOutOfDate()
	return framework.Eval[vector.Vector](port, sctx).Clone(), nil
}

func validate(sys framework.System, sctx framework.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	sys.ValidateContext(sctx)
	return nil
}

func recovered(r any) error {
	if e, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrEval, e)
	}
	return fmt.Errorf("%w: %v", ErrEval, r)
}
