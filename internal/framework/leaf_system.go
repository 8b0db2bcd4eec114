package framework

import (
	"slices"
	"weak"

	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

// VectorCalc computes a vector output into out, whose length is the port width.
type VectorCalc func(ctx *LeafContext, out vector.Vector)

// AbstractCalc computes an abstract output into out.
type AbstractCalc func(ctx *LeafContext, out value.AbstractValue)

// DerivativesFunc computes the time derivatives of the continuous state.
type DerivativesFunc func(ctx *LeafContext, derivs *ContinuousState)

// OutputOption configures a declared output port.
type OutputOption func(*LeafOutputPort)

// WithoutFeedthrough marks an output that does not depend on the inputs at
// the same instant, such as one that only reads continuous state.
func WithoutFeedthrough() OutputOption {
	return func(p *LeafOutputPort) { p.feedthrough = false }
}

// WithFeedthroughFrom limits direct feedthrough to the listed inputs, which
// must already be declared. With no inputs it is [WithoutFeedthrough].
func WithFeedthroughFrom(inputs ...InputPortIndex) OutputOption {
	return func(p *LeafOutputPort) {
		from := slices.Clone(inputs)
		slices.Sort(from)
		p.feedthrough = len(from) > 0
		p.feedthroughFrom = slices.Compact(from)
		if p.feedthroughFrom == nil {
			p.feedthroughFrom = []InputPortIndex{}
		}
	}
}

// LeafSystem computes its outputs and derivatives through callbacks
// declared while the system is constructed. Client blocks embed it:
//
//	type Gain struct {
//		*framework.LeafSystem
//		k float64
//	}
type LeafSystem struct {
	SystemBase
	modelState  vector.Vector
	derivatives DerivativesFunc
}

func NewLeafSystem(name string) *LeafSystem {
	s := &LeafSystem{}
	s.init(name)
	return s
}

func (s *LeafSystem) DeclareVectorInputPort(name string, width int) *InputPort {
	s.mustBeMutable("declare input")
	if width < 0 {
		fail("declare input", s.name, ErrSizeMismatch, "negative width %d", width)
	}
	return s.addInputPort(name, VectorValued, width, nil)
}

// DeclareAbstractInputPort declares an input whose values must have the
// same concrete type as model.
func (s *LeafSystem) DeclareAbstractInputPort(name string, model value.AbstractValue) *InputPort {
	s.mustBeMutable("declare input")
	if model == nil {
		fail("declare input", s.name, ErrDataTypeMismatch, "abstract input %q needs a model value", name)
	}
	return s.addInputPort(name, AbstractValued, 0, model.Clone())
}

// DeclareCacheEntry adds a cache entry and returns its index.
func (s *LeafSystem) DeclareCacheEntry(description string, alloc AllocFunc, calc AbstractCalc) CacheIndex {
	s.mustBeMutable("declare cache entry")
	e := &CacheEntry{
		index:       CacheIndex(len(s.cacheEntries)),
		description: description,
		alloc:       alloc,
		calc: func(ctx Context, out value.AbstractValue) {
			calc(s.leafContext("calc", ctx), out)
		},
	}
	s.cacheEntries = append(s.cacheEntries, e)
	return e.index
}

func (s *LeafSystem) DeclareVectorCacheEntry(description string, width int, calc VectorCalc) CacheIndex {
	return s.DeclareCacheEntry(description,
		func() value.AbstractValue { return value.New(vector.Zeros(width)) },
		func(ctx *LeafContext, out value.AbstractValue) { calc(ctx, value.Get[vector.Vector](out)) },
	)
}

// DeclareVectorOutputPort adds an output of the given width backed by a new
// cache entry. Outputs have direct feedthrough unless [WithoutFeedthrough]
// is passed.
func (s *LeafSystem) DeclareVectorOutputPort(name string, width int, calc VectorCalc, opts ...OutputOption) *LeafOutputPort {
	if width < 0 {
		fail("declare output", s.name, ErrSizeMismatch, "negative width %d", width)
	}
	idx := s.DeclareVectorCacheEntry("output "+name, width, calc)
	return s.declareOutput(name, VectorValued, width, idx, opts)
}

func (s *LeafSystem) DeclareAbstractOutputPort(name string, alloc AllocFunc, calc AbstractCalc, opts ...OutputOption) *LeafOutputPort {
	idx := s.DeclareCacheEntry("output "+name, alloc, calc)
	return s.declareOutput(name, AbstractValued, 0, idx, opts)
}

func (s *LeafSystem) declareOutput(name string, dataType PortDataType, size int, idx CacheIndex, opts []OutputOption) *LeafOutputPort {
	p := &LeafOutputPort{
		outputPortBase: outputPortBase{
			name:     name,
			index:    OutputPortIndex(len(s.outputPorts)),
			dataType: dataType,
			size:     size,
			systemID: s.id,
		},
		cacheIndex:  idx,
		feedthrough: true,
		system:      weak.Make(&s.SystemBase),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, i := range p.feedthroughFrom {
		if i < 0 || int(i) >= len(s.inputPorts) {
			fail("declare output", s.name, ErrIndexOutOfRange, "output %q feeds through from input %d, have %d",
				name, i, len(s.inputPorts))
		}
	}
	s.addOutputPort(p)
	return p
}

// DeclareContinuousState fixes the state partition with a zero model state.
func (s *LeafSystem) DeclareContinuousState(numQ, numV, numZ int) {
	s.DeclareContinuousStateFrom(vector.Zeros(numQ+numV+numZ), numQ, numV, numZ)
}

// DeclareContinuousStateFrom fixes the state partition and the model state
// written by SetDefaultState.
func (s *LeafSystem) DeclareContinuousStateFrom(model vector.Vector, numQ, numV, numZ int) {
	s.mustBeMutable("declare state")
	cs := NewContinuousState(model.Clone(), numQ, numV, numZ)
	s.sizes = cs.sizes
	s.modelState = cs.vec
}

func (s *LeafSystem) DeclareTimeDerivatives(fn DerivativesFunc) {
	s.mustBeMutable("declare derivatives")
	s.derivatives = fn
}

func (s *LeafSystem) AllocateContext() Context {
	ctx := &LeafContext{}
	s.initContext(&ctx.ContextBase)
	ctx.state = NewContinuousState(vector.Zeros(s.sizes.Total()),
		s.sizes.NumPositions, s.sizes.NumVelocities, s.sizes.NumMisc)
	ctx.initialized = true
	return ctx
}

func (s *LeafSystem) CreateDefaultContext() Context {
	ctx := s.AllocateContext()
	s.SetDefaultState(ctx)
	return ctx
}

// SetDefaultState writes the model state into ctx.
func (s *LeafSystem) SetDefaultState(ctx Context) {
	s.validateContext("set default state", ctx)
	if s.modelState != nil {
		ctx.ContinuousState().SetFromVector(s.modelState)
	}
}

func (s *LeafSystem) AllocateTimeDerivatives() *ContinuousState {
	return NewContinuousState(vector.Zeros(s.sizes.Total()),
		s.sizes.NumPositions, s.sizes.NumVelocities, s.sizes.NumMisc)
}

func (s *LeafSystem) CalcTimeDerivatives(ctx Context, derivs *ContinuousState) {
	lctx := s.leafContext("calc derivatives", ctx)
	if derivs.Len() != s.sizes.Total() {
		fail("calc derivatives", s.name, ErrSizeMismatch, "derivatives have %d elements, want %d", derivs.Len(), s.sizes.Total())
	}
	if s.derivatives == nil {
		if derivs.Len() != 0 {
			fail("calc derivatives", s.name, ErrSizeMismatch, "stateful system declared no derivatives")
		}
		return
	}
	s.derivatives(lctx, derivs)
}

// EvalCache evaluates cache entry i of sys in ctx as a T.
func EvalCache[T any](sys System, ctx Context, i CacheIndex) T {
	b := sys.base()
	b.validateContext("eval cache", ctx)
	return value.Get[T](b.CacheEntry(i).EvalAbstract(ctx))
}

func (s *LeafSystem) leafContext(op string, ctx Context) *LeafContext {
	s.validateContext(op, ctx)
	lctx, ok := ctx.(*LeafContext)
	if !ok {
		fail(op, s.name, ErrSystemKind, "want *LeafContext, got %T", ctx)
	}
	return lctx
}
