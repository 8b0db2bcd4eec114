package framework

import (
	"fmt"
	"slices"
	"weak"

	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

// InputPort is a named input of a system. It never computes a value
// itself: evaluation returns the value fixed in the context or asks the
// parent diagram to resolve the connection.
type InputPort struct {
	name     string
	index    InputPortIndex
	dataType PortDataType
	size     int
	systemID SystemID
	system   weak.Pointer[SystemBase]
}

func (p *InputPort) Name() string           { return p.name }
func (p *InputPort) Index() InputPortIndex  { return p.index }
func (p *InputPort) DataType() PortDataType { return p.dataType }
func (p *InputPort) SystemID() SystemID     { return p.systemID }

// Size is the vector width, or 0 for abstract ports.
func (p *InputPort) Size() int { return p.size }

func (p *InputPort) Locator() InputPortLocator {
	return InputPortLocator{System: p.systemID, Index: p.index}
}

func (p *InputPort) owner() *SystemBase {
	s := p.system.Value()
	if s == nil {
		fail("input port", p.name, ErrOwnerReleased, "system %d", p.systemID)
	}
	return s
}

// Allocate returns a fresh model value of the port's type.
func (p *InputPort) Allocate() value.AbstractValue {
	return p.owner().allocateInputAbstract(p.index)
}

func (p *InputPort) EvalAbstract(ctx Context) value.AbstractValue {
	return p.owner().evalAbstractInput(ctx, p.index)
}

func (p *InputPort) EvalVector(ctx Context) vector.Vector {
	return value.Get[vector.Vector](p.EvalAbstract(ctx))
}

// FixValue stores a copy of v in ctx. Later evaluations of this port in
// ctx return it without consulting any enclosing diagram.
func (p *InputPort) FixValue(ctx Context, v value.AbstractValue) {
	sys := p.owner()
	sys.validateContext("fix input", ctx)
	model := sys.allocateInputAbstract(p.index)
	if !value.SameType(model, v) {
		panic(&Error{Op: "fix input", System: sys.name, Err: fmt.Errorf("%w: port %q wants %v, got %v",
			value.ErrTypeMismatch, p.name, model.TypeTag(), v.TypeTag())})
	}
	if p.dataType == VectorValued {
		if n := len(value.Get[vector.Vector](v)); n != p.size {
			fail("fix input", sys.name, ErrSizeMismatch, "port %q wants %d elements, got %d", p.name, p.size, n)
		}
	}
	ctx.FixInputPort(p.index, v.Clone())
}

func (p *InputPort) FixVector(ctx Context, v vector.Vector) {
	p.FixValue(ctx, value.New(v))
}

func (p *InputPort) String() string {
	return fmt.Sprintf("input %d %q (%s, %d)", p.index, p.name, p.dataType, p.size)
}

// FixInput wraps v and fixes it as the value of p in ctx.
func FixInput[T any](p *InputPort, ctx Context, v T) {
	p.FixValue(ctx, value.New(v))
}

// EvalInput evaluates p in ctx as a T.
func EvalInput[T any](p *InputPort, ctx Context) T {
	return value.Get[T](p.EvalAbstract(ctx))
}

// OutputPort is a named output of a system.
type OutputPort interface {
	Name() string
	Index() OutputPortIndex
	DataType() PortDataType
	Size() int
	SystemID() SystemID
	Locator() OutputPortLocator
	// HasDirectFeedthrough reports whether the value depends on the
	// system's inputs at the same instant.
	HasDirectFeedthrough() bool
	// FeedthroughInputs lists, in ascending order, the input ports the
	// value depends on at the same instant.
	FeedthroughInputs() []InputPortIndex

	Allocate() value.AbstractValue
	EvalAbstract(ctx Context) value.AbstractValue
	Calc(ctx Context, out value.AbstractValue)
}

// Eval evaluates p in ctx as a T.
func Eval[T any](p OutputPort, ctx Context) T {
	return value.Get[T](p.EvalAbstract(ctx))
}

type outputPortBase struct {
	name     string
	index    OutputPortIndex
	dataType PortDataType
	size     int
	systemID SystemID
}

func (p *outputPortBase) Name() string           { return p.name }
func (p *outputPortBase) Index() OutputPortIndex { return p.index }
func (p *outputPortBase) DataType() PortDataType { return p.dataType }
func (p *outputPortBase) Size() int              { return p.size }
func (p *outputPortBase) SystemID() SystemID     { return p.systemID }

func (p *outputPortBase) Locator() OutputPortLocator {
	return OutputPortLocator{System: p.systemID, Index: p.index}
}

// LeafOutputPort is backed by one cache entry of its leaf system.
type LeafOutputPort struct {
	outputPortBase
	cacheIndex      CacheIndex
	feedthrough     bool
	feedthroughFrom []InputPortIndex
	system          weak.Pointer[SystemBase]
}

func (p *LeafOutputPort) CacheIndex() CacheIndex     { return p.cacheIndex }
func (p *LeafOutputPort) HasDirectFeedthrough() bool { return p.feedthrough }

// FeedthroughInputs returns every input of the system unless the port was
// declared [WithFeedthroughFrom] or [WithoutFeedthrough].
func (p *LeafOutputPort) FeedthroughInputs() []InputPortIndex {
	if !p.feedthrough {
		return nil
	}
	if p.feedthroughFrom != nil {
		return slices.Clone(p.feedthroughFrom)
	}
	s, _ := p.entry()
	all := make([]InputPortIndex, len(s.inputPorts))
	for i := range all {
		all[i] = InputPortIndex(i)
	}
	return all
}

func (p *LeafOutputPort) entry() (*SystemBase, *CacheEntry) {
	s := p.system.Value()
	if s == nil {
		fail("output port", p.name, ErrOwnerReleased, "system %d", p.systemID)
	}
	return s, s.cacheEntries[p.cacheIndex]
}

func (p *LeafOutputPort) Allocate() value.AbstractValue {
	_, e := p.entry()
	return e.Allocate()
}

func (p *LeafOutputPort) EvalAbstract(ctx Context) value.AbstractValue {
	s, e := p.entry()
	s.validateContext("eval output", ctx)
	return e.EvalAbstract(ctx)
}

func (p *LeafOutputPort) Calc(ctx Context, out value.AbstractValue) {
	s, e := p.entry()
	s.validateContext("calc output", ctx)
	e.Calc(ctx, out)
}

// DiagramOutputPort forwards to an output port of one of the diagram's
// children, evaluated against that child's subcontext.
type DiagramOutputPort struct {
	outputPortBase
	child       weak.Pointer[SystemBase]
	subsystem   SubsystemIndex
	childPort   OutputPortIndex
	feedthrough []InputPortIndex
}

func (p *DiagramOutputPort) Subsystem() SubsystemIndex       { return p.subsystem }
func (p *DiagramOutputPort) ChildPortIndex() OutputPortIndex { return p.childPort }
func (p *DiagramOutputPort) HasDirectFeedthrough() bool      { return len(p.feedthrough) > 0 }

// FeedthroughInputs lists the diagram inputs that reach the forwarded
// child output through direct-feedthrough paths.
func (p *DiagramOutputPort) FeedthroughInputs() []InputPortIndex {
	return slices.Clone(p.feedthrough)
}

func (p *DiagramOutputPort) source() OutputPort {
	c := p.child.Value()
	if c == nil {
		fail("diagram output", p.name, ErrOwnerReleased, "subsystem %d", p.subsystem)
	}
	return c.outputPorts[p.childPort]
}

func (p *DiagramOutputPort) subcontext(op string, ctx Context) Context {
	if ctx == nil || ctx.SystemID() != p.systemID {
		fail(op, p.name, ErrSystemMismatch, "diagram output port of system %d", p.systemID)
	}
	dctx, ok := ctx.(*DiagramContext)
	if !ok {
		fail(op, p.name, ErrSystemKind, "want *DiagramContext, got %T", ctx)
	}
	return dctx.GetContext(p.subsystem)
}

func (p *DiagramOutputPort) Allocate() value.AbstractValue {
	return p.source().Allocate()
}

func (p *DiagramOutputPort) EvalAbstract(ctx Context) value.AbstractValue {
	return p.source().EvalAbstract(p.subcontext("eval output", ctx))
}

func (p *DiagramOutputPort) Calc(ctx Context, out value.AbstractValue) {
	p.source().Calc(p.subcontext("calc output", ctx), out)
}
