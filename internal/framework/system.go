package framework

import (
	"weak"

	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

// System is the shape of a computational block together with the
// operations that allocate and drive its contexts. Implementations embed
// [*LeafSystem] or are a [*Diagram].
type System interface {
	Name() string
	SystemID() SystemID

	NumInputPorts() int
	InputPort(i InputPortIndex) *InputPort
	InputPortByName(name string) (*InputPort, bool)
	NumOutputPorts() int
	OutputPort(i OutputPortIndex) OutputPort
	OutputPortByName(name string) (OutputPort, bool)
	NumCacheEntries() int

	ContextSizes() ContextSizes
	NumContinuousStates() int

	AllocateContext() Context
	CreateDefaultContext() Context
	SetDefaultState(ctx Context)
	ValidateContext(ctx Context)
	AllocateTimeDerivatives() *ContinuousState
	CalcTimeDerivatives(ctx Context, derivs *ContinuousState)

	// Parent returns the owning diagram, or nil if the system is a root.
	Parent() *Diagram

	base() *SystemBase
}

// SystemBase holds the declarations common to leaf systems and diagrams.
type SystemBase struct {
	name         string
	id           SystemID
	inputPorts   []*InputPort
	outputPorts  []OutputPort
	cacheEntries []*CacheEntry
	sizes        ContextSizes
	// nil entries mean a zero vector of the port's size.
	modelInputs []value.AbstractValue

	parent     weak.Pointer[Diagram]
	owned      bool
	registered bool
	frozen     bool
	diagram    bool
}

func (s *SystemBase) init(name string) {
	s.name = name
	s.id = newSystemID()
}

func (s *SystemBase) Name() string       { return s.name }
func (s *SystemBase) SystemID() SystemID { return s.id }

func (s *SystemBase) NumInputPorts() int   { return len(s.inputPorts) }
func (s *SystemBase) NumOutputPorts() int  { return len(s.outputPorts) }
func (s *SystemBase) NumCacheEntries() int { return len(s.cacheEntries) }

func (s *SystemBase) InputPort(i InputPortIndex) *InputPort {
	if i < 0 || int(i) >= len(s.inputPorts) {
		fail("input port", s.name, ErrIndexOutOfRange, "index %d, have %d", i, len(s.inputPorts))
	}
	return s.inputPorts[i]
}

func (s *SystemBase) OutputPort(i OutputPortIndex) OutputPort {
	if i < 0 || int(i) >= len(s.outputPorts) {
		fail("output port", s.name, ErrIndexOutOfRange, "index %d, have %d", i, len(s.outputPorts))
	}
	return s.outputPorts[i]
}

func (s *SystemBase) InputPortByName(name string) (*InputPort, bool) {
	for _, p := range s.inputPorts {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

func (s *SystemBase) OutputPortByName(name string) (OutputPort, bool) {
	for _, p := range s.outputPorts {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

func (s *SystemBase) CacheEntry(i CacheIndex) *CacheEntry {
	if i < 0 || int(i) >= len(s.cacheEntries) {
		fail("cache entry", s.name, ErrIndexOutOfRange, "index %d, have %d", i, len(s.cacheEntries))
	}
	return s.cacheEntries[i]
}

func (s *SystemBase) ContextSizes() ContextSizes { return s.sizes }
func (s *SystemBase) NumContinuousStates() int   { return s.sizes.Total() }

func (s *SystemBase) Parent() *Diagram {
	if !s.owned {
		return nil
	}
	d := s.parent.Value()
	if d == nil {
		fail("parent", s.name, ErrOwnerReleased, "")
	}
	return d
}

func (s *SystemBase) base() *SystemBase { return s }

func (s *SystemBase) mustBeMutable(op string) {
	if s.frozen {
		fail(op, s.name, ErrShapeFrozen, "declarations must precede context allocation")
	}
}

// ValidateContext panics with [ErrSystemMismatch] unless ctx was allocated
// by this system.
func (s *SystemBase) ValidateContext(ctx Context) {
	s.validateContext("validate context", ctx)
}

func (s *SystemBase) validateContext(op string, ctx Context) {
	if ctx == nil {
		fail(op, s.name, ErrSystemMismatch, "nil context")
	}
	if ctx.SystemID() != s.id {
		fail(op, s.name, ErrSystemMismatch, "context of system %d passed to system %d", ctx.SystemID(), s.id)
	}
}

func (s *SystemBase) addInputPort(name string, dataType PortDataType, size int, model value.AbstractValue) *InputPort {
	if _, dup := s.InputPortByName(name); dup {
		fail("declare input", s.name, ErrDuplicateName, "input port %q", name)
	}
	p := &InputPort{
		name:     name,
		index:    InputPortIndex(len(s.inputPorts)),
		dataType: dataType,
		size:     size,
		systemID: s.id,
		system:   weak.Make(s),
	}
	s.inputPorts = append(s.inputPorts, p)
	s.modelInputs = append(s.modelInputs, model)
	return p
}

func (s *SystemBase) addOutputPort(p OutputPort) {
	if _, dup := s.OutputPortByName(p.Name()); dup {
		fail("declare output", s.name, ErrDuplicateName, "output port %q", p.Name())
	}
	s.outputPorts = append(s.outputPorts, p)
}

// initContext prepares the parts of a context shared by every system kind.
func (s *SystemBase) initContext(c *ContextBase) {
	s.frozen = true
	c.systemID = s.id
	c.fixedInputs = make([]value.AbstractValue, len(s.inputPorts))
	c.cache = newCache(s.cacheEntries)
}

// allocateInputAbstract returns a fresh model value for input i.
func (s *SystemBase) allocateInputAbstract(i InputPortIndex) value.AbstractValue {
	p := s.InputPort(i)
	if m := s.modelInputs[i]; m != nil {
		return m.Clone()
	}
	if p.dataType != VectorValued {
		fail("allocate input", s.name, ErrDataTypeMismatch, "abstract input %q has no model value", p.name)
	}
	return value.New(vector.Zeros(p.size))
}

// evalAbstractInput resolves input i in ctx: the fixed value if any,
// otherwise whatever the parent diagram has wired to it.
func (s *SystemBase) evalAbstractInput(ctx Context, i InputPortIndex) value.AbstractValue {
	s.validateContext("eval input", ctx)
	if fixed := ctx.FixedInputPortValue(i); fixed != nil {
		return fixed.Clone()
	}
	port := s.inputPorts[i]
	if !s.owned {
		fail("eval input", s.name, ErrUnresolvedInput, "%q", port.name)
	}
	parentCtx := ctx.Parent()
	if parentCtx == nil {
		fail("eval input", s.name, ErrUnresolvedInput, "%q: context has no parent", port.name)
	}
	v := s.Parent().evalConnectedSubsystemInputPort(parentCtx, port.Locator())
	if v == nil {
		fail("eval input", s.name, ErrUnresolvedInput, "%q", port.name)
	}
	return v
}
