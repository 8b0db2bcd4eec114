package framework

import (
	"cmp"
	"slices"
	"weak"

	"github.com/san-kum/blocksim/internal/value"
)

// Connection is one recorded wire inside a diagram.
type Connection struct {
	From OutputPortLocator
	To   InputPortLocator
}

// Diagram is a system composed of registered children. Its ports are
// indirections to ports of those children.
type Diagram struct {
	SystemBase
	systems      []System
	systemIndex  map[SystemID]SubsystemIndex
	connections  map[InputPortLocator]OutputPortLocator
	inputExports map[InputPortLocator]InputPortIndex
	exportedIn   [][]InputPortLocator
}

// NewDiagram instantiates bp. Each child gets a SubsystemIndex equal to its
// registration position, and the diagram becomes its owner.
func NewDiagram(bp *DiagramBlueprint) *Diagram {
	d := &Diagram{
		systems:      bp.systems,
		systemIndex:  make(map[SystemID]SubsystemIndex, len(bp.systems)),
		connections:  bp.connections,
		inputExports: make(map[InputPortLocator]InputPortIndex),
	}
	d.init(bp.name)
	d.diagram = true

	for i, sys := range d.systems {
		sb := sys.base()
		if sb.owned {
			fail("new diagram", bp.name, ErrAlreadyOwned, "subsystem %q", sys.Name())
		}
		sb.parent = weak.Make(d)
		sb.owned = true
		sb.frozen = true
		d.systemIndex[sb.id] = SubsystemIndex(i)
		d.sizes = d.sizes.Add(sys.ContextSizes())
	}

	for _, in := range bp.inputs {
		first := in.ports[0]
		child := d.systemAt(first.System)
		cp := child.InputPort(first.Index)
		var model value.AbstractValue
		if cp.DataType() == AbstractValued {
			model = child.base().allocateInputAbstract(cp.Index())
		}
		p := d.addInputPort(in.name, cp.DataType(), cp.Size(), model)
		for _, loc := range in.ports {
			d.inputExports[loc] = p.index
		}
		d.exportedIn = append(d.exportedIn, in.ports)
	}

	memo := make(map[OutputPortLocator][]InputPortIndex)
	for _, out := range bp.outputs {
		sub := d.systemIndex[out.port.System]
		child := d.systems[sub]
		cp := child.OutputPort(out.port.Index)
		d.addOutputPort(&DiagramOutputPort{
			outputPortBase: outputPortBase{
				name:     out.name,
				index:    OutputPortIndex(len(d.outputPorts)),
				dataType: cp.DataType(),
				size:     cp.Size(),
				systemID: d.id,
			},
			child:       weak.Make(child.base()),
			subsystem:   sub,
			childPort:   cp.Index(),
			feedthrough: d.feedthroughInputs(out.port, memo),
		})
	}

	bp.logger.Debug("built diagram",
		"diagram", d.name,
		"subsystems", len(d.systems),
		"connections", len(d.connections),
		"inputs", len(d.inputPorts),
		"outputs", len(d.outputPorts),
		"states", d.sizes.Total())
	return d
}

func (d *Diagram) NumSubsystems() int { return len(d.systems) }

func (d *Diagram) Subsystem(i SubsystemIndex) System {
	if i < 0 || int(i) >= len(d.systems) {
		fail("subsystem", d.name, ErrIndexOutOfRange, "index %d, have %d", i, len(d.systems))
	}
	return d.systems[i]
}

func (d *Diagram) Subsystems() []System {
	return slices.Clone(d.systems)
}

// SubsystemIndexOf returns the registration position of sys.
func (d *Diagram) SubsystemIndexOf(sys System) SubsystemIndex {
	idx, ok := d.systemIndex[sys.SystemID()]
	if !ok {
		fail("subsystem index", d.name, ErrNotRegistered, "%q", sys.Name())
	}
	return idx
}

// SubsystemContext returns the child context of sys within ctx.
func (d *Diagram) SubsystemContext(ctx Context, sys System) Context {
	return d.diagramContext("subsystem context", ctx).GetContext(d.SubsystemIndexOf(sys))
}

// Connections returns the wires ordered by destination.
func (d *Diagram) Connections() []Connection {
	conns := make([]Connection, 0, len(d.connections))
	for to, from := range d.connections {
		conns = append(conns, Connection{From: from, To: to})
	}
	slices.SortFunc(conns, func(a, b Connection) int {
		ai, bi := d.systemIndex[a.To.System], d.systemIndex[b.To.System]
		if c := cmp.Compare(ai, bi); c != 0 {
			return c
		}
		return cmp.Compare(a.To.Index, b.To.Index)
	})
	return conns
}

// ExportedInputs returns the child inputs fed by diagram input i.
func (d *Diagram) ExportedInputs(i InputPortIndex) []InputPortLocator {
	d.InputPort(i)
	return slices.Clone(d.exportedIn[i])
}

// SubsystemByID returns the child with the given id.
func (d *Diagram) SubsystemByID(id SystemID) (System, bool) {
	idx, ok := d.systemIndex[id]
	if !ok {
		return nil, false
	}
	return d.systems[idx], true
}

func (d *Diagram) AllocateContext() Context {
	ctx := &DiagramContext{contexts: make([]Context, len(d.systems))}
	d.initContext(&ctx.ContextBase)
	subs := make([]*ContinuousState, len(d.systems))
	for i, sys := range d.systems {
		sub := sys.AllocateContext()
		sub.base().setParent(ctx)
		ctx.contexts[i] = sub
		subs[i] = sub.ContinuousState()
	}
	ctx.state = newDiagramContinuousState(subs)
	ctx.initialized = true
	return ctx
}

func (d *Diagram) CreateDefaultContext() Context {
	ctx := d.AllocateContext()
	d.SetDefaultState(ctx)
	return ctx
}

// SetDefaultState asks every child, in registration order, to initialize
// its own subcontext.
func (d *Diagram) SetDefaultState(ctx Context) {
	dctx := d.diagramContext("set default state", ctx)
	for i, sys := range d.systems {
		sys.SetDefaultState(dctx.contexts[i])
	}
}

func (d *Diagram) AllocateTimeDerivatives() *ContinuousState {
	subs := make([]*ContinuousState, len(d.systems))
	for i, sys := range d.systems {
		subs[i] = sys.AllocateTimeDerivatives()
	}
	return newDiagramContinuousState(subs)
}

func (d *Diagram) CalcTimeDerivatives(ctx Context, derivs *ContinuousState) {
	dctx := d.diagramContext("calc derivatives", ctx)
	if derivs.NumSubstates() != len(d.systems) {
		fail("calc derivatives", d.name, ErrSizeMismatch, "derivatives have %d substates, want %d",
			derivs.NumSubstates(), len(d.systems))
	}
	for i, sys := range d.systems {
		sys.CalcTimeDerivatives(dctx.contexts[i], derivs.Substate(SubsystemIndex(i)))
	}
}

// evalConnectedSubsystemInputPort resolves a child's input: a diagram
// input it was exported to, then a sibling output it was wired to. It
// returns nil when the input is neither.
func (d *Diagram) evalConnectedSubsystemInputPort(dctx *DiagramContext, loc InputPortLocator) value.AbstractValue {
	d.validateContext("eval connected input", dctx)
	if idx, ok := d.inputExports[loc]; ok {
		return d.evalAbstractInput(dctx, idx)
	}
	if src, ok := d.connections[loc]; ok {
		sub := d.systemIndex[src.System]
		return d.systems[sub].OutputPort(src.Index).EvalAbstract(dctx.contexts[sub])
	}
	return nil
}

// feedthroughInputs returns the diagram inputs, ascending, that reach the
// child output at loc through direct-feedthrough paths.
func (d *Diagram) feedthroughInputs(loc OutputPortLocator, memo map[OutputPortLocator][]InputPortIndex) []InputPortIndex {
	if v, ok := memo[loc]; ok {
		return v
	}
	memo[loc] = nil
	child := d.systemAt(loc.System)
	var result []InputPortIndex
	for _, i := range child.OutputPort(loc.Index).FeedthroughInputs() {
		in := InputPortLocator{System: loc.System, Index: i}
		if idx, ok := d.inputExports[in]; ok {
			result = append(result, idx)
		}
		if src, ok := d.connections[in]; ok {
			result = append(result, d.feedthroughInputs(src, memo)...)
		}
	}
	slices.Sort(result)
	result = slices.Compact(result)
	memo[loc] = result
	return result
}

func (d *Diagram) systemAt(id SystemID) System {
	idx, ok := d.systemIndex[id]
	if !ok {
		fail("diagram", d.name, ErrNotRegistered, "system %d", id)
	}
	return d.systems[idx]
}

func (d *Diagram) diagramContext(op string, ctx Context) *DiagramContext {
	d.validateContext(op, ctx)
	dctx, ok := ctx.(*DiagramContext)
	if !ok {
		fail(op, d.name, ErrSystemKind, "want *DiagramContext, got %T", ctx)
	}
	return dctx
}
