package framework

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/san-kum/blocksim/internal/value"
)

type exportedInput struct {
	name  string
	ports []InputPortLocator
}

type exportedOutput struct {
	name string
	port OutputPortLocator
}

// BuilderOption configures a [DiagramBuilder].
type BuilderOption func(*DiagramBuilder)

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *DiagramBuilder) { b.logger = l }
}

// DiagramBuilder records subsystems, connections and exported ports. It is
// single use: after [DiagramBuilder.Compile] or [DiagramBuilder.Build]
// every further call panics with [ErrAlreadyBuilt].
type DiagramBuilder struct {
	name   string
	logger *slog.Logger

	systems     []System
	index       map[SystemID]SubsystemIndex
	names       map[string]bool
	connections map[InputPortLocator]OutputPortLocator

	inputs      []exportedInput
	inputNames  map[string]InputPortIndex
	exported    map[InputPortLocator]InputPortIndex
	outputs     []exportedOutput
	outputNames map[string]bool

	built bool
}

func NewDiagramBuilder(name string, opts ...BuilderOption) *DiagramBuilder {
	b := &DiagramBuilder{
		name:        name,
		logger:      slog.New(slog.DiscardHandler),
		index:       make(map[SystemID]SubsystemIndex),
		names:       make(map[string]bool),
		connections: make(map[InputPortLocator]OutputPortLocator),
		inputNames:  make(map[string]InputPortIndex),
		exported:    make(map[InputPortLocator]InputPortIndex),
		outputNames: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *DiagramBuilder) NumSystems() int { return len(b.systems) }

func (b *DiagramBuilder) IsBuilt() bool { return b.built }

// AddLeafSystem registers a leaf system and returns its subsystem index.
func (b *DiagramBuilder) AddLeafSystem(sys System) SubsystemIndex {
	if sys.base().diagram {
		fail("add leaf system", sys.Name(), ErrSystemKind, "use AddDiagram for diagrams")
	}
	return b.add("add leaf system", sys)
}

// AddDiagram registers a nested diagram and returns its subsystem index.
func (b *DiagramBuilder) AddDiagram(d *Diagram) SubsystemIndex {
	return b.add("add diagram", d)
}

// Add registers sys as a leaf or nested diagram and returns it unchanged.
func Add[S System](b *DiagramBuilder, sys S) S {
	if d, ok := any(sys).(*Diagram); ok {
		b.AddDiagram(d)
	} else {
		b.AddLeafSystem(sys)
	}
	return sys
}

func (b *DiagramBuilder) add(op string, sys System) SubsystemIndex {
	b.mustBeBuilding(op)
	sb := sys.base()
	if sb.registered || sb.owned {
		fail(op, sys.Name(), ErrAlreadyOwned, "")
	}
	if b.names[sys.Name()] {
		fail(op, sys.Name(), ErrDuplicateName, "subsystem name already used in %q", b.name)
	}
	sb.registered = true
	idx := SubsystemIndex(len(b.systems))
	b.systems = append(b.systems, sys)
	b.index[sys.SystemID()] = idx
	b.names[sys.Name()] = true
	b.logger.Debug("registered subsystem", "diagram", b.name, "system", sys.Name(), "index", int(idx))
	return idx
}

// Connect wires out to in. The ports must agree on data type and width;
// abstract ports must also carry the same concrete type.
func (b *DiagramBuilder) Connect(out OutputPort, in *InputPort) {
	b.mustBeBuilding("connect")
	src := b.system("connect", out.SystemID())
	dst := b.system("connect", in.SystemID())
	label := portLabel(src, out.Name()) + " -> " + portLabel(dst, in.Name())

	if _, ok := b.connections[in.Locator()]; ok {
		fail("connect", b.name, ErrAlreadyConnected, "%s", label)
	}
	if _, ok := b.exported[in.Locator()]; ok {
		fail("connect", b.name, ErrAlreadyConnected, "%s: input is exported", label)
	}
	if out.DataType() != in.DataType() {
		fail("connect", b.name, ErrDataTypeMismatch, "%s: %s output to %s input", label, out.DataType(), in.DataType())
	}
	switch out.DataType() {
	case VectorValued:
		if out.Size() != in.Size() {
			fail("connect", b.name, ErrSizeMismatch, "%s: width %d to width %d", label, out.Size(), in.Size())
		}
	case AbstractValued:
		produced := out.Allocate()
		wanted := dst.base().allocateInputAbstract(in.Index())
		if !value.SameType(produced, wanted) {
			panic(&Error{Op: "connect", System: b.name, Err: fmt.Errorf("%w: %s: %v to %v",
				value.ErrTypeMismatch, label, produced.TypeTag(), wanted.TypeTag())})
		}
	}
	b.connections[in.Locator()] = out.Locator()
	b.logger.Debug("connected ports", "diagram", b.name, "from", portLabel(src, out.Name()), "to", portLabel(dst, in.Name()))
}

// ExportInput exposes in as a diagram input named name, defaulting to
// <system>_<port>. Exporting several inputs under one name fans a single
// diagram input out to all of them.
func (b *DiagramBuilder) ExportInput(in *InputPort, name string) InputPortIndex {
	b.mustBeBuilding("export input")
	sys := b.system("export input", in.SystemID())
	if name == "" {
		name = sys.Name() + "_" + in.Name()
	}
	loc := in.Locator()
	if _, ok := b.connections[loc]; ok {
		fail("export input", b.name, ErrAlreadyConnected, "%s is connected", portLabel(sys, in.Name()))
	}
	if _, ok := b.exported[loc]; ok {
		fail("export input", b.name, ErrAlreadyConnected, "%s is already exported", portLabel(sys, in.Name()))
	}

	idx, ok := b.inputNames[name]
	if ok {
		first := b.inputs[idx].ports[0]
		fp := b.system("export input", first.System).InputPort(first.Index)
		if fp.DataType() != in.DataType() || fp.Size() != in.Size() {
			fail("export input", b.name, ErrDataTypeMismatch, "input %q fans out to ports of different shape", name)
		}
		if in.DataType() == AbstractValued && !value.SameType(fp.Allocate(), in.Allocate()) {
			panic(&Error{Op: "export input", System: b.name, Err: fmt.Errorf("%w: input %q fans out to different types",
				value.ErrTypeMismatch, name)})
		}
		b.inputs[idx].ports = append(b.inputs[idx].ports, loc)
	} else {
		idx = InputPortIndex(len(b.inputs))
		b.inputs = append(b.inputs, exportedInput{name: name, ports: []InputPortLocator{loc}})
		b.inputNames[name] = idx
	}
	b.exported[loc] = idx
	b.logger.Debug("exported input", "diagram", b.name, "port", portLabel(sys, in.Name()), "as", name)
	return idx
}

// ExportOutput exposes out as a diagram output named name, defaulting to
// <system>_<port>.
func (b *DiagramBuilder) ExportOutput(out OutputPort, name string) OutputPortIndex {
	b.mustBeBuilding("export output")
	sys := b.system("export output", out.SystemID())
	if name == "" {
		name = sys.Name() + "_" + out.Name()
	}
	if b.outputNames[name] {
		fail("export output", b.name, ErrDuplicateName, "output %q", name)
	}
	idx := OutputPortIndex(len(b.outputs))
	b.outputs = append(b.outputs, exportedOutput{name: name, port: out.Locator()})
	b.outputNames[name] = true
	b.logger.Debug("exported output", "diagram", b.name, "port", portLabel(sys, out.Name()), "as", name)
	return idx
}

// Compile freezes the recorded topology. It rejects an empty builder and
// any algebraic loop.
func (b *DiagramBuilder) Compile() *DiagramBlueprint {
	b.mustBeBuilding("compile")
	if len(b.systems) == 0 {
		fail("compile", b.name, ErrEmptyDiagram, "")
	}
	if cycle := b.findAlgebraicLoop(); cycle != nil {
		fail("compile", b.name, ErrAlgebraicLoop, "%s", strings.Join(cycle, " -> "))
	}
	b.built = true

	bp := &DiagramBlueprint{
		name:        b.name,
		logger:      b.logger,
		systems:     append([]System(nil), b.systems...),
		connections: make(map[InputPortLocator]OutputPortLocator, len(b.connections)),
		inputs:      make([]exportedInput, len(b.inputs)),
		outputs:     append([]exportedOutput(nil), b.outputs...),
	}
	for k, v := range b.connections {
		bp.connections[k] = v
	}
	for i, in := range b.inputs {
		bp.inputs[i] = exportedInput{name: in.name, ports: append([]InputPortLocator(nil), in.ports...)}
	}
	return bp
}

// Build compiles the builder and instantiates the diagram.
func (b *DiagramBuilder) Build() *Diagram {
	return NewDiagram(b.Compile())
}

func (b *DiagramBuilder) mustBeBuilding(op string) {
	if b.built {
		fail(op, b.name, ErrAlreadyBuilt, "")
	}
}

func (b *DiagramBuilder) system(op string, id SystemID) System {
	idx, ok := b.index[id]
	if !ok {
		fail(op, b.name, ErrNotRegistered, "system %d", id)
	}
	return b.systems[idx]
}

// findAlgebraicLoop returns the port path of a cycle that passes only
// through direct-feedthrough edges, or nil. An output only depends on the
// inputs it lists in FeedthroughInputs.
func (b *DiagramBuilder) findAlgebraicLoop() []string {
	type node = OutputPortLocator

	deps := func(n node) []node {
		sys := b.systems[b.index[n.System]]
		var out []node
		for _, i := range sys.OutputPort(n.Index).FeedthroughInputs() {
			if src, ok := b.connections[InputPortLocator{System: n.System, Index: i}]; ok {
				out = append(out, src)
			}
		}
		return out
	}
	label := func(n node) string {
		sys := b.systems[b.index[n.System]]
		return portLabel(sys, sys.OutputPort(n.Index).Name())
	}

	visiting := make(map[node]bool)
	visited := make(map[node]bool)
	var stack []node

	var visit func(n node) []string
	visit = func(n node) []string {
		visiting[n] = true
		stack = append(stack, n)
		for _, dep := range deps(n) {
			if visiting[dep] {
				var path []string
				for i := len(stack) - 1; i >= 0; i-- {
					path = append(path, label(stack[i]))
					if stack[i] == dep {
						break
					}
				}
				return append(path, label(n))
			}
			if !visited[dep] {
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		delete(visiting, n)
		visited[n] = true
		return nil
	}

	for _, sys := range b.systems {
		for i := range sys.NumOutputPorts() {
			n := node{System: sys.SystemID(), Index: OutputPortIndex(i)}
			if !visited[n] {
				if cycle := visit(n); cycle != nil {
					return cycle
				}
			}
		}
	}
	return nil
}

func portLabel(sys System, port string) string {
	return sys.Name() + "." + port
}

// DiagramBlueprint is the frozen result of compiling a builder.
type DiagramBlueprint struct {
	name        string
	logger      *slog.Logger
	systems     []System
	connections map[InputPortLocator]OutputPortLocator
	inputs      []exportedInput
	outputs     []exportedOutput
}

func (bp *DiagramBlueprint) Name() string        { return bp.name }
func (bp *DiagramBlueprint) NumSystems() int     { return len(bp.systems) }
func (bp *DiagramBlueprint) NumConnections() int { return len(bp.connections) }
func (bp *DiagramBlueprint) NumInputs() int      { return len(bp.inputs) }
func (bp *DiagramBlueprint) NumOutputs() int     { return len(bp.outputs) }
