package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/san-kum/blocksim/internal/ctxlog"
	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/registry"
	"github.com/san-kum/blocksim/internal/vector"
)

// KindDiagram is the block kind that instantiates another diagram of the
// same file.
const KindDiagram = "diagram"

// BuildError reports a failure while assembling a diagram. Framework
// panics raised during assembly are recovered into it.
type BuildError struct {
	Diagram string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Diagram, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Build assembles the root diagram of f. Sub-diagram blocks are built
// fresh for every reference, so one description may be instantiated many times.
func Build(ctx context.Context, f *File, reg *registry.Registry) (*framework.Diagram, error) {
	root, err := f.RootDiagram()
	if err != nil {
		return nil, err
	}
	b := &assembler{
		ctx:     ctx,
		file:    f,
		reg:     reg,
		loading: make(map[string]bool),
	}
	return b.build(root, root.Name)
}

type assembler struct {
	ctx     context.Context
	file    *File
	reg     *registry.Registry
	loading map[string]bool
}

func (a *assembler) build(spec *DiagramSpec, instance string) (d *framework.Diagram, err error) {
	if a.loading[spec.Name] {
		return nil, &BuildError{Diagram: instance, Err: fmt.Errorf("%w: diagram %q references itself", ErrReference, spec.Name)}
	}
	a.loading[spec.Name] = true
	defer delete(a.loading, spec.Name)

	defer func() {
		if r := recover(); r != nil {
			err = &BuildError{Diagram: instance, Err: recovered(r)}
			d = nil
		}
	}()

	logger := ctxlog.FromContext(a.ctx).With("diagram", instance)
	builder := framework.NewDiagramBuilder(instance, framework.WithLogger(logger))
	blocks := make(map[string]framework.System, len(spec.Blocks))

	for _, bs := range spec.Blocks {
		sys, err := a.block(bs)
		if err != nil {
			var be *BuildError
			if errors.As(err, &be) {
				return nil, err
			}
			return nil, &BuildError{Diagram: instance, Err: err}
		}
		framework.Add(builder, sys)
		blocks[bs.Name] = sys
	}

	for _, c := range spec.Connections {
		out, err := outputPort(blocks, c.From)
		if err != nil {
			return nil, &BuildError{Diagram: instance, Err: err}
		}
		in, err := inputPort(blocks, c.To)
		if err != nil {
			return nil, &BuildError{Diagram: instance, Err: err}
		}
		builder.Connect(out, in)
	}
	for _, e := range spec.ExportInputs {
		in, err := inputPort(blocks, e.Port)
		if err != nil {
			return nil, &BuildError{Diagram: instance, Err: err}
		}
		builder.ExportInput(in, e.Name)
	}
	for _, e := range spec.ExportOutputs {
		out, err := outputPort(blocks, e.Port)
		if err != nil {
			return nil, &BuildError{Diagram: instance, Err: err}
		}
		builder.ExportOutput(out, e.Name)
	}
	return builder.Build(), nil
}

func (a *assembler) block(bs BlockSpec) (framework.System, error) {
	if bs.Kind == KindDiagram {
		ref := a.file.Diagram(bs.Ref)
		if ref == nil {
			return nil, fmt.Errorf("%w: block %q refers to diagram %q", ErrReference, bs.Name, bs.Ref)
		}
		return a.build(ref, bs.Name)
	}
	return a.reg.New(bs.Kind, registry.Block{
		Name:   bs.Name,
		Params: bs.Params,
		Value:  bs.Value,
		Expr:   bs.Expr,
	})
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

func outputPort(blocks map[string]framework.System, ref string) (framework.OutputPort, error) {
	name, port, err := splitPort(ref)
	if err != nil {
		return nil, err
	}
	sys, ok := blocks[name]
	if !ok {
		return nil, fmt.Errorf("%w: block %q", ErrReference, name)
	}
	out, ok := sys.OutputPortByName(port)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no output %q (have %s)", ErrReference, name, port, outputNames(sys))
	}
	return out, nil
}

func inputPort(blocks map[string]framework.System, ref string) (*framework.InputPort, error) {
	name, port, err := splitPort(ref)
	if err != nil {
		return nil, err
	}
	sys, ok := blocks[name]
	if !ok {
		return nil, fmt.Errorf("%w: block %q", ErrReference, name)
	}
	in, ok := sys.InputPortByName(port)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no input %q (have %s)", ErrReference, name, port, inputNames(sys))
	}
	return in, nil
}

func inputNames(sys framework.System) string {
	names := make([]string, sys.NumInputPorts())
	for i := range names {
		names[i] = sys.InputPort(framework.InputPortIndex(i)).Name()
	}
	return "[" + strings.Join(names, " ") + "]"
}

func outputNames(sys framework.System) string {
	names := make([]string, sys.NumOutputPorts())
	for i := range names {
		names[i] = sys.OutputPort(framework.OutputPortIndex(i)).Name()
	}
	return "[" + strings.Join(names, " ") + "]"
}

// NewContext creates a default context for d, sets the file's start time
// and fixes every input listed in the file.
func NewContext(f *File, d *framework.Diagram) (framework.Context, error) {
	ctx := d.CreateDefaultContext()
	ctx.SetTime(f.Time)
	for _, in := range f.Inputs {
		p, ok := d.InputPortByName(in.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no input %q (have %s)", ErrReference, d.Name(), in.Name, inputNames(d))
		}
		if p.DataType() != framework.VectorValued {
			return nil, fmt.Errorf("%w: input %q is abstract-valued", ErrInvalid, in.Name)
		}
		if len(in.Value) != p.Size() {
			return nil, fmt.Errorf("%w: input %q needs %d values, got %d", ErrInvalid, in.Name, p.Size(), len(in.Value))
		}
		p.FixVector(ctx, vector.From(in.Value...))
	}
	return ctx, nil
}
