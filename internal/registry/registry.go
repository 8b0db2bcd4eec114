package registry

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/plants"
	"github.com/san-kum/blocksim/internal/primitives"
	"github.com/san-kum/blocksim/internal/vector"
)

var (
	ErrUnknownKind = errors.New("registry: unknown block kind")
	ErrBadParam    = errors.New("registry: bad parameter")
	ErrDuplicate   = errors.New("registry: kind already registered")
)

// Block is the description a factory builds a system from.
type Block struct {
	Name   string
	Params map[string]float64
	Value  []float64
	Expr   string
}

// Factory builds one leaf system.
type Factory func(b Block) (framework.System, error)

type Registry struct {
	kinds map[string]Factory
	help  map[string]string
}

// NewRegistry returns a registry with every built-in block kind.
func NewRegistry() *Registry {
	r := &Registry{
		kinds: make(map[string]Factory),
		help:  make(map[string]string),
	}

	r.mustRegister("adder", "sum of inputs u0..u(n-1); params inputs, width", newAdder)
	r.mustRegister("gain", "y = k*u; params k, width", newGain)
	r.mustRegister("constant", "constant output; value", newConstant)
	r.mustRegister("sine", "A*sin(w*t+phi); params amplitude, frequency, phase, width", newSine)
	r.mustRegister("integrator", "dx/dt = u, y = x; params width, value is x0", newIntegrator)
	r.mustRegister("pid", "PID on [q; v] error; params kp, ki, kd, dof", newPID)
	r.mustRegister("affine", "first-order dx/dt = a*x + b*u + f0, y = c*x + d*u + y0", newAffine)
	r.mustRegister("expression", "CEL expression per output element; expr, params inputs, width", newExpression)
	r.mustRegister("pendulum", "damped pendulum, torque input", plantFactory(func(name string) plantSystem { return plants.NewPendulum(name) }))
	r.mustRegister("cartpole", "cart with inverted pendulum, force input", plantFactory(func(name string) plantSystem { return plants.NewCartPole(name) }))
	r.mustRegister("spring_mass", "spring-mass chain; params masses", newSpringMass)

	return r
}

func (r *Registry) Register(kind, help string, f Factory) error {
	if _, ok := r.kinds[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, kind)
	}
	r.kinds[kind] = f
	r.help[kind] = help
	return nil
}

func (r *Registry) mustRegister(kind, help string, f Factory) {
	if err := r.Register(kind, help, f); err != nil {
		panic(err)
	}
}

// New builds a system of the given kind.
func (r *Registry) New(kind string, b Block) (framework.System, error) {
	fn, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	sys, err := fn(b)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", kind, b.Name, err)
	}
	return sys, nil
}

func (r *Registry) Has(kind string) bool {
	_, ok := r.kinds[kind]
	return ok
}

func (r *Registry) Help(kind string) string { return r.help[kind] }

func (r *Registry) Kinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func param(b Block, name string, def float64) float64 {
	if v, ok := b.Params[name]; ok {
		return v
	}
	return def
}

// count reads a positive integer parameter.
func count(b Block, name string, def int) (int, error) {
	v := param(b, name, float64(def))
	if v < 1 || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %g", ErrBadParam, name, v)
	}
	return int(v), nil
}

func newAdder(b Block) (framework.System, error) {
	n, err := count(b, "inputs", 2)
	if err != nil {
		return nil, err
	}
	w, err := count(b, "width", 1)
	if err != nil {
		return nil, err
	}
	return primitives.NewAdder(b.Name, n, w), nil
}

func newGain(b Block) (framework.System, error) {
	w, err := count(b, "width", 1)
	if err != nil {
		return nil, err
	}
	return primitives.NewGain(b.Name, param(b, "k", 1), w), nil
}

func newConstant(b Block) (framework.System, error) {
	if len(b.Value) == 0 {
		return nil, fmt.Errorf("%w: constant needs a value", ErrBadParam)
	}
	return primitives.NewConstantVectorSource(b.Name, vector.From(b.Value...)), nil
}

func newSine(b Block) (framework.System, error) {
	w, err := count(b, "width", 1)
	if err != nil {
		return nil, err
	}
	return primitives.NewSine(b.Name,
		param(b, "amplitude", 1), param(b, "frequency", 1), param(b, "phase", 0), w), nil
}

func newIntegrator(b Block) (framework.System, error) {
	w, err := count(b, "width", max(1, len(b.Value)))
	if err != nil {
		return nil, err
	}
	s := primitives.NewIntegrator(b.Name, w)
	if len(b.Value) > 0 {
		if len(b.Value) != w {
			return nil, fmt.Errorf("%w: initial value has %d elements, width is %d", ErrBadParam, len(b.Value), w)
		}
		s.DeclareContinuousStateFrom(vector.From(b.Value...), 0, 0, w)
	}
	return s, nil
}

func newPID(b Block) (framework.System, error) {
	n, err := count(b, "dof", 1)
	if err != nil {
		return nil, err
	}
	fill := func(name string) vector.Vector {
		v := vector.Zeros(n)
		v.Fill(param(b, name, 0))
		return v
	}
	c, err := primitives.NewPIDController(b.Name, fill("kp"), fill("ki"), fill("kd"))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newAffine(b Block) (framework.System, error) {
	s, err := primitives.NewAffineSystem(b.Name, primitives.AffineParams{
		A:  vector.Matrix{{param(b, "a", 0)}},
		B:  vector.Matrix{{param(b, "b", 1)}},
		C:  vector.Matrix{{param(b, "c", 1)}},
		D:  vector.Matrix{{param(b, "d", 0)}},
		F0: vector.From(param(b, "f0", 0)),
		Y0: vector.From(param(b, "y0", 0)),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newExpression(b Block) (framework.System, error) {
	if b.Expr == "" {
		return nil, fmt.Errorf("%w: expression needs expr", ErrBadParam)
	}
	inputs := int(param(b, "inputs", 1))
	if inputs < 0 {
		return nil, fmt.Errorf("%w: inputs must not be negative", ErrBadParam)
	}
	w, err := count(b, "width", 1)
	if err != nil {
		return nil, err
	}
	e, err := primitives.NewExpression(b.Name, b.Expr, inputs, w)
	if err != nil {
		return nil, err
	}
	return e, nil
}

type plantSystem interface {
	framework.System
	plants.Configurable
	SetInitialState(x0 vector.Vector) error
}

// plantFactory adapts a plant constructor: params are applied by name and value
// becomes the initial state.
func plantFactory(ctor func(name string) plantSystem) Factory {
	return func(b Block) (framework.System, error) {
		return configurePlant(ctor(b.Name), b, nil)
	}
}

func configurePlant(p plantSystem, b Block, skip []string) (framework.System, error) {
	names := make([]string, 0, len(b.Params))
	for name := range b.Params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if slices.Contains(skip, name) {
			continue
		}
		if err := p.SetParam(name, b.Params[name]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadParam, err)
		}
	}
	if len(b.Value) > 0 {
		if err := p.SetInitialState(vector.From(b.Value...)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadParam, err)
		}
	}
	return p, nil
}

func newSpringMass(b Block) (framework.System, error) {
	n, err := count(b, "masses", 1)
	if err != nil {
		return nil, err
	}
	var s *plants.SpringMass
	if n == 1 {
		s = plants.NewSpringMass(b.Name)
	} else {
		s = plants.NewSpringMassChain(b.Name, n)
	}
	return configurePlant(s, b, []string{"masses"})
}
