package plants

import (
	"errors"
	"fmt"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// ErrUnknownParam is returned by SetParam for names the plant does not have.
var ErrUnknownParam = errors.New("plants: unknown param")

// Configurable plants expose their physical parameters by name.
type Configurable interface {
	Params() map[string]float64
	SetParam(name string, value float64) error
}

// Hamiltonian plants report total mechanical energy for a state vector.
type Hamiltonian interface {
	Energy(x vector.Vector) float64
}

// plant is the part every model shares: a generalized position/velocity
// state of equal halves, one input and a state output.
type plant struct {
	*framework.LeafSystem
	dof   int
	input *framework.InputPort
}

func newPlant(name string, dof int, input string, inputWidth int) plant {
	p := plant{LeafSystem: framework.NewLeafSystem(name), dof: dof}
	p.DeclareContinuousState(dof, dof, 0)
	p.input = p.DeclareVectorInputPort(input, inputWidth)
	p.DeclareVectorOutputPort("state", 2*dof, func(ctx *framework.LeafContext, y vector.Vector) {
		y.SetFrom(ctx.ContinuousState().Vector())
	}, framework.WithoutFeedthrough())
	return p
}

// SetInitialState replaces the default state written into new contexts.
func (p plant) SetInitialState(x0 vector.Vector) error {
	if len(x0) != 2*p.dof {
		return fmt.Errorf("plants: %s: initial state has %d elements, want %d", p.Name(), len(x0), 2*p.dof)
	}
	p.DeclareContinuousStateFrom(x0, p.dof, p.dof, 0)
	return nil
}

func unknownParam(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownParam, name)
}
