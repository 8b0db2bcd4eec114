package primitives

import (
	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// Integrator has state x with dx/dt = u and outputs y = x.
type Integrator struct {
	*framework.LeafSystem
	u *framework.InputPort
}

func NewIntegrator(name string, width int) *Integrator {
	s := &Integrator{LeafSystem: framework.NewLeafSystem(name)}
	s.u = s.DeclareVectorInputPort("u", width)
	s.DeclareContinuousState(0, 0, width)
	s.DeclareVectorOutputPort("y", width, func(ctx *framework.LeafContext, y vector.Vector) {
		y.SetFrom(ctx.ContinuousState().Vector())
	}, framework.WithoutFeedthrough())
	s.DeclareTimeDerivatives(func(ctx *framework.LeafContext, derivs *framework.ContinuousState) {
		derivs.SetFromVector(s.u.EvalVector(ctx))
	})
	return s
}

// SetIntegralValue overwrites the integrator state in ctx.
func (s *Integrator) SetIntegralValue(ctx framework.Context, x vector.Vector) {
	s.ValidateContext(ctx)
	ctx.ContinuousState().SetFromVector(x)
}
