package primitives

import (
	"fmt"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// PIDController tracks a desired state [q_d; v_d] given an estimated state
// [q; v], each of size 2n. Its state is the integral of the position error:
//
//	dx/dt = q_d - q
//	u     = kp*(q_d - q) + ki*x + kd*(v_d - v)
//
// with elementwise products.
type PIDController struct {
	*framework.LeafSystem
	kp, ki, kd vector.Vector

	estimated *framework.InputPort
	desired   *framework.InputPort
}

func NewPIDController(name string, kp, ki, kd vector.Vector) (*PIDController, error) {
	n := len(kp)
	if n == 0 || len(ki) != n || len(kd) != n {
		return nil, fmt.Errorf("%w: pid gains of sizes %d, %d, %d", ErrDimension, len(kp), len(ki), len(kd))
	}
	c := &PIDController{
		LeafSystem: framework.NewLeafSystem(name),
		kp:         kp.Clone(),
		ki:         ki.Clone(),
		kd:         kd.Clone(),
	}
	c.DeclareContinuousState(n, 0, 0)
	c.estimated = c.DeclareVectorInputPort("estimated_state", 2*n)
	c.desired = c.DeclareVectorInputPort("desired_state", 2*n)
	c.DeclareVectorOutputPort("control", n, c.calcControl)
	c.DeclareTimeDerivatives(c.calcDerivatives)
	return c, nil
}

func (c *PIDController) NumControlled() int { return len(c.kp) }

func (c *PIDController) trackingErrors(ctx *framework.LeafContext) (eq, ev vector.Vector) {
	n := len(c.kp)
	diff := c.desired.EvalVector(ctx).Sub(c.estimated.EvalVector(ctx))
	return diff.Segment(0, n), diff.Segment(n, n)
}

func (c *PIDController) calcDerivatives(ctx *framework.LeafContext, derivs *framework.ContinuousState) {
	eq, _ := c.trackingErrors(ctx)
	derivs.SetFromVector(eq)
}

func (c *PIDController) calcControl(ctx *framework.LeafContext, u vector.Vector) {
	eq, ev := c.trackingErrors(ctx)
	x := ctx.ContinuousState().Vector()
	for i := range u {
		u[i] = c.kp[i]*eq[i] + c.ki[i]*x[i] + c.kd[i]*ev[i]
	}
}

// SetIntegralValue overwrites the accumulated error in ctx.
func (c *PIDController) SetIntegralValue(ctx framework.Context, x vector.Vector) {
	c.ValidateContext(ctx)
	ctx.ContinuousState().SetFromVector(x)
}
