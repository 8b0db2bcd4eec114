package primitives

import (
	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// Gain outputs y = k*u.
type Gain struct {
	*framework.LeafSystem
	k float64
	u *framework.InputPort
}

func NewGain(name string, k float64, width int) *Gain {
	g := &Gain{LeafSystem: framework.NewLeafSystem(name), k: k}
	g.u = g.DeclareVectorInputPort("u", width)
	g.DeclareVectorOutputPort("y", width, func(ctx *framework.LeafContext, y vector.Vector) {
		y.SetFrom(g.u.EvalVector(ctx).Scale(g.k))
	})
	return g
}

func (g *Gain) K() float64 { return g.k }
