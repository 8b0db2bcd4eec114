package primitives

import (
	"fmt"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// Adder outputs the elementwise sum of its inputs u0..u(n-1).
type Adder struct {
	*framework.LeafSystem
	width int
}

func NewAdder(name string, numInputs, width int) *Adder {
	a := &Adder{LeafSystem: framework.NewLeafSystem(name), width: width}
	for i := range numInputs {
		a.DeclareVectorInputPort(fmt.Sprintf("u%d", i), width)
	}
	a.DeclareVectorOutputPort("sum", width, a.calcSum)
	return a
}

func (a *Adder) calcSum(ctx *framework.LeafContext, sum vector.Vector) {
	sum.Fill(0)
	for i := range a.NumInputPorts() {
		sum.AddInPlace(a.InputPort(framework.InputPortIndex(i)).EvalVector(ctx))
	}
}

func (a *Adder) Width() int { return a.width }
