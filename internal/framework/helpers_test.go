package framework_test

import (
	"fmt"

	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/types"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

func panicWith(err error) types.GomegaMatcher {
	return PanicWith(MatchError(err))
}

type adder struct {
	*framework.LeafSystem
	calls int
}

func newAdder(name string, n, width int) *adder {
	a := &adder{LeafSystem: framework.NewLeafSystem(name)}
	for i := range n {
		a.DeclareVectorInputPort(fmt.Sprintf("u%d", i), width)
	}
	a.DeclareVectorOutputPort("sum", width, a.calcSum)
	return a
}

func (a *adder) calcSum(ctx *framework.LeafContext, out vector.Vector) {
	a.calls++
	out.Fill(0)
	for i := range a.NumInputPorts() {
		out.AddInPlace(a.InputPort(framework.InputPortIndex(i)).EvalVector(ctx))
	}
}

type gain struct {
	*framework.LeafSystem
	k float64
}

func newGain(name string, k float64, width int) *gain {
	g := &gain{LeafSystem: framework.NewLeafSystem(name), k: k}
	u := g.DeclareVectorInputPort("u", width)
	g.DeclareVectorOutputPort("y", width, func(ctx *framework.LeafContext, out vector.Vector) {
		out.SetFrom(u.EvalVector(ctx).Scale(g.k))
	})
	return g
}

type integrator struct {
	*framework.LeafSystem
	derivCalls int
}

func newIntegrator(name string, width int) *integrator {
	s := &integrator{LeafSystem: framework.NewLeafSystem(name)}
	u := s.DeclareVectorInputPort("u", width)
	s.DeclareContinuousState(0, 0, width)
	s.DeclareVectorOutputPort("y", width, func(ctx *framework.LeafContext, out vector.Vector) {
		out.SetFrom(ctx.ContinuousState().Vector())
	}, framework.WithoutFeedthrough())
	s.DeclareTimeDerivatives(func(ctx *framework.LeafContext, derivs *framework.ContinuousState) {
		s.derivCalls++
		derivs.SetFromVector(u.EvalVector(ctx))
	})
	return s
}

type label struct{ text string }

func newLabelSource(name, text string) *framework.LeafSystem {
	s := framework.NewLeafSystem(name)
	s.DeclareAbstractOutputPort("label",
		func() value.AbstractValue { return value.New(label{}) },
		func(ctx *framework.LeafContext, out value.AbstractValue) {
			out.(*value.Value[label]).Set(label{text: text})
		})
	return s
}

func newCounterSink(name string) *framework.LeafSystem {
	s := framework.NewLeafSystem(name)
	s.DeclareAbstractInputPort("count", value.New(0))
	return s
}

func newLabelSink(name string) *framework.LeafSystem {
	s := framework.NewLeafSystem(name)
	s.DeclareAbstractInputPort("label", value.New(label{}))
	return s
}

// buildAdderChain wires two 2-input adders into a third:
// (u0 + u1) + (u2 + u3).
func buildAdderChain() (*framework.Diagram, [3]*adder) {
	a1 := newAdder("adder1", 2, 3)
	a2 := newAdder("adder2", 2, 3)
	a3 := newAdder("adder3", 2, 3)

	b := framework.NewDiagramBuilder("chain")
	b.AddLeafSystem(a1)
	b.AddLeafSystem(a2)
	b.AddLeafSystem(a3)
	b.ExportInput(a1.InputPort(0), "")
	b.ExportInput(a1.InputPort(1), "")
	b.ExportInput(a2.InputPort(0), "")
	b.ExportInput(a2.InputPort(1), "")
	b.ExportOutput(a3.OutputPort(0), "")
	b.Connect(a1.OutputPort(0), a3.InputPort(0))
	b.Connect(a2.OutputPort(0), a3.InputPort(1))
	return b.Build(), [3]*adder{a1, a2, a3}
}

func fixChainInputs(d *framework.Diagram, ctx framework.Context) {
	inputs := []vector.Vector{
		vector.From(1, 2, 3),
		vector.From(4, 5, 6),
		vector.From(7, 8, 9),
		vector.From(10, 11, 12),
	}
	for i, in := range inputs {
		d.InputPort(framework.InputPortIndex(i)).FixVector(ctx, in)
	}
}
