package framework_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

var _ = Describe("LeafSystem", func() {
	It("assigns stable port indices in declaration order", func() {
		a := newAdder("a", 3, 2)
		Expect(a.NumInputPorts()).To(Equal(3))
		for i := range 3 {
			Expect(a.InputPort(framework.InputPortIndex(i)).Index()).To(Equal(framework.InputPortIndex(i)))
		}
		p, ok := a.InputPortByName("u2")
		Expect(ok).To(BeTrue())
		Expect(p.Index()).To(Equal(framework.InputPortIndex(2)))
		_, ok = a.OutputPortByName("missing")
		Expect(ok).To(BeFalse())
	})

	It("reports widths and data types", func() {
		sink := newLabelSink("sink")
		Expect(sink.InputPort(0).DataType()).To(Equal(framework.AbstractValued))
		Expect(sink.InputPort(0).Size()).To(Equal(0))

		a := newAdder("a", 1, 4)
		Expect(a.OutputPort(0).DataType()).To(Equal(framework.VectorValued))
		Expect(a.OutputPort(0).Size()).To(Equal(4))
	})

	It("allocates one fixed-input slot per input and one cache slot per output", func() {
		a := newAdder("a", 2, 3)
		ctx := a.AllocateContext()
		Expect(ctx.IsInitialized()).To(BeTrue())
		Expect(ctx.NumInputPorts()).To(Equal(2))
		Expect(ctx.FixedInputPortValue(0)).To(BeNil())
		Expect(ctx.Cache().Len()).To(Equal(1))
		Expect(ctx.SystemID()).To(Equal(a.SystemID()))
		Expect(ctx.Parent()).To(BeNil())
	})

	It("evaluates fixed inputs", func() {
		a := newAdder("a", 2, 3)
		ctx := a.CreateDefaultContext()
		a.InputPort(0).FixVector(ctx, vector.From(1, 2, 3))
		a.InputPort(1).FixVector(ctx, vector.From(1, 1, 1))
		Expect(framework.Eval[vector.Vector](a.OutputPort(0), ctx)).To(Equal(vector.From(2, 3, 4)))
	})

	It("copies values on fix so later mutation does not leak in", func() {
		a := newAdder("a", 1, 2)
		ctx := a.CreateDefaultContext()
		in := vector.From(1, 2)
		a.InputPort(0).FixVector(ctx, in)
		in[0] = 50
		Expect(a.InputPort(0).EvalVector(ctx)).To(Equal(vector.From(1, 2)))
	})

	It("rejects fixed values of the wrong type or width", func() {
		a := newAdder("a", 1, 2)
		ctx := a.CreateDefaultContext()
		Expect(func() { framework.FixInput(a.InputPort(0), ctx, "text") }).To(panicWith(value.ErrTypeMismatch))
		Expect(func() { a.InputPort(0).FixVector(ctx, vector.From(1)) }).To(panicWith(framework.ErrSizeMismatch))
	})

	It("fails on an unresolved input of a root system", func() {
		a := newAdder("a", 1, 2)
		ctx := a.CreateDefaultContext()
		Expect(func() { a.InputPort(0).EvalVector(ctx) }).To(panicWith(framework.ErrUnresolvedInput))
	})

	It("fails when a typed read asks for the wrong type", func() {
		sink := newCounterSink("sink")
		ctx := sink.CreateDefaultContext()
		framework.FixInput(sink.InputPort(0), ctx, 7)
		Expect(framework.EvalInput[int](sink.InputPort(0), ctx)).To(Equal(7))
		Expect(func() { framework.EvalInput[string](sink.InputPort(0), ctx) }).To(panicWith(value.ErrTypeMismatch))
	})

	It("rejects duplicate port names", func() {
		s := framework.NewLeafSystem("s")
		s.DeclareVectorInputPort("u", 1)
		Expect(func() { s.DeclareVectorInputPort("u", 2) }).To(panicWith(framework.ErrDuplicateName))
	})

	It("freezes its shape once a context exists", func() {
		a := newAdder("a", 1, 1)
		a.AllocateContext()
		Expect(func() { a.DeclareVectorInputPort("late", 1) }).To(panicWith(framework.ErrShapeFrozen))
		Expect(func() { a.DeclareContinuousState(1, 0, 0) }).To(panicWith(framework.ErrShapeFrozen))
	})

	Describe("continuous state", func() {
		It("partitions state into q, v and z views", func() {
			s := framework.NewLeafSystem("s")
			s.DeclareContinuousStateFrom(vector.From(1, 2, 3, 4, 5, 6), 2, 1, 3)
			ctx := s.CreateDefaultContext()
			cs := ctx.ContinuousState()
			Expect(cs.Sizes()).To(Equal(framework.ContextSizes{NumPositions: 2, NumVelocities: 1, NumMisc: 3}))
			Expect(cs.GeneralizedPosition()).To(Equal(vector.From(1, 2)))
			Expect(cs.GeneralizedVelocity()).To(Equal(vector.From(3)))
			Expect(cs.MiscContinuousState()).To(Equal(vector.From(4, 5, 6)))

			cs.GeneralizedVelocity()[0] = 30
			Expect(cs.Vector()).To(Equal(vector.From(1, 2, 30, 4, 5, 6)))
		})

		It("starts allocated contexts at zero and default contexts at the model", func() {
			s := framework.NewLeafSystem("s")
			s.DeclareContinuousStateFrom(vector.From(0.5), 1, 0, 0)
			Expect(s.AllocateContext().ContinuousState().Vector()).To(Equal(vector.From(0)))
			Expect(s.CreateDefaultContext().ContinuousState().Vector()).To(Equal(vector.From(0.5)))
		})

		It("rejects a model state of the wrong size", func() {
			s := framework.NewLeafSystem("s")
			Expect(func() { s.DeclareContinuousStateFrom(vector.From(1), 1, 1, 0) }).To(panicWith(framework.ErrSizeMismatch))
		})
	})

	Describe("time derivatives", func() {
		It("delegates to the declared callback", func() {
			s := newIntegrator("int", 2)
			ctx := s.CreateDefaultContext()
			s.InputPort(0).FixVector(ctx, vector.From(3, 4))
			derivs := s.AllocateTimeDerivatives()
			s.CalcTimeDerivatives(ctx, derivs)
			Expect(derivs.Vector()).To(Equal(vector.From(3, 4)))
		})

		It("checks the context identity before computing", func() {
			s := newIntegrator("int", 1)
			other := newIntegrator("other", 1)
			ctx := other.CreateDefaultContext()
			other.InputPort(0).FixVector(ctx, vector.From(1))

			Expect(func() {
				s.CalcTimeDerivatives(ctx, s.AllocateTimeDerivatives())
			}).To(panicWith(framework.ErrSystemMismatch))
			Expect(s.derivCalls).To(Equal(0))
		})

		It("accepts an empty derivative vector for stateless systems", func() {
			a := newAdder("a", 1, 1)
			ctx := a.CreateDefaultContext()
			derivs := a.AllocateTimeDerivatives()
			Expect(derivs.Len()).To(Equal(0))
			Expect(func() { a.CalcTimeDerivatives(ctx, derivs) }).NotTo(Panic())
		})

		It("rejects a derivative vector of the wrong size", func() {
			a := newAdder("a", 1, 1)
			ctx := a.CreateDefaultContext()
			bad := framework.NewContinuousState(vector.Zeros(1), 0, 0, 1)
			Expect(func() { a.CalcTimeDerivatives(ctx, bad) }).To(panicWith(framework.ErrSizeMismatch))
		})
	})
})
