package framework_test

import (
	"bytes"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

var _ = Describe("Diagram", func() {
	Describe("adder chain", func() {
		It("sums four exported inputs through three adders", func() {
			d, _ := buildAdderChain()
			ctx := d.CreateDefaultContext()
			fixChainInputs(d, ctx)

			sum := framework.Eval[vector.Vector](d.OutputPort(0), ctx)
			Expect(sum).To(Equal(vector.From(22, 26, 30)))
		})

		It("names exported ports after the child port by default", func() {
			d, _ := buildAdderChain()
			Expect(d.NumInputPorts()).To(Equal(4))
			Expect(d.InputPort(0).Name()).To(Equal("adder1_u0"))
			Expect(d.InputPort(3).Name()).To(Equal("adder2_u1"))
			Expect(d.OutputPort(0).Name()).To(Equal("adder3_sum"))
			Expect(d.OutputPort(0).Size()).To(Equal(3))
		})

		It("memoizes every child output", func() {
			d, adders := buildAdderChain()
			ctx := d.CreateDefaultContext()
			fixChainInputs(d, ctx)

			framework.Eval[vector.Vector](d.OutputPort(0), ctx)
			framework.Eval[vector.Vector](d.OutputPort(0), ctx)
			for _, a := range adders {
				Expect(a.calls).To(Equal(1))
			}

			ctx.MarkCachesOutOfDate()
			framework.Eval[vector.Vector](d.OutputPort(0), ctx)
			for _, a := range adders {
				Expect(a.calls).To(Equal(2))
			}
		})

		It("prefers a value fixed on a child input over its connection", func() {
			d, adders := buildAdderChain()
			ctx := d.CreateDefaultContext()
			fixChainInputs(d, ctx)

			sub := d.SubsystemContext(ctx, adders[2])
			adders[2].InputPort(0).FixVector(sub, vector.From(100, 100, 100))

			sum := framework.Eval[vector.Vector](d.OutputPort(0), ctx)
			Expect(sum).To(Equal(vector.From(117, 119, 121)))
			Expect(adders[0].calls).To(Equal(0))
		})

		It("does not invalidate caches when an input changes", func() {
			d, _ := buildAdderChain()
			ctx := d.CreateDefaultContext()
			fixChainInputs(d, ctx)
			framework.Eval[vector.Vector](d.OutputPort(0), ctx)

			d.InputPort(0).FixVector(ctx, vector.From(0, 0, 0))
			Expect(framework.Eval[vector.Vector](d.OutputPort(0), ctx)).To(Equal(vector.From(22, 26, 30)))

			ctx.MarkCachesOutOfDate()
			Expect(framework.Eval[vector.Vector](d.OutputPort(0), ctx)).To(Equal(vector.From(21, 24, 27)))
		})

		It("fails when an exported input is never fixed", func() {
			d, _ := buildAdderChain()
			ctx := d.CreateDefaultContext()
			Expect(func() { framework.Eval[vector.Vector](d.OutputPort(0), ctx) }).To(panicWith(framework.ErrUnresolvedInput))
		})
	})

	Describe("subsystem indices", func() {
		It("follow registration order and match the subcontexts", func() {
			a := newGain("A", 1, 1)
			b := newGain("B", 2, 1)
			c := newGain("C", 3, 1)
			builder := framework.NewDiagramBuilder("abc")
			Expect(builder.AddLeafSystem(a)).To(Equal(framework.SubsystemIndex(0)))
			Expect(builder.AddLeafSystem(b)).To(Equal(framework.SubsystemIndex(1)))
			Expect(builder.AddLeafSystem(c)).To(Equal(framework.SubsystemIndex(2)))
			d := builder.Build()

			Expect(d.SubsystemIndexOf(a)).To(Equal(framework.SubsystemIndex(0)))
			Expect(d.SubsystemIndexOf(b)).To(Equal(framework.SubsystemIndex(1)))
			Expect(d.SubsystemIndexOf(c)).To(Equal(framework.SubsystemIndex(2)))

			ctx := d.CreateDefaultContext().(*framework.DiagramContext)
			Expect(ctx.NumSubcontexts()).To(Equal(3))
			for i, sys := range []framework.System{a, b, c} {
				sub := ctx.GetContext(framework.SubsystemIndex(i))
				Expect(sub.SystemID()).To(Equal(sys.SystemID()))
				Expect(sub.Parent()).To(BeIdenticalTo(ctx))
				Expect(d.Subsystem(framework.SubsystemIndex(i))).To(BeIdenticalTo(sys))
			}
			Expect(a.Parent()).To(BeIdenticalTo(d))
		})

		It("rejects an out-of-range subcontext", func() {
			d, _ := buildAdderChain()
			ctx := d.CreateDefaultContext().(*framework.DiagramContext)
			Expect(func() { ctx.GetContext(3) }).To(panicWith(framework.ErrIndexOutOfRange))
		})
	})

	Describe("identity checks", func() {
		It("rejects a context from another system", func() {
			d, _ := buildAdderChain()
			other, _ := buildAdderChain()
			ctx := other.CreateDefaultContext()
			Expect(func() { framework.Eval[vector.Vector](d.OutputPort(0), ctx) }).To(panicWith(framework.ErrSystemMismatch))
			Expect(func() { d.SetDefaultState(ctx) }).To(panicWith(framework.ErrSystemMismatch))
			Expect(func() { d.CalcTimeDerivatives(ctx, d.AllocateTimeDerivatives()) }).To(panicWith(framework.ErrSystemMismatch))
		})
	})

	Describe("nested diagrams", func() {
		It("resolves ports through several levels", func() {
			g := newGain("double", 2, 2)
			inner := framework.NewDiagramBuilder("inner")
			inner.AddLeafSystem(g)
			inner.ExportInput(g.InputPort(0), "u")
			inner.ExportOutput(g.OutputPort(0), "y")
			innerDiagram := inner.Build()

			a := newAdder("add", 2, 2)
			outer := framework.NewDiagramBuilder("outer")
			outer.AddDiagram(innerDiagram)
			outer.AddLeafSystem(a)
			outer.ExportInput(innerDiagram.InputPort(0), "x")
			outer.ExportInput(a.InputPort(1), "bias")
			outer.Connect(innerDiagram.OutputPort(0), a.InputPort(0))
			outer.ExportOutput(a.OutputPort(0), "y")
			d := outer.Build()

			ctx := d.CreateDefaultContext()
			d.InputPort(0).FixVector(ctx, vector.From(1, 2))
			d.InputPort(1).FixVector(ctx, vector.From(10, 10))
			Expect(framework.Eval[vector.Vector](d.OutputPort(0), ctx)).To(Equal(vector.From(12, 14)))
			Expect(innerDiagram.Parent()).To(BeIdenticalTo(d))
		})

		It("refuses a diagram through AddLeafSystem", func() {
			g := newGain("g", 1, 1)
			inner := framework.NewDiagramBuilder("inner")
			inner.AddLeafSystem(g)
			innerDiagram := inner.Build()
			Expect(func() {
				framework.NewDiagramBuilder("outer").AddLeafSystem(innerDiagram)
			}).To(panicWith(framework.ErrSystemKind))
		})
	})

	Describe("continuous state", func() {
		var (
			d      *framework.Diagram
			i1, i2 *integrator
		)

		BeforeEach(func() {
			i1 = newIntegrator("i1", 1)
			i2 = newIntegrator("i2", 2)
			b := framework.NewDiagramBuilder("ints")
			framework.Add(b, i1)
			framework.Add(b, i2)
			b.ExportInput(i1.InputPort(0), "")
			b.ExportInput(i2.InputPort(0), "")
			b.ExportOutput(i2.OutputPort(0), "")
			d = b.Build()
		})

		It("sums child sizes", func() {
			Expect(d.ContextSizes()).To(Equal(framework.ContextSizes{NumMisc: 3}))
			Expect(d.NumContinuousStates()).To(Equal(3))
		})

		It("concatenates child states as views", func() {
			ctx := d.CreateDefaultContext().(*framework.DiagramContext)
			cs := ctx.ContinuousState()
			Expect(cs.Len()).To(Equal(3))
			Expect(cs.NumSubstates()).To(Equal(2))

			cs.Vector().SetFrom([]float64{1, 2, 3})
			Expect(ctx.GetContext(0).ContinuousState().Vector()).To(Equal(vector.From(1)))
			Expect(ctx.GetContext(1).ContinuousState().Vector()).To(Equal(vector.From(2, 3)))

			ctx.GetContext(1).ContinuousState().MiscContinuousState()[0] = 20
			Expect(cs.Vector()).To(Equal(vector.From(1, 20, 3)))
			Expect(framework.Eval[vector.Vector](d.OutputPort(0), ctx)).To(Equal(vector.From(20, 3)))
		})

		It("refuses q/v/z views on a composite state", func() {
			ctx := d.CreateDefaultContext()
			Expect(func() { ctx.ContinuousState().GeneralizedPosition() }).To(panicWith(framework.ErrCompositeState))
		})

		It("computes derivatives child by child", func() {
			ctx := d.CreateDefaultContext()
			d.InputPort(0).FixVector(ctx, vector.From(5))
			d.InputPort(1).FixVector(ctx, vector.From(6, 7))
			derivs := d.AllocateTimeDerivatives()
			d.CalcTimeDerivatives(ctx, derivs)
			Expect(derivs.Vector()).To(Equal(vector.From(5, 6, 7)))
			Expect(derivs.Substate(1).Vector()).To(Equal(vector.From(6, 7)))
		})

		It("has no feedthrough from inputs to a state output", func() {
			Expect(d.OutputPort(0).HasDirectFeedthrough()).To(BeFalse())
		})

		It("propagates time to every subcontext", func() {
			ctx := d.CreateDefaultContext().(*framework.DiagramContext)
			ctx.SetTime(2.5)
			Expect(ctx.GetContext(0).Time()).To(Equal(2.5))
			Expect(ctx.GetContext(1).Time()).To(Equal(2.5))
		})
	})

	It("fans one diagram input out to several children", func() {
		g1 := newGain("g1", 1, 1)
		g2 := newGain("g2", 10, 1)
		a := newAdder("a", 2, 1)
		b := framework.NewDiagramBuilder("fan")
		b.AddLeafSystem(g1)
		b.AddLeafSystem(g2)
		b.AddLeafSystem(a)
		Expect(b.ExportInput(g1.InputPort(0), "u")).To(Equal(framework.InputPortIndex(0)))
		Expect(b.ExportInput(g2.InputPort(0), "u")).To(Equal(framework.InputPortIndex(0)))
		b.Connect(g1.OutputPort(0), a.InputPort(0))
		b.Connect(g2.OutputPort(0), a.InputPort(1))
		b.ExportOutput(a.OutputPort(0), "y")
		d := b.Build()

		Expect(d.NumInputPorts()).To(Equal(1))
		Expect(d.ExportedInputs(0)).To(HaveLen(2))
		Expect(d.OutputPort(0).HasDirectFeedthrough()).To(BeTrue())

		ctx := d.CreateDefaultContext()
		d.InputPort(0).FixVector(ctx, vector.From(2))
		Expect(framework.Eval[vector.Vector](d.OutputPort(0), ctx)).To(Equal(vector.From(22)))
	})

	It("lists connections by destination", func() {
		d, adders := buildAdderChain()
		conns := d.Connections()
		Expect(conns).To(HaveLen(2))
		Expect(conns[0].From.System).To(Equal(adders[0].SystemID()))
		Expect(conns[0].To).To(Equal(adders[2].InputPort(0).Locator()))
		Expect(conns[1].From.System).To(Equal(adders[1].SystemID()))
	})

	It("forwards abstract values", func() {
		src := newLabelSource("src", "hello")
		b := framework.NewDiagramBuilder("labels")
		b.AddLeafSystem(src)
		b.ExportOutput(src.OutputPort(0), "label")
		d := b.Build()
		ctx := d.CreateDefaultContext()
		Expect(framework.Eval[label](d.OutputPort(0), ctx).text).To(Equal("hello"))
		Expect(d.OutputPort(0).Allocate()).To(BeAssignableToTypeOf(value.New(label{})))
	})

	It("logs build steps at debug level", func() {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		g := newGain("g", 1, 1)
		b := framework.NewDiagramBuilder("logged", framework.WithLogger(logger))
		b.AddLeafSystem(g)
		b.Build()
		Expect(buf.String()).To(ContainSubstring("registered subsystem"))
		Expect(buf.String()).To(ContainSubstring("built diagram"))
	})
})
