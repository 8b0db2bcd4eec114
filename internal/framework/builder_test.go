package framework_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

var _ = Describe("DiagramBuilder", func() {
	var b *framework.DiagramBuilder

	BeforeEach(func() {
		b = framework.NewDiagramBuilder("test")
	})

	It("rejects an empty diagram", func() {
		Expect(func() { b.Build() }).To(panicWith(framework.ErrEmptyDiagram))
	})

	It("is single use", func() {
		g := newGain("g", 1, 1)
		b.AddLeafSystem(g)
		bp := b.Compile()
		Expect(bp.NumSystems()).To(Equal(1))
		Expect(b.IsBuilt()).To(BeTrue())

		Expect(func() { b.Build() }).To(panicWith(framework.ErrAlreadyBuilt))
		Expect(func() { b.AddLeafSystem(newGain("h", 1, 1)) }).To(panicWith(framework.ErrAlreadyBuilt))
		Expect(func() { b.ExportOutput(g.OutputPort(0), "") }).To(panicWith(framework.ErrAlreadyBuilt))
	})

	It("instantiates a blueprint only once", func() {
		b.AddLeafSystem(newGain("g", 1, 1))
		bp := b.Compile()
		framework.NewDiagram(bp)
		Expect(func() { framework.NewDiagram(bp) }).To(panicWith(framework.ErrAlreadyOwned))
	})

	It("rejects systems that are not registered", func() {
		g := newGain("g", 1, 1)
		h := newGain("h", 1, 1)
		b.AddLeafSystem(g)
		Expect(func() { b.Connect(g.OutputPort(0), h.InputPort(0)) }).To(panicWith(framework.ErrNotRegistered))
		Expect(func() { b.ExportInput(h.InputPort(0), "") }).To(panicWith(framework.ErrNotRegistered))
	})

	It("registers a system at most once", func() {
		g := newGain("g", 1, 1)
		b.AddLeafSystem(g)
		Expect(func() { b.AddLeafSystem(g) }).To(panicWith(framework.ErrAlreadyOwned))
		Expect(func() { framework.NewDiagramBuilder("other").AddLeafSystem(g) }).To(panicWith(framework.ErrAlreadyOwned))
	})

	It("rejects duplicate subsystem names", func() {
		b.AddLeafSystem(newGain("g", 1, 1))
		Expect(func() { b.AddLeafSystem(newGain("g", 2, 1)) }).To(panicWith(framework.ErrDuplicateName))
	})

	It("connects an input once", func() {
		g := newGain("g", 1, 1)
		h := newGain("h", 1, 1)
		k := newGain("k", 1, 1)
		b.AddLeafSystem(g)
		b.AddLeafSystem(h)
		b.AddLeafSystem(k)
		b.Connect(g.OutputPort(0), k.InputPort(0))
		Expect(func() { b.Connect(h.OutputPort(0), k.InputPort(0)) }).To(panicWith(framework.ErrAlreadyConnected))
		Expect(func() { b.ExportInput(k.InputPort(0), "") }).To(panicWith(framework.ErrAlreadyConnected))
	})

	It("does not connect an exported input", func() {
		g := newGain("g", 1, 1)
		h := newGain("h", 1, 1)
		b.AddLeafSystem(g)
		b.AddLeafSystem(h)
		b.ExportInput(h.InputPort(0), "")
		Expect(func() { b.Connect(g.OutputPort(0), h.InputPort(0)) }).To(panicWith(framework.ErrAlreadyConnected))
		Expect(func() { b.ExportInput(h.InputPort(0), "again") }).To(panicWith(framework.ErrAlreadyConnected))
	})

	It("rejects duplicate output names", func() {
		g := newGain("g", 1, 1)
		b.AddLeafSystem(g)
		b.ExportOutput(g.OutputPort(0), "y")
		Expect(func() { b.ExportOutput(g.OutputPort(0), "y") }).To(panicWith(framework.ErrDuplicateName))
	})

	It("checks vector widths and data types on connect", func() {
		g := newGain("g", 1, 2)
		h := newGain("h", 1, 3)
		sink := newLabelSink("sink")
		b.AddLeafSystem(g)
		b.AddLeafSystem(h)
		b.AddLeafSystem(sink)
		Expect(func() { b.Connect(g.OutputPort(0), h.InputPort(0)) }).To(panicWith(framework.ErrSizeMismatch))
		Expect(func() { b.Connect(g.OutputPort(0), sink.InputPort(0)) }).To(panicWith(framework.ErrDataTypeMismatch))
	})

	It("rejects mismatched abstract types when connecting", func() {
		src := newLabelSource("src", "x")
		sink := newCounterSink("sink")
		b.AddLeafSystem(src)
		b.AddLeafSystem(sink)
		Expect(func() { b.Connect(src.OutputPort(0), sink.InputPort(0)) }).To(panicWith(value.ErrTypeMismatch))
	})

	It("accepts matching abstract types", func() {
		src := newLabelSource("src", "x")
		sink := newLabelSink("sink")
		b.AddLeafSystem(src)
		b.AddLeafSystem(sink)
		b.Connect(src.OutputPort(0), sink.InputPort(0))

		d := b.Build()
		ctx := d.CreateDefaultContext()
		sub := d.SubsystemContext(ctx, sink)
		Expect(framework.EvalInput[label](sink.InputPort(0), sub).text).To(Equal("x"))
	})

	Describe("algebraic loops", func() {
		It("rejects a cycle through feedthrough outputs", func() {
			g := newGain("g", 1, 1)
			h := newGain("h", 1, 1)
			b.AddLeafSystem(g)
			b.AddLeafSystem(h)
			b.Connect(g.OutputPort(0), h.InputPort(0))
			b.Connect(h.OutputPort(0), g.InputPort(0))
			Expect(func() { b.Build() }).To(panicWith(framework.ErrAlgebraicLoop))
			Expect(b.IsBuilt()).To(BeFalse())
		})

		It("rejects a self loop", func() {
			g := newGain("g", 1, 1)
			b.AddLeafSystem(g)
			b.Connect(g.OutputPort(0), g.InputPort(0))
			Expect(func() { b.Compile() }).To(panicWith(framework.ErrAlgebraicLoop))
		})

		It("allows feedback through state", func() {
			g := newGain("g", -1, 1)
			x := newIntegrator("x", 1)
			b.AddLeafSystem(g)
			b.AddLeafSystem(x)
			b.Connect(x.OutputPort(0), g.InputPort(0))
			b.Connect(g.OutputPort(0), x.InputPort(0))
			b.ExportOutput(x.OutputPort(0), "x")
			d := b.Build()

			ctx := d.CreateDefaultContext()
			ctx.ContinuousState().Vector().SetFrom([]float64{4})
			derivs := d.AllocateTimeDerivatives()
			d.CalcTimeDerivatives(ctx, derivs)
			Expect(derivs.Vector()[0]).To(Equal(-4.0))
		})
	})

	Describe("feedthrough through nested diagrams", func() {
		var inner *framework.Diagram

		BeforeEach(func() {
			ib := framework.NewDiagramBuilder("inner")
			g1 := framework.Add(ib, newGain("g1", 2, 1))
			g2 := framework.Add(ib, newGain("g2", 10, 1))
			ib.ExportInput(g1.InputPort(0), "u1")
			ib.ExportInput(g2.InputPort(0), "u2")
			ib.ExportOutput(g1.OutputPort(0), "y")
			ib.ExportOutput(g2.OutputPort(0), "z")
			inner = ib.Build()
		})

		It("tracks which diagram inputs each output depends on", func() {
			Expect(inner.OutputPort(0).FeedthroughInputs()).To(Equal([]framework.InputPortIndex{0}))
			Expect(inner.OutputPort(1).FeedthroughInputs()).To(Equal([]framework.InputPortIndex{1}))
		})

		It("accepts an output wired back into an input it does not depend on", func() {
			src := newIntegrator("src", 1)
			b.AddLeafSystem(src)
			b.AddDiagram(inner)
			b.Connect(src.OutputPort(0), inner.InputPort(0))
			b.Connect(inner.OutputPort(0), inner.InputPort(1))
			b.ExportOutput(inner.OutputPort(1), "z")
			d := b.Build()

			ctx := d.CreateDefaultContext()
			d.SubsystemContext(ctx, src).ContinuousState().Vector().SetFrom([]float64{3})
			Expect(framework.Eval[vector.Vector](d.OutputPort(0), ctx)).To(Equal(vector.From(60)))
		})

		It("rejects an output wired back into an input it depends on", func() {
			b.AddDiagram(inner)
			b.Connect(inner.OutputPort(0), inner.InputPort(0))
			Expect(func() { b.Build() }).To(panicWith(framework.ErrAlgebraicLoop))
		})
	})

	Describe("partial feedthrough of leaf outputs", func() {
		newSelector := func(name string) *framework.LeafSystem {
			s := framework.NewLeafSystem(name)
			a := s.DeclareVectorInputPort("a", 1)
			s.DeclareVectorInputPort("b", 1)
			s.DeclareVectorOutputPort("y", 1, func(ctx *framework.LeafContext, out vector.Vector) {
				out.SetFrom(a.EvalVector(ctx))
			}, framework.WithFeedthroughFrom(a.Index()))
			return s
		}

		It("reports only the listed inputs", func() {
			s := newSelector("sel")
			Expect(s.OutputPort(0).HasDirectFeedthrough()).To(BeTrue())
			Expect(s.OutputPort(0).FeedthroughInputs()).To(Equal([]framework.InputPortIndex{0}))
		})

		It("accepts feedback into an input outside the list", func() {
			s := newSelector("sel")
			b.AddLeafSystem(s)
			b.Connect(s.OutputPort(0), s.InputPort(1))
			b.ExportInput(s.InputPort(0), "a")
			b.ExportOutput(s.OutputPort(0), "y")
			d := b.Build()
			Expect(d.OutputPort(0).FeedthroughInputs()).To(Equal([]framework.InputPortIndex{0}))
		})

		It("rejects feedback into a listed input", func() {
			s := newSelector("sel")
			b.AddLeafSystem(s)
			b.Connect(s.OutputPort(0), s.InputPort(0))
			Expect(func() { b.Build() }).To(panicWith(framework.ErrAlgebraicLoop))
		})

		It("rejects an undeclared input", func() {
			s := framework.NewLeafSystem("bad")
			Expect(func() {
				s.DeclareVectorOutputPort("y", 1, func(*framework.LeafContext, vector.Vector) {},
					framework.WithFeedthroughFrom(0))
			}).To(panicWith(framework.ErrIndexOutOfRange))
		})
	})

	It("leaves unconnected child inputs to be fixed on the subcontext", func() {
		g := newGain("g", 3, 1)
		b.AddLeafSystem(g)
		b.ExportOutput(g.OutputPort(0), "y")
		d := b.Build()
		ctx := d.CreateDefaultContext()
		Expect(func() { framework.Eval[[]float64](d.OutputPort(0), ctx) }).To(panicWith(framework.ErrUnresolvedInput))
	})
})
