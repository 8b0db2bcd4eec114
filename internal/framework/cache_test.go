package framework_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/value"
	"github.com/san-kum/blocksim/internal/vector"
)

var _ = Describe("Cache", func() {
	var (
		src   *framework.LeafSystem
		calls int
		idx   framework.CacheIndex
	)

	BeforeEach(func() {
		calls = 0
		src = framework.NewLeafSystem("counter")
		idx = src.DeclareVectorCacheEntry("ramp", 2, func(ctx *framework.LeafContext, out vector.Vector) {
			calls++
			out.SetFrom([]float64{ctx.Time(), float64(calls)})
		})
	})

	It("starts every slot out of date with its allocated type", func() {
		ctx := src.CreateDefaultContext()
		Expect(ctx.Cache().Len()).To(Equal(1))
		Expect(ctx.Cache().IsOutOfDate(idx)).To(BeTrue())
		Expect(value.Get[vector.Vector](ctx.Cache().Value(idx))).To(Equal(vector.Zeros(2)))
	})

	It("computes once until marked out of date", func() {
		ctx := src.CreateDefaultContext()
		first := framework.EvalCache[vector.Vector](src, ctx, idx)
		second := framework.EvalCache[vector.Vector](src, ctx, idx)
		Expect(calls).To(Equal(1))
		Expect(second).To(Equal(first))

		ctx.SetTime(3)
		Expect(framework.EvalCache[vector.Vector](src, ctx, idx)).To(Equal(first))

		ctx.MarkCachesOutOfDate()
		Expect(framework.EvalCache[vector.Vector](src, ctx, idx)).To(Equal(vector.From(3, 2)))
		Expect(calls).To(Equal(2))
	})

	It("marks a single slot out of date", func() {
		ctx := src.CreateDefaultContext()
		framework.EvalCache[vector.Vector](src, ctx, idx)
		Expect(ctx.Cache().IsOutOfDate(idx)).To(BeFalse())
		ctx.Cache().MarkOutOfDate(idx)
		Expect(ctx.Cache().IsOutOfDate(idx)).To(BeTrue())
	})

	It("returns copies that do not alias the slot", func() {
		ctx := src.CreateDefaultContext()
		v := framework.EvalCache[vector.Vector](src, ctx, idx)
		v[0] = 99
		Expect(framework.EvalCache[vector.Vector](src, ctx, idx)[0]).To(Equal(0.0))
	})

	It("returns copies of plain slice payloads", func() {
		sys := framework.NewLeafSystem("samples")
		out := sys.DeclareAbstractOutputPort("y",
			func() value.AbstractValue { return value.New([]float64{}) },
			func(ctx *framework.LeafContext, dst value.AbstractValue) {
				calls++
				dst.SetFrom(value.New([]float64{1, 2}))
			})
		ctx := sys.CreateDefaultContext()

		got := framework.Eval[[]float64](out, ctx)
		got[0] = -5
		Expect(framework.Eval[[]float64](out, ctx)).To(Equal([]float64{1, 2}))
		Expect(calls).To(Equal(1))

		peek := value.Get[[]float64](ctx.Cache().Value(out.CacheIndex()))
		peek[1] = -7
		Expect(framework.Eval[[]float64](out, ctx)).To(Equal([]float64{1, 2}))
	})

	It("keeps contexts independent", func() {
		a := src.CreateDefaultContext()
		b := src.CreateDefaultContext()
		framework.EvalCache[vector.Vector](src, a, idx)
		Expect(b.Cache().IsOutOfDate(idx)).To(BeTrue())
	})

	It("rejects an out-of-range index", func() {
		ctx := src.CreateDefaultContext()
		Expect(func() { ctx.Cache().MarkOutOfDate(5) }).To(panicWith(framework.ErrIndexOutOfRange))
	})
})
