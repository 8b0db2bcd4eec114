package primitives

import (
	"math"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// ConstantVectorSource outputs a fixed vector.
type ConstantVectorSource struct {
	*framework.LeafSystem
	v vector.Vector
}

func NewConstantVectorSource(name string, v vector.Vector) *ConstantVectorSource {
	s := &ConstantVectorSource{LeafSystem: framework.NewLeafSystem(name), v: v.Clone()}
	s.DeclareVectorOutputPort("y", len(v), func(_ *framework.LeafContext, y vector.Vector) {
		y.SetFrom(s.v)
	})
	return s
}

// Sine outputs y = A*sin(w*t + phi) in every element.
type Sine struct {
	*framework.LeafSystem
	Amplitude float64
	Frequency float64
	Phase     float64
}

func NewSine(name string, amplitude, frequency, phase float64, width int) *Sine {
	s := &Sine{
		LeafSystem: framework.NewLeafSystem(name),
		Amplitude:  amplitude,
		Frequency:  frequency,
		Phase:      phase,
	}
	s.DeclareVectorOutputPort("y", width, func(ctx *framework.LeafContext, y vector.Vector) {
		y.Fill(s.Amplitude * math.Sin(s.Frequency*ctx.Time()+s.Phase))
	})
	return s
}
