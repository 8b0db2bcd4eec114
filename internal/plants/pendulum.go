package plants

import (
	"math"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// Pendulum has state [theta, omega] and a torque input.
type Pendulum struct {
	plant
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum(name string) *Pendulum {
	p := &Pendulum{
		plant:   newPlant(name, 1, "torque", 1),
		Mass:    1.0,
		Length:  1.0,
		Damping: 0.1,
		Gravity: 9.81,
	}
	p.DeclareTimeDerivatives(p.derive)
	return p
}

func (p *Pendulum) derive(ctx *framework.LeafContext, derivs *framework.ContinuousState) {
	x := ctx.ContinuousState()
	theta := x.GeneralizedPosition()[0]
	omega := x.GeneralizedVelocity()[0]
	torque := p.input.EvalVector(ctx)[0]

	alpha := (-p.Damping*omega - p.Mass*p.Gravity*p.Length*math.Sin(theta) + torque) / (p.Mass * p.Length * p.Length)

	derivs.GeneralizedPosition()[0] = omega
	derivs.GeneralizedVelocity()[0] = alpha
}

func (p *Pendulum) Energy(x vector.Vector) float64 {
	// KE = 0.5 * m * (L*omega)^2
	// PE = m * g * L * (1 - cos(theta))
	v := p.Length * x[1]
	ke := 0.5 * p.Mass * v * v
	pe := p.Mass * p.Gravity * p.Length * (1.0 - math.Cos(x[0]))
	return ke + pe
}

func (p *Pendulum) Params() map[string]float64 {
	return map[string]float64{
		"mass":    p.Mass,
		"length":  p.Length,
		"damping": p.Damping,
		"gravity": p.Gravity,
	}
}

func (p *Pendulum) SetParam(name string, value float64) error {
	switch name {
	case "mass":
		p.Mass = value
	case "length":
		p.Length = value
	case "damping":
		p.Damping = value
	case "gravity":
		p.Gravity = value
	default:
		return unknownParam(name)
	}
	return nil
}
