package plants

import (
	"fmt"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

const (
	DefaultMass      = 1.0
	DefaultStiffness = 10.0
	DefaultDamping   = 0.5
)

// SpringMass is a chain of n masses, the first anchored to a wall by a
// spring and optionally the last to a second wall. State is
// [positions..., velocities...]; the force input acts on the first mass.
type SpringMass struct {
	plant
	NumMasses int
	Masses    []float64
	// Stiffness has n entries, or n+1 when the chain ends on a wall.
	Stiffness []float64
	Damping   []float64
}

func NewSpringMass(name string) *SpringMass {
	s := &SpringMass{
		plant:     newPlant(name, 1, "force", 1),
		NumMasses: 1,
		Masses:    []float64{DefaultMass},
		Stiffness: []float64{DefaultStiffness},
		Damping:   []float64{DefaultDamping},
	}
	s.DeclareTimeDerivatives(s.derive)
	return s
}

func NewSpringMassChain(name string, n int) *SpringMass {
	masses := make([]float64, n)
	stiffness := make([]float64, n+1)
	damping := make([]float64, n)
	for i := range n {
		masses[i] = DefaultMass
		stiffness[i] = DefaultStiffness
		damping[i] = 0.2
	}
	stiffness[n] = DefaultStiffness
	s := &SpringMass{
		plant:     newPlant(name, n, "force", 1),
		NumMasses: n,
		Masses:    masses,
		Stiffness: stiffness,
		Damping:   damping,
	}
	s.DeclareTimeDerivatives(s.derive)
	return s
}

func (s *SpringMass) derive(ctx *framework.LeafContext, derivs *framework.ContinuousState) {
	n := s.NumMasses
	x := ctx.ContinuousState()
	pos, vel := x.GeneralizedPosition(), x.GeneralizedVelocity()
	extForce := s.input.EvalVector(ctx)[0]

	derivs.GeneralizedPosition().SetFrom(vel)
	acc := derivs.GeneralizedVelocity()
	for i := range n {
		var forceLeft, forceRight float64
		if i == 0 {
			forceLeft = -s.Stiffness[0] * pos[0]
		} else {
			forceLeft = -s.Stiffness[i] * (pos[i] - pos[i-1])
		}
		if i == n-1 {
			if len(s.Stiffness) > n {
				forceRight = -s.Stiffness[n] * pos[i]
			}
		} else {
			forceRight = -s.Stiffness[i+1] * (pos[i] - pos[i+1])
		}

		total := forceLeft + forceRight - s.Damping[i]*vel[i]
		if i == 0 {
			total += extForce
		}
		acc[i] = total / s.Masses[i]
	}
}

func (s *SpringMass) Energy(x vector.Vector) float64 {
	n := s.NumMasses
	energy := 0.0
	for i := range n {
		v := x[n+i]
		energy += 0.5 * s.Masses[i] * v * v
	}
	for i := range n {
		pos := x[i]
		if i == 0 {
			energy += 0.5 * s.Stiffness[0] * pos * pos
		} else {
			stretch := pos - x[i-1]
			energy += 0.5 * s.Stiffness[i] * stretch * stretch
		}
	}
	if len(s.Stiffness) > n {
		energy += 0.5 * s.Stiffness[n] * x[n-1] * x[n-1]
	}
	return energy
}

// Params reports the parameters of the first mass; SetParam applies a
// value to every mass or spring.
func (s *SpringMass) Params() map[string]float64 {
	return map[string]float64{
		"mass":      s.Masses[0],
		"stiffness": s.Stiffness[0],
		"damping":   s.Damping[0],
	}
}

func (s *SpringMass) SetParam(name string, value float64) error {
	var target []float64
	switch name {
	case "mass":
		if value <= 0 {
			return fmt.Errorf("plants: mass must be positive, got %g", value)
		}
		target = s.Masses
	case "stiffness":
		target = s.Stiffness
	case "damping":
		target = s.Damping
	default:
		return unknownParam(name)
	}
	for i := range target {
		target[i] = value
	}
	return nil
}
