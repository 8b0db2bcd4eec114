package plants

import (
	"math"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// CartPole has generalized positions [x, theta], velocities
// [xdot, thetadot] and a horizontal force input. theta is measured from
// upright.
type CartPole struct {
	plant
	CartMass   float64
	PoleMass   float64
	PoleLength float64
	Gravity    float64
}

func NewCartPole(name string) *CartPole {
	c := &CartPole{
		plant:      newPlant(name, 2, "force", 1),
		CartMass:   1.0,
		PoleMass:   0.1,
		PoleLength: 1.0,
		Gravity:    9.81,
	}
	c.DeclareTimeDerivatives(c.derive)
	return c
}

func (c *CartPole) derive(ctx *framework.LeafContext, derivs *framework.ContinuousState) {
	x := ctx.ContinuousState()
	q, v := x.GeneralizedPosition(), x.GeneralizedVelocity()
	theta, vel, omega := q[1], v[0], v[1]
	force := c.input.EvalVector(ctx)[0]

	mc := c.CartMass
	mp := c.PoleMass
	l := c.PoleLength
	g := c.Gravity

	sint := math.Sin(theta)
	cost := math.Cos(theta)
	temp := (force + mp*l*omega*omega*sint) / (mc + mp)
	thetaacc := (g*sint - cost*temp) / (l * (4.0/3.0 - mp*cost*cost/(mc+mp)))
	xacc := temp - mp*l*thetaacc*cost/(mc+mp)

	derivs.GeneralizedPosition().SetFrom([]float64{vel, omega})
	derivs.GeneralizedVelocity().SetFrom([]float64{xacc, thetaacc})
}

func (c *CartPole) Energy(x vector.Vector) float64 {
	vel, theta, omega := x[2], x[1], x[3]
	mc, mp, l := c.CartMass, c.PoleMass, c.PoleLength
	ke := 0.5*(mc+mp)*vel*vel + mp*l*vel*omega*math.Cos(theta) + 0.5*mp*l*l*omega*omega*(4.0/3.0)
	pe := mp * c.Gravity * l * math.Cos(theta)
	return ke + pe
}

func (c *CartPole) Params() map[string]float64 {
	return map[string]float64{
		"cart_mass":   c.CartMass,
		"pole_mass":   c.PoleMass,
		"pole_length": c.PoleLength,
		"gravity":     c.Gravity,
	}
}

func (c *CartPole) SetParam(name string, value float64) error {
	switch name {
	case "cart_mass":
		c.CartMass = value
	case "pole_mass":
		c.PoleMass = value
	case "pole_length":
		c.PoleLength = value
	case "gravity":
		c.Gravity = value
	default:
		return unknownParam(name)
	}
	return nil
}
