// Package plants provides physical models as leaf systems with continuous
// state:
//
//   - [Pendulum]: damped pendulum driven by a torque
//   - [SpringMass]: chain of masses joined by springs, force on the first
//   - [CartPole]: inverted pendulum on a forced cart
//
// Each plant has one force-like input, outputs its full state without
// direct feedthrough, and implements [Configurable] so parameters can be
// changed by name.
//
// # Energy
//
//	p := plants.NewPendulum("pendulum")
//	ctx := p.CreateDefaultContext()
//	e := p.Energy(ctx.ContinuousState().Vector())
package plants
