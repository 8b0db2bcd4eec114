// Package primitives provides ready-made leaf systems: sums, gains,
// sources, integrators, a PID controller, affine state-space systems and
// CEL expression blocks.
//
// Every constructor takes the block name first; names must be unique
// within a diagram.
package primitives
