package primitives

import (
	"fmt"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// AffineSystem is the continuous-time state-space system
//
//	dx/dt = A*x + B*u + f0
//	y     = C*x + D*u + y0
//
// The output has direct feedthrough only when D is non-zero.
type AffineSystem struct {
	*framework.LeafSystem
	a, b, c, d vector.Matrix
	f0, y0     vector.Vector

	u *framework.InputPort
}

// AffineParams holds the matrices of an [AffineSystem]. Empty members are
// treated as zero of the size implied by the others.
type AffineParams struct {
	A, B, C, D vector.Matrix
	F0, Y0     vector.Vector
}

func NewAffineSystem(name string, p AffineParams) (*AffineSystem, error) {
	for _, m := range []vector.Matrix{p.A, p.B, p.C, p.D} {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDimension, err)
		}
	}
	nx, err := agree("states", p.A.Rows(), p.A.Cols(), p.B.Rows(), len(p.F0), p.C.Cols())
	if err != nil {
		return nil, err
	}
	nu, err := agree("inputs", p.B.Cols(), p.D.Cols())
	if err != nil {
		return nil, err
	}
	ny, err := agree("outputs", p.C.Rows(), p.D.Rows(), len(p.Y0))
	if err != nil {
		return nil, err
	}
	if ny == 0 {
		return nil, fmt.Errorf("%w: affine system has no outputs", ErrDimension)
	}

	s := &AffineSystem{
		LeafSystem: framework.NewLeafSystem(name),
		a:          orZero(p.A, nx, nx),
		b:          orZero(p.B, nx, nu),
		c:          orZero(p.C, ny, nx),
		d:          orZero(p.D, ny, nu),
		f0:         orZeroVec(p.F0, nx),
		y0:         orZeroVec(p.Y0, ny),
	}
	s.DeclareContinuousState(0, 0, nx)
	s.u = s.DeclareVectorInputPort("u", nu)

	var opts []framework.OutputOption
	if s.d.IsZero() {
		opts = append(opts, framework.WithoutFeedthrough())
	}
	s.DeclareVectorOutputPort("y", ny, s.calcOutput, opts...)
	s.DeclareTimeDerivatives(s.calcDerivatives)
	return s, nil
}

func (s *AffineSystem) NumStates() int  { return len(s.f0) }
func (s *AffineSystem) NumInputs() int  { return s.u.Size() }
func (s *AffineSystem) NumOutputs() int { return len(s.y0) }

func (s *AffineSystem) input(ctx *framework.LeafContext) vector.Vector {
	if s.u.Size() == 0 {
		return nil
	}
	return s.u.EvalVector(ctx)
}

func (s *AffineSystem) calcDerivatives(ctx *framework.LeafContext, derivs *framework.ContinuousState) {
	x := ctx.ContinuousState().Vector()
	dx := s.a.MulVec(x).Add(s.f0)
	if u := s.input(ctx); u != nil {
		dx.AddInPlace(s.b.MulVec(u))
	}
	derivs.SetFromVector(dx)
}

func (s *AffineSystem) calcOutput(ctx *framework.LeafContext, y vector.Vector) {
	x := ctx.ContinuousState().Vector()
	out := s.c.MulVec(x).Add(s.y0)
	if !s.d.IsZero() {
		out.AddInPlace(s.d.MulVec(s.input(ctx)))
	}
	y.SetFrom(out)
}

// agree returns the single non-zero size among sizes, or an error if two
// non-zero sizes differ.
func agree(what string, sizes ...int) (int, error) {
	n := 0
	for _, s := range sizes {
		if s == 0 {
			continue
		}
		if n != 0 && s != n {
			return 0, fmt.Errorf("%w: %s disagree (%d vs %d)", ErrDimension, what, n, s)
		}
		n = s
	}
	return n, nil
}

func orZero(m vector.Matrix, rows, cols int) vector.Matrix {
	if m.Rows() == 0 {
		return vector.NewMatrix(rows, cols)
	}
	return m
}

func orZeroVec(v vector.Vector, n int) vector.Vector {
	if len(v) == 0 {
		return vector.Zeros(n)
	}
	return v.Clone()
}
