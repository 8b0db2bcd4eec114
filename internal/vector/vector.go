// Package vector provides the dense numeric vector used for port signals and
// continuous state.
//
// A [Vector] is a plain []float64. Segments returned by [Vector.Segment] share
// storage with the parent, which is how diagram states expose per-child views.
package vector

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Vector []float64

// Zeros returns a zero vector of length n.
func Zeros(n int) Vector {
	if n < 0 {
		panic(fmt.Sprintf("vector: negative length %d", n))
	}
	return make(Vector, n)
}

// From copies xs into a new vector.
func From(xs ...float64) Vector {
	v := make(Vector, len(xs))
	copy(v, xs)
	return v
}

func (v Vector) Len() int { return len(v) }

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) Add(other Vector) Vector {
	mustMatch(v, other)
	r := make(Vector, len(v))
	for i := range v {
		r[i] = v[i] + other[i]
	}
	return r
}

func (v Vector) Sub(other Vector) Vector {
	mustMatch(v, other)
	r := make(Vector, len(v))
	for i := range v {
		r[i] = v[i] - other[i]
	}
	return r
}

func (v Vector) Scale(k float64) Vector {
	r := make(Vector, len(v))
	for i := range v {
		r[i] = v[i] * k
	}
	return r
}

// AddInPlace accumulates other into v.
func (v Vector) AddInPlace(other Vector) {
	mustMatch(v, other)
	for i := range v {
		v[i] += other[i]
	}
}

func (v Vector) Dot(other Vector) float64 {
	mustMatch(v, other)
	var s float64
	for i := range v {
		s += v[i] * other[i]
	}
	return s
}

// Segment returns a view of n elements starting at start. Writes through the
// view are visible in v.
func (v Vector) Segment(start, n int) Vector {
	if start < 0 || n < 0 || start+n > len(v) {
		panic(fmt.Sprintf("vector: segment [%d:%d] out of range for length %d", start, start+n, len(v)))
	}
	return v[start : start+n : start+n]
}

// SetFrom overwrites v with xs, which must have the same length.
func (v Vector) SetFrom(xs []float64) {
	if len(xs) != len(v) {
		panic(fmt.Sprintf("vector: size mismatch %d != %d", len(v), len(xs)))
	}
	copy(v, xs)
}

func (v Vector) Fill(x float64) {
	for i := range v {
		v[i] = x
	}
}

func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// ApproxEqual compares elementwise with an absolute tolerance.
func (v Vector) ApproxEqual(other Vector, tol float64) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if math.Abs(v[i]-other[i]) > tol {
			return false
		}
	}
	return true
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func mustMatch(a, b Vector) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector: size mismatch %d != %d", len(a), len(b)))
	}
}
