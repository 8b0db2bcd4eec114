package framework

import "github.com/san-kum/blocksim/internal/vector"

// ContinuousState is a state vector partitioned into generalized positions
// (q), generalized velocities (v) and miscellaneous states (z).
//
// A diagram's state is the concatenation of its children's states in
// registration order. Each child's vector is a view into the parent
// storage, so writes through either are visible to both.
type ContinuousState struct {
	vec   vector.Vector
	sizes ContextSizes
	subs  []*ContinuousState
}

// NewContinuousState wraps v, which must have exactly numQ+numV+numZ elements.
func NewContinuousState(v vector.Vector, numQ, numV, numZ int) *ContinuousState {
	sizes := ContextSizes{NumPositions: numQ, NumVelocities: numV, NumMisc: numZ}
	if numQ < 0 || numV < 0 || numZ < 0 || sizes.Total() != len(v) {
		fail("continuous state", "", ErrSizeMismatch, "%d != %d + %d + %d", len(v), numQ, numV, numZ)
	}
	return &ContinuousState{vec: v, sizes: sizes}
}

func newDiagramContinuousState(subs []*ContinuousState) *ContinuousState {
	var sizes ContextSizes
	for _, s := range subs {
		sizes = sizes.Add(s.sizes)
	}
	cs := &ContinuousState{
		vec:   vector.Zeros(sizes.Total()),
		sizes: sizes,
		subs:  subs,
	}
	cs.rebind(cs.vec)
	return cs
}

// rebind moves the state into storage, which then becomes its backing
// vector, and does the same for every substate.
func (cs *ContinuousState) rebind(storage vector.Vector) {
	if len(cs.subs) == 0 {
		storage.SetFrom(cs.vec)
		cs.vec = storage
		return
	}
	cs.vec = storage
	offset := 0
	for _, s := range cs.subs {
		n := s.Len()
		s.rebind(storage.Segment(offset, n))
		offset += n
	}
}

func (cs *ContinuousState) Len() int { return len(cs.vec) }

func (cs *ContinuousState) Sizes() ContextSizes { return cs.sizes }

// Vector returns the full state as a view.
func (cs *ContinuousState) Vector() vector.Vector { return cs.vec }

func (cs *ContinuousState) SetFromVector(xs []float64) {
	if len(xs) != len(cs.vec) {
		fail("continuous state", "", ErrSizeMismatch, "got %d values, want %d", len(xs), len(cs.vec))
	}
	cs.vec.SetFrom(xs)
}

func (cs *ContinuousState) SetFrom(other *ContinuousState) {
	cs.SetFromVector(other.vec)
}

func (cs *ContinuousState) IsComposite() bool { return cs.subs != nil }

func (cs *ContinuousState) NumSubstates() int { return len(cs.subs) }

// Substate returns the view of the i-th child's state.
func (cs *ContinuousState) Substate(i SubsystemIndex) *ContinuousState {
	if i < 0 || int(i) >= len(cs.subs) {
		fail("continuous state", "", ErrIndexOutOfRange, "substate %d, have %d", i, len(cs.subs))
	}
	return cs.subs[i]
}

func (cs *ContinuousState) GeneralizedPosition() vector.Vector {
	cs.mustBeLeaf()
	return cs.vec.Segment(0, cs.sizes.NumPositions)
}

func (cs *ContinuousState) GeneralizedVelocity() vector.Vector {
	cs.mustBeLeaf()
	return cs.vec.Segment(cs.sizes.NumPositions, cs.sizes.NumVelocities)
}

func (cs *ContinuousState) MiscContinuousState() vector.Vector {
	cs.mustBeLeaf()
	return cs.vec.Segment(cs.sizes.NumPositions+cs.sizes.NumVelocities, cs.sizes.NumMisc)
}

func (cs *ContinuousState) mustBeLeaf() {
	if cs.subs != nil {
		fail("continuous state", "", ErrCompositeState, "use Substate on a diagram state")
	}
}
