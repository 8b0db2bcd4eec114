package framework

import (
	"fmt"
	"sync/atomic"
)

// SystemID identifies a system for the lifetime of the process.
type SystemID int64

var lastSystemID atomic.Int64

func newSystemID() SystemID {
	return SystemID(lastSystemID.Add(1))
}

type (
	InputPortIndex  int
	OutputPortIndex int
	CacheIndex      int
	// SubsystemIndex is the registration position of a child in its diagram.
	SubsystemIndex int
)

type PortDataType int

const (
	VectorValued PortDataType = iota
	AbstractValued
)

func (t PortDataType) String() string {
	switch t {
	case VectorValued:
		return "vector"
	case AbstractValued:
		return "abstract"
	default:
		return fmt.Sprintf("PortDataType(%d)", int(t))
	}
}

// ContextSizes partitions continuous state into generalized positions,
// generalized velocities and miscellaneous states.
type ContextSizes struct {
	NumPositions  int
	NumVelocities int
	NumMisc       int
}

func (s ContextSizes) Total() int {
	return s.NumPositions + s.NumVelocities + s.NumMisc
}

func (s ContextSizes) Add(o ContextSizes) ContextSizes {
	return ContextSizes{
		NumPositions:  s.NumPositions + o.NumPositions,
		NumVelocities: s.NumVelocities + o.NumVelocities,
		NumMisc:       s.NumMisc + o.NumMisc,
	}
}

// InputPortLocator addresses an input port across systems.
type InputPortLocator struct {
	System SystemID
	Index  InputPortIndex
}

// OutputPortLocator addresses an output port across systems.
type OutputPortLocator struct {
	System SystemID
	Index  OutputPortIndex
}
