package framework

import (
	"weak"

	"github.com/san-kum/blocksim/internal/value"
)

// Context is the mutable evaluation state of one system.
type Context interface {
	SystemID() SystemID
	Time() float64
	SetTime(t float64)
	ContinuousState() *ContinuousState
	Cache() *Cache
	NumInputPorts() int
	// FixInputPort stores v as the value of input i, replacing any earlier one.
	FixInputPort(i InputPortIndex, v value.AbstractValue)
	// FixedInputPortValue returns nil until input i has been fixed.
	FixedInputPortValue(i InputPortIndex) value.AbstractValue
	// Parent returns the enclosing diagram context, or nil for a root.
	Parent() *DiagramContext
	IsInitialized() bool
	MarkCachesOutOfDate()

	base() *ContextBase
}

// ContextBase carries the state shared by leaf and diagram contexts.
type ContextBase struct {
	systemID    SystemID
	time        float64
	state       *ContinuousState
	cache       Cache
	fixedInputs []value.AbstractValue
	parent      weak.Pointer[DiagramContext]
	hasParent   bool
	initialized bool
}

func (c *ContextBase) SystemID() SystemID { return c.systemID }
func (c *ContextBase) Time() float64      { return c.time }
func (c *ContextBase) SetTime(t float64)  { c.time = t }

func (c *ContextBase) ContinuousState() *ContinuousState { return c.state }
func (c *ContextBase) Cache() *Cache                     { return &c.cache }
func (c *ContextBase) NumInputPorts() int                { return len(c.fixedInputs) }
func (c *ContextBase) IsInitialized() bool               { return c.initialized }

func (c *ContextBase) FixInputPort(i InputPortIndex, v value.AbstractValue) {
	c.checkInput(i)
	c.fixedInputs[i] = v
}

func (c *ContextBase) FixedInputPortValue(i InputPortIndex) value.AbstractValue {
	c.checkInput(i)
	return c.fixedInputs[i]
}

func (c *ContextBase) Parent() *DiagramContext {
	if !c.hasParent {
		return nil
	}
	p := c.parent.Value()
	if p == nil {
		fail("context", "", ErrOwnerReleased, "parent context of system %d", c.systemID)
	}
	return p
}

func (c *ContextBase) MarkCachesOutOfDate() { c.cache.MarkAllOutOfDate() }

func (c *ContextBase) base() *ContextBase { return c }

func (c *ContextBase) setParent(p *DiagramContext) {
	c.parent = weak.Make(p)
	c.hasParent = true
}

func (c *ContextBase) checkInput(i InputPortIndex) {
	if i < 0 || int(i) >= len(c.fixedInputs) {
		fail("context", "", ErrIndexOutOfRange, "input port %d, have %d", i, len(c.fixedInputs))
	}
}

// LeafContext is the context of a [LeafSystem].
type LeafContext struct {
	ContextBase
}

// DiagramContext owns one child context per subsystem, in registration order.
type DiagramContext struct {
	ContextBase
	contexts []Context
}

func (c *DiagramContext) NumSubcontexts() int { return len(c.contexts) }

// GetContext returns the context of the subsystem registered at position i.
func (c *DiagramContext) GetContext(i SubsystemIndex) Context {
	if i < 0 || int(i) >= len(c.contexts) {
		fail("diagram context", "", ErrIndexOutOfRange, "subsystem %d, have %d", i, len(c.contexts))
	}
	return c.contexts[i]
}

// SetTime sets the time of this context and every descendant.
func (c *DiagramContext) SetTime(t float64) {
	c.time = t
	for _, sub := range c.contexts {
		sub.SetTime(t)
	}
}

func (c *DiagramContext) MarkCachesOutOfDate() {
	c.cache.MarkAllOutOfDate()
	for _, sub := range c.contexts {
		sub.MarkCachesOutOfDate()
	}
}
