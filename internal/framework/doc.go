// Package framework is the system/context composition engine.
//
// A system describes the static shape of a computational block. A context
// holds its mutable evaluation state. The two form parallel trees:
//
//   - [LeafSystem] / [LeafContext]: a block that computes its own outputs
//     and time derivatives through declared callbacks
//   - [Diagram] / [DiagramContext]: a composite whose ports forward to
//     registered children, with one child context per child system
//   - [DiagramBuilder]: records children, connections and exports, then
//     compiles a [DiagramBlueprint] into a [Diagram]
//   - [Cache]: per-context memoized values backing every output port
//   - [InputPort], [OutputPort]: typed, indexed connection points
//
// # Example
//
//	b := framework.NewDiagramBuilder("sum")
//	b.AddLeafSystem(a1)
//	b.AddLeafSystem(a2)
//	b.Connect(a1.OutputPort(0), a2.InputPort(0))
//	b.ExportInput(a1.InputPort(0), "u")
//	b.ExportOutput(a2.OutputPort(0), "y")
//	d := b.Build()
//	ctx := d.CreateDefaultContext()
//	d.InputPort(0).FixVector(ctx, vector.From(1, 2, 3))
//	y := framework.Eval[vector.Vector](d.OutputPort(0), ctx)
//
// # Failure model
//
// Wiring mistakes and invariant violations panic with an [*Error] wrapping
// one of the package sentinels, so callers that recover can still match
// them with errors.Is. Nothing is invalidated automatically: a cache entry
// is recomputed only while it is flagged out of date.
//
// # Thread Safety
//
// Systems are immutable once a context has been allocated and may be
// shared. Contexts are NOT safe for concurrent use.
package framework
