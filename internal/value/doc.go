// Package value provides the type-erased container that backs every port,
// cache slot and fixed input in the framework.
//
//   - [AbstractValue]: the erased interface (clone, in-place overwrite, type tag)
//   - [Value]: the concrete holder for one Go type
//   - [Get] / [TryGet]: checked downcasts
//
// A slot, once populated with a Value[T], must only ever be written with
// another Value[T]. Violations panic with an error wrapping [ErrTypeMismatch];
// they indicate a wiring bug, not a runtime condition.
package value
