// Package registry maps block kind names to factories that build leaf
// systems from a name, numeric params, an optional value vector and an
// optional expression.
package registry
