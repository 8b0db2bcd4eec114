package value

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrTypeMismatch is wrapped by every panic raised for a checked cast or
// overwrite between different concrete types.
var ErrTypeMismatch = errors.New("value: type mismatch")

// AbstractValue is a type-erased box holding exactly one concrete type.
type AbstractValue interface {
	// Clone returns an independent copy.
	Clone() AbstractValue
	// SetFrom overwrites the held value from other, which must hold the same type.
	SetFrom(other AbstractValue)
	// TypeTag identifies the held type.
	TypeTag() reflect.Type
	// Interface returns the held value as an any.
	Interface() any
}

// Cloner lets a held type provide its own copy. Types that do not
// implement it are copied by value, with slices, maps and arrays of them
// duplicated element by element.
type Cloner[T any] interface {
	Clone() T
}

// Value holds a single T.
type Value[T any] struct {
	v T
}

// New wraps v.
func New[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

// Get returns the held value.
func (v *Value[T]) Get() T { return v.v }

// Ptr returns a pointer to the held value for in-place mutation.
func (v *Value[T]) Ptr() *T { return &v.v }

// Set replaces the held value.
func (v *Value[T]) Set(x T) { v.v = copyOf(x) }

func (v *Value[T]) Clone() AbstractValue {
	return &Value[T]{v: copyOf(v.v)}
}

func (v *Value[T]) SetFrom(other AbstractValue) {
	o, ok := other.(*Value[T])
	if !ok {
		panic(mismatch(v.TypeTag(), other))
	}
	v.v = copyOf(o.v)
}

func (v *Value[T]) TypeTag() reflect.Type {
	return reflect.TypeFor[T]()
}

func (v *Value[T]) Interface() any { return v.v }

func (v *Value[T]) String() string {
	return fmt.Sprintf("%v", v.v)
}

// Get downcasts av to T, panicking on mismatch.
func Get[T any](av AbstractValue) T {
	x, ok := TryGet[T](av)
	if !ok {
		panic(mismatch(reflect.TypeFor[T](), av))
	}
	return x
}

// TryGet downcasts av to T.
func TryGet[T any](av AbstractValue) (T, bool) {
	v, ok := av.(*Value[T])
	if !ok {
		var zero T
		return zero, false
	}
	return v.v, true
}

// SameType reports whether a and b hold the same concrete type.
func SameType(a, b AbstractValue) bool {
	return a.TypeTag() == b.TypeTag()
}

func copyOf[T any](x T) T {
	if c, ok := any(x).(Cloner[T]); ok {
		return c.Clone()
	}
	rv := reflect.ValueOf(&x).Elem()
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return deepCopy(rv).Interface().(T)
	}
	return x
}

// deepCopy duplicates the slice, map and array layers of v. Pointers,
// channels, funcs and struct fields are copied shallowly.
func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		if !nested(v.Type().Elem()) {
			reflect.Copy(out, v)
			return out
		}
		for i := range v.Len() {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		if nested(v.Type().Elem()) {
			for i := range v.Len() {
				out.Index(i).Set(deepCopy(v.Index(i)))
			}
		}
		return out
	}
	return v
}

func nested(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return true
	}
	return false
}

func mismatch(want reflect.Type, got AbstractValue) error {
	if got == nil {
		return fmt.Errorf("%w: want %v, got nil", ErrTypeMismatch, want)
	}
	return fmt.Errorf("%w: want %v, got %v", ErrTypeMismatch, want, got.TypeTag())
}
