// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package arrays introspects and reshapes values of arbitrary nesting depth.
//
// A value is an array when its kind is slice; fixed-size Go arrays such as
// GUIDs are scalars. Nesting is measured along the first element of every
// level, so ragged arrays report the shape of their first branch.
package arrays

import (
	"fmt"
	"reflect"
)

// IsArray reports whether v is a slice.
func IsArray(v interface{}) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Slice
}

// Dimensions returns the length of every nesting level of v, outermost
// first. A scalar has no dimensions.
func Dimensions(v interface{}) []int {
	var dims []int
	rv := reflect.ValueOf(v)
	for {
		rv = indirect(rv)
		if !rv.IsValid() {
			return dims
		}
		if rv.Kind() != reflect.Slice {
			return dims
		}
		dims = append(dims, rv.Len())
		if rv.Len() == 0 {
			if depth := typeDepth(rv.Type().Elem()); depth > 0 {
				dims = append(dims, make([]int, depth)...)
			}
			return dims
		}
		rv = rv.Index(0)
	}
}

// ValueRank returns the number of dimensions of v, or -1 for a scalar.
func ValueRank(v interface{}) int {
	if !IsArray(v) {
		return -1
	}
	return len(Dimensions(v))
}

// ElemType returns the static element type at the innermost level of v. For
// a scalar it is the type of v itself.
func ElemType(v interface{}) reflect.Type {
	if v == nil {
		return nil
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}

// BoxedType returns the element type of v with interface levels resolved to
// the dynamic type of their first non-nil leaf. An array holding only nil
// interfaces resolves to the empty interface type.
func BoxedType(v interface{}) reflect.Type {
	t := ElemType(v)
	if t == nil || t.Kind() != reflect.Interface {
		return t
	}
	if leaf, ok := firstLeaf(reflect.ValueOf(v)); ok {
		return leaf.Type()
	}
	return t
}

// Flatten returns the leaf elements of v in row-major order.
func Flatten(v interface{}) []interface{} {
	return FlattenTo(v, -1)
}

// FlattenTo flattens the outer depth levels of v. A negative depth flattens
// every level.
func FlattenTo(v interface{}, depth int) []interface{} {
	var out []interface{}
	var walk func(rv reflect.Value, level int)
	walk = func(rv reflect.Value, level int) {
		rv = indirect(rv)
		if !rv.IsValid() {
			out = append(out, nil)
			return
		}
		if (depth >= 0 && level == depth) || (rv.Kind() != reflect.Slice) {
			out = append(out, rv.Interface())
			return
		}
		for i := 0; i < rv.Len(); i++ {
			walk(rv.Index(i), level+1)
		}
	}
	if v == nil {
		return nil
	}
	walk(reflect.ValueOf(v), 0)
	return out
}

// Unflatten rebuilds a nested array of the given dimensions from the
// row-major elements of flat, which must be a slice. The result has the
// element type of flat, nested once per dimension.
func Unflatten(flat interface{}, dims []int) (interface{}, error) {
	rv := reflect.ValueOf(flat)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("arrays: unflatten: %T is not a slice", flat)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("arrays: unflatten: no dimensions")
	}
	total := 1
	for _, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("arrays: unflatten: negative dimension %d", d)
		}
		total *= d
	}
	if total != rv.Len() {
		return nil, fmt.Errorf("arrays: unflatten: %d elements do not fill dimensions %v", rv.Len(), dims)
	}

	elem := rv.Type().Elem()
	pos := 0
	var build func(level int) reflect.Value
	build = func(level int) reflect.Value {
		if level == len(dims)-1 {
			out := reflect.MakeSlice(reflect.SliceOf(elem), dims[level], dims[level])
			reflect.Copy(out, rv.Slice(pos, pos+dims[level]))
			pos += dims[level]
			return out
		}
		t := nestedType(elem, len(dims)-level)
		out := reflect.MakeSlice(t, dims[level], dims[level])
		for i := 0; i < dims[level]; i++ {
			out.Index(i).Set(build(level + 1))
		}
		return out
	}
	return build(0).Interface(), nil
}

// Transform applies fn to every leaf of v and returns an array of the same
// shape whose element type is to. Values returned by fn must be assignable
// to to. A scalar v is transformed directly.
func Transform(v interface{}, to reflect.Type, fn func(interface{}) (interface{}, error)) (interface{}, error) {
	if !IsArray(v) {
		return fn(v)
	}
	rank := len(Dimensions(v))
	var walk func(rv reflect.Value, level int) (reflect.Value, error)
	walk = func(rv reflect.Value, level int) (reflect.Value, error) {
		rv = indirect(rv)
		if level == rank {
			var in interface{}
			if rv.IsValid() {
				in = rv.Interface()
			}
			out, err := fn(in)
			if err != nil {
				return reflect.Value{}, err
			}
			if out == nil {
				return reflect.Zero(to), nil
			}
			ov := reflect.ValueOf(out)
			if !ov.Type().AssignableTo(to) {
				if !ov.Type().ConvertibleTo(to) {
					return reflect.Value{}, fmt.Errorf("arrays: transform: %s is not assignable to %s", ov.Type(), to)
				}
				ov = ov.Convert(to)
			}
			return ov, nil
		}
		if rv.Kind() != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("arrays: transform: ragged array at level %d", level)
		}
		res := reflect.MakeSlice(nestedType(to, rank-level), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := walk(rv.Index(i), level+1)
			if err != nil {
				return reflect.Value{}, err
			}
			res.Index(i).Set(e)
		}
		return res, nil
	}
	out, err := walk(reflect.ValueOf(v), 0)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func nestedType(elem reflect.Type, depth int) reflect.Type {
	t := elem
	for i := 0; i < depth; i++ {
		t = reflect.SliceOf(t)
	}
	return t
}

func typeDepth(t reflect.Type) int {
	n := 0
	for t.Kind() == reflect.Slice {
		n++
		t = t.Elem()
	}
	return n
}

func firstLeaf(rv reflect.Value) (reflect.Value, bool) {
	rv = indirect(rv)
	if !rv.IsValid() {
		return reflect.Value{}, false
	}
	if rv.Kind() != reflect.Slice {
		return rv, true
	}
	for i := 0; i < rv.Len(); i++ {
		if leaf, ok := firstLeaf(rv.Index(i)); ok {
			return leaf, true
		}
	}
	return reflect.Value{}, false
}

// indirect unwraps interface values so that nested []interface{} arrays are
// measured by their dynamic contents.
func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}
