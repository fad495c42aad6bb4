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

package indexrange

import (
	"reflect"

	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
)

// Kind classifies a value by how an index range addresses it.
type Kind int

// Value kinds.
const (
	// KindIncompatible values cannot be addressed by an index range.
	KindIncompatible Kind = iota
	// KindSequence is a slice, possibly nested.
	KindSequence
	// KindString is a string addressed by character.
	KindString
	// KindBytes is a byte string addressed by byte.
	KindBytes
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "Sequence"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	default:
		return "Incompatible"
	}
}

// Shape describes a value for index range evaluation.
type Shape struct {
	Kind Kind
	// Dimensions holds the length of every nesting level. A string or byte
	// string has one dimension.
	Dimensions []int
}

// Rank returns the number of dimensions, or -1 for an incompatible value.
func (s Shape) Rank() int {
	if s.Kind == KindIncompatible {
		return -1
	}
	return len(s.Dimensions)
}

// Classify returns the kind of v.
func Classify(v interface{}) Kind {
	return classify(reflect.ValueOf(v))
}

// ShapeOf returns the kind and dimensions of v.
func ShapeOf(v interface{}) Shape {
	switch k := Classify(v); k {
	case KindSequence:
		return Shape{Kind: k, Dimensions: arrays.Dimensions(v)}
	case KindString:
		return Shape{Kind: k, Dimensions: []int{len([]rune(reflect.ValueOf(v).String()))}}
	case KindBytes:
		return Shape{Kind: k, Dimensions: []int{reflect.ValueOf(v).Len()}}
	default:
		return Shape{Kind: KindIncompatible}
	}
}

func classify(rv reflect.Value) Kind {
	rv = indirect(rv)
	if !rv.IsValid() {
		return KindIncompatible
	}
	switch rv.Kind() {
	case reflect.String:
		return KindString
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return KindBytes
		}
		return KindSequence
	default:
		return KindIncompatible
	}
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}
