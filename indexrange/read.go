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
	"errors"
	"reflect"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

// Read returns the sub-region of value addressed by r as a new value of the
// same type. Nested slices are addressed one dimension per level; at the
// innermost addressed dimension a slice, string or byte string is sliced.
//
// A low bound at or past the end of a dimension fails with
// BadIndexRangeNoData, while a high bound past the end is clamped. Values
// that are nil, not addressable by a range, or shallower than the range also
// fail with BadIndexRangeNoData.
func Read(value interface{}, r *IndexRange) (result interface{}, err error) {
	if r == nil || len(r.Bounds) == 0 {
		return nil, opcua.NewStatusError(opcua.StatusBadIndexRangeInvalid, "no dimensions")
	}
	if Classify(value) == KindIncompatible {
		return nil, noData("%T is not addressable by index range %s", value, r)
	}

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, noData("index range %s: %v", r, p)
		}
	}()

	out, err := readAt(reflect.ValueOf(value), r.Bounds, 0)
	if err != nil {
		return nil, normalize(err)
	}
	return out.Interface(), nil
}

func readAt(v reflect.Value, bounds []Bounds, dim int) (reflect.Value, error) {
	v = indirect(v)
	b := bounds[dim]

	if dim < len(bounds)-1 {
		if classify(v) != KindSequence {
			return reflect.Value{}, noData("dimension %d is not an array", dim+1)
		}
		length := v.Len()
		if b.Low >= length {
			return reflect.Value{}, noData("dimension %d: low bound %d exceeds length %d", dim+1, b.Low, length)
		}
		n := min(b.High+1, length) - b.Low
		out := reflect.MakeSlice(v.Type(), n, n)
		for i := 0; i < n; i++ {
			elem, err := readAt(v.Index(b.Low+i), bounds, dim+1)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	}

	switch classify(v) {
	case KindSequence, KindBytes:
		length := v.Len()
		if b.Low >= length {
			return reflect.Value{}, noData("dimension %d: low bound %d exceeds length %d", dim+1, b.Low, length)
		}
		n := min(b.High+1, length) - b.Low
		out := reflect.MakeSlice(v.Type(), n, n)
		reflect.Copy(out, v.Slice(b.Low, b.Low+n))
		return out, nil

	case KindString:
		runes := []rune(v.String())
		if b.Low >= len(runes) {
			return reflect.Value{}, noData("dimension %d: low bound %d exceeds length %d", dim+1, b.Low, len(runes))
		}
		s := string(runes[b.Low:min(b.High+1, len(runes))])
		return reflect.ValueOf(s).Convert(v.Type()), nil

	default:
		return reflect.Value{}, noData("dimension %d is not addressable", dim+1)
	}
}

func noData(format string, args ...interface{}) error {
	return opcua.NewStatusError(opcua.StatusBadIndexRangeNoData, format, args...)
}

// normalize maps every failure other than a type mismatch to
// BadIndexRangeNoData.
func normalize(err error) error {
	var opcuaErr *opcua.OPCUAError
	if errors.As(err, &opcuaErr) {
		switch opcuaErr.StatusCode {
		case opcua.StatusBadIndexRangeNoData, opcua.StatusBadTypeMismatch:
			return err
		}
	}
	return noData("%v", err)
}
