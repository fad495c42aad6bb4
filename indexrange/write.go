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

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
)

// Write returns a copy of current in which the elements addressed by r are
// replaced by the elements of update, position for position. Elements
// outside the range are copied from current. Neither input is modified.
//
// Both bounds of every dimension must lie inside current, otherwise Write
// fails with BadIndexRangeNoData. At the innermost dimension of an array the
// element types of current and update must agree, otherwise Write fails with
// BadTypeMismatch. Strings and byte strings are copied by character and byte
// without a type check.
//
// A slice of interfaces is typed by its first non-nil element, so only that
// element takes part in the check. Write([]interface{}{int32(1), int32(2)},
// []interface{}{int32(5), "x"}, r) succeeds and yields a mixed slice; callers
// holding typed values should pass typed slices.
func Write(current, update interface{}, r *IndexRange) (result interface{}, err error) {
	if r == nil || len(r.Bounds) == 0 {
		return nil, opcua.NewStatusError(opcua.StatusBadIndexRangeInvalid, "no dimensions")
	}
	if current == nil || update == nil {
		return nil, noData("index range %s: nothing to write", r)
	}

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, noData("index range %s: %v", r, p)
		}
	}()

	out, err := writeAt(reflect.ValueOf(current), reflect.ValueOf(update), r.Bounds, 0)
	if err != nil {
		return nil, normalize(err)
	}
	return out.Interface(), nil
}

func writeAt(cur, upd reflect.Value, bounds []Bounds, dim int) (reflect.Value, error) {
	cur, upd = indirect(cur), indirect(upd)
	if !cur.IsValid() || !upd.IsValid() {
		return reflect.Value{}, noData("dimension %d: nil value", dim+1)
	}
	b := bounds[dim]
	terminal := dim == len(bounds)-1
	kind := classify(cur)

	if terminal && kind == KindSequence {
		ct := arrays.BoxedType(cur.Interface())
		ut := arrays.BoxedType(upd.Interface())
		if ct != ut {
			return reflect.Value{}, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "current=%s, update=%s", ct, ut)
		}
	}

	switch {
	case kind == KindString && terminal:
		if upd.Kind() != reflect.String {
			return reflect.Value{}, noData("dimension %d: update is %s, not a string", dim+1, upd.Type())
		}
		cs, us := []rune(cur.String()), []rune(upd.String())
		if err := checkBounds(b, len(cs), len(us), dim); err != nil {
			return reflect.Value{}, err
		}
		out := make([]rune, len(cs))
		copy(out, cs)
		copy(out[b.Low:b.High+1], us)
		return reflect.ValueOf(string(out)).Convert(cur.Type()), nil

	case kind == KindBytes && terminal:
		if classify(upd) != KindBytes {
			return reflect.Value{}, noData("dimension %d: update is %s, not a byte string", dim+1, upd.Type())
		}
		if err := checkBounds(b, cur.Len(), upd.Len(), dim); err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeSlice(cur.Type(), cur.Len(), cur.Len())
		reflect.Copy(out, cur)
		reflect.Copy(out.Slice(b.Low, b.High+1), upd)
		return out, nil

	case kind == KindSequence:
		if upd.Kind() != reflect.Slice {
			return reflect.Value{}, noData("dimension %d: update is not an array", dim+1)
		}
		if err := checkBounds(b, cur.Len(), upd.Len(), dim); err != nil {
			return reflect.Value{}, err
		}
		elemType := cur.Type().Elem()
		out := reflect.MakeSlice(cur.Type(), cur.Len(), cur.Len())
		reflect.Copy(out, cur)
		for i := b.Low; i <= b.High; i++ {
			var elem reflect.Value
			if terminal {
				elem = indirect(upd.Index(i - b.Low))
				if !elem.IsValid() {
					elem = reflect.Zero(elemType)
				}
			} else {
				var err error
				elem, err = writeAt(cur.Index(i), upd.Index(i-b.Low), bounds, dim+1)
				if err != nil {
					return reflect.Value{}, err
				}
			}
			if !elem.Type().AssignableTo(elemType) {
				return reflect.Value{}, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "dimension %d: cannot store %s in %s", dim+1, elem.Type(), cur.Type())
			}
			out.Index(i).Set(elem)
		}
		return out, nil

	default:
		return reflect.Value{}, noData("dimension %d is not addressable", dim+1)
	}
}

// checkBounds rejects a range that does not lie inside the current value or
// that the update is too short to fill.
func checkBounds(b Bounds, length, updateLen, dim int) error {
	if b.Low >= length || b.High >= length {
		return noData("dimension %d: bounds %s exceed length %d", dim+1, b, length)
	}
	if updateLen < b.Len() {
		return noData("dimension %d: update has %d elements, range needs %d", dim+1, updateLen, b.Len())
	}
	return nil
}
