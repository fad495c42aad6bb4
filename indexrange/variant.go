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
	opcua "github.com/edgeo-scada/opcua-typesys"
)

// ReadVariant applies Read to the value of v. The result keeps the built-in
// type of v.
func ReadVariant(v *opcua.Variant, r *IndexRange) (*opcua.Variant, error) {
	if v == nil {
		return nil, noData("index range %s: nil variant", r)
	}
	out, err := Read(v.Value, r)
	if err != nil {
		return nil, err
	}
	return opcua.NewVariant(v.Type, out), nil
}

// WriteVariant applies Write to the values of current and update. The result
// keeps the built-in type of current.
func WriteVariant(current, update *opcua.Variant, r *IndexRange) (*opcua.Variant, error) {
	if current == nil || update == nil {
		return nil, noData("index range %s: nothing to write", r)
	}
	out, err := Write(current.Value, update.Value, r)
	if err != nil {
		return nil, err
	}
	return opcua.NewVariant(current.Type, out), nil
}

// ReadDataValue applies Read to the value of dv. A bad or empty data value
// yields BadIndexRangeNoData; timestamps are kept.
func ReadDataValue(dv opcua.DataValue, r *IndexRange) (opcua.DataValue, error) {
	if dv.StatusCode.IsBad() || dv.Value == nil {
		return opcua.DataValue{}, noData("index range %s: no value", r)
	}
	v, err := ReadVariant(dv.Value, r)
	if err != nil {
		return opcua.DataValue{}, err
	}
	dv.Value = v
	return dv, nil
}
