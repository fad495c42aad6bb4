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

package memspace

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
)

// ParseValue parses YAML text into a Variant of built-in type t. Sequences
// become arrays and nested sequences matrices, e.g. "[[1, 2], [3, 4]]".
func ParseValue(t opcua.TypeID, text string) (*opcua.Variant, error) {
	var raw interface{}
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "parse %s value: %v", t, err)
	}
	v, err := CoerceValue(t, raw)
	if err != nil {
		return nil, err
	}
	return opcua.NewVariant(t, v), nil
}

// CoerceValue converts a decoded YAML value, a scalar or nested sequences of
// scalars, to the Go representation of built-in type t.
func CoerceValue(t opcua.TypeID, raw interface{}) (interface{}, error) {
	goType := opcua.GoType(t)
	if !t.IsBuiltin() || goType == nil {
		return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "unknown built-in type %d", t)
	}
	if b, ok := raw.([]byte); ok && t == opcua.TypeByteString {
		return b, nil
	}
	if raw == nil {
		return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "null %s value", t)
	}
	return arrays.Transform(raw, goType, func(v interface{}) (interface{}, error) {
		return coerceScalar(t, v)
	})
}

func coerceScalar(t opcua.TypeID, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, mismatch(t, v)
	}
	switch t {
	case opcua.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case opcua.TypeSByte:
		n, err := toInt(t, v, math.MinInt8, math.MaxInt8)
		return int8(n), err
	case opcua.TypeByte:
		n, err := toInt(t, v, 0, math.MaxUint8)
		return byte(n), err
	case opcua.TypeInt16:
		n, err := toInt(t, v, math.MinInt16, math.MaxInt16)
		return int16(n), err
	case opcua.TypeUInt16:
		n, err := toInt(t, v, 0, math.MaxUint16)
		return uint16(n), err
	case opcua.TypeInt32:
		n, err := toInt(t, v, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case opcua.TypeUInt32:
		n, err := toInt(t, v, 0, math.MaxUint32)
		return uint32(n), err
	case opcua.TypeInt64:
		return toInt(t, v, math.MinInt64, math.MaxInt64)
	case opcua.TypeUInt64:
		if n, ok := v.(uint64); ok {
			return n, nil
		}
		n, err := toInt(t, v, 0, math.MaxInt64)
		return uint64(n), err
	case opcua.TypeFloat:
		f, err := toFloat(t, v)
		return float32(f), err
	case opcua.TypeDouble:
		return toFloat(t, v)
	case opcua.TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case int, int64, uint64, float64, bool:
			return fmt.Sprint(x), nil
		}
	case opcua.TypeDateTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			tm, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "DateTime %q: %v", x, err)
			}
			return tm.UTC(), nil
		}
	case opcua.TypeGUID:
		if s, ok := v.(string); ok {
			u, err := uuid.Parse(s)
			if err != nil {
				return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "Guid %q: %v", s, err)
			}
			return u, nil
		}
	case opcua.TypeByteString:
		if s, ok := v.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "ByteString: %v", err)
			}
			return b, nil
		}
	case opcua.TypeXMLElement:
		if s, ok := v.(string); ok {
			return opcua.XMLElement(s), nil
		}
	case opcua.TypeNodeID:
		if s, ok := v.(string); ok {
			id, err := opcua.ParseNodeID(s)
			if err != nil {
				return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "%v", err)
			}
			return id, nil
		}
	case opcua.TypeExpandedNodeID:
		if s, ok := v.(string); ok {
			id, err := opcua.ParseNodeID(s)
			if err != nil {
				return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "%v", err)
			}
			return opcua.NewExpandedNodeID(id), nil
		}
	case opcua.TypeStatusCode:
		n, err := toInt(t, v, 0, math.MaxUint32)
		return opcua.StatusCode(n), err
	case opcua.TypeQualifiedName:
		if s, ok := v.(string); ok {
			q, err := opcua.ParseQualifiedName(s)
			if err != nil {
				return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "%v", err)
			}
			return q, nil
		}
	case opcua.TypeLocalizedText:
		switch x := v.(type) {
		case string:
			return opcua.LocalizedText{Text: x}, nil
		case map[string]interface{}:
			locale, _ := x["locale"].(string)
			text, _ := x["text"].(string)
			return opcua.LocalizedText{Locale: locale, Text: text}, nil
		}
	default:
		return nil, opcua.NewStatusError(opcua.StatusBadNotSupported, "%s values cannot be parsed", t)
	}
	return nil, mismatch(t, v)
}

func toInt(t opcua.TypeID, v interface{}, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			return 0, outOfRange(t, v)
		}
		n = int64(x)
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, mismatch(t, v)
		}
		n = int64(x)
	default:
		return 0, mismatch(t, v)
	}
	if n < lo || n > hi {
		return 0, outOfRange(t, v)
	}
	return n, nil
}

func toFloat(t opcua.TypeID, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, mismatch(t, v)
}

func mismatch(t opcua.TypeID, v interface{}) error {
	return opcua.NewStatusError(opcua.StatusBadTypeMismatch, "%T is not a %s value", v, t)
}

func outOfRange(t opcua.TypeID, v interface{}) error {
	return opcua.NewStatusError(opcua.StatusBadOutOfRange, "%v overflows %s", v, t)
}
