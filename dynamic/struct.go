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

package dynamic

import (
	"fmt"
	"strings"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

// Field is a named member of a Struct. Absent optional fields hold a nil
// Value.
type Field struct {
	Name  string
	Value interface{}
}

// Struct is a value of a structured data type decoded without a generated
// Go type. Fields are in definition order; a union holds only its selected
// field, or none when the union is null.
type Struct struct {
	TypeID opcua.NodeID
	Fields []Field
}

// NewStruct returns a Struct of the given data type.
func NewStruct(typeID opcua.NodeID, fields ...Field) *Struct {
	return &Struct{TypeID: typeID, Fields: fields}
}

// Get returns the value of the named field.
func (s *Struct) Get(name string) (interface{}, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of the named field or appends it.
func (s *Struct) Set(name string, v interface{}) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = v
			return
		}
	}
	s.Fields = append(s.Fields, Field{Name: name, Value: v})
}

func (s *Struct) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Name, f.Value)
	}
	b.WriteByte('}')
	return b.String()
}
