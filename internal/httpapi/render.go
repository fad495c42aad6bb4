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

package httpapi

import (
	"reflect"
	"time"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

type encodingsJSON struct {
	Binary string `json:"binary,omitempty"`
	XML    string `json:"xml,omitempty"`
	JSON   string `json:"json,omitempty"`
}

type typeJSON struct {
	NodeID      string         `json:"nodeId"`
	BrowseName  string         `json:"browseName"`
	Parent      string         `json:"parent,omitempty"`
	Depth       int            `json:"depth"`
	Abstract    bool           `json:"abstract"`
	BuiltinType string         `json:"builtinType"`
	Kind        string         `json:"kind,omitempty"`
	Encodings   *encodingsJSON `json:"encodings,omitempty"`
	Codec       bool           `json:"codec"`
}

type fieldJSON struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	DataType        string   `json:"dataType"`
	DataTypeName    string   `json:"dataTypeName,omitempty"`
	ValueRank       int32    `json:"valueRank"`
	ArrayDimensions []uint32 `json:"arrayDimensions,omitempty"`
	MaxStringLength uint32   `json:"maxStringLength,omitempty"`
	Optional        bool     `json:"optional,omitempty"`
}

type structureJSON struct {
	StructureType     string      `json:"structureType"`
	BaseDataType      string      `json:"baseDataType"`
	DefaultEncodingID string      `json:"defaultEncodingId,omitempty"`
	Fields            []fieldJSON `json:"fields"`
}

type enumFieldJSON struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type typeDetailJSON struct {
	typeJSON
	Children  []string        `json:"children"`
	Structure *structureJSON  `json:"structure,omitempty"`
	Enum      []enumFieldJSON `json:"enum,omitempty"`
}

type dataValueJSON struct {
	NodeID          string     `json:"nodeId"`
	IndexRange      string     `json:"indexRange,omitempty"`
	Type            string     `json:"type"`
	Dimensions      []int      `json:"dimensions,omitempty"`
	Value           any        `json:"value"`
	SourceTimestamp *time.Time `json:"sourceTimestamp,omitempty"`
	ServerTimestamp *time.Time `json:"serverTimestamp,omitempty"`
}

func (s *Server) describe(n *typetree.Node) typeJSON {
	dt := n.DataType()
	out := typeJSON{
		NodeID:      dt.NodeID().String(),
		BrowseName:  dt.BrowseName().String(),
		Depth:       n.Depth(),
		Abstract:    dt.IsAbstract(),
		BuiltinType: s.backend.Tree.BuiltinType(dt.NodeID()).String(),
	}
	if p := n.Parent(); p != nil {
		out.Parent = p.DataType().NodeID().String()
	}
	if _, ok := dt.StructureDefinition(); ok {
		out.Kind = "structure"
	} else if _, ok := dt.EnumDefinition(); ok {
		out.Kind = "enumeration"
	}

	enc := dt.Encodings()
	if enc.Binary != nil || enc.XML != nil || enc.JSON != nil {
		out.Encodings = &encodingsJSON{
			Binary: idString(enc.Binary),
			XML:    idString(enc.XML),
			JSON:   idString(enc.JSON),
		}
	}
	if s.backend.Manager != nil {
		_, out.Codec = s.backend.Manager.CodecForType(dt.NodeID())
	}
	return out
}

func (s *Server) detail(n *typetree.Node) typeDetailJSON {
	out := typeDetailJSON{typeJSON: s.describe(n), Children: []string{}}
	for _, c := range n.Children() {
		out.Children = append(out.Children, c.DataType().NodeID().String())
	}

	dt := n.DataType()
	if sd, ok := dt.StructureDefinition(); ok {
		st := &structureJSON{
			StructureType: sd.StructureType.String(),
			BaseDataType:  sd.BaseDataType.String(),
			Fields:        make([]fieldJSON, len(sd.Fields)),
		}
		if !sd.DefaultEncodingID.IsNull() {
			st.DefaultEncodingID = sd.DefaultEncodingID.String()
		}
		for i, f := range sd.Fields {
			fj := fieldJSON{
				Name:            f.Name,
				Description:     f.Description.Text,
				DataType:        f.DataType.String(),
				ValueRank:       f.ValueRank,
				ArrayDimensions: f.ArrayDimensions,
				MaxStringLength: f.MaxStringLength,
				Optional:        f.IsOptional,
			}
			if ft, ok := s.backend.Tree.Get(f.DataType); ok {
				fj.DataTypeName = ft.BrowseName().Name
			}
			st.Fields[i] = fj
		}
		out.Structure = st
	}
	if ed, ok := dt.EnumDefinition(); ok {
		for _, f := range ed.Fields {
			out.Enum = append(out.Enum, enumFieldJSON{Name: f.Name, Value: f.Value})
		}
	}
	return out
}

func (s *Server) dataValue(id opcua.NodeID, indexRange string, dv opcua.DataValue) dataValueJSON {
	out := dataValueJSON{NodeID: id.String(), IndexRange: indexRange, Type: opcua.TypeNull.String()}
	if dv.Value != nil {
		out.Type = dv.Value.Type.String()
		if arrays.IsArray(dv.Value.Value) {
			out.Dimensions = arrays.Dimensions(dv.Value.Value)
		}
		out.Value = s.render(dv.Value.Value)
	}
	if !dv.SourceTimestamp.IsZero() {
		ts := dv.SourceTimestamp
		out.SourceTimestamp = &ts
	}
	if !dv.ServerTimestamp.IsZero() {
		ts := dv.ServerTimestamp
		out.ServerTimestamp = &ts
	}
	return out
}

// render converts a value to something encoding/json prints readably.
// Arrays are rendered element by element.
func (s *Server) render(v any) any {
	if v == nil {
		return nil
	}
	if _, ok := v.([]byte); !ok && arrays.IsArray(v) {
		rv := reflect.ValueOf(v)
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = s.render(rv.Index(i).Interface())
		}
		return out
	}

	switch x := v.(type) {
	case opcua.NodeID:
		return x.String()
	case opcua.ExpandedNodeID:
		return x.String()
	case opcua.QualifiedName:
		return x.String()
	case opcua.LocalizedText:
		return map[string]string{"locale": x.Locale, "text": x.Text}
	case opcua.StatusCode:
		return x.String()
	case opcua.XMLElement:
		return string(x)
	case *opcua.Variant:
		return map[string]any{"type": x.Type.String(), "value": s.render(x.Value)}
	case opcua.ExtensionObject:
		if s.backend.Manager != nil {
			if decoded, err := s.backend.Manager.DecodeExtensionObject(x); err == nil {
				return s.render(decoded)
			}
		}
		return map[string]any{"typeId": x.TypeID.String(), "body": x.Body}
	case *dynamic.Struct:
		fields := make(map[string]any, len(x.Fields))
		for _, f := range x.Fields {
			fields[f.Name] = s.render(f.Value)
		}
		return fields
	}
	return v
}

func idString(id *opcua.NodeID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
