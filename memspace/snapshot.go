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
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// Snapshot is a YAML description of address space content. Node ids are
// written in their text form ("ns=1;i=3001") and browse names as
// "ns:name". Namespace indices refer to the namespace array after the
// snapshot namespaces have been added.
//
//	namespaces: [urn:example:types]
//	dataTypes:
//	  - nodeId: ns=1;i=3001
//	    browseName: 1:Point
//	    encodings: {binary: ns=1;i=3002}
//	    structure:
//	      fields:
//	        - {name: X, dataType: i=11}
//	        - {name: Y, dataType: i=11}
//	variables:
//	  - nodeId: ns=1;s=Origin
//	    browseName: 1:Origin
//	    dataType: i=11
//	    value: [0.5, 1.5]
type Snapshot struct {
	Namespaces []string       `yaml:"namespaces"`
	Objects    []ObjectSpec   `yaml:"objects"`
	DataTypes  []DataTypeSpec `yaml:"dataTypes"`
	Variables  []VariableSpec `yaml:"variables"`
}

// ObjectSpec describes an object. Parent defaults to the Objects folder.
type ObjectSpec struct {
	NodeID     string `yaml:"nodeId"`
	BrowseName string `yaml:"browseName"`
	Parent     string `yaml:"parent"`
}

// DataTypeSpec describes a data type. Parent defaults to Structure for
// structures, Enumeration for enumerations and BaseDataType otherwise.
type DataTypeSpec struct {
	NodeID     string         `yaml:"nodeId"`
	BrowseName string         `yaml:"browseName"`
	Parent     string         `yaml:"parent"`
	Abstract   bool           `yaml:"abstract"`
	Encodings  EncodingsSpec  `yaml:"encodings"`
	Structure  *StructureSpec `yaml:"structure"`
	Enum       *EnumSpec      `yaml:"enum"`
}

// EncodingsSpec names the encoding nodes of a data type.
type EncodingsSpec struct {
	Binary string `yaml:"binary"`
	XML    string `yaml:"xml"`
	JSON   string `yaml:"json"`
}

// StructureSpec is a StructureDefinition. Type is one of Structure,
// StructureWithOptionalFields or Union.
type StructureSpec struct {
	Type   string      `yaml:"type"`
	Fields []FieldSpec `yaml:"fields"`
}

// FieldSpec is a StructureField. ValueRank defaults to scalar.
type FieldSpec struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	DataType        string   `yaml:"dataType"`
	ValueRank       *int32   `yaml:"valueRank"`
	ArrayDimensions []uint32 `yaml:"arrayDimensions"`
	MaxStringLength uint32   `yaml:"maxStringLength"`
	Optional        bool     `yaml:"optional"`
}

// EnumSpec is an EnumDefinition.
type EnumSpec struct {
	Fields []EnumFieldSpec `yaml:"fields"`
}

// EnumFieldSpec is one EnumField.
type EnumFieldSpec struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

// VariableSpec describes a variable. Value is coerced to the built-in type
// of DataType. Parent defaults to the Objects folder.
type VariableSpec struct {
	NodeID     string      `yaml:"nodeId"`
	BrowseName string      `yaml:"browseName"`
	Parent     string      `yaml:"parent"`
	DataType   string      `yaml:"dataType"`
	Value      interface{} `yaml:"value"`
	ReadOnly   bool        `yaml:"readOnly"`
}

// LoadSnapshot decodes a snapshot. Unknown keys are rejected.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		if errors.Is(err, io.EOF) {
			return &snap, nil
		}
		return nil, fmt.Errorf("memspace: decode snapshot: %w", err)
	}
	return &snap, nil
}

// LoadSnapshotFile decodes the snapshot stored at path.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memspace: open snapshot: %w", err)
	}
	defer f.Close()
	return LoadSnapshot(f)
}

// Apply adds the content of snap to the space. Entries are applied in
// order, so parents must precede their children. Apply stops at the first
// failing entry; entries before it stay applied.
func (s *Space) Apply(snap *Snapshot) error {
	for _, uri := range snap.Namespaces {
		s.AddNamespace(uri)
	}
	for i, o := range snap.Objects {
		if err := s.applyObject(o); err != nil {
			return fmt.Errorf("memspace: object %d (%s): %w", i, o.NodeID, err)
		}
	}
	for i, dt := range snap.DataTypes {
		if err := s.applyDataType(dt); err != nil {
			return fmt.Errorf("memspace: data type %d (%s): %w", i, dt.NodeID, err)
		}
	}
	for i, v := range snap.Variables {
		if err := s.applyVariable(v); err != nil {
			return fmt.Errorf("memspace: variable %d (%s): %w", i, v.NodeID, err)
		}
	}
	s.logger.Info().
		Int("objects", len(snap.Objects)).
		Int("types", len(snap.DataTypes)).
		Int("variables", len(snap.Variables)).
		Msg("applied snapshot")
	return nil
}

func (s *Space) applyObject(o ObjectSpec) error {
	id, err := opcua.ParseNodeID(o.NodeID)
	if err != nil {
		return err
	}
	name, err := opcua.ParseQualifiedName(o.BrowseName)
	if err != nil {
		return err
	}
	parent, err := parseOptionalNodeID(o.Parent, opcua.ObjectsFolder)
	if err != nil {
		return err
	}
	return s.AddObject(id, name, parent)
}

func (s *Space) applyDataType(spec DataTypeSpec) error {
	if spec.Structure != nil && spec.Enum != nil {
		return errors.New("both structure and enum definitions given")
	}
	id, err := opcua.ParseNodeID(spec.NodeID)
	if err != nil {
		return err
	}
	name, err := opcua.ParseQualifiedName(spec.BrowseName)
	if err != nil {
		return err
	}

	defaultParent := opcua.BaseDataType
	switch {
	case spec.Structure != nil:
		defaultParent = opcua.Structure
	case spec.Enum != nil:
		defaultParent = opcua.Enumeration
	}
	parent, err := parseOptionalNodeID(spec.Parent, defaultParent)
	if err != nil {
		return err
	}

	var enc typetree.Encodings
	if enc.Binary, err = parseEncodingID(spec.Encodings.Binary); err != nil {
		return err
	}
	if enc.XML, err = parseEncodingID(spec.Encodings.XML); err != nil {
		return err
	}
	if enc.JSON, err = parseEncodingID(spec.Encodings.JSON); err != nil {
		return err
	}

	dt := DataType{
		NodeID:     id,
		BrowseName: name,
		Parent:     parent,
		IsAbstract: spec.Abstract,
		Encodings:  enc,
	}
	switch {
	case spec.Structure != nil:
		def, err := spec.Structure.definition(parent)
		if err != nil {
			return err
		}
		if enc.Binary != nil {
			def.DefaultEncodingID = *enc.Binary
		}
		dt.Definition = def
	case spec.Enum != nil:
		def := &opcua.EnumDefinition{Fields: make([]opcua.EnumField, len(spec.Enum.Fields))}
		for i, f := range spec.Enum.Fields {
			def.Fields[i] = opcua.EnumField{Name: f.Name, Value: f.Value, DisplayName: opcua.LocalizedText{Text: f.Name}}
		}
		dt.Definition = def
	}
	return s.AddDataType(dt)
}

func (spec *StructureSpec) definition(base opcua.NodeID) (*opcua.StructureDefinition, error) {
	st, err := parseStructureType(spec.Type)
	if err != nil {
		return nil, err
	}
	def := &opcua.StructureDefinition{
		BaseDataType:  base,
		StructureType: st,
		Fields:        make([]opcua.StructureField, len(spec.Fields)),
	}
	for i, f := range spec.Fields {
		dataType, err := opcua.ParseNodeID(f.DataType)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		rank := opcua.ValueRankScalar
		if f.ValueRank != nil {
			rank = *f.ValueRank
		}
		def.Fields[i] = opcua.StructureField{
			Name:            f.Name,
			Description:     opcua.LocalizedText{Text: f.Description},
			DataType:        dataType,
			ValueRank:       rank,
			ArrayDimensions: f.ArrayDimensions,
			MaxStringLength: f.MaxStringLength,
			IsOptional:      f.Optional,
		}
	}
	return def, nil
}

func (s *Space) applyVariable(spec VariableSpec) error {
	id, err := opcua.ParseNodeID(spec.NodeID)
	if err != nil {
		return err
	}
	name, err := opcua.ParseQualifiedName(spec.BrowseName)
	if err != nil {
		return err
	}
	parent, err := parseOptionalNodeID(spec.Parent, opcua.ObjectsFolder)
	if err != nil {
		return err
	}
	dataType, err := opcua.ParseNodeID(spec.DataType)
	if err != nil {
		return err
	}

	var value *opcua.Variant
	if spec.Value != nil {
		t, ok := s.BuiltinType(dataType)
		if !ok {
			return opcua.NewStatusError(opcua.StatusBadDataTypeIdUnknown, "data type %s", dataType)
		}
		v, err := CoerceValue(t, spec.Value)
		if err != nil {
			return err
		}
		value = opcua.NewVariant(t, v)
	}
	if err := s.AddVariable(id, name, parent, dataType, value); err != nil {
		return err
	}
	if spec.ReadOnly {
		return s.SetReadOnly(id, true)
	}
	return nil
}

func parseOptionalNodeID(text string, def opcua.NodeID) (opcua.NodeID, error) {
	if text == "" {
		return def, nil
	}
	return opcua.ParseNodeID(text)
}

func parseEncodingID(text string) (*opcua.NodeID, error) {
	if text == "" {
		return nil, nil
	}
	id, err := opcua.ParseNodeID(text)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseStructureType(name string) (opcua.StructureType, error) {
	for _, st := range []opcua.StructureType{
		opcua.StructureTypeStructure,
		opcua.StructureTypeStructureWithOptionalFields,
		opcua.StructureTypeUnion,
	} {
		if name == st.String() {
			return st, nil
		}
	}
	if name == "" {
		return opcua.StructureTypeStructure, nil
	}
	return 0, opcua.NewStatusError(opcua.StatusBadNotSupported, "structure type %q", name)
}
