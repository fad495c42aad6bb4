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

package typetree

import (
	opcua "github.com/edgeo-scada/opcua-typesys"
)

// Encodings holds the encoding node ids of a data type. A nil field means
// the server exposes no encoding of that kind.
type Encodings struct {
	Binary *opcua.NodeID
	XML    *opcua.NodeID
	JSON   *opcua.NodeID
}

func (e Encodings) clone() Encodings {
	return Encodings{
		Binary: cloneID(e.Binary),
		XML:    cloneID(e.XML),
		JSON:   cloneID(e.JSON),
	}
}

func cloneID(id *opcua.NodeID) *opcua.NodeID {
	if id == nil {
		return nil
	}
	c := *id
	c.Opaque = append([]byte(nil), id.Opaque...)
	return &c
}

// DataType describes a data type node. It is immutable.
type DataType struct {
	nodeID     opcua.NodeID
	browseName opcua.QualifiedName
	encodings  Encodings
	definition opcua.DataTypeDefinition
	abstract   bool
}

// NewDataType returns a data type descriptor. def may be nil.
func NewDataType(nodeID opcua.NodeID, browseName opcua.QualifiedName, encodings Encodings, def opcua.DataTypeDefinition, abstract bool) *DataType {
	return &DataType{
		nodeID:     nodeID,
		browseName: browseName,
		encodings:  encodings.clone(),
		definition: def,
		abstract:   abstract,
	}
}

// NodeID returns the id of the data type node.
func (dt *DataType) NodeID() opcua.NodeID { return dt.nodeID }

// BrowseName returns the browse name of the data type node.
func (dt *DataType) BrowseName() opcua.QualifiedName { return dt.browseName }

// Encodings returns a copy of the encoding ids.
func (dt *DataType) Encodings() Encodings { return dt.encodings.clone() }

// BinaryEncodingID returns the "Default Binary" encoding id.
func (dt *DataType) BinaryEncodingID() (opcua.NodeID, bool) { return deref(dt.encodings.Binary) }

// XMLEncodingID returns the "Default XML" encoding id.
func (dt *DataType) XMLEncodingID() (opcua.NodeID, bool) { return deref(dt.encodings.XML) }

// JSONEncodingID returns the "Default JSON" encoding id.
func (dt *DataType) JSONEncodingID() (opcua.NodeID, bool) { return deref(dt.encodings.JSON) }

// Definition returns the DataTypeDefinition attribute, or nil when the
// server did not provide one.
func (dt *DataType) Definition() opcua.DataTypeDefinition { return dt.definition }

// IsAbstract reports whether the data type is abstract.
func (dt *DataType) IsAbstract() bool { return dt.abstract }

// StructureDefinition returns the definition if it describes a structure.
func (dt *DataType) StructureDefinition() (*opcua.StructureDefinition, bool) {
	def, ok := dt.definition.(*opcua.StructureDefinition)
	return def, ok && def != nil
}

// EnumDefinition returns the definition if it describes an enumeration.
func (dt *DataType) EnumDefinition() (*opcua.EnumDefinition, bool) {
	def, ok := dt.definition.(*opcua.EnumDefinition)
	return def, ok && def != nil
}

// String returns the browse name and node id of the data type.
func (dt *DataType) String() string {
	return dt.browseName.String() + " (" + dt.nodeID.String() + ")"
}

func deref(id *opcua.NodeID) (opcua.NodeID, bool) {
	if id == nil {
		return opcua.NodeID{}, false
	}
	return *id, true
}
