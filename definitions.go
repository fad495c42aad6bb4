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

package opcua

import "fmt"

// StructureType is the kind of a structured data type.
type StructureType int32

// Structure types.
const (
	StructureTypeStructure                   StructureType = 0
	StructureTypeStructureWithOptionalFields StructureType = 1
	StructureTypeUnion                       StructureType = 2
)

// String returns the string representation of a StructureType.
func (s StructureType) String() string {
	switch s {
	case StructureTypeStructure:
		return "Structure"
	case StructureTypeStructureWithOptionalFields:
		return "StructureWithOptionalFields"
	case StructureTypeUnion:
		return "Union"
	default:
		return fmt.Sprintf("StructureType(%d)", int32(s))
	}
}

// Value ranks.
const (
	ValueRankScalarOrOneDimension int32 = -3
	ValueRankAny                  int32 = -2
	ValueRankScalar               int32 = -1
	ValueRankOneOrMoreDimensions  int32 = 0
	ValueRankOneDimension         int32 = 1
)

// DataTypeDefinition is the value of the DataTypeDefinition attribute of a
// data type node.
type DataTypeDefinition interface {
	// EncodingID returns the binary encoding id of the definition itself.
	EncodingID() NodeID
	Encode(e *Encoder) error
}

// StructureField describes one field of a structured data type.
type StructureField struct {
	Name            string
	Description     LocalizedText
	DataType        NodeID
	ValueRank       int32
	ArrayDimensions []uint32
	MaxStringLength uint32
	IsOptional      bool
}

// StructureDefinition describes the fields of a structured data type.
type StructureDefinition struct {
	DefaultEncodingID NodeID
	BaseDataType      NodeID
	StructureType     StructureType
	Fields            []StructureField
}

// EncodingID implements DataTypeDefinition.
func (*StructureDefinition) EncodingID() NodeID {
	return StructureDefinitionEncodingBinary
}

// Encode implements DataTypeDefinition.
func (s *StructureDefinition) Encode(e *Encoder) error {
	e.WriteNodeID(s.DefaultEncodingID)
	e.WriteNodeID(s.BaseDataType)
	e.WriteInt32(int32(s.StructureType))
	if s.Fields == nil {
		e.WriteInt32(-1)
		return nil
	}
	e.WriteInt32(int32(len(s.Fields)))
	for _, f := range s.Fields {
		e.WriteString(f.Name)
		e.WriteLocalizedText(f.Description)
		e.WriteNodeID(f.DataType)
		e.WriteInt32(f.ValueRank)
		if err := e.WriteArray(TypeUInt32, f.ArrayDimensions); err != nil {
			return err
		}
		e.WriteUInt32(f.MaxStringLength)
		e.WriteBoolean(f.IsOptional)
	}
	return nil
}

// DecodeStructureDefinition decodes the binary body of a
// StructureDefinition.
func DecodeStructureDefinition(d *Decoder) (*StructureDefinition, error) {
	var (
		s   StructureDefinition
		err error
	)
	if s.DefaultEncodingID, err = d.ReadNodeID(); err != nil {
		return nil, err
	}
	if s.BaseDataType, err = d.ReadNodeID(); err != nil {
		return nil, err
	}
	st, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	s.StructureType = StructureType(st)

	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return &s, nil
	}
	if int(n) > d.Remaining() {
		return nil, fmt.Errorf("%w: %d structure fields", ErrBufferUnderflow, n)
	}
	s.Fields = make([]StructureField, n)
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
		if f.Description, err = d.ReadLocalizedText(); err != nil {
			return nil, err
		}
		if f.DataType, err = d.ReadNodeID(); err != nil {
			return nil, err
		}
		if f.ValueRank, err = d.ReadInt32(); err != nil {
			return nil, err
		}
		dims, err := d.ReadArray(TypeUInt32)
		if err != nil {
			return nil, err
		}
		f.ArrayDimensions = dims.([]uint32)
		if f.MaxStringLength, err = d.ReadUInt32(); err != nil {
			return nil, err
		}
		if f.IsOptional, err = d.ReadBoolean(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// EnumField describes one value of an enumerated data type.
type EnumField struct {
	Value       int64
	DisplayName LocalizedText
	Description LocalizedText
	Name        string
}

// EnumDefinition describes the values of an enumerated data type.
type EnumDefinition struct {
	Fields []EnumField
}

// EncodingID implements DataTypeDefinition.
func (*EnumDefinition) EncodingID() NodeID {
	return EnumDefinitionEncodingBinary
}

// Encode implements DataTypeDefinition.
func (en *EnumDefinition) Encode(e *Encoder) error {
	if en.Fields == nil {
		e.WriteInt32(-1)
		return nil
	}
	e.WriteInt32(int32(len(en.Fields)))
	for _, f := range en.Fields {
		e.WriteInt64(f.Value)
		e.WriteLocalizedText(f.DisplayName)
		e.WriteLocalizedText(f.Description)
		e.WriteString(f.Name)
	}
	return nil
}

// Lookup returns the field with the given value.
func (en *EnumDefinition) Lookup(v int64) (EnumField, bool) {
	for _, f := range en.Fields {
		if f.Value == v {
			return f, true
		}
	}
	return EnumField{}, false
}

// DecodeEnumDefinition decodes the binary body of an EnumDefinition.
func DecodeEnumDefinition(d *Decoder) (*EnumDefinition, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	var en EnumDefinition
	if n < 0 {
		return &en, nil
	}
	if int(n) > d.Remaining() {
		return nil, fmt.Errorf("%w: %d enum fields", ErrBufferUnderflow, n)
	}
	en.Fields = make([]EnumField, n)
	for i := range en.Fields {
		f := &en.Fields[i]
		if f.Value, err = d.ReadInt64(); err != nil {
			return nil, err
		}
		if f.DisplayName, err = d.ReadLocalizedText(); err != nil {
			return nil, err
		}
		if f.Description, err = d.ReadLocalizedText(); err != nil {
			return nil, err
		}
		if f.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
	}
	return &en, nil
}

// NewDefinitionObject wraps a definition in a binary ExtensionObject.
func NewDefinitionObject(def DataTypeDefinition) (ExtensionObject, error) {
	e := NewEncoder()
	if err := def.Encode(e); err != nil {
		return ExtensionObject{}, err
	}
	return ExtensionObject{
		TypeID:   def.EncodingID(),
		Encoding: ExtensionObjectBinary,
		Body:     e.Bytes(),
	}, nil
}

// DecodeDataTypeDefinition decodes the body of an ExtensionObject holding a
// StructureDefinition or EnumDefinition.
func DecodeDataTypeDefinition(x ExtensionObject) (DataTypeDefinition, error) {
	if x.Encoding != ExtensionObjectBinary {
		return nil, NewStatusError(StatusBadDataEncodingUnsupported, "definition encoding 0x%02X", x.Encoding)
	}
	d := NewDecoder(x.Body)
	switch {
	case x.TypeID.Equal(StructureDefinitionEncodingBinary):
		def, err := DecodeStructureDefinition(d)
		if err != nil {
			return nil, err
		}
		return def, nil
	case x.TypeID.Equal(EnumDefinitionEncodingBinary):
		def, err := DecodeEnumDefinition(d)
		if err != nil {
			return nil, err
		}
		return def, nil
	default:
		return nil, NewStatusError(StatusBadDataTypeIdUnknown, "definition type %s", x.TypeID)
	}
}
