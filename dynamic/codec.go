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
	"errors"
	"fmt"
	"reflect"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// ErrNoStructureDefinition is returned when a codec is requested for a data
// type without a StructureDefinition.
var ErrNoStructureDefinition = errors.New("dynamic: no structure definition")

// maxOptionalFields is the width of the optional field encoding mask.
const maxOptionalFields = 32

// CodecFactory builds the codec of a structured data type.
type CodecFactory func(dt *typetree.DataType, tree *typetree.Tree) (Codec, error)

// NewCodecFactory returns a factory of StructCodecs that resolve nested
// structure fields through m.
func NewCodecFactory(m *Manager) CodecFactory {
	return func(dt *typetree.DataType, tree *typetree.Tree) (Codec, error) {
		return NewStructCodec(dt, tree, m)
	}
}

// StructCodec is the binary codec of a structured data type, driven by its
// StructureDefinition. It encodes and decodes *Struct values.
//
// Field values use the Go types of the root package built-ins, int32 for
// enumerations, *Struct for nested structures and *opcua.Variant for
// fields of an abstract type. Fields with a ValueRank of 1 hold typed
// slices and fields with a higher ValueRank nested typed slices.
type StructCodec struct {
	typeID        opcua.NodeID
	name          string
	structureType opcua.StructureType
	fields        []fieldCodec
}

// NewStructCodec builds the codec of dt. Field types are resolved against
// tree; nested structures are looked up in m when a value is encoded or
// decoded, so types may be registered in any order.
func NewStructCodec(dt *typetree.DataType, tree *typetree.Tree, m *Manager) (*StructCodec, error) {
	def, ok := dt.StructureDefinition()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStructureDefinition, dt)
	}
	switch def.StructureType {
	case opcua.StructureTypeStructure, opcua.StructureTypeStructureWithOptionalFields, opcua.StructureTypeUnion:
	default:
		return nil, opcua.NewStatusError(opcua.StatusBadNotSupported, "%s: %s", dt, def.StructureType)
	}

	c := &StructCodec{
		typeID:        dt.NodeID(),
		name:          dt.BrowseName().Name,
		structureType: def.StructureType,
		fields:        make([]fieldCodec, 0, len(def.Fields)),
	}
	optional := 0
	for _, f := range def.Fields {
		elem, err := resolveElem(f, tree, m)
		if err != nil {
			return nil, fmt.Errorf("dynamic: %s field %q: %w", c.name, f.Name, err)
		}
		fc := fieldCodec{
			name:      f.Name,
			optional:  f.IsOptional && def.StructureType == opcua.StructureTypeStructureWithOptionalFields,
			valueRank: f.ValueRank,
			elem:      elem,
		}
		if fc.optional {
			optional++
		}
		c.fields = append(c.fields, fc)
	}
	if optional > maxOptionalFields {
		return nil, opcua.NewStatusError(opcua.StatusBadEncodingLimitsExceeded, "%s: %d optional fields", dt, optional)
	}
	return c, nil
}

// TypeID returns the data type the codec encodes.
func (c *StructCodec) TypeID() opcua.NodeID { return c.typeID }

// Encode implements Codec. v must be a *Struct.
func (c *StructCodec) Encode(e *opcua.Encoder, v interface{}) error {
	s, ok := v.(*Struct)
	if !ok || s == nil {
		return opcua.NewStatusError(opcua.StatusBadEncodingError, "%s: %T is not a structure", c.name, v)
	}

	switch c.structureType {
	case opcua.StructureTypeUnion:
		return c.encodeUnion(e, s)
	case opcua.StructureTypeStructureWithOptionalFields:
		var mask uint32
		bit := 0
		for _, f := range c.fields {
			if !f.optional {
				continue
			}
			if val, ok := s.Get(f.name); ok && val != nil {
				mask |= 1 << bit
			}
			bit++
		}
		e.WriteUInt32(mask)
	}

	for _, f := range c.fields {
		val, ok := s.Get(f.name)
		if f.optional && (!ok || val == nil) {
			continue
		}
		if !ok {
			return opcua.NewStatusError(opcua.StatusBadEncodingError, "%s: missing field %q", c.name, f.name)
		}
		if err := f.encode(e, val); err != nil {
			return fmt.Errorf("dynamic: %s field %q: %w", c.name, f.name, err)
		}
	}
	return nil
}

func (c *StructCodec) encodeUnion(e *opcua.Encoder, s *Struct) error {
	selected := -1
	var val interface{}
	for i, f := range c.fields {
		v, ok := s.Get(f.name)
		if !ok || v == nil {
			continue
		}
		if selected >= 0 {
			return opcua.NewStatusError(opcua.StatusBadEncodingError, "%s: union has fields %q and %q set", c.name, c.fields[selected].name, f.name)
		}
		selected, val = i, v
	}

	e.WriteUInt32(uint32(selected + 1))
	if selected < 0 {
		return nil
	}
	f := c.fields[selected]
	if err := f.encode(e, val); err != nil {
		return fmt.Errorf("dynamic: %s field %q: %w", c.name, f.name, err)
	}
	return nil
}

// Decode implements Codec. The result is a *Struct.
func (c *StructCodec) Decode(d *opcua.Decoder) (interface{}, error) {
	s := &Struct{TypeID: c.typeID}

	switch c.structureType {
	case opcua.StructureTypeUnion:
		sw, err := d.ReadUInt32()
		if err != nil {
			return nil, err
		}
		if sw == 0 {
			return s, nil
		}
		if int(sw) > len(c.fields) {
			return nil, opcua.NewStatusError(opcua.StatusBadDecodingError, "%s: union switch %d out of range", c.name, sw)
		}
		f := c.fields[sw-1]
		v, err := f.decode(d)
		if err != nil {
			return nil, fmt.Errorf("dynamic: %s field %q: %w", c.name, f.name, err)
		}
		s.Fields = []Field{{Name: f.name, Value: v}}
		return s, nil

	case opcua.StructureTypeStructureWithOptionalFields:
		mask, err := d.ReadUInt32()
		if err != nil {
			return nil, err
		}
		if err := c.decodeFields(d, s, mask); err != nil {
			return nil, err
		}
		return s, nil

	default:
		if err := c.decodeFields(d, s, 0); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (c *StructCodec) decodeFields(d *opcua.Decoder, s *Struct, mask uint32) error {
	s.Fields = make([]Field, 0, len(c.fields))
	bit := 0
	for _, f := range c.fields {
		if f.optional {
			present := mask&(1<<bit) != 0
			bit++
			if !present {
				s.Fields = append(s.Fields, Field{Name: f.name})
				continue
			}
		}
		v, err := f.decode(d)
		if err != nil {
			return fmt.Errorf("dynamic: %s field %q: %w", c.name, f.name, err)
		}
		s.Fields = append(s.Fields, Field{Name: f.name, Value: v})
	}
	return nil
}

type fieldCodec struct {
	name      string
	optional  bool
	valueRank int32
	elem      elemCodec
}

func (f *fieldCodec) encode(e *opcua.Encoder, v interface{}) error {
	switch {
	case f.valueRank > opcua.ValueRankOneDimension:
		return f.encodeMatrix(e, v)
	case f.valueRank >= opcua.ValueRankOneOrMoreDimensions:
		return f.encodeArray(e, v)
	default:
		return f.elem.encode(e, v)
	}
}

func (f *fieldCodec) decode(d *opcua.Decoder) (interface{}, error) {
	switch {
	case f.valueRank > opcua.ValueRankOneDimension:
		return f.decodeMatrix(d)
	case f.valueRank >= opcua.ValueRankOneOrMoreDimensions:
		n, err := d.ReadInt32()
		if err != nil {
			return nil, err
		}
		return f.decodeElems(d, int(n))
	default:
		return f.elem.decode(d)
	}
}

func (f *fieldCodec) encodeArray(e *opcua.Encoder, v interface{}) error {
	if v == nil {
		e.WriteInt32(-1)
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return opcua.NewStatusError(opcua.StatusBadEncodingError, "%T is not an array", v)
	}
	if rv.IsNil() {
		e.WriteInt32(-1)
		return nil
	}
	e.WriteInt32(int32(rv.Len()))
	for i := 0; i < rv.Len(); i++ {
		if err := f.elem.encode(e, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// Matrices are written as their Int32 dimensions followed by the elements
// in row-major order.
func (f *fieldCodec) encodeMatrix(e *opcua.Encoder, v interface{}) error {
	if v == nil || (arrays.IsArray(v) && reflect.ValueOf(v).IsNil()) {
		e.WriteInt32(-1)
		return nil
	}
	if !arrays.IsArray(v) {
		return opcua.NewStatusError(opcua.StatusBadEncodingError, "%T is not an array", v)
	}
	dims := arrays.Dimensions(v)
	if len(dims) < int(f.valueRank) {
		return opcua.NewStatusError(opcua.StatusBadEncodingError, "%d dimensions for value rank %d", len(dims), f.valueRank)
	}
	dims = dims[:f.valueRank]

	flat := arrays.FlattenTo(v, len(dims))
	total := 1
	dims32 := make([]int32, len(dims))
	for i, n := range dims {
		total *= n
		dims32[i] = int32(n)
	}
	if len(flat) != total {
		return opcua.NewStatusError(opcua.StatusBadEncodingError, "ragged matrix with dimensions %v", dims)
	}

	if err := e.WriteArray(opcua.TypeInt32, dims32); err != nil {
		return err
	}
	for _, elem := range flat {
		if err := f.elem.encode(e, elem); err != nil {
			return err
		}
	}
	return nil
}

func (f *fieldCodec) decodeMatrix(d *opcua.Decoder) (interface{}, error) {
	raw, err := d.ReadArray(opcua.TypeInt32)
	if err != nil {
		return nil, err
	}
	dims32 := raw.([]int32)
	if dims32 == nil {
		return reflect.Zero(nestedType(f.elem.goType(), int(f.valueRank))).Interface(), nil
	}
	if len(dims32) != int(f.valueRank) {
		return nil, opcua.NewStatusError(opcua.StatusBadDecodingError, "%d dimensions for value rank %d", len(dims32), f.valueRank)
	}

	dims := make([]int, len(dims32))
	total := 1
	for i, n := range dims32 {
		if n < 0 {
			return nil, opcua.NewStatusError(opcua.StatusBadDecodingError, "negative matrix dimension %d", n)
		}
		dims[i] = int(n)
		total *= int(n)
		if total > d.Remaining() && total > 0 {
			return nil, fmt.Errorf("%w: matrix dimensions %v", opcua.ErrBufferUnderflow, dims32)
		}
	}

	flat, err := f.decodeElems(d, total)
	if err != nil {
		return nil, err
	}
	return arrays.Unflatten(flat, dims)
}

// decodeElems reads n elements into a typed slice. A negative n is a null
// array.
func (f *fieldCodec) decodeElems(d *opcua.Decoder, n int) (interface{}, error) {
	sliceType := reflect.SliceOf(f.elem.goType())
	if n < 0 {
		return reflect.Zero(sliceType).Interface(), nil
	}
	if n > d.Remaining() {
		return nil, fmt.Errorf("%w: array of %d elements", opcua.ErrBufferUnderflow, n)
	}
	out := reflect.MakeSlice(sliceType, n, n)
	for i := 0; i < n; i++ {
		v, err := f.elem.decode(d)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(sliceType.Elem()) {
			return nil, opcua.NewStatusError(opcua.StatusBadDecodingError, "element of type %T in %s array", v, sliceType.Elem())
		}
		out.Index(i).Set(rv)
	}
	return out.Interface(), nil
}

func nestedType(elem reflect.Type, depth int) reflect.Type {
	t := elem
	for i := 0; i < depth; i++ {
		t = reflect.SliceOf(t)
	}
	return t
}

// elemCodec encodes one scalar of a field.
type elemCodec interface {
	goType() reflect.Type
	encode(e *opcua.Encoder, v interface{}) error
	decode(d *opcua.Decoder) (interface{}, error)
}

// resolveElem picks the scalar codec of a field from the position of its
// data type in the tree.
func resolveElem(f opcua.StructureField, tree *typetree.Tree, m *Manager) (elemCodec, error) {
	dt, ok := tree.Get(f.DataType)
	if !ok {
		if t, ok := builtinID(f.DataType); ok {
			return builtinElem{t: t}, nil
		}
		return nil, opcua.NewStatusError(opcua.StatusBadDataTypeIdUnknown, "data type %s", f.DataType)
	}

	switch {
	case !f.DataType.Equal(opcua.Enumeration) && tree.IsSubtypeOf(f.DataType, opcua.Enumeration):
		return enumElem{}, nil
	case !f.DataType.Equal(opcua.Structure) && !dt.IsAbstract() && tree.IsSubtypeOf(f.DataType, opcua.Structure):
		return structElem{typeID: f.DataType, manager: m}, nil
	}

	t := tree.BuiltinType(f.DataType)
	if t == opcua.TypeDiagnosticInfo {
		return nil, opcua.NewStatusError(opcua.StatusBadNotSupported, "DiagnosticInfo field")
	}
	return builtinElem{t: t}, nil
}

func builtinID(id opcua.NodeID) (opcua.TypeID, bool) {
	if id.Namespace != 0 || id.Type != opcua.NodeIDTypeNumeric || id.Numeric >= uint32(opcua.TypeDiagnosticInfo) {
		return 0, false
	}
	t := opcua.TypeID(id.Numeric)
	return t, t.IsBuiltin()
}

type builtinElem struct {
	t opcua.TypeID
}

func (b builtinElem) goType() reflect.Type { return opcua.GoType(b.t) }

func (b builtinElem) encode(e *opcua.Encoder, v interface{}) error {
	if v == nil && b.t == opcua.TypeVariant {
		return e.WriteVariant(nil)
	}
	return e.WriteBuiltin(b.t, v)
}

func (b builtinElem) decode(d *opcua.Decoder) (interface{}, error) {
	return d.ReadBuiltin(b.t)
}

// enumElem encodes enumerations as their Int32 value.
type enumElem struct{}

func (enumElem) goType() reflect.Type { return reflect.TypeOf(int32(0)) }

func (enumElem) encode(e *opcua.Encoder, v interface{}) error {
	x, ok := v.(int32)
	if !ok {
		return opcua.NewStatusError(opcua.StatusBadTypeMismatch, "enumeration value of type %T", v)
	}
	e.WriteInt32(x)
	return nil
}

func (enumElem) decode(d *opcua.Decoder) (interface{}, error) {
	return d.ReadInt32()
}

// structElem encodes a nested structure with the codec registered for its
// type at the time of the call.
type structElem struct {
	typeID  opcua.NodeID
	manager *Manager
}

func (structElem) goType() reflect.Type { return reflect.TypeOf((*Struct)(nil)) }

func (s structElem) codec() (Codec, error) {
	if s.manager != nil {
		if c, ok := s.manager.CodecForType(s.typeID); ok {
			return c, nil
		}
	}
	return nil, opcua.NewStatusError(opcua.StatusBadDataTypeIdUnknown, "no codec for nested structure %s", s.typeID)
}

func (s structElem) encode(e *opcua.Encoder, v interface{}) error {
	c, err := s.codec()
	if err != nil {
		return err
	}
	return c.Encode(e, v)
}

func (s structElem) decode(d *opcua.Decoder) (interface{}, error) {
	c, err := s.codec()
	if err != nil {
		return nil, err
	}
	return c.Decode(d)
}
