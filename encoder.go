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

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
	"github.com/google/uuid"
)

// OPC UA DateTime is 100-nanosecond intervals since January 1, 1601.
const dateTimeEpochDiff = 116444736000000000

// XMLElement is the Go form of the XmlElement built-in type.
type XMLElement string

// Encoder provides methods for encoding OPC UA types.
type Encoder struct {
	buf *bytes.Buffer
}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: new(bytes.Buffer)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Reset resets the encoder.
func (e *Encoder) Reset() {
	e.buf.Reset()
}

// WriteBoolean writes a boolean value.
func (e *Encoder) WriteBoolean(v bool) {
	if v {
		e.buf.WriteByte(1)
		return
	}
	e.buf.WriteByte(0)
}

// WriteByte writes a byte value. It implements io.ByteWriter and never
// fails.
func (e *Encoder) WriteByte(v byte) error {
	return e.buf.WriteByte(v)
}

// WriteSByte writes a signed byte value.
func (e *Encoder) WriteSByte(v int8) {
	e.buf.WriteByte(byte(v))
}

// WriteUInt16 writes a uint16 value.
func (e *Encoder) WriteUInt16(v uint16) {
	e.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

// WriteInt16 writes an int16 value.
func (e *Encoder) WriteInt16(v int16) {
	e.WriteUInt16(uint16(v))
}

// WriteUInt32 writes a uint32 value.
func (e *Encoder) WriteUInt32(v uint32) {
	e.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

// WriteInt32 writes an int32 value.
func (e *Encoder) WriteInt32(v int32) {
	e.WriteUInt32(uint32(v))
}

// WriteUInt64 writes a uint64 value.
func (e *Encoder) WriteUInt64(v uint64) {
	e.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// WriteInt64 writes an int64 value.
func (e *Encoder) WriteInt64(v int64) {
	e.WriteUInt64(uint64(v))
}

// WriteFloat writes a float32 value.
func (e *Encoder) WriteFloat(v float32) {
	e.WriteUInt32(math.Float32bits(v))
}

// WriteDouble writes a float64 value.
func (e *Encoder) WriteDouble(v float64) {
	e.WriteUInt64(math.Float64bits(v))
}

// WriteString writes a string value. The empty string is encoded as null.
func (e *Encoder) WriteString(v string) {
	if v == "" {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(v)))
	e.buf.WriteString(v)
}

// WriteByteString writes a byte string value.
func (e *Encoder) WriteByteString(v []byte) {
	if v == nil {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(v)))
	e.buf.Write(v)
}

// WriteDateTime writes a DateTime value.
func (e *Encoder) WriteDateTime(t time.Time) {
	if t.IsZero() {
		e.WriteInt64(0)
		return
	}
	e.WriteInt64(t.UnixNano()/100 + dateTimeEpochDiff)
}

// WriteGUID writes a GUID value.
func (e *Encoder) WriteGUID(v [16]byte) {
	// Data1, Data2 and Data3 are little endian; Data4 is a byte array.
	e.WriteUInt32(binary.BigEndian.Uint32(v[0:4]))
	e.WriteUInt16(binary.BigEndian.Uint16(v[4:6]))
	e.WriteUInt16(binary.BigEndian.Uint16(v[6:8]))
	e.buf.Write(v[8:16])
}

// WriteNodeID writes a NodeID value.
func (e *Encoder) WriteNodeID(n NodeID) {
	e.writeNodeID(n, 0)
}

// WriteExpandedNodeID writes an ExpandedNodeID value.
func (e *Encoder) WriteExpandedNodeID(x ExpandedNodeID) {
	var flags byte
	if x.NamespaceURI != "" {
		flags |= 0x80
	}
	if x.ServerIndex != 0 {
		flags |= 0x40
	}
	e.writeNodeID(x.NodeID, flags)
	if x.NamespaceURI != "" {
		e.WriteString(x.NamespaceURI)
	}
	if x.ServerIndex != 0 {
		e.WriteUInt32(x.ServerIndex)
	}
}

func (e *Encoder) writeNodeID(n NodeID, flags byte) {
	switch n.Type {
	case NodeIDTypeNumeric:
		switch {
		case n.Namespace == 0 && n.Numeric <= math.MaxUint8:
			e.WriteByte(0x00 | flags)
			e.WriteByte(byte(n.Numeric))
		case n.Namespace <= math.MaxUint8 && n.Numeric <= math.MaxUint16:
			e.WriteByte(0x01 | flags)
			e.WriteByte(byte(n.Namespace))
			e.WriteUInt16(uint16(n.Numeric))
		default:
			e.WriteByte(0x02 | flags)
			e.WriteUInt16(n.Namespace)
			e.WriteUInt32(n.Numeric)
		}
	case NodeIDTypeString:
		e.WriteByte(0x03 | flags)
		e.WriteUInt16(n.Namespace)
		e.WriteString(n.StringID)
	case NodeIDTypeGUID:
		e.WriteByte(0x04 | flags)
		e.WriteUInt16(n.Namespace)
		e.WriteGUID(n.GUID)
	case NodeIDTypeOpaque:
		e.WriteByte(0x05 | flags)
		e.WriteUInt16(n.Namespace)
		e.WriteByteString(n.Opaque)
	}
}

// WriteQualifiedName writes a QualifiedName value.
func (e *Encoder) WriteQualifiedName(q QualifiedName) {
	e.WriteUInt16(q.NamespaceIndex)
	e.WriteString(q.Name)
}

// WriteLocalizedText writes a LocalizedText value.
func (e *Encoder) WriteLocalizedText(l LocalizedText) {
	var mask byte
	if l.Locale != "" {
		mask |= 0x01
	}
	if l.Text != "" {
		mask |= 0x02
	}
	e.WriteByte(mask)
	if l.Locale != "" {
		e.WriteString(l.Locale)
	}
	if l.Text != "" {
		e.WriteString(l.Text)
	}
}

// WriteStatusCode writes a StatusCode value.
func (e *Encoder) WriteStatusCode(s StatusCode) {
	e.WriteUInt32(uint32(s))
}

// WriteExtensionObject writes an ExtensionObject value.
func (e *Encoder) WriteExtensionObject(x ExtensionObject) {
	e.WriteNodeID(x.TypeID)
	if x.Encoding == ExtensionObjectEmpty {
		e.WriteByte(ExtensionObjectEmpty)
		return
	}
	e.WriteByte(x.Encoding)
	e.WriteByteString(x.Body)
}

// WriteDataValue writes a DataValue value.
func (e *Encoder) WriteDataValue(dv DataValue) error {
	var mask byte
	if dv.Value != nil {
		mask |= 0x01
	}
	if dv.StatusCode != StatusGood {
		mask |= 0x02
	}
	if !dv.SourceTimestamp.IsZero() {
		mask |= 0x04
	}
	if !dv.ServerTimestamp.IsZero() {
		mask |= 0x08
	}
	if dv.SourcePicoseconds != 0 {
		mask |= 0x10
	}
	if dv.ServerPicoseconds != 0 {
		mask |= 0x20
	}
	e.WriteByte(mask)

	if dv.Value != nil {
		if err := e.WriteVariant(dv.Value); err != nil {
			return err
		}
	}
	if mask&0x02 != 0 {
		e.WriteStatusCode(dv.StatusCode)
	}
	if mask&0x04 != 0 {
		e.WriteDateTime(dv.SourceTimestamp)
	}
	if mask&0x10 != 0 {
		e.WriteUInt16(dv.SourcePicoseconds)
	}
	if mask&0x08 != 0 {
		e.WriteDateTime(dv.ServerTimestamp)
	}
	if mask&0x20 != 0 {
		e.WriteUInt16(dv.ServerPicoseconds)
	}
	return nil
}

// WriteVariant writes a Variant value. Slices are encoded as arrays, and
// nested slices as multi-dimensional arrays with their dimensions.
func (e *Encoder) WriteVariant(v *Variant) error {
	if v == nil || (v.Type == TypeNull && v.Value == nil) {
		e.WriteByte(0)
		return nil
	}
	if v.Type > TypeDiagnosticInfo {
		return fmt.Errorf("%w: variant type %d", StatusBadEncodingError, v.Type)
	}

	dims := VariantDimensions(v)
	if dims == nil {
		e.WriteByte(byte(v.Type))
		return e.WriteBuiltin(v.Type, v.Value)
	}

	mask := byte(v.Type) | 0x80
	if len(dims) > 1 {
		mask |= 0x40
	}
	e.WriteByte(mask)

	if v.Value == nil || reflect.ValueOf(v.Value).IsNil() {
		e.WriteInt32(-1)
		return nil
	}

	flat := arrays.FlattenTo(v.Value, len(dims))
	e.WriteInt32(int32(len(flat)))
	for _, elem := range flat {
		if err := e.WriteBuiltin(v.Type, elem); err != nil {
			return err
		}
	}
	if len(dims) > 1 {
		e.WriteInt32(int32(len(dims)))
		for _, d := range dims {
			e.WriteInt32(int32(d))
		}
	}
	return nil
}

// VariantDimensions returns the array dimensions of a Variant value, or nil
// for a scalar. A []byte is a scalar ByteString unless the variant type is
// Byte.
func VariantDimensions(v *Variant) []int {
	if v == nil || !arrays.IsArray(v.Value) {
		return nil
	}
	dims := arrays.Dimensions(v.Value)
	if v.Type == TypeByteString {
		dims = dims[:len(dims)-1]
	}
	if len(dims) == 0 {
		return nil
	}
	return dims
}

// WriteArray writes a one-dimensional array of a built-in type. A nil slice
// is encoded as a null array.
func (e *Encoder) WriteArray(t TypeID, v interface{}) error {
	if v == nil {
		e.WriteInt32(-1)
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("%w: %s array: %T is not a slice", StatusBadEncodingError, t, v)
	}
	if rv.IsNil() {
		e.WriteInt32(-1)
		return nil
	}
	e.WriteInt32(int32(rv.Len()))
	for i := 0; i < rv.Len(); i++ {
		if err := e.WriteBuiltin(t, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// WriteBuiltin writes a scalar of the given built-in type. The Go type of v
// must be the one GoType reports for t.
func (e *Encoder) WriteBuiltin(t TypeID, v interface{}) error {
	switch {
	case t == TypeNull && v == nil:
		return nil
	case t == TypeByteString && v == nil:
		e.WriteByteString(nil)
		return nil
	case t == TypeNull, t >= TypeDiagnosticInfo, v == nil, reflect.TypeOf(v) != GoType(t):
		return fmt.Errorf("%w: %s value of type %T", StatusBadEncodingError, t, v)
	}

	switch x := v.(type) {
	case bool:
		e.WriteBoolean(x)
	case int8:
		e.WriteSByte(x)
	case byte:
		e.WriteByte(x)
	case int16:
		e.WriteInt16(x)
	case uint16:
		e.WriteUInt16(x)
	case int32:
		e.WriteInt32(x)
	case uint32:
		e.WriteUInt32(x)
	case int64:
		e.WriteInt64(x)
	case uint64:
		e.WriteUInt64(x)
	case float32:
		e.WriteFloat(x)
	case float64:
		e.WriteDouble(x)
	case string:
		e.WriteString(x)
	case time.Time:
		e.WriteDateTime(x)
	case uuid.UUID:
		e.WriteGUID(x)
	case []byte:
		e.WriteByteString(x)
	case XMLElement:
		e.WriteString(string(x))
	case NodeID:
		e.WriteNodeID(x)
	case ExpandedNodeID:
		e.WriteExpandedNodeID(x)
	case StatusCode:
		e.WriteStatusCode(x)
	case QualifiedName:
		e.WriteQualifiedName(x)
	case LocalizedText:
		e.WriteLocalizedText(x)
	case ExtensionObject:
		e.WriteExtensionObject(x)
	case *DataValue:
		if x == nil {
			return fmt.Errorf("%w: nil DataValue", StatusBadEncodingError)
		}
		return e.WriteDataValue(*x)
	case *Variant:
		return e.WriteVariant(x)
	}
	return nil
}

var builtinGoTypes = [...]reflect.Type{
	TypeNull:            reflect.TypeOf((*interface{})(nil)).Elem(),
	TypeBoolean:         reflect.TypeOf(false),
	TypeSByte:           reflect.TypeOf(int8(0)),
	TypeByte:            reflect.TypeOf(byte(0)),
	TypeInt16:           reflect.TypeOf(int16(0)),
	TypeUInt16:          reflect.TypeOf(uint16(0)),
	TypeInt32:           reflect.TypeOf(int32(0)),
	TypeUInt32:          reflect.TypeOf(uint32(0)),
	TypeInt64:           reflect.TypeOf(int64(0)),
	TypeUInt64:          reflect.TypeOf(uint64(0)),
	TypeFloat:           reflect.TypeOf(float32(0)),
	TypeDouble:          reflect.TypeOf(float64(0)),
	TypeString:          reflect.TypeOf(""),
	TypeDateTime:        reflect.TypeOf(time.Time{}),
	TypeGUID:            reflect.TypeOf(uuid.UUID{}),
	TypeByteString:      reflect.TypeOf([]byte(nil)),
	TypeXMLElement:      reflect.TypeOf(XMLElement("")),
	TypeNodeID:          reflect.TypeOf(NodeID{}),
	TypeExpandedNodeID:  reflect.TypeOf(ExpandedNodeID{}),
	TypeStatusCode:      reflect.TypeOf(StatusCode(0)),
	TypeQualifiedName:   reflect.TypeOf(QualifiedName{}),
	TypeLocalizedText:   reflect.TypeOf(LocalizedText{}),
	TypeExtensionObject: reflect.TypeOf(ExtensionObject{}),
	TypeDataValue:       reflect.TypeOf((*DataValue)(nil)),
	TypeVariant:         reflect.TypeOf((*Variant)(nil)),
	TypeDiagnosticInfo:  reflect.TypeOf((*interface{})(nil)).Elem(),
}

// GoType returns the Go type used for scalars of a built-in type.
func GoType(t TypeID) reflect.Type {
	if int(t) >= len(builtinGoTypes) {
		return nil
	}
	return builtinGoTypes[t]
}
