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
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
	"github.com/google/uuid"
)

// Decoder provides methods for decoding OPC UA types.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder creates a new decoder.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining returns the number of remaining bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Skip skips n bytes in the decoder.
func (d *Decoder) Skip(n int) {
	d.pos = min(d.pos+n, len(d.data))
}

func (d *Decoder) next(n int, what string) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, fmt.Errorf("%w: %s", ErrBufferUnderflow, what)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadBoolean reads a boolean value.
func (d *Decoder) ReadBoolean() (bool, error) {
	b, err := d.next(1, "boolean")
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadByte reads a byte value.
func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.next(1, "byte")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadSByte reads a signed byte value.
func (d *Decoder) ReadSByte() (int8, error) {
	v, err := d.ReadByte()
	return int8(v), err
}

// ReadUInt16 reads a uint16 value.
func (d *Decoder) ReadUInt16() (uint16, error) {
	b, err := d.next(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt16 reads an int16 value.
func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUInt16()
	return int16(v), err
}

// ReadUInt32 reads a uint32 value.
func (d *Decoder) ReadUInt32() (uint32, error) {
	b, err := d.next(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 reads an int32 value.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUInt32()
	return int32(v), err
}

// ReadUInt64 reads a uint64 value.
func (d *Decoder) ReadUInt64() (uint64, error) {
	b, err := d.next(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 reads an int64 value.
func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUInt64()
	return int64(v), err
}

// ReadFloat reads a float32 value.
func (d *Decoder) ReadFloat() (float32, error) {
	v, err := d.ReadUInt32()
	return math.Float32frombits(v), err
}

// ReadDouble reads a float64 value.
func (d *Decoder) ReadDouble() (float64, error) {
	v, err := d.ReadUInt64()
	return math.Float64frombits(v), err
}

// ReadString reads a string value. A null string decodes as "".
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadInt32()
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	b, err := d.next(int(length), "string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadByteString reads a byte string value.
func (d *Decoder) ReadByteString() ([]byte, error) {
	length, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	b, err := d.next(int(length), "byte string")
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

// ReadDateTime reads a DateTime value.
func (d *Decoder) ReadDateTime() (time.Time, error) {
	ticks, err := d.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	if ticks == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, (ticks-dateTimeEpochDiff)*100).UTC(), nil
}

// ReadGUID reads a GUID value.
func (d *Decoder) ReadGUID() ([16]byte, error) {
	var guid [16]byte
	b, err := d.next(16, "guid")
	if err != nil {
		return guid, err
	}
	binary.BigEndian.PutUint32(guid[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(guid[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(guid[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(guid[8:16], b[8:16])
	return guid, nil
}

// ReadNodeID reads a NodeID value.
func (d *Decoder) ReadNodeID() (NodeID, error) {
	n, _, err := d.readNodeID()
	return n, err
}

// ReadExpandedNodeID reads an ExpandedNodeID value, keeping the namespace
// URI and server index when present.
func (d *Decoder) ReadExpandedNodeID() (ExpandedNodeID, error) {
	n, flags, err := d.readNodeID()
	if err != nil {
		return ExpandedNodeID{}, err
	}
	x := ExpandedNodeID{NodeID: n}
	if flags&0x80 != 0 {
		if x.NamespaceURI, err = d.ReadString(); err != nil {
			return ExpandedNodeID{}, err
		}
	}
	if flags&0x40 != 0 {
		if x.ServerIndex, err = d.ReadUInt32(); err != nil {
			return ExpandedNodeID{}, err
		}
	}
	return x, nil
}

func (d *Decoder) readNodeID() (NodeID, byte, error) {
	encodingByte, err := d.ReadByte()
	if err != nil {
		return NodeID{}, 0, err
	}
	flags := encodingByte & 0xF0

	var n NodeID
	switch encodingByte & 0x0F {
	case 0x00: // two-byte
		id, err := d.ReadByte()
		if err != nil {
			return NodeID{}, 0, err
		}
		n = NewNumericNodeID(0, uint32(id))
	case 0x01: // four-byte
		ns, err := d.ReadByte()
		if err != nil {
			return NodeID{}, 0, err
		}
		id, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, 0, err
		}
		n = NewNumericNodeID(uint16(ns), uint32(id))
	case 0x02:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, 0, err
		}
		id, err := d.ReadUInt32()
		if err != nil {
			return NodeID{}, 0, err
		}
		n = NewNumericNodeID(ns, id)
	case 0x03:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, 0, err
		}
		s, err := d.ReadString()
		if err != nil {
			return NodeID{}, 0, err
		}
		n = NewStringNodeID(ns, s)
	case 0x04:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, 0, err
		}
		g, err := d.ReadGUID()
		if err != nil {
			return NodeID{}, 0, err
		}
		n = NewGUIDNodeID(ns, g)
	case 0x05:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, 0, err
		}
		b, err := d.ReadByteString()
		if err != nil {
			return NodeID{}, 0, err
		}
		n = NewOpaqueNodeID(ns, b)
	default:
		return NodeID{}, 0, fmt.Errorf("%w: unknown NodeID encoding 0x%02X", ErrInvalidMessage, encodingByte)
	}
	return n, flags, nil
}

// ReadQualifiedName reads a QualifiedName value.
func (d *Decoder) ReadQualifiedName() (QualifiedName, error) {
	ns, err := d.ReadUInt16()
	if err != nil {
		return QualifiedName{}, err
	}
	name, err := d.ReadString()
	if err != nil {
		return QualifiedName{}, err
	}
	return QualifiedName{NamespaceIndex: ns, Name: name}, nil
}

// ReadLocalizedText reads a LocalizedText value.
func (d *Decoder) ReadLocalizedText() (LocalizedText, error) {
	mask, err := d.ReadByte()
	if err != nil {
		return LocalizedText{}, err
	}
	var lt LocalizedText
	if mask&0x01 != 0 {
		if lt.Locale, err = d.ReadString(); err != nil {
			return LocalizedText{}, err
		}
	}
	if mask&0x02 != 0 {
		if lt.Text, err = d.ReadString(); err != nil {
			return LocalizedText{}, err
		}
	}
	return lt, nil
}

// ReadStatusCode reads a StatusCode value.
func (d *Decoder) ReadStatusCode() (StatusCode, error) {
	v, err := d.ReadUInt32()
	return StatusCode(v), err
}

// ReadExtensionObject reads an ExtensionObject value without decoding its
// body.
func (d *Decoder) ReadExtensionObject() (ExtensionObject, error) {
	typeID, err := d.ReadNodeID()
	if err != nil {
		return ExtensionObject{}, err
	}
	enc, err := d.ReadByte()
	if err != nil {
		return ExtensionObject{}, err
	}
	x := ExtensionObject{TypeID: typeID, Encoding: enc}
	switch enc {
	case ExtensionObjectEmpty:
	case ExtensionObjectBinary, ExtensionObjectXML:
		if x.Body, err = d.ReadByteString(); err != nil {
			return ExtensionObject{}, err
		}
	default:
		return ExtensionObject{}, fmt.Errorf("%w: extension object encoding 0x%02X", ErrInvalidMessage, enc)
	}
	return x, nil
}

// ReadDataValue reads a DataValue value.
func (d *Decoder) ReadDataValue() (DataValue, error) {
	mask, err := d.ReadByte()
	if err != nil {
		return DataValue{}, err
	}

	var dv DataValue
	if mask&0x01 != 0 {
		v, err := d.ReadVariant()
		if err != nil {
			return DataValue{}, err
		}
		dv.Value = &v
	}
	if mask&0x02 != 0 {
		if dv.StatusCode, err = d.ReadStatusCode(); err != nil {
			return DataValue{}, err
		}
	}
	if mask&0x04 != 0 {
		if dv.SourceTimestamp, err = d.ReadDateTime(); err != nil {
			return DataValue{}, err
		}
	}
	if mask&0x10 != 0 {
		if dv.SourcePicoseconds, err = d.ReadUInt16(); err != nil {
			return DataValue{}, err
		}
	}
	if mask&0x08 != 0 {
		if dv.ServerTimestamp, err = d.ReadDateTime(); err != nil {
			return DataValue{}, err
		}
	}
	if mask&0x20 != 0 {
		if dv.ServerPicoseconds, err = d.ReadUInt16(); err != nil {
			return DataValue{}, err
		}
	}
	return dv, nil
}

// ReadVariant reads a Variant value. Arrays decode to typed slices and
// multi-dimensional arrays to nested typed slices.
func (d *Decoder) ReadVariant() (Variant, error) {
	mask, err := d.ReadByte()
	if err != nil {
		return Variant{}, err
	}

	typeID := TypeID(mask & 0x3F)
	if typeID > TypeDiagnosticInfo {
		return Variant{}, fmt.Errorf("%w: unknown variant type %d", ErrInvalidMessage, typeID)
	}
	if mask&0x80 == 0 {
		v, err := d.ReadBuiltin(typeID)
		if err != nil {
			return Variant{}, err
		}
		return Variant{Type: typeID, Value: v}, nil
	}

	flat, err := d.ReadArray(typeID)
	if err != nil {
		return Variant{}, err
	}
	if mask&0x40 == 0 {
		return Variant{Type: typeID, Value: flat}, nil
	}

	raw, err := d.ReadArray(TypeInt32)
	if err != nil {
		return Variant{}, err
	}
	dims32, _ := raw.([]int32)
	if len(dims32) < 2 {
		return Variant{Type: typeID, Value: flat}, nil
	}
	dims := make([]int, len(dims32))
	for i, v := range dims32 {
		dims[i] = int(v)
	}
	if reflect.ValueOf(flat).IsNil() {
		flat = reflect.MakeSlice(reflect.SliceOf(GoType(typeID)), 0, 0).Interface()
	}
	nested, err := arrays.Unflatten(flat, dims)
	if err != nil {
		return Variant{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return Variant{Type: typeID, Value: nested}, nil
}

// ReadArray reads a one-dimensional array of a built-in type into a typed
// slice. A null array decodes as a nil slice of that type.
func (d *Decoder) ReadArray(t TypeID) (interface{}, error) {
	goType := GoType(t)
	if goType == nil || t == TypeNull || t == TypeDiagnosticInfo {
		return nil, fmt.Errorf("%w: unsupported array type %s", ErrInvalidMessage, t)
	}
	length, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	sliceType := reflect.SliceOf(goType)
	if length < 0 {
		return reflect.Zero(sliceType).Interface(), nil
	}
	if int(length) > d.Remaining() {
		return nil, fmt.Errorf("%w: array of %d %s elements", ErrBufferUnderflow, length, t)
	}
	out := reflect.MakeSlice(sliceType, int(length), int(length))
	for i := 0; i < int(length); i++ {
		v, err := d.ReadBuiltin(t)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out.Index(i).Set(reflect.ValueOf(v))
		}
	}
	return out.Interface(), nil
}

// ReadBuiltin reads a scalar of the given built-in type. The result has the
// Go type GoType reports for t.
func (d *Decoder) ReadBuiltin(t TypeID) (interface{}, error) {
	switch t {
	case TypeNull:
		return nil, nil
	case TypeBoolean:
		return d.ReadBoolean()
	case TypeSByte:
		return d.ReadSByte()
	case TypeByte:
		return d.ReadByte()
	case TypeInt16:
		return d.ReadInt16()
	case TypeUInt16:
		return d.ReadUInt16()
	case TypeInt32:
		return d.ReadInt32()
	case TypeUInt32:
		return d.ReadUInt32()
	case TypeInt64:
		return d.ReadInt64()
	case TypeUInt64:
		return d.ReadUInt64()
	case TypeFloat:
		return d.ReadFloat()
	case TypeDouble:
		return d.ReadDouble()
	case TypeString:
		return d.ReadString()
	case TypeDateTime:
		return d.ReadDateTime()
	case TypeGUID:
		g, err := d.ReadGUID()
		return uuid.UUID(g), err
	case TypeByteString:
		return d.ReadByteString()
	case TypeXMLElement:
		s, err := d.ReadString()
		return XMLElement(s), err
	case TypeNodeID:
		return d.ReadNodeID()
	case TypeExpandedNodeID:
		return d.ReadExpandedNodeID()
	case TypeStatusCode:
		return d.ReadStatusCode()
	case TypeQualifiedName:
		return d.ReadQualifiedName()
	case TypeLocalizedText:
		return d.ReadLocalizedText()
	case TypeExtensionObject:
		return d.ReadExtensionObject()
	case TypeDataValue:
		dv, err := d.ReadDataValue()
		if err != nil {
			return nil, err
		}
		return &dv, nil
	case TypeVariant:
		v, err := d.ReadVariant()
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("%w: unsupported built-in type %s", ErrInvalidMessage, t)
	}
}
