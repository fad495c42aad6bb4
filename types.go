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

// Package opcua provides the OPC UA types, status codes, binary encoding and
// service plumbing shared by the index-range engine, the data type discovery
// engine and the dynamic codec registry.
package opcua

import (
	"context"
	"strings"
	"time"
)

// NodeIDType represents the type of a NodeID.
type NodeIDType uint8

// NodeID types.
const (
	NodeIDTypeNumeric NodeIDType = iota
	NodeIDTypeString
	NodeIDTypeGUID
	NodeIDTypeOpaque
)

// NodeID represents an OPC UA NodeID.
type NodeID struct {
	Type      NodeIDType
	Namespace uint16
	Numeric   uint32
	StringID  string
	GUID      [16]byte
	Opaque    []byte
}

// NewNumericNodeID creates a new numeric NodeID.
func NewNumericNodeID(namespace uint16, id uint32) NodeID {
	return NodeID{
		Type:      NodeIDTypeNumeric,
		Namespace: namespace,
		Numeric:   id,
	}
}

// NewStringNodeID creates a new string NodeID.
func NewStringNodeID(namespace uint16, id string) NodeID {
	return NodeID{
		Type:      NodeIDTypeString,
		Namespace: namespace,
		StringID:  id,
	}
}

// NewGUIDNodeID creates a new GUID NodeID.
func NewGUIDNodeID(namespace uint16, guid [16]byte) NodeID {
	return NodeID{
		Type:      NodeIDTypeGUID,
		Namespace: namespace,
		GUID:      guid,
	}
}

// NewOpaqueNodeID creates a new opaque (ByteString) NodeID.
func NewOpaqueNodeID(namespace uint16, id []byte) NodeID {
	return NodeID{
		Type:      NodeIDTypeOpaque,
		Namespace: namespace,
		Opaque:    id,
	}
}

// ServiceID represents an OPC UA service identifier. The value is the
// numeric id of the service's binary request encoding.
type ServiceID uint32

// OPC UA Service IDs.
const (
	ServiceBrowse     ServiceID = 527
	ServiceBrowseNext ServiceID = 533
	ServiceRead       ServiceID = 631
	ServiceWrite      ServiceID = 673
)

// Binary encoding ids of the service responses.
const (
	ServiceFaultEncoding       uint32 = 397
	BrowseResponseEncoding     uint32 = 530
	BrowseNextResponseEncoding uint32 = 536
	ReadResponseEncoding       uint32 = 634
	WriteResponseEncoding      uint32 = 676
)

// String returns the string representation of a ServiceID.
func (s ServiceID) String() string {
	switch s {
	case ServiceBrowse:
		return "Browse"
	case ServiceBrowseNext:
		return "BrowseNext"
	case ServiceRead:
		return "Read"
	case ServiceWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// AttributeID represents an OPC UA attribute identifier.
type AttributeID uint32

// OPC UA Attribute IDs.
const (
	AttributeNodeID                  AttributeID = 1
	AttributeNodeClass               AttributeID = 2
	AttributeBrowseName              AttributeID = 3
	AttributeDisplayName             AttributeID = 4
	AttributeDescription             AttributeID = 5
	AttributeWriteMask               AttributeID = 6
	AttributeUserWriteMask           AttributeID = 7
	AttributeIsAbstract              AttributeID = 8
	AttributeSymmetric               AttributeID = 9
	AttributeInverseName             AttributeID = 10
	AttributeContainsNoLoops         AttributeID = 11
	AttributeEventNotifier           AttributeID = 12
	AttributeValue                   AttributeID = 13
	AttributeDataType                AttributeID = 14
	AttributeValueRank               AttributeID = 15
	AttributeArrayDimensions         AttributeID = 16
	AttributeAccessLevel             AttributeID = 17
	AttributeUserAccessLevel         AttributeID = 18
	AttributeMinimumSamplingInterval AttributeID = 19
	AttributeHistorizing             AttributeID = 20
	AttributeExecutable              AttributeID = 21
	AttributeUserExecutable          AttributeID = 22
	AttributeDataTypeDefinition      AttributeID = 23
	AttributeRolePermissions         AttributeID = 24
	AttributeUserRolePermissions     AttributeID = 25
	AttributeAccessRestrictions      AttributeID = 26
	AttributeAccessLevelEx           AttributeID = 27
)

// String returns the string representation of an AttributeID.
func (a AttributeID) String() string {
	switch a {
	case AttributeNodeID:
		return "NodeId"
	case AttributeNodeClass:
		return "NodeClass"
	case AttributeBrowseName:
		return "BrowseName"
	case AttributeDisplayName:
		return "DisplayName"
	case AttributeDescription:
		return "Description"
	case AttributeWriteMask:
		return "WriteMask"
	case AttributeUserWriteMask:
		return "UserWriteMask"
	case AttributeIsAbstract:
		return "IsAbstract"
	case AttributeSymmetric:
		return "Symmetric"
	case AttributeInverseName:
		return "InverseName"
	case AttributeContainsNoLoops:
		return "ContainsNoLoops"
	case AttributeEventNotifier:
		return "EventNotifier"
	case AttributeValue:
		return "Value"
	case AttributeDataType:
		return "DataType"
	case AttributeValueRank:
		return "ValueRank"
	case AttributeArrayDimensions:
		return "ArrayDimensions"
	case AttributeAccessLevel:
		return "AccessLevel"
	case AttributeUserAccessLevel:
		return "UserAccessLevel"
	case AttributeMinimumSamplingInterval:
		return "MinimumSamplingInterval"
	case AttributeHistorizing:
		return "Historizing"
	case AttributeExecutable:
		return "Executable"
	case AttributeUserExecutable:
		return "UserExecutable"
	case AttributeDataTypeDefinition:
		return "DataTypeDefinition"
	case AttributeRolePermissions:
		return "RolePermissions"
	case AttributeUserRolePermissions:
		return "UserRolePermissions"
	case AttributeAccessRestrictions:
		return "AccessRestrictions"
	case AttributeAccessLevelEx:
		return "AccessLevelEx"
	default:
		return "Unknown"
	}
}

// NodeClass represents the class of an OPC UA node.
type NodeClass uint32

// OPC UA Node Classes.
const (
	NodeClassUnspecified   NodeClass = 0
	NodeClassObject        NodeClass = 1
	NodeClassVariable      NodeClass = 2
	NodeClassMethod        NodeClass = 4
	NodeClassObjectType    NodeClass = 8
	NodeClassVariableType  NodeClass = 16
	NodeClassReferenceType NodeClass = 32
	NodeClassDataType      NodeClass = 64
	NodeClassView          NodeClass = 128
)

// String returns the string representation of a NodeClass.
func (n NodeClass) String() string {
	switch n {
	case NodeClassUnspecified:
		return "Unspecified"
	case NodeClassObject:
		return "Object"
	case NodeClassVariable:
		return "Variable"
	case NodeClassMethod:
		return "Method"
	case NodeClassObjectType:
		return "ObjectType"
	case NodeClassVariableType:
		return "VariableType"
	case NodeClassReferenceType:
		return "ReferenceType"
	case NodeClassDataType:
		return "DataType"
	case NodeClassView:
		return "View"
	default:
		return "Unknown"
	}
}

// BrowseDirection represents the direction to browse in the address space.
type BrowseDirection uint32

// Browse directions.
const (
	BrowseDirectionForward BrowseDirection = 0
	BrowseDirectionInverse BrowseDirection = 1
	BrowseDirectionBoth    BrowseDirection = 2
)

// BrowseResultMask selects the ReferenceDescription fields a server returns.
type BrowseResultMask uint32

// Browse result mask bits.
const (
	BrowseResultMaskNone            BrowseResultMask = 0
	BrowseResultMaskReferenceTypeID BrowseResultMask = 1
	BrowseResultMaskIsForward       BrowseResultMask = 2
	BrowseResultMaskNodeClass       BrowseResultMask = 4
	BrowseResultMaskBrowseName      BrowseResultMask = 8
	BrowseResultMaskDisplayName     BrowseResultMask = 16
	BrowseResultMaskTypeDefinition  BrowseResultMask = 32
	BrowseResultMaskAll             BrowseResultMask = 63
)

// TimestampsToReturn specifies which timestamps to return.
type TimestampsToReturn uint32

// Timestamps to return options.
const (
	TimestampsToReturnSource  TimestampsToReturn = 0
	TimestampsToReturnServer  TimestampsToReturn = 1
	TimestampsToReturnBoth    TimestampsToReturn = 2
	TimestampsToReturnNeither TimestampsToReturn = 3
)

// Protocol constants.
const (
	// DefaultTimeout is the default timeout for OPC UA operations.
	DefaultTimeout = 5 * time.Second

	// DefaultPort is the default OPC UA TCP port.
	DefaultPort = 4840
)

// DataValue represents an OPC UA DataValue.
type DataValue struct {
	Value             *Variant
	StatusCode        StatusCode
	SourceTimestamp   time.Time
	ServerTimestamp   time.Time
	SourcePicoseconds uint16
	ServerPicoseconds uint16
}

// Variant represents an OPC UA Variant.
//
// Scalars hold the Go type GoType reports for the built-in type (int32,
// string, []byte for ByteString, ExtensionObject, ...). Arrays hold a typed
// slice of that Go type, and multi-dimensional arrays nested typed slices.
type Variant struct {
	Type  TypeID
	Value interface{}
}

// NewVariant returns a Variant of the given built-in type.
func NewVariant(t TypeID, v interface{}) *Variant {
	return &Variant{Type: t, Value: v}
}

// TypeID represents an OPC UA built-in type.
type TypeID uint8

// OPC UA Built-in Types.
const (
	TypeNull            TypeID = 0
	TypeBoolean         TypeID = 1
	TypeSByte           TypeID = 2
	TypeByte            TypeID = 3
	TypeInt16           TypeID = 4
	TypeUInt16          TypeID = 5
	TypeInt32           TypeID = 6
	TypeUInt32          TypeID = 7
	TypeInt64           TypeID = 8
	TypeUInt64          TypeID = 9
	TypeFloat           TypeID = 10
	TypeDouble          TypeID = 11
	TypeString          TypeID = 12
	TypeDateTime        TypeID = 13
	TypeGUID            TypeID = 14
	TypeByteString      TypeID = 15
	TypeXMLElement      TypeID = 16
	TypeNodeID          TypeID = 17
	TypeExpandedNodeID  TypeID = 18
	TypeStatusCode      TypeID = 19
	TypeQualifiedName   TypeID = 20
	TypeLocalizedText   TypeID = 21
	TypeExtensionObject TypeID = 22
	TypeDataValue       TypeID = 23
	TypeVariant         TypeID = 24
	TypeDiagnosticInfo  TypeID = 25
)

var typeNames = [...]string{
	"Null", "Boolean", "SByte", "Byte", "Int16", "UInt16", "Int32", "UInt32",
	"Int64", "UInt64", "Float", "Double", "String", "DateTime", "Guid",
	"ByteString", "XmlElement", "NodeId", "ExpandedNodeId", "StatusCode",
	"QualifiedName", "LocalizedText", "ExtensionObject", "DataValue",
	"Variant", "DiagnosticInfo",
}

// String returns the name of the built-in type.
func (t TypeID) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// TypeIDByName returns the built-in type with the given name, matched
// case-insensitively.
func TypeIDByName(name string) (TypeID, bool) {
	for i, n := range typeNames {
		if strings.EqualFold(n, name) {
			return TypeID(i), true
		}
	}
	return TypeNull, false
}

// IsBuiltin reports whether id is the NodeID of one of the built-in types.
func (t TypeID) IsBuiltin() bool {
	return t >= TypeBoolean && t <= TypeDiagnosticInfo
}

// StatusCode represents an OPC UA StatusCode.
type StatusCode uint32

// QualifiedName represents an OPC UA QualifiedName.
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

// LocalizedText represents an OPC UA LocalizedText.
type LocalizedText struct {
	Locale string
	Text   string
}

// ExtensionObject encoding masks.
const (
	ExtensionObjectEmpty  byte = 0x00
	ExtensionObjectBinary byte = 0x01
	ExtensionObjectXML    byte = 0x02
)

// ExtensionObject is an opaque, type-tagged structure body. TypeID is the
// encoding id of the body, not the data type id.
type ExtensionObject struct {
	TypeID   NodeID
	Encoding byte
	Body     []byte
}

// ReadValueID represents a node attribute to read.
type ReadValueID struct {
	NodeID       NodeID
	AttributeID  AttributeID
	IndexRange   string
	DataEncoding QualifiedName
}

// WriteValue represents a value to write to a node attribute.
type WriteValue struct {
	NodeID      NodeID
	AttributeID AttributeID
	IndexRange  string
	Value       DataValue
}

// BrowseDescription describes what to browse from a node.
type BrowseDescription struct {
	NodeID          NodeID
	BrowseDirection BrowseDirection
	ReferenceTypeID NodeID
	IncludeSubtypes bool
	NodeClassMask   uint32
	ResultMask      uint32
}

// ReferenceDescription describes a reference returned from a browse.
type ReferenceDescription struct {
	ReferenceTypeID NodeID
	IsForward       bool
	NodeID          ExpandedNodeID
	BrowseName      QualifiedName
	DisplayName     LocalizedText
	NodeClass       NodeClass
	TypeDefinition  ExpandedNodeID
}

// BrowseResult contains the result of a browse operation.
type BrowseResult struct {
	StatusCode        StatusCode
	ContinuationPoint []byte
	References        []ReferenceDescription
}

// Request represents an OPC UA service request.
type Request interface {
	ServiceID() ServiceID
	Header() *RequestHeader
	Encode(e *Encoder) error
	Decode(d *Decoder) error
}

// Response represents an OPC UA service response.
type Response interface {
	ServiceID() ServiceID
	EncodingID() uint32
	Header() *ResponseHeader
	Encode(e *Encoder) error
	Decode(d *Decoder) error
}

// Transporter defines the interface for sending and receiving OPC UA messages.
//
// A message is the binary encoding id of the service type followed by the
// encoded service body. Chunking, security and session handling belong to
// the implementation.
type Transporter interface {
	Send(ctx context.Context, msg []byte) ([]byte, error)
	Close() error
}
