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

// Package memspace is an in-memory OPC UA address space.
//
// A Space answers Read, Write, Browse and BrowseNext directly and over the
// binary service framing of the root package, so it can stand in for a
// server behind a Client. It is seeded with the namespace zero data type and
// reference type hierarchies.
package memspace

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("memspace: closed")

// Well-known nodes seeded into every Space.
var (
	RootFolder           = opcua.NewNumericNodeID(0, 84)
	References           = opcua.NewNumericNodeID(0, 31)
	NonHierarchical      = opcua.NewNumericNodeID(0, 32)
	HasChild             = opcua.NewNumericNodeID(0, 34)
	Organizes            = opcua.NewNumericNodeID(0, 35)
	Aggregates           = opcua.NewNumericNodeID(0, 44)
	HasComponent         = opcua.NewNumericNodeID(0, 47)
	BaseObjectType       = opcua.NewNumericNodeID(0, 58)
	FolderType           = opcua.NewNumericNodeID(0, 61)
	BaseDataVariableType = opcua.NewNumericNodeID(0, 63)
)

// Space is an in-memory address space. It is safe for concurrent use.
type Space struct {
	mu            sync.RWMutex
	nodes         map[string]*node
	namespaces    *opcua.NamespaceTable
	continuations map[string]*continuation

	opts   *options
	closed atomic.Bool
	logger zerolog.Logger
}

type node struct {
	nodeID      opcua.NodeID
	nodeClass   opcua.NodeClass
	browseName  opcua.QualifiedName
	displayName opcua.LocalizedText

	// Variables
	value           *opcua.Variant
	dataType        opcua.NodeID
	sourceTimestamp time.Time
	readOnly        bool

	// Types
	isAbstract bool
	definition opcua.DataTypeDefinition

	references []reference
}

type reference struct {
	typeID  opcua.NodeID
	forward bool
	target  opcua.NodeID
}

// DataType describes a data type node added with AddDataType.
type DataType struct {
	NodeID     opcua.NodeID
	BrowseName opcua.QualifiedName
	// Parent is the supertype. It must already exist.
	Parent     opcua.NodeID
	IsAbstract bool
	Definition opcua.DataTypeDefinition
	// Encodings creates a DataTypeEncoding object per non-nil id.
	Encodings typetree.Encodings
}

// New creates a Space holding the standard folders, the namespace array and
// the namespace zero type hierarchies.
func New(opts ...Option) *Space {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	s := &Space{
		nodes:         make(map[string]*node),
		namespaces:    opcua.NewNamespaceTable(),
		continuations: make(map[string]*continuation),
		opts:          o,
		logger:        o.logger,
	}
	s.seed()
	return s
}

// Namespaces returns the namespace table of the space.
func (s *Space) Namespaces() *opcua.NamespaceTable {
	return s.namespaces
}

// AddNamespace registers uri and returns its index.
func (s *Space) AddNamespace(uri string) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.namespaces.Add(uri)
	s.nodes[opcua.ServerNamespaceArray.String()].value = opcua.NewVariant(opcua.TypeString, s.namespaces.URIs())
	return idx
}

// AddObject adds an object organized by parent.
func (s *Space) AddObject(id opcua.NodeID, browseName opcua.QualifiedName, parent opcua.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[parent.String()]; !ok {
		return opcua.NewStatusError(opcua.StatusBadNodeIdUnknown, "parent %s of object %s", parent, id)
	}
	if err := s.insert(&node{nodeID: id, nodeClass: opcua.NodeClassObject, browseName: browseName}); err != nil {
		return err
	}
	s.link(id, opcua.HasTypeDefinition, BaseObjectType)
	s.link(parent, Organizes, id)
	return nil
}

// AddVariable adds a writable variable organized by parent. dataType names
// the data type of the value.
func (s *Space) AddVariable(id opcua.NodeID, browseName opcua.QualifiedName, parent, dataType opcua.NodeID, value *opcua.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[parent.String()]; !ok {
		return opcua.NewStatusError(opcua.StatusBadNodeIdUnknown, "parent %s of variable %s", parent, id)
	}
	n := &node{
		nodeID:          id,
		nodeClass:       opcua.NodeClassVariable,
		browseName:      browseName,
		value:           value,
		dataType:        dataType,
		sourceTimestamp: s.opts.now(),
	}
	if err := s.insert(n); err != nil {
		return err
	}
	s.link(id, opcua.HasTypeDefinition, BaseDataVariableType)
	s.link(parent, Organizes, id)
	return nil
}

// SetReadOnly makes a variable reject writes.
func (s *Space) SetReadOnly(id opcua.NodeID, readOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id.String()]
	if !ok || n.nodeClass != opcua.NodeClassVariable {
		return opcua.NewStatusError(opcua.StatusBadNodeIdUnknown, "variable %s", id)
	}
	n.readOnly = readOnly
	return nil
}

// SetValue replaces the value of a variable.
func (s *Space) SetValue(id opcua.NodeID, value *opcua.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id.String()]
	if !ok || n.nodeClass != opcua.NodeClassVariable {
		return opcua.NewStatusError(opcua.StatusBadNodeIdUnknown, "variable %s", id)
	}
	n.value = value
	n.sourceTimestamp = s.opts.now()
	return nil
}

// AddDataType adds a data type below its parent, together with its encoding
// objects.
func (s *Space) AddDataType(dt DataType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[dt.Parent.String()]; !ok {
		return opcua.NewStatusError(opcua.StatusBadNodeIdUnknown, "parent %s of data type %s", dt.Parent, dt.NodeID)
	}
	if err := s.insert(&node{
		nodeID:     dt.NodeID,
		nodeClass:  opcua.NodeClassDataType,
		browseName: dt.BrowseName,
		isAbstract: dt.IsAbstract,
		definition: dt.Definition,
	}); err != nil {
		return err
	}
	s.link(dt.Parent, opcua.HasSubtype, dt.NodeID)

	for _, enc := range []struct {
		name string
		id   *opcua.NodeID
	}{
		{opcua.EncodingDefaultBinary, dt.Encodings.Binary},
		{opcua.EncodingDefaultXML, dt.Encodings.XML},
		{opcua.EncodingDefaultJSON, dt.Encodings.JSON},
	} {
		if enc.id == nil {
			continue
		}
		if err := s.insert(&node{
			nodeID:     *enc.id,
			nodeClass:  opcua.NodeClassObject,
			browseName: opcua.QualifiedName{Name: enc.name},
		}); err != nil {
			return err
		}
		s.link(dt.NodeID, opcua.HasEncoding, *enc.id)
		s.link(*enc.id, opcua.HasTypeDefinition, opcua.DataTypeEncodingType)
	}
	return nil
}

// AddReference adds a reference and its inverse.
func (s *Space) AddReference(source, referenceType, target opcua.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[target.String()]; !ok {
		return opcua.NewStatusError(opcua.StatusBadNodeIdUnknown, "target %s", target)
	}
	if n, ok := s.nodes[referenceType.String()]; !ok || n.nodeClass != opcua.NodeClassReferenceType {
		return opcua.NewStatusError(opcua.StatusBadReferenceTypeIdInvalid, "reference type %s", referenceType)
	}
	return s.linkChecked(source, referenceType, target)
}

// BuiltinType returns the built-in type values of the data type are encoded
// as, following HasSubtype references up to namespace zero.
func (s *Space) BuiltinType(dataType opcua.NodeID) (opcua.TypeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builtinType(dataType)
}

func (s *Space) builtinType(dataType opcua.NodeID) (opcua.TypeID, bool) {
	for id, ok := dataType, true; ok; id, ok = s.supertype(id) {
		if id.Namespace != 0 || id.Type != opcua.NodeIDTypeNumeric {
			continue
		}
		if id.Equal(opcua.Enumeration) {
			return opcua.TypeInt32, true
		}
		if id.Numeric <= uint32(opcua.TypeDiagnosticInfo) && opcua.TypeID(id.Numeric).IsBuiltin() {
			return opcua.TypeID(id.Numeric), true
		}
	}
	return opcua.TypeNull, false
}

func (s *Space) insert(n *node) error {
	key := n.nodeID.String()
	if _, ok := s.nodes[key]; ok {
		return opcua.NewStatusError(opcua.StatusBadNodeIdInvalid, "node %s already exists", key)
	}
	if n.displayName.Text == "" {
		n.displayName = opcua.LocalizedText{Text: n.browseName.Name}
	}
	s.nodes[key] = n
	return nil
}

func (s *Space) linkChecked(source, referenceType, target opcua.NodeID) error {
	if _, ok := s.nodes[source.String()]; !ok {
		return opcua.NewStatusError(opcua.StatusBadNodeIdUnknown, "source %s", source)
	}
	s.link(source, referenceType, target)
	return nil
}

// link records a reference on both ends that exist.
func (s *Space) link(source, referenceType, target opcua.NodeID) {
	if n, ok := s.nodes[source.String()]; ok {
		n.references = append(n.references, reference{typeID: referenceType, forward: true, target: target})
	}
	if n, ok := s.nodes[target.String()]; ok {
		n.references = append(n.references, reference{typeID: referenceType, forward: false, target: source})
	}
}

// supertype returns the inverse HasSubtype target of id.
func (s *Space) supertype(id opcua.NodeID) (opcua.NodeID, bool) {
	n, ok := s.nodes[id.String()]
	if !ok {
		return opcua.NodeID{}, false
	}
	for _, r := range n.references {
		if !r.forward && r.typeID.Equal(opcua.HasSubtype) {
			return r.target, true
		}
	}
	return opcua.NodeID{}, false
}

func (s *Space) isSubtypeOf(id, base opcua.NodeID) bool {
	for cur, ok := id, true; ok; cur, ok = s.supertype(cur) {
		if cur.Equal(base) {
			return true
		}
	}
	return false
}

func (s *Space) seed() {
	s.insert(&node{nodeID: RootFolder, nodeClass: opcua.NodeClassObject, browseName: opcua.QualifiedName{Name: "Root"}})
	s.insert(&node{nodeID: opcua.ObjectsFolder, nodeClass: opcua.NodeClassObject, browseName: opcua.QualifiedName{Name: "Objects"}})
	s.insert(&node{nodeID: opcua.Server, nodeClass: opcua.NodeClassObject, browseName: opcua.QualifiedName{Name: "Server"}})
	s.insert(&node{
		nodeID:     opcua.ServerNamespaceArray,
		nodeClass:  opcua.NodeClassVariable,
		browseName: opcua.QualifiedName{Name: "NamespaceArray"},
		value:      opcua.NewVariant(opcua.TypeString, s.namespaces.URIs()),
		dataType:   opcua.BuiltinNodeID(opcua.TypeString),
		readOnly:   true,
	})

	for _, t := range []struct {
		id    opcua.NodeID
		name  string
		class opcua.NodeClass
	}{
		{BaseObjectType, "BaseObjectType", opcua.NodeClassObjectType},
		{FolderType, "FolderType", opcua.NodeClassObjectType},
		{opcua.DataTypeEncodingType, "DataTypeEncodingType", opcua.NodeClassObjectType},
		{BaseDataVariableType, "BaseDataVariableType", opcua.NodeClassVariableType},
	} {
		s.insert(&node{nodeID: t.id, nodeClass: t.class, browseName: opcua.QualifiedName{Name: t.name}})
	}
	s.link(BaseObjectType, opcua.HasSubtype, FolderType)
	s.link(BaseObjectType, opcua.HasSubtype, opcua.DataTypeEncodingType)

	s.link(RootFolder, Organizes, opcua.ObjectsFolder)
	s.link(opcua.ObjectsFolder, Organizes, opcua.Server)
	s.link(opcua.Server, opcua.HasProperty, opcua.ServerNamespaceArray)
	s.link(RootFolder, opcua.HasTypeDefinition, FolderType)
	s.link(opcua.ObjectsFolder, opcua.HasTypeDefinition, FolderType)

	s.seedTypes(opcua.NodeClassReferenceType, referenceTypes)
	s.seedTypes(opcua.NodeClassDataType, dataTypes)
}

type typeSeed struct {
	id       uint32
	name     string
	parent   uint32
	abstract bool
}

func (s *Space) seedTypes(class opcua.NodeClass, seeds []typeSeed) {
	for _, t := range seeds {
		id := opcua.NewNumericNodeID(0, t.id)
		s.insert(&node{
			nodeID:     id,
			nodeClass:  class,
			browseName: opcua.QualifiedName{Name: t.name},
			isAbstract: t.abstract,
		})
		if t.parent != 0 {
			s.link(opcua.NewNumericNodeID(0, t.parent), opcua.HasSubtype, id)
		}
	}
}

// Parents precede their subtypes.
var referenceTypes = []typeSeed{
	{31, "References", 0, true},
	{32, "NonHierarchicalReferences", 31, true},
	{33, "HierarchicalReferences", 31, true},
	{34, "HasChild", 33, true},
	{35, "Organizes", 33, false},
	{44, "Aggregates", 34, true},
	{45, "HasSubtype", 34, false},
	{46, "HasProperty", 44, false},
	{47, "HasComponent", 44, false},
	{38, "HasEncoding", 32, false},
	{40, "HasTypeDefinition", 32, false},
}

var dataTypes = []typeSeed{
	{24, "BaseDataType", 0, true},
	{1, "Boolean", 24, false},
	{26, "Number", 24, true},
	{27, "Integer", 26, true},
	{28, "UInteger", 26, true},
	{2, "SByte", 27, false},
	{4, "Int16", 27, false},
	{6, "Int32", 27, false},
	{8, "Int64", 27, false},
	{3, "Byte", 28, false},
	{5, "UInt16", 28, false},
	{7, "UInt32", 28, false},
	{9, "UInt64", 28, false},
	{10, "Float", 26, false},
	{11, "Double", 26, false},
	{290, "Duration", 11, false},
	{12, "String", 24, false},
	{295, "LocaleId", 12, false},
	{13, "DateTime", 24, false},
	{294, "UtcTime", 13, false},
	{14, "Guid", 24, false},
	{15, "ByteString", 24, false},
	{16, "XmlElement", 24, false},
	{17, "NodeId", 24, false},
	{18, "ExpandedNodeId", 24, false},
	{19, "StatusCode", 24, false},
	{20, "QualifiedName", 24, false},
	{21, "LocalizedText", 24, false},
	{22, "Structure", 24, true},
	{23, "DataValue", 24, false},
	{25, "DiagnosticInfo", 24, false},
	{29, "Enumeration", 24, true},
}

func (s *Space) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memspace(%d nodes, %d namespaces)", len(s.nodes), s.namespaces.Len())
}
