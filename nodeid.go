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
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Well-known namespace zero nodes.
var (
	ObjectsFolder        = NewNumericNodeID(0, 85)
	Server               = NewNumericNodeID(0, 2253)
	ServerNamespaceArray = NewNumericNodeID(0, 2255)

	BaseDataType = NewNumericNodeID(0, 24)
	Structure    = NewNumericNodeID(0, 22)
	Enumeration  = NewNumericNodeID(0, 29)
	Number       = NewNumericNodeID(0, 26)
	Integer      = NewNumericNodeID(0, 27)
	UInteger     = NewNumericNodeID(0, 28)

	HierarchicalReferences = NewNumericNodeID(0, 33)
	HasSubtype             = NewNumericNodeID(0, 45)
	HasEncoding            = NewNumericNodeID(0, 38)
	HasTypeDefinition      = NewNumericNodeID(0, 40)
	HasProperty            = NewNumericNodeID(0, 46)

	DataTypeEncodingType = NewNumericNodeID(0, 76)

	StructureDefinitionEncodingBinary = NewNumericNodeID(0, 122)
	EnumDefinitionEncodingBinary      = NewNumericNodeID(0, 123)
)

// Browse names of the data type encoding objects.
const (
	EncodingDefaultBinary = "Default Binary"
	EncodingDefaultXML    = "Default XML"
	EncodingDefaultJSON   = "Default JSON"
)

// NamespaceURI of namespace zero.
const NamespaceURI = "http://opcfoundation.org/UA/"

// BuiltinNodeID returns the data type node of a built-in type.
func BuiltinNodeID(t TypeID) NodeID {
	return NewNumericNodeID(0, uint32(t))
}

// IsNull reports whether n is the null NodeID (ns=0;i=0 or an empty
// identifier of another type in namespace zero).
func (n NodeID) IsNull() bool {
	if n.Namespace != 0 {
		return false
	}
	switch n.Type {
	case NodeIDTypeNumeric:
		return n.Numeric == 0
	case NodeIDTypeString:
		return n.StringID == ""
	case NodeIDTypeGUID:
		return n.GUID == [16]byte{}
	case NodeIDTypeOpaque:
		return len(n.Opaque) == 0
	}
	return false
}

// Equal reports whether two NodeIDs identify the same node.
func (n NodeID) Equal(o NodeID) bool {
	if n.Type != o.Type || n.Namespace != o.Namespace {
		return false
	}
	switch n.Type {
	case NodeIDTypeNumeric:
		return n.Numeric == o.Numeric
	case NodeIDTypeString:
		return n.StringID == o.StringID
	case NodeIDTypeGUID:
		return n.GUID == o.GUID
	case NodeIDTypeOpaque:
		return bytes.Equal(n.Opaque, o.Opaque)
	}
	return false
}

// String returns the standard text form, e.g. "i=85" or "ns=2;s=Pump".
// The result is also usable as a map key.
func (n NodeID) String() string {
	var id string
	switch n.Type {
	case NodeIDTypeNumeric:
		id = "i=" + strconv.FormatUint(uint64(n.Numeric), 10)
	case NodeIDTypeString:
		id = "s=" + n.StringID
	case NodeIDTypeGUID:
		id = "g=" + uuid.UUID(n.GUID).String()
	case NodeIDTypeOpaque:
		id = "b=" + base64.StdEncoding.EncodeToString(n.Opaque)
	default:
		id = fmt.Sprintf("?=%d", n.Type)
	}
	if n.Namespace == 0 {
		return id
	}
	return "ns=" + strconv.FormatUint(uint64(n.Namespace), 10) + ";" + id
}

// ParseNodeID parses the standard text form of a NodeID. A bare integer is
// accepted as a numeric id in namespace zero.
func ParseNodeID(s string) (NodeID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NodeID{}, fmt.Errorf("%w: empty", ErrInvalidNodeID)
	}

	var ns uint16
	if strings.HasPrefix(s, "ns=") {
		sep := strings.IndexByte(s, ';')
		if sep < 0 {
			return NodeID{}, fmt.Errorf("%w: %q: missing identifier", ErrInvalidNodeID, s)
		}
		v, err := strconv.ParseUint(s[3:sep], 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: %q: namespace: %v", ErrInvalidNodeID, s, err)
		}
		ns = uint16(v)
		s = s[sep+1:]
	}

	if v, err := strconv.ParseUint(s, 10, 32); err == nil {
		return NewNumericNodeID(ns, uint32(v)), nil
	}
	if len(s) < 2 || s[1] != '=' {
		return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}

	body := s[2:]
	switch s[0] {
	case 'i':
		v, err := strconv.ParseUint(body, 10, 32)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: %q: %v", ErrInvalidNodeID, s, err)
		}
		return NewNumericNodeID(ns, uint32(v)), nil
	case 's':
		return NewStringNodeID(ns, body), nil
	case 'g':
		u, err := uuid.Parse(body)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: %q: %v", ErrInvalidNodeID, s, err)
		}
		return NewGUIDNodeID(ns, u), nil
	case 'b':
		b, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: %q: %v", ErrInvalidNodeID, s, err)
		}
		return NewOpaqueNodeID(ns, b), nil
	default:
		return NodeID{}, fmt.Errorf("%w: %q: unknown identifier type %q", ErrInvalidNodeID, s, s[0])
	}
}

// MustParseNodeID is like ParseNodeID but panics on error.
func MustParseNodeID(s string) NodeID {
	n, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return n
}

// ExpandedNodeID is a NodeID that may name its namespace by URI and live on
// another server.
type ExpandedNodeID struct {
	NodeID       NodeID
	NamespaceURI string
	ServerIndex  uint32
}

// NewExpandedNodeID wraps a local NodeID.
func NewExpandedNodeID(n NodeID) ExpandedNodeID {
	return ExpandedNodeID{NodeID: n}
}

// IsLocal reports whether the node lives on the local server.
func (e ExpandedNodeID) IsLocal() bool {
	return e.ServerIndex == 0
}

// ToNodeID translates e into a server-relative NodeID using the namespace
// table. It fails for remote nodes and for URIs missing from the table.
func (e ExpandedNodeID) ToNodeID(table *NamespaceTable) (NodeID, bool) {
	if !e.IsLocal() {
		return NodeID{}, false
	}
	if e.NamespaceURI == "" {
		return e.NodeID, true
	}
	if table == nil {
		return NodeID{}, false
	}
	idx, ok := table.Index(e.NamespaceURI)
	if !ok {
		return NodeID{}, false
	}
	n := e.NodeID
	n.Namespace = idx
	return n, true
}

// String returns the text form of the expanded id.
func (e ExpandedNodeID) String() string {
	s := e.NodeID.String()
	if e.NamespaceURI != "" {
		id := s
		if i := strings.IndexByte(s, ';'); i >= 0 && strings.HasPrefix(s, "ns=") {
			id = s[i+1:]
		}
		s = "nsu=" + e.NamespaceURI + ";" + id
	}
	if e.ServerIndex != 0 {
		s = "svr=" + strconv.FormatUint(uint64(e.ServerIndex), 10) + ";" + s
	}
	return s
}

// NamespaceTable maps namespace indices to URIs. It is safe for concurrent
// use.
type NamespaceTable struct {
	mu   sync.RWMutex
	uris []string
}

// NewNamespaceTable creates a table from the server's namespace array. An
// empty array yields a table holding only namespace zero.
func NewNamespaceTable(uris ...string) *NamespaceTable {
	if len(uris) == 0 {
		uris = []string{NamespaceURI}
	}
	t := &NamespaceTable{uris: make([]string, len(uris))}
	copy(t.uris, uris)
	return t
}

// URI returns the URI at index i.
func (t *NamespaceTable) URI(i uint16) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(i) >= len(t.uris) {
		return "", false
	}
	return t.uris[i], true
}

// Index returns the index of uri.
func (t *NamespaceTable) Index(uri string) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, u := range t.uris {
		if u == uri {
			return uint16(i), true
		}
	}
	return 0, false
}

// Add appends uri if it is not present and returns its index.
func (t *NamespaceTable) Add(uri string) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, u := range t.uris {
		if u == uri {
			return uint16(i)
		}
	}
	t.uris = append(t.uris, uri)
	return uint16(len(t.uris) - 1)
}

// URIs returns a copy of the table.
func (t *NamespaceTable) URIs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.uris))
	copy(out, t.uris)
	return out
}

// Len returns the number of namespaces.
func (t *NamespaceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.uris)
}

// String returns the text form "ns:name", omitting the index for namespace
// zero.
func (q QualifiedName) String() string {
	if q.NamespaceIndex == 0 {
		return q.Name
	}
	return strconv.FormatUint(uint64(q.NamespaceIndex), 10) + ":" + q.Name
}

// ParseQualifiedName parses "ns:name" or a bare name in namespace zero.
func ParseQualifiedName(s string) (QualifiedName, error) {
	if s == "" {
		return QualifiedName{}, fmt.Errorf("%w: empty", ErrInvalidQualifiedName)
	}
	if i := strings.IndexByte(s, ':'); i > 0 {
		if v, err := strconv.ParseUint(s[:i], 10, 16); err == nil {
			return QualifiedName{NamespaceIndex: uint16(v), Name: s[i+1:]}, nil
		}
	}
	return QualifiedName{Name: s}, nil
}
