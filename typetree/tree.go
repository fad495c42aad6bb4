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

// Node is a data type in a Tree. Its children are the direct subtypes.
type Node struct {
	dataType *DataType
	parent   *Node
	children []*Node
}

// NewNode returns a detached node, typically the root of a hand-built tree.
func NewNode(dt *DataType) *Node {
	return &Node{dataType: dt}
}

// DataType returns the descriptor held by the node.
func (n *Node) DataType() *DataType { return n.dataType }

// Parent returns the supertype node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the direct subtype nodes.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Depth returns the number of edges between the node and the root.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Traverse calls fn for n and its descendants in depth-first pre-order.
// Returning false from fn skips the descendants of that node.
func (n *Node) Traverse(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Traverse(fn)
	}
}

// AddChild attaches a subtype. It is meant for building trees by hand and
// must not be called once the tree is shared.
func (n *Node) AddChild(dt *DataType) *Node {
	c := &Node{dataType: dt, parent: n}
	n.children = append(n.children, c)
	return c
}

// Tree is a data type hierarchy. A Tree returned by New or Discover is not
// modified afterwards and is safe for concurrent use.
type Tree struct {
	root  *Node
	index map[string]*Node
}

// New indexes the hierarchy rooted at root.
func New(root *Node) *Tree {
	t := &Tree{root: root, index: make(map[string]*Node)}
	root.Traverse(func(n *Node) bool {
		t.index[n.dataType.nodeID.String()] = n
		return true
	})
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the number of data types in the tree.
func (t *Tree) Len() int { return len(t.index) }

// Node returns the node of the data type with the given id.
func (t *Tree) Node(id opcua.NodeID) (*Node, bool) {
	n, ok := t.index[id.String()]
	return n, ok
}

// Get returns the descriptor of the data type with the given id.
func (t *Tree) Get(id opcua.NodeID) (*DataType, bool) {
	n, ok := t.Node(id)
	if !ok {
		return nil, false
	}
	return n.dataType, true
}

// Traverse walks the whole tree, see Node.Traverse.
func (t *Tree) Traverse(fn func(*Node) bool) {
	t.root.Traverse(fn)
}

// IsSubtypeOf reports whether id names base or one of its subtypes.
func (t *Tree) IsSubtypeOf(id, base opcua.NodeID) bool {
	n, ok := t.Node(id)
	if !ok {
		return false
	}
	for ; n != nil; n = n.parent {
		if n.dataType.nodeID.Equal(base) {
			return true
		}
	}
	return false
}

// BuiltinType returns the built-in type values of the data type are encoded
// as. Subtypes of a built-in type inherit it, enumerations encode as Int32,
// structures as ExtensionObject and abstract types above them as Variant.
// TypeNull is returned for ids missing from the tree.
func (t *Tree) BuiltinType(id opcua.NodeID) opcua.TypeID {
	n, ok := t.Node(id)
	if !ok {
		return opcua.TypeNull
	}
	for ; n != nil; n = n.parent {
		nid := n.dataType.nodeID
		if nid.Namespace != 0 || nid.Type != opcua.NodeIDTypeNumeric {
			continue
		}
		if nid.Equal(opcua.Enumeration) {
			return opcua.TypeInt32
		}
		if tid := opcua.TypeID(nid.Numeric); nid.Numeric <= uint32(opcua.TypeDiagnosticInfo) && tid.IsBuiltin() {
			return tid
		}
	}
	return opcua.TypeVariant
}
