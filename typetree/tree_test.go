package typetree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

func ns0(name string, id uint32) *DataType {
	return NewDataType(opcua.NewNumericNodeID(0, id), opcua.QualifiedName{Name: name}, Encodings{}, nil, false)
}

// buildTree returns BaseDataType -> {Number -> {Double -> {Duration}},
// Enumeration -> {Color}, Structure -> {Point}}.
func buildTree() *Tree {
	root := &Node{dataType: ns0("BaseDataType", 24)}
	number := root.AddChild(ns0("Number", 26))
	double := number.AddChild(ns0("Double", 11))
	double.AddChild(ns0("Duration", 290))
	enum := root.AddChild(ns0("Enumeration", 29))
	enum.AddChild(NewDataType(opcua.NewStringNodeID(2, "Color"), opcua.QualifiedName{NamespaceIndex: 2, Name: "Color"}, Encodings{}, &opcua.EnumDefinition{}, false))
	structure := root.AddChild(ns0("Structure", 22))
	bin := opcua.NewNumericNodeID(2, 5001)
	structure.AddChild(NewDataType(opcua.NewNumericNodeID(2, 5000), opcua.QualifiedName{NamespaceIndex: 2, Name: "Point"}, Encodings{Binary: &bin}, &opcua.StructureDefinition{}, false))
	return New(root)
}

func TestTree_Lookup(t *testing.T) {
	t.Parallel()

	tree := buildTree()
	assert.Equal(t, 8, tree.Len())

	dt, ok := tree.Get(opcua.NewNumericNodeID(2, 5000))
	require.True(t, ok)
	assert.Equal(t, "2:Point", dt.BrowseName().String())
	_, ok = dt.StructureDefinition()
	assert.True(t, ok)
	_, ok = dt.EnumDefinition()
	assert.False(t, ok)

	_, ok = tree.Get(opcua.NewNumericNodeID(2, 9999))
	assert.False(t, ok)

	n, ok := tree.Node(opcua.MustParseNodeID("ns=2;s=Color"))
	require.True(t, ok)
	assert.Equal(t, "Enumeration", n.Parent().DataType().BrowseName().Name)
}

func TestTree_IsSubtypeOf(t *testing.T) {
	t.Parallel()

	tree := buildTree()
	duration := opcua.NewNumericNodeID(0, 290)

	assert.True(t, tree.IsSubtypeOf(duration, opcua.Number))
	assert.True(t, tree.IsSubtypeOf(duration, duration))
	assert.True(t, tree.IsSubtypeOf(duration, opcua.BaseDataType))
	assert.False(t, tree.IsSubtypeOf(duration, opcua.Structure))
	assert.False(t, tree.IsSubtypeOf(opcua.NewNumericNodeID(2, 9999), opcua.BaseDataType))
}

func TestTree_BuiltinType(t *testing.T) {
	t.Parallel()

	tree := buildTree()

	tests := []struct {
		id   opcua.NodeID
		want opcua.TypeID
	}{
		{opcua.NewNumericNodeID(0, 11), opcua.TypeDouble},
		{opcua.NewNumericNodeID(0, 290), opcua.TypeDouble},
		{opcua.MustParseNodeID("ns=2;s=Color"), opcua.TypeInt32},
		{opcua.NewNumericNodeID(2, 5000), opcua.TypeExtensionObject},
		{opcua.Number, opcua.TypeVariant},
		{opcua.BaseDataType, opcua.TypeVariant},
		{opcua.NewNumericNodeID(2, 9999), opcua.TypeNull},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tree.BuiltinType(tt.id), tt.id.String())
	}
}

func TestTree_Traverse(t *testing.T) {
	t.Parallel()

	tree := buildTree()

	var names []string
	tree.Traverse(func(n *Node) bool {
		names = append(names, n.DataType().BrowseName().Name)
		return n.DataType().BrowseName().Name != "Number"
	})
	assert.Equal(t, []string{"BaseDataType", "Number", "Enumeration", "Color", "Structure", "Point"}, names)

	s, ok := tree.Node(opcua.Structure)
	require.True(t, ok)
	count := 0
	s.Traverse(func(*Node) bool {
		count++
		return true
	})
	assert.Equal(t, 2, count)
}

func TestDataType_EncodingsAreCopied(t *testing.T) {
	t.Parallel()

	bin := opcua.NewNumericNodeID(2, 1)
	dt := NewDataType(opcua.NewNumericNodeID(2, 2), opcua.QualifiedName{Name: "T"}, Encodings{Binary: &bin}, nil, true)
	bin.Numeric = 99

	enc := dt.Encodings()
	enc.Binary.Numeric = 77

	got, ok := dt.BinaryEncodingID()
	require.True(t, ok)
	assert.Equal(t, uint32(1), got.Numeric)
	assert.True(t, dt.IsAbstract())
	assert.Equal(t, "T (ns=2;i=2)", dt.String())
}
