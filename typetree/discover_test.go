package typetree

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

const vendorURI = "urn:edgeo:vendor"

var errUnreachable = errors.New("server unreachable")

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) BrowseReferences(ctx context.Context, bd opcua.BrowseDescription) ([]opcua.ReferenceDescription, error) {
	args := m.Called(bd.NodeID.String(), bd.ReferenceTypeID.String())
	refs, _ := args.Get(0).([]opcua.ReferenceDescription)
	return refs, args.Error(1)
}

func (m *mockTransport) Read(ctx context.Context, nodes []opcua.ReadValueID) ([]opcua.DataValue, error) {
	args := m.Called(nodes[0].NodeID.String(), nodes[0].AttributeID)
	results, _ := args.Get(0).([]opcua.DataValue)
	return results, args.Error(1)
}

// vendorRef returns a reference to ns=2;i=id as a server would send it,
// naming the namespace by URI.
func vendorRef(id uint32, name string) opcua.ReferenceDescription {
	return opcua.ReferenceDescription{
		ReferenceTypeID: opcua.HasSubtype,
		IsForward:       true,
		NodeID: opcua.ExpandedNodeID{
			NodeID:       opcua.NewNumericNodeID(0, id),
			NamespaceURI: vendorURI,
		},
		BrowseName: opcua.QualifiedName{NamespaceIndex: 2, Name: name},
		NodeClass:  opcua.NodeClassDataType,
	}
}

func encodingRef(name string, id uint32) opcua.ReferenceDescription {
	return opcua.ReferenceDescription{
		ReferenceTypeID: opcua.HasEncoding,
		IsForward:       true,
		NodeID:          opcua.NewExpandedNodeID(opcua.NewNumericNodeID(2, id)),
		BrowseName:      opcua.QualifiedName{Name: name},
		NodeClass:       opcua.NodeClassObject,
	}
}

func definitionValue(t *testing.T, def opcua.DataTypeDefinition) []opcua.DataValue {
	t.Helper()
	eo, err := opcua.NewDefinitionObject(def)
	require.NoError(t, err)
	return []opcua.DataValue{
		{Value: opcua.NewVariant(opcua.TypeExtensionObject, eo)},
		{Value: opcua.NewVariant(opcua.TypeBoolean, false)},
	}
}

func noDefinition() []opcua.DataValue {
	return []opcua.DataValue{
		{StatusCode: opcua.StatusBadAttributeIdInvalid},
		{Value: opcua.NewVariant(opcua.TypeBoolean, false)},
	}
}

var (
	typeA  = opcua.NewNumericNodeID(2, 1)
	typeB  = opcua.NewNumericNodeID(2, 2)
	typeA1 = opcua.NewNumericNodeID(2, 3)

	subtype  = opcua.HasSubtype.String()
	encoding = opcua.HasEncoding.String()
)

// newHierarchy mocks base -> {A, B}, A -> {A1}. A carries a structure
// definition and all three encodings. Expectations registered by override
// take precedence over the defaults.
func newHierarchy(t *testing.T, override func(m *mockTransport)) (*mockTransport, *opcua.StructureDefinition) {
	t.Helper()

	def := &opcua.StructureDefinition{
		DefaultEncodingID: opcua.NewNumericNodeID(2, 101),
		BaseDataType:      opcua.Structure,
		StructureType:     opcua.StructureTypeStructure,
		Fields: []opcua.StructureField{
			{Name: "X", DataType: opcua.BuiltinNodeID(opcua.TypeDouble), ValueRank: opcua.ValueRankScalar},
		},
	}

	m := &mockTransport{}
	if override != nil {
		override(m)
	}
	m.On("Read", opcua.ServerNamespaceArray.String(), opcua.AttributeValue).Return([]opcua.DataValue{
		{Value: opcua.NewVariant(opcua.TypeString, []string{opcua.NamespaceURI, "urn:edgeo:server", vendorURI})},
	}, nil)

	m.On("BrowseReferences", opcua.BaseDataType.String(), subtype).Return([]opcua.ReferenceDescription{
		vendorRef(1, "A"), vendorRef(2, "B"),
	}, nil)
	m.On("BrowseReferences", typeA.String(), subtype).Return([]opcua.ReferenceDescription{
		vendorRef(3, "A1"),
	}, nil)
	m.On("BrowseReferences", typeB.String(), subtype).Return(nil, nil)
	m.On("BrowseReferences", typeA1.String(), subtype).Return(nil, nil)

	m.On("BrowseReferences", typeA.String(), encoding).Return([]opcua.ReferenceDescription{
		encodingRef(opcua.EncodingDefaultBinary, 101),
		encodingRef(opcua.EncodingDefaultXML, 102),
		encodingRef(opcua.EncodingDefaultJSON, 103),
	}, nil)
	m.On("BrowseReferences", typeA1.String(), encoding).Return(nil, nil)
	m.On("BrowseReferences", typeB.String(), encoding).Return(nil, nil)

	m.On("Read", typeA.String(), opcua.AttributeDataTypeDefinition).Return(definitionValue(t, def), nil)
	m.On("Read", typeB.String(), opcua.AttributeDataTypeDefinition).Return(noDefinition(), nil)
	m.On("Read", typeA1.String(), opcua.AttributeDataTypeDefinition).Return(noDefinition(), nil)

	return m, def
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	m, def := newHierarchy(t, nil)

	reg := prometheus.NewRegistry()
	tree, err := Discover(context.Background(), m, WithMetricsRegisterer(reg))
	require.NoError(t, err)
	m.AssertExpectations(t)

	assert.Equal(t, 4, tree.Len())
	root := tree.Root()
	assert.True(t, root.DataType().NodeID().Equal(opcua.BaseDataType))
	assert.Nil(t, root.Parent())
	require.Len(t, root.Children(), 2)

	a, ok := tree.Node(typeA)
	require.True(t, ok)
	assert.Same(t, root, a.Parent())
	assert.Equal(t, "2:A", a.DataType().BrowseName().String())
	require.Len(t, a.Children(), 1)
	assert.True(t, a.Children()[0].DataType().NodeID().Equal(typeA1))
	assert.Equal(t, 2, a.Children()[0].Depth())

	b, ok := tree.Get(typeB)
	require.True(t, ok)
	assert.Nil(t, b.Definition())

	dt := a.DataType()
	got, ok := dt.StructureDefinition()
	require.True(t, ok)
	assert.Equal(t, def, got)

	bin, ok := dt.BinaryEncodingID()
	require.True(t, ok)
	assert.Equal(t, "ns=2;i=101", bin.String())
	xml, ok := dt.XMLEncodingID()
	require.True(t, ok)
	assert.Equal(t, "ns=2;i=102", xml.String())
	json, ok := dt.JSONEncodingID()
	require.True(t, ok)
	assert.Equal(t, "ns=2;i=103", json.String())

	assert.Equal(t, float64(3), testutil.ToFloat64(NewMetrics(reg).TypesDiscovered))
}

func TestDiscover_EncodingBrowseFails(t *testing.T) {
	t.Parallel()

	m, _ := newHierarchy(t, func(m *mockTransport) {
		m.On("BrowseReferences", typeB.String(), encoding).Return(nil, errUnreachable)
	})

	metrics := NewMetrics(nil)
	tree, err := Discover(context.Background(), m, WithMetrics(metrics))
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Len())
	b, ok := tree.Get(typeB)
	require.True(t, ok)
	assert.Equal(t, Encodings{}, b.Encodings())
	_, ok = b.BinaryEncodingID()
	assert.False(t, ok)

	a, ok := tree.Get(typeA)
	require.True(t, ok)
	_, ok = a.BinaryEncodingID()
	assert.True(t, ok)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BrowseFailures))
}

func TestDiscover_SubtypeBrowseFails(t *testing.T) {
	t.Parallel()

	m := &mockTransport{}
	m.On("Read", opcua.ServerNamespaceArray.String(), opcua.AttributeValue).Return([]opcua.DataValue{
		{Value: opcua.NewVariant(opcua.TypeString, []string{opcua.NamespaceURI})},
	}, nil)
	m.On("BrowseReferences", opcua.BaseDataType.String(), subtype).Return(nil, errUnreachable)

	tree, err := Discover(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
	assert.Empty(t, tree.Root().Children())
}

func TestDiscover_DefinitionReadFails(t *testing.T) {
	t.Parallel()

	m, _ := newHierarchy(t, func(m *mockTransport) {
		m.On("Read", typeB.String(), opcua.AttributeDataTypeDefinition).Return(nil, errUnreachable)
		m.On("Read", typeA1.String(), opcua.AttributeDataTypeDefinition).Return([]opcua.DataValue{
			{Value: opcua.NewVariant(opcua.TypeExtensionObject, opcua.ExtensionObject{
				TypeID:   opcua.StructureDefinitionEncodingBinary,
				Encoding: opcua.ExtensionObjectBinary,
				Body:     []byte{0x01},
			})},
		}, nil)
	})

	metrics := NewMetrics(nil)
	tree, err := Discover(context.Background(), m, WithMetrics(metrics))
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Len())

	for _, id := range []opcua.NodeID{typeB, typeA1} {
		dt, ok := tree.Get(id)
		require.True(t, ok)
		assert.Nil(t, dt.Definition(), id.String())
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DefinitionFailures))
}

func TestDiscover_NamespaceReadFails(t *testing.T) {
	t.Parallel()

	t.Run("transport error", func(t *testing.T) {
		m := &mockTransport{}
		m.On("Read", opcua.ServerNamespaceArray.String(), opcua.AttributeValue).Return(nil, errUnreachable)

		tree, err := Discover(context.Background(), m)
		require.Error(t, err)
		assert.Nil(t, tree)
		assert.ErrorIs(t, err, errUnreachable)
		m.AssertNotCalled(t, "BrowseReferences", mock.Anything, mock.Anything)
	})

	t.Run("bad status", func(t *testing.T) {
		m := &mockTransport{}
		m.On("Read", opcua.ServerNamespaceArray.String(), opcua.AttributeValue).Return([]opcua.DataValue{
			{StatusCode: opcua.StatusBadNodeIdUnknown},
		}, nil)

		_, err := Discover(context.Background(), m)
		assert.ErrorIs(t, err, opcua.StatusBadNodeIdUnknown)
	})

	t.Run("wrong type", func(t *testing.T) {
		m := &mockTransport{}
		m.On("Read", opcua.ServerNamespaceArray.String(), opcua.AttributeValue).Return([]opcua.DataValue{
			{Value: opcua.NewVariant(opcua.TypeInt32, int32(3))},
		}, nil)

		_, err := Discover(context.Background(), m)
		assert.ErrorIs(t, err, opcua.StatusBadTypeMismatch)
	})
}

func TestDiscover_UntranslatableNodeIDSkipped(t *testing.T) {
	t.Parallel()

	m := &mockTransport{}
	m.On("Read", opcua.ServerNamespaceArray.String(), opcua.AttributeValue).Return([]opcua.DataValue{
		{Value: opcua.NewVariant(opcua.TypeString, []string{opcua.NamespaceURI})},
	}, nil)
	m.On("BrowseReferences", opcua.BaseDataType.String(), subtype).Return([]opcua.ReferenceDescription{
		vendorRef(1, "Unknown"),
	}, nil)

	tree, err := Discover(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
}

func TestDiscover_SubtypeCycle(t *testing.T) {
	t.Parallel()

	m, _ := newHierarchy(t, func(m *mockTransport) {
		m.On("BrowseReferences", typeA1.String(), subtype).Return([]opcua.ReferenceDescription{
			vendorRef(3, "A1"), vendorRef(1, "A"),
		}, nil)
		m.On("BrowseReferences", typeB.String(), subtype).Return([]opcua.ReferenceDescription{
			vendorRef(2, "B"),
		}, nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tree, err := Discover(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Len())

	a1, ok := tree.Node(typeA1)
	require.True(t, ok)
	assert.Empty(t, a1.Children())
	assert.True(t, a1.Parent().DataType().NodeID().Equal(typeA))

	b, ok := tree.Node(typeB)
	require.True(t, ok)
	assert.Empty(t, b.Children())
}

func TestDiscover_Cancelled(t *testing.T) {
	t.Parallel()

	m, _ := newHierarchy(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, m, WithMaxConcurrentRequests(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_RequestCap(t *testing.T) {
	t.Parallel()

	m, _ := newHierarchy(t, nil)

	tree, err := Discover(context.Background(), m, WithMaxConcurrentRequests(1))
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Len())
}
