package memspace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/memspace"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

const plantSnapshot = `
namespaces:
  - urn:edgeo:plant
objects:
  - nodeId: ns=1;s=Line1
    browseName: 1:Line1
dataTypes:
  - nodeId: ns=1;i=3001
    browseName: 1:Point
    encodings:
      binary: ns=1;i=3002
      xml: ns=1;i=3003
    structure:
      fields:
        - {name: X, dataType: i=11}
        - {name: Y, dataType: i=11}
  - nodeId: ns=1;i=3010
    browseName: 1:Color
    enum:
      fields:
        - {name: Red, value: 0}
        - {name: Green, value: 1}
  - nodeId: ns=1;i=3020
    browseName: 1:Marker
    encodings:
      binary: ns=1;i=3021
    structure:
      type: StructureWithOptionalFields
      fields:
        - {name: Position, dataType: ns=1;i=3001}
        - {name: Color, dataType: ns=1;i=3010, optional: true}
        - {name: Tags, dataType: i=12, valueRank: 1}
variables:
  - nodeId: ns=1;s=Temperatures
    browseName: 1:Temperatures
    parent: ns=1;s=Line1
    dataType: i=11
    value: [20.5, 21, 22.5]
  - nodeId: ns=1;s=Mode
    browseName: 1:Mode
    parent: ns=1;s=Line1
    dataType: ns=1;i=3010
    value: 1
    readOnly: true
`

var (
	line1        = opcua.NewStringNodeID(1, "Line1")
	temperatures = opcua.NewStringNodeID(1, "Temperatures")
	mode         = opcua.NewStringNodeID(1, "Mode")
	pointType    = opcua.NewNumericNodeID(1, 3001)
	colorType    = opcua.NewNumericNodeID(1, 3010)
	markerType   = opcua.NewNumericNodeID(1, 3020)
	markerBinary = opcua.NewNumericNodeID(1, 3021)
)

func newPlant(t *testing.T, opts ...memspace.Option) (*memspace.Space, *opcua.Client) {
	t.Helper()
	space := memspace.New(opts...)
	snap, err := memspace.LoadSnapshot(strings.NewReader(plantSnapshot))
	require.NoError(t, err)
	require.NoError(t, space.Apply(snap))

	client, err := opcua.NewClient(space)
	require.NoError(t, err)
	return space, client
}

func TestClient_DiscoverAndDecode(t *testing.T) {
	_, client := newPlant(t)
	ctx := context.Background()

	tree, err := typetree.Discover(ctx, client)
	require.NoError(t, err)

	marker, ok := tree.Get(markerType)
	require.True(t, ok)
	bin, ok := marker.BinaryEncodingID()
	require.True(t, ok)
	assert.Equal(t, markerBinary, bin)
	sd, ok := marker.StructureDefinition()
	require.True(t, ok)
	assert.Equal(t, opcua.StructureTypeStructureWithOptionalFields, sd.StructureType)

	point, ok := tree.Get(pointType)
	require.True(t, ok)
	_, ok = point.XMLEncodingID()
	assert.True(t, ok)
	_, ok = point.JSONEncodingID()
	assert.False(t, ok)

	assert.True(t, tree.IsSubtypeOf(colorType, opcua.Enumeration))
	assert.Equal(t, opcua.TypeInt32, tree.BuiltinType(colorType))
	assert.Equal(t, opcua.TypeDouble, tree.BuiltinType(opcua.NewNumericNodeID(0, 290)))
	_, ok = tree.Get(opcua.NewNumericNodeID(0, 290))
	assert.True(t, ok)

	m := dynamic.NewManager()
	assert.Equal(t, 2, dynamic.RegisterCodecs(tree, m, nil))

	v := dynamic.NewStruct(markerType,
		dynamic.Field{Name: "Position", Value: dynamic.NewStruct(pointType,
			dynamic.Field{Name: "X", Value: 1.5},
			dynamic.Field{Name: "Y", Value: -2.0},
		)},
		dynamic.Field{Name: "Tags", Value: []string{"north", "gate"}},
	)
	eo, err := m.EncodeExtensionObject(markerType, v)
	require.NoError(t, err)
	assert.Equal(t, markerBinary, eo.TypeID)

	decoded, err := m.DecodeExtensionObject(eo)
	require.NoError(t, err)
	got, ok := decoded.(*dynamic.Struct)
	require.True(t, ok)
	assert.Equal(t, "{Position: {X: 1.5, Y: -2}, Color: <nil>, Tags: [north gate]}", got.String())
}

func TestClient_DiscoverDirect(t *testing.T) {
	space, client := newPlant(t)
	ctx := context.Background()

	overClient, err := typetree.Discover(ctx, client)
	require.NoError(t, err)
	direct, err := typetree.Discover(ctx, space)
	require.NoError(t, err)
	assert.Equal(t, overClient.Len(), direct.Len())
}

func TestClient_ReadWriteIndexRange(t *testing.T) {
	_, client := newPlant(t)
	ctx := context.Background()

	require.NoError(t, client.WriteValue(ctx, temperatures, "1", opcua.NewVariant(opcua.TypeDouble, []float64{99})))

	results, err := client.Read(ctx, []opcua.ReadValueID{
		{NodeID: temperatures, AttributeID: opcua.AttributeValue, IndexRange: "0:1"},
		{NodeID: temperatures, AttributeID: opcua.AttributeValue, IndexRange: "5"},
		{NodeID: mode, AttributeID: opcua.AttributeValue},
	})
	require.NoError(t, err)
	require.Equal(t, opcua.StatusGood, results[0].StatusCode)
	assert.Equal(t, []float64{20.5, 99}, results[0].Value.Value)
	assert.Equal(t, opcua.StatusBadIndexRangeNoData, results[1].StatusCode)
	assert.Equal(t, int32(1), results[2].Value.Value)

	err = client.WriteValue(ctx, mode, "", opcua.NewVariant(opcua.TypeInt32, int32(0)))
	assert.ErrorIs(t, err, opcua.StatusBadNotWritable)

	err = client.WriteValue(ctx, temperatures, "1:2", opcua.NewVariant(opcua.TypeString, []string{"a", "b"}))
	assert.ErrorIs(t, err, opcua.StatusBadTypeMismatch)
}

func TestClient_BrowseFollowsContinuations(t *testing.T) {
	space, client := newPlant(t, memspace.WithMaxReferencesPerNode(1))
	ctx := context.Background()

	refs, err := client.BrowseNode(ctx, line1, opcua.BrowseDirectionForward)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "1:Temperatures", refs[0].BrowseName.String())
	assert.Equal(t, "1:Mode", refs[1].BrowseName.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(client.Metrics().BrowseNextTotal))
	assert.Equal(t, 0, space.PendingContinuations())
}

func TestClient_ServiceFaults(t *testing.T) {
	space, client := newPlant(t)
	ctx := context.Background()

	_, err := client.Read(ctx, nil)
	assert.ErrorIs(t, err, opcua.StatusBadNothingToDo)

	e := opcua.NewEncoder()
	e.WriteNodeID(opcua.NewNumericNodeID(0, 9999))
	reply, err := space.Send(ctx, e.Bytes())
	require.NoError(t, err)
	err = opcua.DecodeResponse(reply, opcua.ServiceRead, &opcua.ReadResponse{})
	assert.ErrorIs(t, err, opcua.StatusBadServiceUnsupported)

	msg, err := opcua.EncodeRequest(&opcua.ReadRequest{NodesToRead: []opcua.ReadValueID{{NodeID: mode}}})
	require.NoError(t, err)
	reply, err = space.Send(ctx, msg[:len(msg)-3])
	require.NoError(t, err)
	err = opcua.DecodeResponse(reply, opcua.ServiceRead, &opcua.ReadResponse{})
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestClient_SpaceClosed(t *testing.T) {
	space, client := newPlant(t)
	require.NoError(t, space.Close())

	_, err := client.ReadValue(context.Background(), mode)
	assert.ErrorIs(t, err, memspace.ErrClosed)
}

func TestClient_SharedMetrics(t *testing.T) {
	space, _ := newPlant(t)
	m := opcua.NewMetrics(nil)
	first, err := opcua.NewClient(space, opcua.WithMetrics(m))
	require.NoError(t, err)
	second, err := opcua.NewClient(space, opcua.WithMetrics(m))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = first.ReadValue(ctx, mode)
	require.NoError(t, err)
	_, err = second.ReadValue(ctx, mode)
	require.NoError(t, err)

	assert.Same(t, m, first.Metrics())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("Read", "good")))
}
