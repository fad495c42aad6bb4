package memspace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

var (
	fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	device   = opcua.NewStringNodeID(1, "Device")
	samples  = opcua.NewStringNodeID(1, "Samples")
	grid     = opcua.NewStringNodeID(1, "Grid")
	label    = opcua.NewStringNodeID(1, "Label")
	point    = opcua.NewNumericNodeID(1, 3001)
	pointBin = opcua.NewNumericNodeID(1, 3002)
)

func newTestSpace(t *testing.T, opts ...Option) *Space {
	t.Helper()
	s := New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
	require.Equal(t, uint16(1), s.AddNamespace("urn:edgeo:test"))

	require.NoError(t, s.AddObject(device, opcua.QualifiedName{NamespaceIndex: 1, Name: "Device"}, opcua.ObjectsFolder))
	require.NoError(t, s.AddVariable(samples, opcua.QualifiedName{NamespaceIndex: 1, Name: "Samples"}, device,
		opcua.BuiltinNodeID(opcua.TypeInt32), opcua.NewVariant(opcua.TypeInt32, []int32{1, 2, 3, 4})))
	require.NoError(t, s.AddVariable(grid, opcua.QualifiedName{NamespaceIndex: 1, Name: "Grid"}, device,
		opcua.BuiltinNodeID(opcua.TypeDouble), opcua.NewVariant(opcua.TypeDouble, [][]float64{{1, 2, 3}, {4, 5, 6}})))
	require.NoError(t, s.AddVariable(label, opcua.QualifiedName{NamespaceIndex: 1, Name: "Label"}, device,
		opcua.BuiltinNodeID(opcua.TypeString), opcua.NewVariant(opcua.TypeString, "pump")))

	require.NoError(t, s.AddDataType(DataType{
		NodeID:     point,
		BrowseName: opcua.QualifiedName{NamespaceIndex: 1, Name: "Point"},
		Parent:     opcua.Structure,
		Definition: &opcua.StructureDefinition{
			DefaultEncodingID: pointBin,
			BaseDataType:      opcua.Structure,
			Fields: []opcua.StructureField{
				{Name: "X", DataType: opcua.BuiltinNodeID(opcua.TypeDouble), ValueRank: opcua.ValueRankScalar},
				{Name: "Y", DataType: opcua.BuiltinNodeID(opcua.TypeDouble), ValueRank: opcua.ValueRankScalar},
			},
		},
		Encodings: typetree.Encodings{Binary: &pointBin},
	}))
	return s
}

func targets(refs []opcua.ReferenceDescription) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.NodeID.String()
	}
	return out
}

func TestSpace_BrowseSubtypes(t *testing.T) {
	s := newTestSpace(t)
	ctx := context.Background()

	refs, err := s.BrowseReferences(ctx, opcua.BrowseDescription{
		NodeID:          opcua.Structure,
		BrowseDirection: opcua.BrowseDirectionForward,
		ReferenceTypeID: opcua.HasSubtype,
		NodeClassMask:   uint32(opcua.NodeClassDataType),
		ResultMask:      uint32(opcua.BrowseResultMaskAll),
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "ns=1;i=3001", refs[0].NodeID.String())
	assert.Equal(t, "1:Point", refs[0].BrowseName.String())
	assert.Equal(t, opcua.NodeClassDataType, refs[0].NodeClass)
	assert.True(t, refs[0].IsForward)

	refs, err = s.BrowseReferences(ctx, opcua.BrowseDescription{
		NodeID:          point,
		BrowseDirection: opcua.BrowseDirectionInverse,
		ReferenceTypeID: opcua.HasSubtype,
		ResultMask:      uint32(opcua.BrowseResultMaskAll),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"i=22"}, targets(refs))

	refs, err = s.BrowseReferences(ctx, opcua.BrowseDescription{
		NodeID:          point,
		BrowseDirection: opcua.BrowseDirectionForward,
		ReferenceTypeID: opcua.HasEncoding,
		ResultMask:      uint32(opcua.BrowseResultMaskAll),
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, opcua.EncodingDefaultBinary, refs[0].BrowseName.Name)
	assert.Equal(t, "i=76", refs[0].TypeDefinition.String())
}

func TestSpace_BrowseFilters(t *testing.T) {
	s := newTestSpace(t)
	ctx := context.Background()

	t.Run("reference subtypes", func(t *testing.T) {
		refs, err := s.BrowseReferences(ctx, opcua.BrowseDescription{
			NodeID:          opcua.ObjectsFolder,
			BrowseDirection: opcua.BrowseDirectionBoth,
			ReferenceTypeID: opcua.HierarchicalReferences,
			IncludeSubtypes: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"i=84", "i=2253", "ns=1;s=Device"}, targets(refs))
	})

	t.Run("exact reference type", func(t *testing.T) {
		refs, err := s.BrowseReferences(ctx, opcua.BrowseDescription{
			NodeID:          opcua.ObjectsFolder,
			BrowseDirection: opcua.BrowseDirectionBoth,
			ReferenceTypeID: opcua.HierarchicalReferences,
		})
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("node class mask", func(t *testing.T) {
		refs, err := s.BrowseReferences(ctx, opcua.BrowseDescription{
			NodeID:          device,
			BrowseDirection: opcua.BrowseDirectionForward,
			NodeClassMask:   uint32(opcua.NodeClassObjectType),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"i=58"}, targets(refs))
	})

	t.Run("result mask", func(t *testing.T) {
		refs, err := s.BrowseReferences(ctx, opcua.BrowseDescription{
			NodeID:          device,
			BrowseDirection: opcua.BrowseDirectionForward,
			ReferenceTypeID: Organizes,
			ResultMask:      uint32(opcua.BrowseResultMaskBrowseName),
		})
		require.NoError(t, err)
		require.Len(t, refs, 3)
		assert.Equal(t, "1:Samples", refs[0].BrowseName.String())
		assert.True(t, refs[0].ReferenceTypeID.IsNull())
		assert.Empty(t, refs[0].DisplayName.Text)
	})
}

func TestSpace_BrowseErrors(t *testing.T) {
	s := newTestSpace(t)
	ctx := context.Background()

	tests := []struct {
		name string
		bd   opcua.BrowseDescription
		want opcua.StatusCode
	}{
		{
			name: "unknown node",
			bd:   opcua.BrowseDescription{NodeID: opcua.NewNumericNodeID(1, 9999)},
			want: opcua.StatusBadNodeIdUnknown,
		},
		{
			name: "bad direction",
			bd:   opcua.BrowseDescription{NodeID: opcua.ObjectsFolder, BrowseDirection: 3},
			want: opcua.StatusBadBrowseDirectionInvalid,
		},
		{
			name: "not a reference type",
			bd:   opcua.BrowseDescription{NodeID: opcua.ObjectsFolder, ReferenceTypeID: opcua.BaseDataType},
			want: opcua.StatusBadReferenceTypeIdInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Browse(ctx, []opcua.BrowseDescription{tt.bd}, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, results[0].StatusCode)

			_, err = s.BrowseReferences(ctx, tt.bd)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := s.Browse(ctx, nil, 0)
	assert.ErrorIs(t, err, opcua.StatusBadNothingToDo)
}

func TestSpace_BrowseContinuations(t *testing.T) {
	s := newTestSpace(t, WithMaxReferencesPerNode(2))
	ctx := context.Background()
	bd := opcua.BrowseDescription{
		NodeID:          device,
		BrowseDirection: opcua.BrowseDirectionForward,
		ReferenceTypeID: Organizes,
	}

	results, err := s.Browse(ctx, []opcua.BrowseDescription{bd}, 0)
	require.NoError(t, err)
	first := results[0]
	assert.Equal(t, []string{"ns=1;s=Samples", "ns=1;s=Grid"}, targets(first.References))
	require.NotEmpty(t, first.ContinuationPoint)
	assert.Equal(t, 1, s.PendingContinuations())

	results, err = s.BrowseNext(ctx, false, [][]byte{first.ContinuationPoint})
	require.NoError(t, err)
	assert.Equal(t, []string{"ns=1;s=Label"}, targets(results[0].References))
	assert.Empty(t, results[0].ContinuationPoint)
	assert.Equal(t, 0, s.PendingContinuations())

	results, err = s.BrowseNext(ctx, false, [][]byte{first.ContinuationPoint})
	require.NoError(t, err)
	assert.Equal(t, opcua.StatusBadContinuationPointInvalid, results[0].StatusCode)

	t.Run("request limit wins", func(t *testing.T) {
		results, err := s.Browse(ctx, []opcua.BrowseDescription{bd}, 1)
		require.NoError(t, err)
		assert.Len(t, results[0].References, 1)

		released, err := s.BrowseNext(ctx, true, [][]byte{results[0].ContinuationPoint})
		require.NoError(t, err)
		assert.Equal(t, opcua.StatusGood, released[0].StatusCode)
		assert.Empty(t, released[0].References)
		assert.Equal(t, 0, s.PendingContinuations())
	})
}

func TestSpace_Read(t *testing.T) {
	s := newTestSpace(t)
	ctx := context.Background()

	results, err := s.Read(ctx, []opcua.ReadValueID{
		{NodeID: samples, AttributeID: opcua.AttributeNodeClass},
		{NodeID: samples, AttributeID: opcua.AttributeBrowseName},
		{NodeID: samples, AttributeID: opcua.AttributeDataType},
		{NodeID: opcua.Structure, AttributeID: opcua.AttributeIsAbstract},
		{NodeID: point, AttributeID: opcua.AttributeIsAbstract},
		{NodeID: grid, AttributeID: opcua.AttributeValueRank},
		{NodeID: grid, AttributeID: opcua.AttributeArrayDimensions},
		{NodeID: label, AttributeID: opcua.AttributeArrayDimensions},
		{NodeID: opcua.ServerNamespaceArray, AttributeID: opcua.AttributeValue},
	})
	require.NoError(t, err)
	for i, dv := range results {
		require.Equal(t, opcua.StatusGood, dv.StatusCode, "result %d", i)
		assert.Equal(t, fixedNow, dv.ServerTimestamp, "result %d", i)
	}
	assert.Equal(t, int32(opcua.NodeClassVariable), results[0].Value.Value)
	assert.Equal(t, opcua.QualifiedName{NamespaceIndex: 1, Name: "Samples"}, results[1].Value.Value)
	assert.Equal(t, opcua.BuiltinNodeID(opcua.TypeInt32), results[2].Value.Value)
	assert.Equal(t, true, results[3].Value.Value)
	assert.Equal(t, false, results[4].Value.Value)
	assert.Equal(t, int32(2), results[5].Value.Value)
	assert.Equal(t, []uint32{2, 3}, results[6].Value.Value)
	assert.Nil(t, results[7].Value)
	assert.Equal(t, []string{opcua.NamespaceURI, "urn:edgeo:test"}, results[8].Value.Value)

	_, err = s.Read(ctx, nil)
	assert.ErrorIs(t, err, opcua.StatusBadNothingToDo)
}

func TestSpace_ReadDataTypeDefinition(t *testing.T) {
	s := newTestSpace(t)
	results, err := s.Read(context.Background(), []opcua.ReadValueID{
		{NodeID: point, AttributeID: opcua.AttributeDataTypeDefinition},
		{NodeID: opcua.Structure, AttributeID: opcua.AttributeDataTypeDefinition},
	})
	require.NoError(t, err)

	require.Equal(t, opcua.StatusGood, results[0].StatusCode)
	eo, ok := results[0].Value.Value.(opcua.ExtensionObject)
	require.True(t, ok)
	def, err := opcua.DecodeDataTypeDefinition(eo)
	require.NoError(t, err)
	sd, ok := def.(*opcua.StructureDefinition)
	require.True(t, ok)
	assert.Equal(t, pointBin, sd.DefaultEncodingID)
	require.Len(t, sd.Fields, 2)
	assert.Equal(t, "Y", sd.Fields[1].Name)

	assert.Equal(t, opcua.StatusBadAttributeIdInvalid, results[1].StatusCode)
}

func TestSpace_ReadIndexRange(t *testing.T) {
	s := newTestSpace(t)

	tests := []struct {
		name   string
		id     opcua.NodeID
		attr   opcua.AttributeID
		rng    string
		want   interface{}
		status opcua.StatusCode
	}{
		{name: "slice", id: samples, rng: "1:2", want: []int32{2, 3}},
		{name: "single element", id: samples, rng: "3", want: []int32{4}},
		{name: "clamped", id: samples, rng: "2:10", want: []int32{3, 4}},
		{name: "matrix", id: grid, rng: "1,0:1", want: [][]float64{{4, 5}}},
		{name: "substring", id: label, rng: "1:2", want: "um"},
		{name: "out of bounds", id: samples, rng: "10", status: opcua.StatusBadIndexRangeNoData},
		{name: "reversed", id: samples, rng: "2:1", status: opcua.StatusBadIndexRangeInvalid},
		{name: "malformed", id: samples, rng: "a", status: opcua.StatusBadIndexRangeInvalid},
		{name: "not the value", id: samples, attr: opcua.AttributeBrowseName, rng: "0", status: opcua.StatusBadIndexRangeNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := tt.attr
			if attr == 0 {
				attr = opcua.AttributeValue
			}
			results, err := s.Read(context.Background(), []opcua.ReadValueID{
				{NodeID: tt.id, AttributeID: attr, IndexRange: tt.rng},
			})
			require.NoError(t, err)
			dv := results[0]
			if tt.status != opcua.StatusGood {
				assert.Equal(t, tt.status, dv.StatusCode)
				assert.Nil(t, dv.Value)
				return
			}
			require.Equal(t, opcua.StatusGood, dv.StatusCode)
			assert.Equal(t, tt.want, dv.Value.Value)
			assert.Equal(t, fixedNow, dv.SourceTimestamp)
		})
	}
}

func TestSpace_ReadErrors(t *testing.T) {
	s := newTestSpace(t)
	results, err := s.Read(context.Background(), []opcua.ReadValueID{
		{NodeID: opcua.NewNumericNodeID(1, 9999), AttributeID: opcua.AttributeValue},
		{NodeID: device, AttributeID: opcua.AttributeValue},
		{NodeID: device, AttributeID: opcua.AttributeIsAbstract},
		{NodeID: samples, AttributeID: opcua.AttributeAccessLevel},
	})
	require.NoError(t, err)
	assert.Equal(t, opcua.StatusBadNodeIdUnknown, results[0].StatusCode)
	assert.Equal(t, opcua.StatusBadAttributeIdInvalid, results[1].StatusCode)
	assert.Equal(t, opcua.StatusBadAttributeIdInvalid, results[2].StatusCode)
	assert.Equal(t, opcua.StatusBadAttributeIdInvalid, results[3].StatusCode)
}

func TestSpace_Write(t *testing.T) {
	later := fixedNow.Add(time.Minute)

	tests := []struct {
		name   string
		wv     opcua.WriteValue
		status opcua.StatusCode
		want   interface{}
	}{
		{
			name: "whole value",
			wv: opcua.WriteValue{NodeID: samples, AttributeID: opcua.AttributeValue,
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeInt32, []int32{9}), SourceTimestamp: later}},
			want: []int32{9},
		},
		{
			name: "index range",
			wv: opcua.WriteValue{NodeID: samples, AttributeID: opcua.AttributeValue, IndexRange: "1:2",
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeInt32, []int32{20, 30})}},
			want: []int32{1, 20, 30, 4},
		},
		{
			name: "matrix row",
			wv: opcua.WriteValue{NodeID: grid, AttributeID: opcua.AttributeValue, IndexRange: "0,1:2",
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeDouble, [][]float64{{7, 8}})}},
			want: [][]float64{{1, 7, 8}, {4, 5, 6}},
		},
		{
			name: "range beyond value",
			wv: opcua.WriteValue{NodeID: samples, AttributeID: opcua.AttributeValue, IndexRange: "3:4",
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeInt32, []int32{1, 2})}},
			status: opcua.StatusBadIndexRangeNoData,
		},
		{
			name: "wrong type",
			wv: opcua.WriteValue{NodeID: samples, AttributeID: opcua.AttributeValue,
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeDouble, []float64{1})}},
			status: opcua.StatusBadTypeMismatch,
		},
		{
			name:   "no value",
			wv:     opcua.WriteValue{NodeID: samples, AttributeID: opcua.AttributeValue},
			status: opcua.StatusBadTypeMismatch,
		},
		{
			name: "read only",
			wv: opcua.WriteValue{NodeID: opcua.ServerNamespaceArray, AttributeID: opcua.AttributeValue,
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeString, []string{"x"})}},
			status: opcua.StatusBadNotWritable,
		},
		{
			name: "other attribute",
			wv: opcua.WriteValue{NodeID: samples, AttributeID: opcua.AttributeDisplayName,
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeLocalizedText, opcua.LocalizedText{Text: "x"})}},
			status: opcua.StatusBadNotWritable,
		},
		{
			name: "unknown node",
			wv: opcua.WriteValue{NodeID: opcua.NewNumericNodeID(1, 9999), AttributeID: opcua.AttributeValue,
				Value: opcua.DataValue{Value: opcua.NewVariant(opcua.TypeInt32, int32(1))}},
			status: opcua.StatusBadNodeIdUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSpace(t)
			ctx := context.Background()

			results, err := s.Write(ctx, []opcua.WriteValue{tt.wv})
			require.NoError(t, err)
			require.Equal(t, tt.status, results[0])
			if tt.status != opcua.StatusGood {
				return
			}

			read, err := s.Read(ctx, []opcua.ReadValueID{{NodeID: tt.wv.NodeID, AttributeID: opcua.AttributeValue}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, read[0].Value.Value)
			if !tt.wv.Value.SourceTimestamp.IsZero() {
				assert.Equal(t, tt.wv.Value.SourceTimestamp, read[0].SourceTimestamp)
			}
		})
	}
}

func TestSpace_AddErrors(t *testing.T) {
	s := newTestSpace(t)

	err := s.AddObject(device, opcua.QualifiedName{Name: "Again"}, opcua.ObjectsFolder)
	assert.ErrorIs(t, err, opcua.StatusBadNodeIdInvalid)

	err = s.AddObject(opcua.NewStringNodeID(1, "Orphan"), opcua.QualifiedName{Name: "Orphan"}, opcua.NewNumericNodeID(1, 9999))
	assert.ErrorIs(t, err, opcua.StatusBadNodeIdUnknown)
	_, err = s.BrowseReferences(context.Background(), opcua.BrowseDescription{NodeID: opcua.NewStringNodeID(1, "Orphan")})
	assert.ErrorIs(t, err, opcua.StatusBadNodeIdUnknown)

	err = s.AddDataType(DataType{NodeID: opcua.NewNumericNodeID(1, 4000), Parent: opcua.NewNumericNodeID(1, 9999)})
	assert.ErrorIs(t, err, opcua.StatusBadNodeIdUnknown)

	err = s.AddReference(device, opcua.BaseDataType, samples)
	assert.ErrorIs(t, err, opcua.StatusBadReferenceTypeIdInvalid)
	require.NoError(t, s.AddReference(device, HasComponent, samples))
}

func TestSpace_BuiltinType(t *testing.T) {
	s := newTestSpace(t)

	tests := []struct {
		id   opcua.NodeID
		want opcua.TypeID
		ok   bool
	}{
		{opcua.BuiltinNodeID(opcua.TypeInt32), opcua.TypeInt32, true},
		{opcua.NewNumericNodeID(0, 290), opcua.TypeDouble, true},
		{opcua.NewNumericNodeID(0, 294), opcua.TypeDateTime, true},
		{point, opcua.TypeExtensionObject, true},
		{opcua.Number, opcua.TypeVariant, true},
		{opcua.NewNumericNodeID(1, 9999), opcua.TypeNull, false},
	}
	for _, tt := range tests {
		got, ok := s.BuiltinType(tt.id)
		assert.Equal(t, tt.ok, ok, tt.id.String())
		assert.Equal(t, tt.want, got, tt.id.String())
	}
}

func TestSpace_NamespaceURIs(t *testing.T) {
	s := newTestSpace(t, WithNamespaceURIs())
	refs, err := s.BrowseReferences(context.Background(), opcua.BrowseDescription{
		NodeID:          opcua.ObjectsFolder,
		BrowseDirection: opcua.BrowseDirectionForward,
		ReferenceTypeID: Organizes,
	})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "nsu=urn:edgeo:test;s=Device", refs[1].NodeID.String())

	id, ok := refs[1].NodeID.ToNodeID(s.Namespaces())
	require.True(t, ok)
	assert.Equal(t, device, id)
}

func TestSpace_Cancelled(t *testing.T) {
	s := newTestSpace(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Read(ctx, []opcua.ReadValueID{{NodeID: samples, AttributeID: opcua.AttributeValue}})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Browse(ctx, []opcua.BrowseDescription{{NodeID: device}}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
