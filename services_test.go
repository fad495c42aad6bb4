package opcua

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRequest(t *testing.T) {
	req := &ReadRequest{
		RequestHeader:      RequestHeader{RequestHandle: 7, TimeoutHint: 5000, Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		TimestampsToReturn: TimestampsToReturnBoth,
		NodesToRead: []ReadValueID{
			{NodeID: NewStringNodeID(1, "Temperatures"), AttributeID: AttributeValue, IndexRange: "1:2"},
			{NodeID: NewNumericNodeID(0, 22), AttributeID: AttributeDataTypeDefinition},
		},
	}
	msg, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(msg)
	require.NoError(t, err)
	got, ok := decoded.(*ReadRequest)
	require.True(t, ok, "got %T", decoded)
	assert.Equal(t, uint32(7), got.Header().RequestHandle)
	assert.True(t, req.RequestHeader.Timestamp.Equal(got.RequestHeader.Timestamp))
	assert.Equal(t, TimestampsToReturnBoth, got.TimestampsToReturn)
	require.Len(t, got.NodesToRead, 2)
	assert.Equal(t, "1:2", got.NodesToRead[0].IndexRange)
	assert.True(t, got.NodesToRead[0].NodeID.Equal(req.NodesToRead[0].NodeID))
	assert.Equal(t, AttributeDataTypeDefinition, got.NodesToRead[1].AttributeID)
}

func TestWriteRequest(t *testing.T) {
	req := &WriteRequest{NodesToWrite: []WriteValue{{
		NodeID:      NewStringNodeID(1, "Setpoints"),
		AttributeID: AttributeValue,
		IndexRange:  "0:1",
		Value:       DataValue{Value: NewVariant(TypeDouble, []float64{1.5, 2.5})},
	}}}
	msg, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(msg)
	require.NoError(t, err)
	got := decoded.(*WriteRequest)
	require.Len(t, got.NodesToWrite, 1)
	assert.Equal(t, "0:1", got.NodesToWrite[0].IndexRange)
	assert.Equal(t, []float64{1.5, 2.5}, got.NodesToWrite[0].Value.Value.Value)
}

func TestBrowseRequests(t *testing.T) {
	browse := &BrowseRequest{
		RequestedMaxReferencesPerNode: 100,
		NodesToBrowse: []BrowseDescription{{
			NodeID:          BuiltinNodeID(TypeExtensionObject),
			BrowseDirection: BrowseDirectionForward,
			ReferenceTypeID: NewNumericNodeID(0, 45),
			IncludeSubtypes: true,
			ResultMask:      63,
		}},
	}
	msg, err := EncodeRequest(browse)
	require.NoError(t, err)
	decoded, err := DecodeRequest(msg)
	require.NoError(t, err)
	got := decoded.(*BrowseRequest)
	assert.Equal(t, uint32(100), got.RequestedMaxReferencesPerNode)
	require.Len(t, got.NodesToBrowse, 1)
	assert.True(t, got.NodesToBrowse[0].IncludeSubtypes)
	assert.Equal(t, uint32(63), got.NodesToBrowse[0].ResultMask)

	next := &BrowseNextRequest{ReleaseContinuationPoints: true, ContinuationPoints: [][]byte{{1, 2}, {3}}}
	msg, err = EncodeRequest(next)
	require.NoError(t, err)
	decoded, err = DecodeRequest(msg)
	require.NoError(t, err)
	gotNext := decoded.(*BrowseNextRequest)
	assert.True(t, gotNext.ReleaseContinuationPoints)
	assert.Equal(t, [][]byte{{1, 2}, {3}}, gotNext.ContinuationPoints)
}

func TestDecodeRequest_Unsupported(t *testing.T) {
	e := NewEncoder()
	e.WriteNodeID(NewNumericNodeID(0, 461))
	_, err := DecodeRequest(e.Bytes())
	assert.ErrorIs(t, err, StatusBadServiceUnsupported)

	e.Reset()
	e.WriteNodeID(NewStringNodeID(1, "Read"))
	_, err = DecodeRequest(e.Bytes())
	assert.ErrorIs(t, err, StatusBadServiceUnsupported)

	msg, err := EncodeRequest(&ReadRequest{NodesToRead: []ReadValueID{{NodeID: NewNumericNodeID(0, 85)}}})
	require.NoError(t, err)
	_, err = DecodeRequest(msg[:len(msg)-3])
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestBrowseResponse(t *testing.T) {
	resp := &BrowseResponse{
		ResponseHeader: ResponseHeader{RequestHandle: 3, StringTable: []string{"a"}},
		Results: []BrowseResult{{
			ContinuationPoint: []byte{9},
			References: []ReferenceDescription{{
				ReferenceTypeID: NewNumericNodeID(0, 45),
				IsForward:       true,
				NodeID:          NewExpandedNodeID(NewNumericNodeID(1, 3001)),
				BrowseName:      QualifiedName{NamespaceIndex: 1, Name: "Point"},
				DisplayName:     LocalizedText{Text: "Point"},
				NodeClass:       NodeClassDataType,
			}},
		}},
	}
	msg, err := EncodeResponse(resp)
	require.NoError(t, err)

	var got BrowseResponse
	require.NoError(t, DecodeResponse(msg, ServiceBrowse, &got))
	assert.Equal(t, uint32(3), got.ResponseHeader.RequestHandle)
	assert.Equal(t, []string{"a"}, got.ResponseHeader.StringTable)
	require.Len(t, got.Results, 1)
	assert.Equal(t, []byte{9}, got.Results[0].ContinuationPoint)
	require.Len(t, got.Results[0].References, 1)
	ref := got.Results[0].References[0]
	assert.Equal(t, "1:Point", ref.BrowseName.String())
	assert.Equal(t, NodeClassDataType, ref.NodeClass)
	assert.True(t, ref.IsForward)
}

func TestDecodeResponse_Faults(t *testing.T) {
	fault := &ServiceFault{ResponseHeader: ResponseHeader{
		ServiceResult:      StatusBadTooManyOperations,
		ServiceDiagnostics: DiagnosticInfo{AdditionalInfo: "limit", Inner: &DiagnosticInfo{SymbolicID: 2}},
	}}
	msg, err := EncodeResponse(fault)
	require.NoError(t, err)

	var resp ReadResponse
	err = DecodeResponse(msg, ServiceRead, &resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, StatusBadTooManyOperations)
	var opErr *OPCUAError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ServiceRead, opErr.ServiceID)

	msg, err = EncodeResponse(&ReadResponse{ResponseHeader: ResponseHeader{ServiceResult: StatusBadNothingToDo}})
	require.NoError(t, err)
	err = DecodeResponse(msg, ServiceRead, &resp)
	assert.ErrorIs(t, err, StatusBadNothingToDo)

	msg, err = EncodeResponse(&WriteResponse{Results: []StatusCode{StatusGood}})
	require.NoError(t, err)
	err = DecodeResponse(msg, ServiceRead, &resp)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
