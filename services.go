package opcua

import (
	"fmt"
	"time"
)

// RequestHeader contains the header for all OPC UA requests.
type RequestHeader struct {
	AuthenticationToken NodeID
	Timestamp           time.Time
	RequestHandle       uint32
	ReturnDiagnostics   uint32
	AuditEntryID        string
	TimeoutHint         uint32
	AdditionalHeader    ExtensionObject
}

// ResponseHeader contains the header for all OPC UA responses.
type ResponseHeader struct {
	Timestamp          time.Time
	RequestHandle      uint32
	ServiceResult      StatusCode
	ServiceDiagnostics DiagnosticInfo
	StringTable        []string
	AdditionalHeader   ExtensionObject
}

// DiagnosticInfo carries vendor diagnostics for an operation.
type DiagnosticInfo struct {
	SymbolicID      int32
	NamespaceURI    int32
	Locale          int32
	LocalizedText   int32
	AdditionalInfo  string
	InnerStatusCode StatusCode
	Inner           *DiagnosticInfo
}

// ViewDescription describes a view.
type ViewDescription struct {
	ViewID      NodeID
	Timestamp   time.Time
	ViewVersion uint32
}

// ReadRequest represents an OPC UA Read service request.
type ReadRequest struct {
	RequestHeader      RequestHeader
	MaxAge             float64
	TimestampsToReturn TimestampsToReturn
	NodesToRead        []ReadValueID
}

func (r *ReadRequest) ServiceID() ServiceID { return ServiceRead }
func (r *ReadRequest) Header() *RequestHeader { return &r.RequestHeader }

func (r *ReadRequest) Encode(e *Encoder) error {
	encodeRequestHeader(e, &r.RequestHeader)
	e.WriteDouble(r.MaxAge)
	e.WriteUInt32(uint32(r.TimestampsToReturn))
	e.WriteInt32(int32(len(r.NodesToRead)))
	for _, node := range r.NodesToRead {
		e.WriteNodeID(node.NodeID)
		e.WriteUInt32(uint32(node.AttributeID))
		e.WriteString(node.IndexRange)
		e.WriteQualifiedName(node.DataEncoding)
	}
	return nil
}

func (r *ReadRequest) Decode(d *Decoder) error {
	var err error
	if r.RequestHeader, err = decodeRequestHeader(d); err != nil {
		return err
	}
	if r.MaxAge, err = d.ReadDouble(); err != nil {
		return err
	}
	ts, err := d.ReadUInt32()
	if err != nil {
		return err
	}
	r.TimestampsToReturn = TimestampsToReturn(ts)
	return decodeArray(d, &r.NodesToRead, func(d *Decoder) (ReadValueID, error) {
		var (
			rv  ReadValueID
			err error
		)
		if rv.NodeID, err = d.ReadNodeID(); err != nil {
			return rv, err
		}
		attr, err := d.ReadUInt32()
		if err != nil {
			return rv, err
		}
		rv.AttributeID = AttributeID(attr)
		if rv.IndexRange, err = d.ReadString(); err != nil {
			return rv, err
		}
		rv.DataEncoding, err = d.ReadQualifiedName()
		return rv, err
	})
}

// ReadResponse represents an OPC UA Read service response.
type ReadResponse struct {
	ResponseHeader  ResponseHeader
	Results         []DataValue
	DiagnosticInfos []DiagnosticInfo
}

func (r *ReadResponse) ServiceID() ServiceID { return ServiceRead }
func (r *ReadResponse) EncodingID() uint32 { return ReadResponseEncoding }
func (r *ReadResponse) Header() *ResponseHeader { return &r.ResponseHeader }

func (r *ReadResponse) Encode(e *Encoder) error {
	encodeResponseHeader(e, &r.ResponseHeader)
	e.WriteInt32(int32(len(r.Results)))
	for i := range r.Results {
		if err := e.WriteDataValue(r.Results[i]); err != nil {
			return err
		}
	}
	encodeDiagnosticInfos(e, r.DiagnosticInfos)
	return nil
}

func (r *ReadResponse) Decode(d *Decoder) error {
	var err error
	if r.ResponseHeader, err = decodeResponseHeader(d); err != nil {
		return err
	}
	if err := decodeArray(d, &r.Results, (*Decoder).ReadDataValue); err != nil {
		return err
	}
	return decodeArray(d, &r.DiagnosticInfos, decodeDiagnosticInfo)
}

// WriteRequest represents an OPC UA Write service request.
type WriteRequest struct {
	RequestHeader RequestHeader
	NodesToWrite  []WriteValue
}

func (r *WriteRequest) ServiceID() ServiceID { return ServiceWrite }
func (r *WriteRequest) Header() *RequestHeader { return &r.RequestHeader }

func (r *WriteRequest) Encode(e *Encoder) error {
	encodeRequestHeader(e, &r.RequestHeader)
	e.WriteInt32(int32(len(r.NodesToWrite)))
	for _, node := range r.NodesToWrite {
		e.WriteNodeID(node.NodeID)
		e.WriteUInt32(uint32(node.AttributeID))
		e.WriteString(node.IndexRange)
		if err := e.WriteDataValue(node.Value); err != nil {
			return err
		}
	}
	return nil
}

func (r *WriteRequest) Decode(d *Decoder) error {
	var err error
	if r.RequestHeader, err = decodeRequestHeader(d); err != nil {
		return err
	}
	return decodeArray(d, &r.NodesToWrite, func(d *Decoder) (WriteValue, error) {
		var (
			wv  WriteValue
			err error
		)
		if wv.NodeID, err = d.ReadNodeID(); err != nil {
			return wv, err
		}
		attr, err := d.ReadUInt32()
		if err != nil {
			return wv, err
		}
		wv.AttributeID = AttributeID(attr)
		if wv.IndexRange, err = d.ReadString(); err != nil {
			return wv, err
		}
		wv.Value, err = d.ReadDataValue()
		return wv, err
	})
}

// WriteResponse represents an OPC UA Write service response.
type WriteResponse struct {
	ResponseHeader  ResponseHeader
	Results         []StatusCode
	DiagnosticInfos []DiagnosticInfo
}

func (r *WriteResponse) ServiceID() ServiceID { return ServiceWrite }
func (r *WriteResponse) EncodingID() uint32 { return WriteResponseEncoding }
func (r *WriteResponse) Header() *ResponseHeader { return &r.ResponseHeader }

func (r *WriteResponse) Encode(e *Encoder) error {
	encodeResponseHeader(e, &r.ResponseHeader)
	e.WriteInt32(int32(len(r.Results)))
	for _, sc := range r.Results {
		e.WriteStatusCode(sc)
	}
	encodeDiagnosticInfos(e, r.DiagnosticInfos)
	return nil
}

func (r *WriteResponse) Decode(d *Decoder) error {
	var err error
	if r.ResponseHeader, err = decodeResponseHeader(d); err != nil {
		return err
	}
	if err := decodeArray(d, &r.Results, (*Decoder).ReadStatusCode); err != nil {
		return err
	}
	return decodeArray(d, &r.DiagnosticInfos, decodeDiagnosticInfo)
}

// BrowseRequest represents an OPC UA Browse service request.
type BrowseRequest struct {
	RequestHeader                 RequestHeader
	View                          ViewDescription
	RequestedMaxReferencesPerNode uint32
	NodesToBrowse                 []BrowseDescription
}

func (r *BrowseRequest) ServiceID() ServiceID { return ServiceBrowse }
func (r *BrowseRequest) Header() *RequestHeader { return &r.RequestHeader }

func (r *BrowseRequest) Encode(e *Encoder) error {
	encodeRequestHeader(e, &r.RequestHeader)
	e.WriteNodeID(r.View.ViewID)
	e.WriteDateTime(r.View.Timestamp)
	e.WriteUInt32(r.View.ViewVersion)
	e.WriteUInt32(r.RequestedMaxReferencesPerNode)
	e.WriteInt32(int32(len(r.NodesToBrowse)))
	for _, node := range r.NodesToBrowse {
		e.WriteNodeID(node.NodeID)
		e.WriteUInt32(uint32(node.BrowseDirection))
		e.WriteNodeID(node.ReferenceTypeID)
		e.WriteBoolean(node.IncludeSubtypes)
		e.WriteUInt32(node.NodeClassMask)
		e.WriteUInt32(node.ResultMask)
	}
	return nil
}

func (r *BrowseRequest) Decode(d *Decoder) error {
	var err error
	if r.RequestHeader, err = decodeRequestHeader(d); err != nil {
		return err
	}
	if r.View.ViewID, err = d.ReadNodeID(); err != nil {
		return err
	}
	if r.View.Timestamp, err = d.ReadDateTime(); err != nil {
		return err
	}
	if r.View.ViewVersion, err = d.ReadUInt32(); err != nil {
		return err
	}
	if r.RequestedMaxReferencesPerNode, err = d.ReadUInt32(); err != nil {
		return err
	}
	return decodeArray(d, &r.NodesToBrowse, decodeBrowseDescription)
}

// BrowseResponse represents an OPC UA Browse service response.
type BrowseResponse struct {
	ResponseHeader  ResponseHeader
	Results         []BrowseResult
	DiagnosticInfos []DiagnosticInfo
}

func (r *BrowseResponse) ServiceID() ServiceID { return ServiceBrowse }
func (r *BrowseResponse) EncodingID() uint32 { return BrowseResponseEncoding }
func (r *BrowseResponse) Header() *ResponseHeader { return &r.ResponseHeader }

func (r *BrowseResponse) Encode(e *Encoder) error {
	encodeResponseHeader(e, &r.ResponseHeader)
	encodeBrowseResults(e, r.Results)
	encodeDiagnosticInfos(e, r.DiagnosticInfos)
	return nil
}

func (r *BrowseResponse) Decode(d *Decoder) error {
	var err error
	if r.ResponseHeader, err = decodeResponseHeader(d); err != nil {
		return err
	}
	if err := decodeArray(d, &r.Results, decodeBrowseResult); err != nil {
		return err
	}
	return decodeArray(d, &r.DiagnosticInfos, decodeDiagnosticInfo)
}

// BrowseNextRequest continues or releases browses that returned a
// continuation point.
type BrowseNextRequest struct {
	RequestHeader             RequestHeader
	ReleaseContinuationPoints bool
	ContinuationPoints        [][]byte
}

func (r *BrowseNextRequest) ServiceID() ServiceID { return ServiceBrowseNext }
func (r *BrowseNextRequest) Header() *RequestHeader { return &r.RequestHeader }

func (r *BrowseNextRequest) Encode(e *Encoder) error {
	encodeRequestHeader(e, &r.RequestHeader)
	e.WriteBoolean(r.ReleaseContinuationPoints)
	e.WriteInt32(int32(len(r.ContinuationPoints)))
	for _, cp := range r.ContinuationPoints {
		e.WriteByteString(cp)
	}
	return nil
}

func (r *BrowseNextRequest) Decode(d *Decoder) error {
	var err error
	if r.RequestHeader, err = decodeRequestHeader(d); err != nil {
		return err
	}
	if r.ReleaseContinuationPoints, err = d.ReadBoolean(); err != nil {
		return err
	}
	return decodeArray(d, &r.ContinuationPoints, (*Decoder).ReadByteString)
}

// BrowseNextResponse represents an OPC UA BrowseNext service response.
type BrowseNextResponse struct {
	ResponseHeader  ResponseHeader
	Results         []BrowseResult
	DiagnosticInfos []DiagnosticInfo
}

func (r *BrowseNextResponse) ServiceID() ServiceID { return ServiceBrowseNext }
func (r *BrowseNextResponse) EncodingID() uint32 { return BrowseNextResponseEncoding }
func (r *BrowseNextResponse) Header() *ResponseHeader { return &r.ResponseHeader }

func (r *BrowseNextResponse) Encode(e *Encoder) error {
	encodeResponseHeader(e, &r.ResponseHeader)
	encodeBrowseResults(e, r.Results)
	encodeDiagnosticInfos(e, r.DiagnosticInfos)
	return nil
}

func (r *BrowseNextResponse) Decode(d *Decoder) error {
	var err error
	if r.ResponseHeader, err = decodeResponseHeader(d); err != nil {
		return err
	}
	if err := decodeArray(d, &r.Results, decodeBrowseResult); err != nil {
		return err
	}
	return decodeArray(d, &r.DiagnosticInfos, decodeDiagnosticInfo)
}

// ServiceFault is returned instead of the service response when a request
// fails as a whole.
type ServiceFault struct {
	ResponseHeader ResponseHeader
}

func (r *ServiceFault) ServiceID() ServiceID { return 0 }
func (r *ServiceFault) EncodingID() uint32 { return ServiceFaultEncoding }
func (r *ServiceFault) Header() *ResponseHeader { return &r.ResponseHeader }

func (r *ServiceFault) Encode(e *Encoder) error {
	encodeResponseHeader(e, &r.ResponseHeader)
	return nil
}

func (r *ServiceFault) Decode(d *Decoder) error {
	var err error
	r.ResponseHeader, err = decodeResponseHeader(d)
	return err
}

// EncodeRequest frames a request as its encoding id followed by its body.
func EncodeRequest(req Request) ([]byte, error) {
	e := NewEncoder()
	e.WriteNodeID(NewNumericNodeID(0, uint32(req.ServiceID())))
	if err := req.Encode(e); err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.ServiceID(), err)
	}
	return e.Bytes(), nil
}

// DecodeRequest decodes a framed request.
func DecodeRequest(msg []byte) (Request, error) {
	d := NewDecoder(msg)
	id, err := d.ReadNodeID()
	if err != nil {
		return nil, err
	}
	if id.Namespace != 0 || id.Type != NodeIDTypeNumeric {
		return nil, NewStatusError(StatusBadServiceUnsupported, "request type %s", id)
	}

	var req Request
	switch ServiceID(id.Numeric) {
	case ServiceRead:
		req = &ReadRequest{}
	case ServiceWrite:
		req = &WriteRequest{}
	case ServiceBrowse:
		req = &BrowseRequest{}
	case ServiceBrowseNext:
		req = &BrowseNextRequest{}
	default:
		return nil, NewStatusError(StatusBadServiceUnsupported, "request type %s", id)
	}
	if err := req.Decode(d); err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", ErrInvalidMessage, req.ServiceID(), err)
	}
	return req, nil
}

// EncodeResponse frames a response as its encoding id followed by its body.
func EncodeResponse(resp Response) ([]byte, error) {
	e := NewEncoder()
	e.WriteNodeID(NewNumericNodeID(0, resp.EncodingID()))
	if err := resp.Encode(e); err != nil {
		return nil, fmt.Errorf("encode %s response: %w", resp.ServiceID(), err)
	}
	return e.Bytes(), nil
}

// DecodeResponse decodes a framed response into resp. A ServiceFault or a
// bad service result is returned as an *OPCUAError.
func DecodeResponse(msg []byte, svc ServiceID, resp Response) error {
	d := NewDecoder(msg)
	id, err := d.ReadNodeID()
	if err != nil {
		return err
	}
	if id.Namespace == 0 && id.Type == NodeIDTypeNumeric && id.Numeric == ServiceFaultEncoding {
		var fault ServiceFault
		if err := fault.Decode(d); err != nil {
			return fmt.Errorf("%w: service fault: %v", ErrInvalidResponse, err)
		}
		return NewOPCUAError(svc, fault.ResponseHeader.ServiceResult, "service fault")
	}
	if id.Namespace != 0 || id.Numeric != resp.EncodingID() {
		return fmt.Errorf("%w: expected response type %d, got %s", ErrInvalidResponse, resp.EncodingID(), id)
	}
	if err := resp.Decode(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if sr := resp.Header().ServiceResult; sr.IsBad() {
		return NewOPCUAError(svc, sr, "")
	}
	return nil
}

func encodeRequestHeader(e *Encoder, h *RequestHeader) {
	e.WriteNodeID(h.AuthenticationToken)
	e.WriteDateTime(h.Timestamp)
	e.WriteUInt32(h.RequestHandle)
	e.WriteUInt32(h.ReturnDiagnostics)
	e.WriteString(h.AuditEntryID)
	e.WriteUInt32(h.TimeoutHint)
	e.WriteExtensionObject(h.AdditionalHeader)
}

func decodeRequestHeader(d *Decoder) (RequestHeader, error) {
	var (
		h   RequestHeader
		err error
	)
	if h.AuthenticationToken, err = d.ReadNodeID(); err != nil {
		return h, err
	}
	if h.Timestamp, err = d.ReadDateTime(); err != nil {
		return h, err
	}
	if h.RequestHandle, err = d.ReadUInt32(); err != nil {
		return h, err
	}
	if h.ReturnDiagnostics, err = d.ReadUInt32(); err != nil {
		return h, err
	}
	if h.AuditEntryID, err = d.ReadString(); err != nil {
		return h, err
	}
	if h.TimeoutHint, err = d.ReadUInt32(); err != nil {
		return h, err
	}
	h.AdditionalHeader, err = d.ReadExtensionObject()
	return h, err
}

func encodeResponseHeader(e *Encoder, h *ResponseHeader) {
	e.WriteDateTime(h.Timestamp)
	e.WriteUInt32(h.RequestHandle)
	e.WriteStatusCode(h.ServiceResult)
	encodeDiagnosticInfo(e, &h.ServiceDiagnostics)
	if h.StringTable == nil {
		e.WriteInt32(-1)
	} else {
		e.WriteInt32(int32(len(h.StringTable)))
		for _, s := range h.StringTable {
			e.WriteString(s)
		}
	}
	e.WriteExtensionObject(h.AdditionalHeader)
}

func decodeResponseHeader(d *Decoder) (ResponseHeader, error) {
	var (
		h   ResponseHeader
		err error
	)
	if h.Timestamp, err = d.ReadDateTime(); err != nil {
		return h, err
	}
	if h.RequestHandle, err = d.ReadUInt32(); err != nil {
		return h, err
	}
	if h.ServiceResult, err = d.ReadStatusCode(); err != nil {
		return h, err
	}
	if h.ServiceDiagnostics, err = decodeDiagnosticInfo(d); err != nil {
		return h, err
	}
	if err = decodeArray(d, &h.StringTable, (*Decoder).ReadString); err != nil {
		return h, err
	}
	h.AdditionalHeader, err = d.ReadExtensionObject()
	return h, err
}

func encodeDiagnosticInfo(e *Encoder, di *DiagnosticInfo) {
	var mask byte
	if di.SymbolicID != 0 {
		mask |= 0x01
	}
	if di.NamespaceURI != 0 {
		mask |= 0x02
	}
	if di.LocalizedText != 0 {
		mask |= 0x04
	}
	if di.Locale != 0 {
		mask |= 0x08
	}
	if di.AdditionalInfo != "" {
		mask |= 0x10
	}
	if di.InnerStatusCode != StatusGood {
		mask |= 0x20
	}
	if di.Inner != nil {
		mask |= 0x40
	}
	e.WriteByte(mask)
	if mask&0x01 != 0 {
		e.WriteInt32(di.SymbolicID)
	}
	if mask&0x02 != 0 {
		e.WriteInt32(di.NamespaceURI)
	}
	if mask&0x08 != 0 {
		e.WriteInt32(di.Locale)
	}
	if mask&0x04 != 0 {
		e.WriteInt32(di.LocalizedText)
	}
	if mask&0x10 != 0 {
		e.WriteString(di.AdditionalInfo)
	}
	if mask&0x20 != 0 {
		e.WriteStatusCode(di.InnerStatusCode)
	}
	if mask&0x40 != 0 {
		encodeDiagnosticInfo(e, di.Inner)
	}
}

func decodeDiagnosticInfo(d *Decoder) (DiagnosticInfo, error) {
	var di DiagnosticInfo
	mask, err := d.ReadByte()
	if err != nil {
		return di, err
	}
	if mask&0x01 != 0 {
		if di.SymbolicID, err = d.ReadInt32(); err != nil {
			return di, err
		}
	}
	if mask&0x02 != 0 {
		if di.NamespaceURI, err = d.ReadInt32(); err != nil {
			return di, err
		}
	}
	if mask&0x08 != 0 {
		if di.Locale, err = d.ReadInt32(); err != nil {
			return di, err
		}
	}
	if mask&0x04 != 0 {
		if di.LocalizedText, err = d.ReadInt32(); err != nil {
			return di, err
		}
	}
	if mask&0x10 != 0 {
		if di.AdditionalInfo, err = d.ReadString(); err != nil {
			return di, err
		}
	}
	if mask&0x20 != 0 {
		if di.InnerStatusCode, err = d.ReadStatusCode(); err != nil {
			return di, err
		}
	}
	if mask&0x40 != 0 {
		inner, err := decodeDiagnosticInfo(d)
		if err != nil {
			return di, err
		}
		di.Inner = &inner
	}
	return di, nil
}

func encodeDiagnosticInfos(e *Encoder, infos []DiagnosticInfo) {
	if infos == nil {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(infos)))
	for i := range infos {
		encodeDiagnosticInfo(e, &infos[i])
	}
}

func decodeBrowseDescription(d *Decoder) (BrowseDescription, error) {
	var (
		bd  BrowseDescription
		err error
	)
	if bd.NodeID, err = d.ReadNodeID(); err != nil {
		return bd, err
	}
	dir, err := d.ReadUInt32()
	if err != nil {
		return bd, err
	}
	bd.BrowseDirection = BrowseDirection(dir)
	if bd.ReferenceTypeID, err = d.ReadNodeID(); err != nil {
		return bd, err
	}
	if bd.IncludeSubtypes, err = d.ReadBoolean(); err != nil {
		return bd, err
	}
	if bd.NodeClassMask, err = d.ReadUInt32(); err != nil {
		return bd, err
	}
	bd.ResultMask, err = d.ReadUInt32()
	return bd, err
}

func encodeBrowseResults(e *Encoder, results []BrowseResult) {
	e.WriteInt32(int32(len(results)))
	for _, br := range results {
		e.WriteStatusCode(br.StatusCode)
		e.WriteByteString(br.ContinuationPoint)
		e.WriteInt32(int32(len(br.References)))
		for _, rd := range br.References {
			e.WriteNodeID(rd.ReferenceTypeID)
			e.WriteBoolean(rd.IsForward)
			e.WriteExpandedNodeID(rd.NodeID)
			e.WriteQualifiedName(rd.BrowseName)
			e.WriteLocalizedText(rd.DisplayName)
			e.WriteUInt32(uint32(rd.NodeClass))
			e.WriteExpandedNodeID(rd.TypeDefinition)
		}
	}
}

func decodeBrowseResult(d *Decoder) (BrowseResult, error) {
	var (
		br  BrowseResult
		err error
	)
	if br.StatusCode, err = d.ReadStatusCode(); err != nil {
		return br, err
	}
	if br.ContinuationPoint, err = d.ReadByteString(); err != nil {
		return br, err
	}
	err = decodeArray(d, &br.References, decodeReferenceDescription)
	return br, err
}

func decodeReferenceDescription(d *Decoder) (ReferenceDescription, error) {
	var (
		rd  ReferenceDescription
		err error
	)
	if rd.ReferenceTypeID, err = d.ReadNodeID(); err != nil {
		return rd, err
	}
	if rd.IsForward, err = d.ReadBoolean(); err != nil {
		return rd, err
	}
	if rd.NodeID, err = d.ReadExpandedNodeID(); err != nil {
		return rd, err
	}
	if rd.BrowseName, err = d.ReadQualifiedName(); err != nil {
		return rd, err
	}
	if rd.DisplayName, err = d.ReadLocalizedText(); err != nil {
		return rd, err
	}
	nc, err := d.ReadUInt32()
	if err != nil {
		return rd, err
	}
	rd.NodeClass = NodeClass(nc)
	rd.TypeDefinition, err = d.ReadExpandedNodeID()
	return rd, err
}

// decodeArray reads an Int32 length followed by that many elements. A null
// array leaves *dst nil.
func decodeArray[T any](d *Decoder, dst *[]T, read func(*Decoder) (T, error)) error {
	n, err := d.ReadInt32()
	if err != nil {
		return err
	}
	if n < 0 {
		*dst = nil
		return nil
	}
	if int(n) > d.Remaining() {
		return fmt.Errorf("%w: array of %d elements", ErrBufferUnderflow, n)
	}
	out := make([]T, n)
	for i := range out {
		if out[i], err = read(d); err != nil {
			return err
		}
	}
	*dst = out
	return nil
}
