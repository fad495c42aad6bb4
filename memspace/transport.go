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

package memspace

import (
	"context"
	"errors"
	"time"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

var _ opcua.Transporter = (*Space)(nil)

// Send decodes a framed request, runs it against the space and returns the
// framed response. Requests that fail as a whole are answered with a
// ServiceFault rather than an error, as a server would.
func (s *Space) Send(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	req, err := opcua.DecodeRequest(msg)
	if err != nil {
		s.logger.Debug().Err(err).Msg("rejecting undecodable request")
		return s.fault(opcua.RequestHeader{}, err)
	}
	header := *req.Header()

	s.logger.Debug().
		Str("service", req.ServiceID().String()).
		Uint32("request_handle", header.RequestHandle).
		Msg("handling request")

	resp, err := s.dispatch(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return s.fault(header, err)
	}
	*resp.Header() = s.responseHeader(header, opcua.StatusGood)
	return opcua.EncodeResponse(resp)
}

// Close makes further calls to Send fail with ErrClosed.
func (s *Space) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Space) dispatch(ctx context.Context, req opcua.Request) (opcua.Response, error) {
	switch r := req.(type) {
	case *opcua.ReadRequest:
		results, err := s.Read(ctx, r.NodesToRead)
		if err != nil {
			return nil, err
		}
		for i := range results {
			trimTimestamps(&results[i], r.TimestampsToReturn)
		}
		return &opcua.ReadResponse{Results: results}, nil
	case *opcua.WriteRequest:
		results, err := s.Write(ctx, r.NodesToWrite)
		if err != nil {
			return nil, err
		}
		return &opcua.WriteResponse{Results: results}, nil
	case *opcua.BrowseRequest:
		results, err := s.Browse(ctx, r.NodesToBrowse, r.RequestedMaxReferencesPerNode)
		if err != nil {
			return nil, err
		}
		return &opcua.BrowseResponse{Results: results}, nil
	case *opcua.BrowseNextRequest:
		results, err := s.BrowseNext(ctx, r.ReleaseContinuationPoints, r.ContinuationPoints)
		if err != nil {
			return nil, err
		}
		return &opcua.BrowseNextResponse{Results: results}, nil
	}
	return nil, opcua.NewStatusError(opcua.StatusBadServiceUnsupported, "service %s", req.ServiceID())
}

func (s *Space) fault(header opcua.RequestHeader, err error) ([]byte, error) {
	sc := opcua.StatusCodeOf(err)
	if errors.Is(err, opcua.ErrInvalidMessage) || errors.Is(err, opcua.ErrBufferUnderflow) {
		sc = opcua.StatusBadDecodingError
	}
	return opcua.EncodeResponse(&opcua.ServiceFault{ResponseHeader: s.responseHeader(header, sc)})
}

func (s *Space) responseHeader(req opcua.RequestHeader, sc opcua.StatusCode) opcua.ResponseHeader {
	return opcua.ResponseHeader{
		Timestamp:     s.opts.now(),
		RequestHandle: req.RequestHandle,
		ServiceResult: sc,
	}
}

func trimTimestamps(dv *opcua.DataValue, ts opcua.TimestampsToReturn) {
	switch ts {
	case opcua.TimestampsToReturnSource:
		dv.ServerTimestamp = time.Time{}
	case opcua.TimestampsToReturnServer:
		dv.SourceTimestamp = time.Time{}
	case opcua.TimestampsToReturnNeither:
		dv.SourceTimestamp = time.Time{}
		dv.ServerTimestamp = time.Time{}
	}
}
