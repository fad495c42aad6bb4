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
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// RequestIDGenerator generates unique request handles.
type RequestIDGenerator struct {
	counter atomic.Uint32
}

// Next returns the next request handle.
func (g *RequestIDGenerator) Next() uint32 {
	return g.counter.Add(1)
}

// Client issues Read, Write, Browse and BrowseNext requests over a
// Transporter. Channel and session management belong to the transport.
type Client struct {
	transport    Transporter
	opts         *clientOptions
	requestIDGen RequestIDGenerator
	closed       atomic.Bool
	metrics      *Metrics
	logger       zerolog.Logger
}

// NewClient creates a client sending requests over t.
func NewClient(t Transporter, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, errors.New("opcua: transport cannot be nil")
	}
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	m := options.metrics
	if m == nil {
		m = NewMetrics(options.registerer)
	}
	return &Client{
		transport: t,
		opts:      options,
		metrics:   m,
		logger:    options.logger,
	}, nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Debug().Msg("closing client")
	return c.transport.Close()
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

func (c *Client) requestHeader() RequestHeader {
	return RequestHeader{
		AuthenticationToken: c.opts.authenticationToken,
		Timestamp:           time.Now(),
		RequestHandle:       c.requestIDGen.Next(),
		TimeoutHint:         uint32(c.opts.timeout.Milliseconds()),
	}
}

// send encodes req, sends it and decodes the reply into resp.
func (c *Client) send(ctx context.Context, req Request, resp Response) (err error) {
	if c.closed.Load() {
		return ErrClientClosed
	}
	svc := req.ServiceID()
	start := time.Now()
	defer func() { c.metrics.observe(svc, start, err) }()

	if _, ok := ctx.Deadline(); !ok && c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	msg, err := EncodeRequest(req)
	if err != nil {
		return err
	}

	c.logger.Debug().
		Str("service", svc.String()).
		Uint32("request_handle", req.Header().RequestHandle).
		Msg("sending request")

	reply, err := c.transport.Send(ctx, msg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, svc, err)
		}
		return fmt.Errorf("opcua: %s: %w", svc, err)
	}
	if err := DecodeResponse(reply, svc, resp); err != nil {
		return err
	}

	c.logger.Debug().
		Str("service", svc.String()).
		Dur("duration", time.Since(start)).
		Msg("received response")
	return nil
}

// Read reads attributes from the server.
func (c *Client) Read(ctx context.Context, nodesToRead []ReadValueID) ([]DataValue, error) {
	req := &ReadRequest{
		RequestHeader:      c.requestHeader(),
		TimestampsToReturn: TimestampsToReturnBoth,
		NodesToRead:        nodesToRead,
	}
	var resp ReadResponse
	if err := c.send(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(nodesToRead) {
		return nil, fmt.Errorf("%w: %d results for %d nodes", ErrInvalidResponse, len(resp.Results), len(nodesToRead))
	}
	return resp.Results, nil
}

// ReadValue reads the Value attribute of a single node.
func (c *Client) ReadValue(ctx context.Context, nodeID NodeID) (*DataValue, error) {
	results, err := c.Read(ctx, []ReadValueID{
		{NodeID: nodeID, AttributeID: AttributeValue},
	})
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// ReadNamespaceArray reads the server's namespace table.
func (c *Client) ReadNamespaceArray(ctx context.Context) (*NamespaceTable, error) {
	dv, err := c.ReadValue(ctx, ServerNamespaceArray)
	if err != nil {
		return nil, err
	}
	if dv.StatusCode.IsBad() {
		return nil, NewOPCUAError(ServiceRead, dv.StatusCode, "namespace array")
	}
	if dv.Value == nil {
		return nil, fmt.Errorf("%w: namespace array has no value", ErrInvalidResponse)
	}
	uris, ok := dv.Value.Value.([]string)
	if !ok {
		return nil, fmt.Errorf("%w: namespace array is %T", ErrInvalidResponse, dv.Value.Value)
	}
	return NewNamespaceTable(uris...), nil
}

// Write writes attributes on the server.
func (c *Client) Write(ctx context.Context, nodesToWrite []WriteValue) ([]StatusCode, error) {
	req := &WriteRequest{
		RequestHeader: c.requestHeader(),
		NodesToWrite:  nodesToWrite,
	}
	var resp WriteResponse
	if err := c.send(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(nodesToWrite) {
		return nil, fmt.Errorf("%w: %d results for %d nodes", ErrInvalidResponse, len(resp.Results), len(nodesToWrite))
	}
	return resp.Results, nil
}

// WriteValue writes the Value attribute of a single node, optionally
// restricted to an index range.
func (c *Client) WriteValue(ctx context.Context, nodeID NodeID, indexRange string, value *Variant) error {
	results, err := c.Write(ctx, []WriteValue{
		{
			NodeID:      nodeID,
			AttributeID: AttributeValue,
			IndexRange:  indexRange,
			Value:       DataValue{Value: value},
		},
	})
	if err != nil {
		return err
	}
	if results[0].IsBad() {
		return NewOPCUAError(ServiceWrite, results[0], "")
	}
	return nil
}

// Browse browses nodes in the address space. Continuation points in the
// results are returned to the caller unchanged.
func (c *Client) Browse(ctx context.Context, nodesToBrowse []BrowseDescription) ([]BrowseResult, error) {
	req := &BrowseRequest{
		RequestHeader:                 c.requestHeader(),
		RequestedMaxReferencesPerNode: c.opts.maxReferencesPerNode,
		NodesToBrowse:                 nodesToBrowse,
	}
	var resp BrowseResponse
	if err := c.send(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(nodesToBrowse) {
		return nil, fmt.Errorf("%w: %d results for %d nodes", ErrInvalidResponse, len(resp.Results), len(nodesToBrowse))
	}
	return resp.Results, nil
}

// BrowseNext continues or releases browses that returned continuation
// points.
func (c *Client) BrowseNext(ctx context.Context, release bool, continuationPoints [][]byte) ([]BrowseResult, error) {
	req := &BrowseNextRequest{
		RequestHeader:             c.requestHeader(),
		ReleaseContinuationPoints: release,
		ContinuationPoints:        continuationPoints,
	}
	var resp BrowseNextResponse
	if err := c.send(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(continuationPoints) {
		return nil, fmt.Errorf("%w: %d results for %d continuation points", ErrInvalidResponse, len(resp.Results), len(continuationPoints))
	}
	return resp.Results, nil
}

// BrowseReferences browses a single node and follows continuation points
// until every reference has been returned.
func (c *Client) BrowseReferences(ctx context.Context, bd BrowseDescription) ([]ReferenceDescription, error) {
	results, err := c.Browse(ctx, []BrowseDescription{bd})
	if err != nil {
		return nil, err
	}
	result := results[0]
	if result.StatusCode.IsBad() {
		return nil, NewOPCUAError(ServiceBrowse, result.StatusCode, bd.NodeID.String())
	}

	refs := result.References
	cp := result.ContinuationPoint
	for n := 0; len(cp) > 0; n++ {
		if n >= c.opts.maxContinuations {
			// Free the server-side continuation point before giving up.
			if _, err := c.BrowseNext(ctx, true, [][]byte{cp}); err != nil {
				c.logger.Warn().Err(err).Str("node_id", bd.NodeID.String()).Msg("failed to release continuation point")
			}
			return nil, NewOPCUAError(ServiceBrowseNext, StatusBadNoContinuationPoints, bd.NodeID.String())
		}
		c.metrics.BrowseNextTotal.Inc()
		next, err := c.BrowseNext(ctx, false, [][]byte{cp})
		if err != nil {
			return nil, err
		}
		if next[0].StatusCode.IsBad() {
			return nil, NewOPCUAError(ServiceBrowseNext, next[0].StatusCode, bd.NodeID.String())
		}
		refs = append(refs, next[0].References...)
		cp = next[0].ContinuationPoint
	}
	return refs, nil
}

// BrowseNode browses all forward or inverse references of a single node.
func (c *Client) BrowseNode(ctx context.Context, nodeID NodeID, direction BrowseDirection) ([]ReferenceDescription, error) {
	return c.BrowseReferences(ctx, BrowseDescription{
		NodeID:          nodeID,
		BrowseDirection: direction,
		ReferenceTypeID: HierarchicalReferences,
		IncludeSubtypes: true,
		ResultMask:      uint32(BrowseResultMaskAll),
	})
}
