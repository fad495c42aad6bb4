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

// Package typetree discovers the data type hierarchy of an OPC UA server.
//
// Discover walks the HasSubtype references below BaseDataType. For every
// data type found it browses the HasEncoding references and reads the
// DataTypeDefinition attribute, so that structured types unknown at compile
// time can be decoded once a codec is bound to them.
package typetree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

// Transport is the browse and read service contract discovery runs on.
// *opcua.Client implements it.
type Transport interface {
	// BrowseReferences returns every reference matching bd, following
	// continuation points.
	BrowseReferences(ctx context.Context, bd opcua.BrowseDescription) ([]opcua.ReferenceDescription, error)
	// Read returns one DataValue per requested attribute.
	Read(ctx context.Context, nodesToRead []opcua.ReadValueID) ([]opcua.DataValue, error)
}

type discovery struct {
	transport  Transport
	namespaces *opcua.NamespaceTable
	sem        *semaphore.Weighted
	metrics    *Metrics
	logger     zerolog.Logger

	// seen holds the id of every node added to the tree.
	seen sync.Map
}

// Discover builds the data type tree of the server behind t.
//
// Sibling subtrees are discovered concurrently and every request shares the
// cancellation of ctx. Browse failures leave the affected children or
// encodings out of the tree, and a DataTypeDefinition that cannot be read
// or decoded is left absent. A data type reached a second time, as through a
// HasSubtype cycle, is skipped. Discover fails only when the namespace array
// cannot be read or ctx ends.
func Discover(ctx context.Context, t Transport, opts ...Option) (*Tree, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	m := o.metrics
	if m == nil {
		m = NewMetrics(o.registerer)
	}

	d := &discovery{
		transport: t,
		metrics:   m,
		logger:    o.logger.With().Str("discovery_id", uuid.NewString()).Logger(),
	}
	if o.maxRequests > 0 {
		d.sem = semaphore.NewWeighted(o.maxRequests)
	}

	start := time.Now()
	tree, err := d.run(ctx, o)
	m.Duration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.DiscoveriesTotal.WithLabelValues("error").Inc()
		d.logger.Error().Err(err).Msg("data type discovery failed")
		return nil, err
	}
	m.DiscoveriesTotal.WithLabelValues("ok").Inc()
	m.TypesDiscovered.Add(float64(tree.Len() - 1))

	d.logger.Info().
		Int("types", tree.Len()).
		Dur("duration", time.Since(start)).
		Msg("data type discovery complete")
	return tree, nil
}

func (d *discovery) run(ctx context.Context, o *options) (*Tree, error) {
	ns, err := d.readNamespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("typetree: read namespace array: %w", err)
	}
	d.namespaces = ns

	root := &Node{dataType: NewDataType(o.rootID, o.rootName, Encodings{}, nil, true)}
	d.seen.Store(o.rootID.String(), struct{}{})
	if err := d.addChildren(ctx, root); err != nil {
		return nil, fmt.Errorf("typetree: discovery aborted: %w", err)
	}
	return New(root), nil
}

func (d *discovery) readNamespaces(ctx context.Context) (*opcua.NamespaceTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var results []opcua.DataValue
	err := d.do(ctx, func() (err error) {
		results, err = d.transport.Read(ctx, []opcua.ReadValueID{
			{NodeID: opcua.ServerNamespaceArray, AttributeID: opcua.AttributeValue},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: %d results", opcua.ErrInvalidResponse, len(results))
	}
	dv := results[0]
	if !dv.StatusCode.IsGood() {
		return nil, opcua.NewOPCUAError(opcua.ServiceRead, dv.StatusCode, "namespace array")
	}
	if dv.Value == nil || dv.Value.Value == nil {
		return opcua.NewNamespaceTable(), nil
	}
	uris, ok := dv.Value.Value.([]string)
	if !ok {
		return nil, opcua.NewStatusError(opcua.StatusBadTypeMismatch, "namespace array is %T", dv.Value.Value)
	}
	return opcua.NewNamespaceTable(uris...), nil
}

// addChildren discovers the subtypes of parent and, recursively, their
// subtrees. parent.children is written only after every child subtree has
// completed.
func (d *discovery) addChildren(ctx context.Context, parent *Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parentID := parent.dataType.nodeID

	refs := d.browse(ctx, opcua.BrowseDescription{
		NodeID:          parentID,
		BrowseDirection: opcua.BrowseDirectionForward,
		ReferenceTypeID: opcua.HasSubtype,
		NodeClassMask:   uint32(opcua.NodeClassDataType),
		ResultMask:      uint32(opcua.BrowseResultMaskAll),
	})

	children := make([]*Node, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		id, ok := ref.NodeID.ToNodeID(d.namespaces)
		if !ok || id.IsNull() {
			d.logger.Warn().
				Str("node_id", ref.NodeID.String()).
				Str("parent", parentID.String()).
				Msg("skipping data type with untranslatable node id")
			continue
		}
		if _, dup := d.seen.LoadOrStore(id.String(), struct{}{}); dup {
			d.logger.Warn().
				Str("node_id", id.String()).
				Str("parent", parentID.String()).
				Msg("skipping data type already in the tree")
			continue
		}
		i, ref := i, ref
		g.Go(func() error {
			child := &Node{dataType: d.resolve(gctx, id, ref.BrowseName), parent: parent}
			children[i] = child
			return d.addChildren(gctx, child)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, c := range children {
		if c != nil {
			parent.children = append(parent.children, c)
		}
	}
	return nil
}

// resolve browses the encodings and reads the definition of a data type
// concurrently and joins them into its descriptor.
func (d *discovery) resolve(ctx context.Context, id opcua.NodeID, name opcua.QualifiedName) *DataType {
	var (
		encodings Encodings
		def       opcua.DataTypeDefinition
		abstract  bool
		g         errgroup.Group
	)
	g.Go(func() error {
		encodings = d.encodings(ctx, id)
		return nil
	})
	g.Go(func() error {
		def, abstract = d.readDefinition(ctx, id)
		return nil
	})
	_ = g.Wait()

	d.logger.Debug().
		Str("node_id", id.String()).
		Str("browse_name", name.String()).
		Bool("definition", def != nil).
		Msg("resolved data type")
	return NewDataType(id, name, encodings, def, abstract)
}

func (d *discovery) encodings(ctx context.Context, id opcua.NodeID) Encodings {
	refs := d.browse(ctx, opcua.BrowseDescription{
		NodeID:          id,
		BrowseDirection: opcua.BrowseDirectionForward,
		ReferenceTypeID: opcua.HasEncoding,
		NodeClassMask:   uint32(opcua.NodeClassObject),
		ResultMask:      uint32(opcua.BrowseResultMaskAll),
	})

	var enc Encodings
	for _, ref := range refs {
		if ref.BrowseName.NamespaceIndex != 0 {
			continue
		}
		target, ok := ref.NodeID.ToNodeID(d.namespaces)
		if !ok {
			continue
		}
		switch ref.BrowseName.Name {
		case opcua.EncodingDefaultBinary:
			enc.Binary = &target
		case opcua.EncodingDefaultXML:
			enc.XML = &target
		case opcua.EncodingDefaultJSON:
			enc.JSON = &target
		}
	}
	return enc
}

// readDefinition reads the DataTypeDefinition and IsAbstract attributes.
// Servers predating the DataTypeDefinition attribute answer with a bad
// status, which leaves the definition absent.
func (d *discovery) readDefinition(ctx context.Context, id opcua.NodeID) (opcua.DataTypeDefinition, bool) {
	var results []opcua.DataValue
	err := d.do(ctx, func() (err error) {
		results, err = d.transport.Read(ctx, []opcua.ReadValueID{
			{NodeID: id, AttributeID: opcua.AttributeDataTypeDefinition},
			{NodeID: id, AttributeID: opcua.AttributeIsAbstract},
		})
		return err
	})
	if err != nil {
		d.metrics.DefinitionFailures.Inc()
		d.logger.Warn().Err(err).Str("node_id", id.String()).Msg("error reading DataTypeDefinition")
		return nil, false
	}

	var abstract bool
	if len(results) > 1 && results[1].StatusCode.IsGood() && results[1].Value != nil {
		abstract, _ = results[1].Value.Value.(bool)
	}
	if len(results) == 0 || !results[0].StatusCode.IsGood() || results[0].Value == nil {
		return nil, abstract
	}

	eo, ok := results[0].Value.Value.(opcua.ExtensionObject)
	if !ok {
		return nil, abstract
	}
	def, err := opcua.DecodeDataTypeDefinition(eo)
	if err != nil {
		d.metrics.DefinitionFailures.Inc()
		d.logger.Warn().Err(err).Str("node_id", id.String()).Msg("error decoding DataTypeDefinition")
		return nil, abstract
	}
	return def, abstract
}

// browse returns the references matching bd, or none if the browse fails.
func (d *discovery) browse(ctx context.Context, bd opcua.BrowseDescription) []opcua.ReferenceDescription {
	var refs []opcua.ReferenceDescription
	err := d.do(ctx, func() (err error) {
		refs, err = d.transport.BrowseReferences(ctx, bd)
		return err
	})
	if err != nil {
		d.metrics.BrowseFailures.Inc()
		d.logger.Debug().
			Err(err).
			Str("node_id", bd.NodeID.String()).
			Str("reference_type", bd.ReferenceTypeID.String()).
			Msg("browse failed, treating as empty")
		return nil
	}
	return refs
}

// do runs one request, holding a slot of the request cap if one is set.
func (d *discovery) do(ctx context.Context, fn func() error) error {
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer d.sem.Release(1)
	}
	return fn()
}
