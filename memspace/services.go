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
	"time"

	"github.com/google/uuid"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/indexrange"
	"github.com/edgeo-scada/opcua-typesys/internal/arrays"
)

// continuation holds the references a browse has not returned yet.
type continuation struct {
	refs  []opcua.ReferenceDescription
	limit uint32
}

// Browse returns the references of each node matching its description.
// maxReferences caps the references per result; zero falls back to the
// configured default, and zero there means no limit. Truncated results
// carry a continuation point for BrowseNext.
func (s *Space) Browse(ctx context.Context, nodesToBrowse []opcua.BrowseDescription, maxReferences uint32) ([]opcua.BrowseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(nodesToBrowse) == 0 {
		return nil, opcua.NewOPCUAError(opcua.ServiceBrowse, opcua.StatusBadNothingToDo, "no nodes to browse")
	}
	if maxReferences == 0 {
		maxReferences = s.opts.maxReferences
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]opcua.BrowseResult, len(nodesToBrowse))
	for i, bd := range nodesToBrowse {
		refs, sc := s.browse(bd)
		if sc.IsBad() {
			results[i] = opcua.BrowseResult{StatusCode: sc}
			continue
		}
		results[i] = s.page(refs, maxReferences)
	}
	return results, nil
}

// BrowseNext continues browses that returned a continuation point, or
// releases them when release is set.
func (s *Space) BrowseNext(ctx context.Context, release bool, continuationPoints [][]byte) ([]opcua.BrowseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(continuationPoints) == 0 {
		return nil, opcua.NewOPCUAError(opcua.ServiceBrowseNext, opcua.StatusBadNothingToDo, "no continuation points")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]opcua.BrowseResult, len(continuationPoints))
	for i, cp := range continuationPoints {
		c, ok := s.continuations[string(cp)]
		if !ok {
			results[i] = opcua.BrowseResult{StatusCode: opcua.StatusBadContinuationPointInvalid}
			continue
		}
		delete(s.continuations, string(cp))
		if release {
			continue
		}
		results[i] = s.page(c.refs, c.limit)
	}
	return results, nil
}

// BrowseReferences returns every reference matching bd in one call.
func (s *Space) BrowseReferences(ctx context.Context, bd opcua.BrowseDescription) ([]opcua.ReferenceDescription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs, sc := s.browse(bd)
	if sc.IsBad() {
		return nil, opcua.NewOPCUAError(opcua.ServiceBrowse, sc, bd.NodeID.String())
	}
	return refs, nil
}

// PendingContinuations returns the number of continuation points not yet
// consumed or released.
func (s *Space) PendingContinuations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.continuations)
}

func (s *Space) browse(bd opcua.BrowseDescription) ([]opcua.ReferenceDescription, opcua.StatusCode) {
	n, ok := s.nodes[bd.NodeID.String()]
	if !ok {
		return nil, opcua.StatusBadNodeIdUnknown
	}
	if bd.BrowseDirection > opcua.BrowseDirectionBoth {
		return nil, opcua.StatusBadBrowseDirectionInvalid
	}
	if !bd.ReferenceTypeID.IsNull() {
		rt, ok := s.nodes[bd.ReferenceTypeID.String()]
		if !ok || rt.nodeClass != opcua.NodeClassReferenceType {
			return nil, opcua.StatusBadReferenceTypeIdInvalid
		}
	}

	var refs []opcua.ReferenceDescription
	for _, r := range n.references {
		switch bd.BrowseDirection {
		case opcua.BrowseDirectionForward:
			if !r.forward {
				continue
			}
		case opcua.BrowseDirectionInverse:
			if r.forward {
				continue
			}
		}
		if !bd.ReferenceTypeID.IsNull() && !r.typeID.Equal(bd.ReferenceTypeID) &&
			!(bd.IncludeSubtypes && s.isSubtypeOf(r.typeID, bd.ReferenceTypeID)) {
			continue
		}
		target, ok := s.nodes[r.target.String()]
		if !ok {
			continue
		}
		if bd.NodeClassMask != 0 && uint32(target.nodeClass)&bd.NodeClassMask == 0 {
			continue
		}
		refs = append(refs, s.describe(r, target, opcua.BrowseResultMask(bd.ResultMask)))
	}
	return refs, opcua.StatusGood
}

// page returns the first limit references and parks the rest behind a new
// continuation point.
func (s *Space) page(refs []opcua.ReferenceDescription, limit uint32) opcua.BrowseResult {
	if limit == 0 || uint32(len(refs)) <= limit {
		return opcua.BrowseResult{StatusCode: opcua.StatusGood, References: refs}
	}
	id := uuid.New()
	cp := id[:]
	s.continuations[string(cp)] = &continuation{refs: refs[limit:], limit: limit}
	return opcua.BrowseResult{
		StatusCode:        opcua.StatusGood,
		ContinuationPoint: cp,
		References:        refs[:limit:limit],
	}
}

func (s *Space) describe(r reference, target *node, mask opcua.BrowseResultMask) opcua.ReferenceDescription {
	rd := opcua.ReferenceDescription{NodeID: s.expand(target.nodeID)}
	if mask&opcua.BrowseResultMaskReferenceTypeID != 0 {
		rd.ReferenceTypeID = r.typeID
	}
	if mask&opcua.BrowseResultMaskIsForward != 0 {
		rd.IsForward = r.forward
	}
	if mask&opcua.BrowseResultMaskNodeClass != 0 {
		rd.NodeClass = target.nodeClass
	}
	if mask&opcua.BrowseResultMaskBrowseName != 0 {
		rd.BrowseName = target.browseName
	}
	if mask&opcua.BrowseResultMaskDisplayName != 0 {
		rd.DisplayName = target.displayName
	}
	if mask&opcua.BrowseResultMaskTypeDefinition != 0 {
		for _, tr := range target.references {
			if tr.forward && tr.typeID.Equal(opcua.HasTypeDefinition) {
				rd.TypeDefinition = s.expand(tr.target)
				break
			}
		}
	}
	return rd
}

// expand names namespaces other than zero by URI when configured to.
func (s *Space) expand(id opcua.NodeID) opcua.ExpandedNodeID {
	x := opcua.NewExpandedNodeID(id)
	if !s.opts.namespaceURIs || id.Namespace == 0 {
		return x
	}
	if uri, ok := s.namespaces.URI(id.Namespace); ok {
		x.NamespaceURI = uri
		x.NodeID.Namespace = 0
	}
	return x
}

// Read returns one DataValue per requested attribute. Both timestamps are
// set on values; the binary transport trims them to what the request asks
// for.
func (s *Space) Read(ctx context.Context, nodesToRead []opcua.ReadValueID) ([]opcua.DataValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(nodesToRead) == 0 {
		return nil, opcua.NewOPCUAError(opcua.ServiceRead, opcua.StatusBadNothingToDo, "no nodes to read")
	}

	now := s.opts.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]opcua.DataValue, len(nodesToRead))
	for i, rv := range nodesToRead {
		results[i] = s.readAttribute(rv, now)
	}
	return results, nil
}

func (s *Space) readAttribute(rv opcua.ReadValueID, now time.Time) opcua.DataValue {
	n, ok := s.nodes[rv.NodeID.String()]
	if !ok {
		return badValue(opcua.StatusBadNodeIdUnknown)
	}
	if rv.IndexRange != "" && rv.AttributeID != opcua.AttributeValue {
		return badValue(opcua.StatusBadIndexRangeNoData)
	}

	var v *opcua.Variant
	switch rv.AttributeID {
	case opcua.AttributeNodeID:
		v = opcua.NewVariant(opcua.TypeNodeID, n.nodeID)
	case opcua.AttributeNodeClass:
		v = opcua.NewVariant(opcua.TypeInt32, int32(n.nodeClass))
	case opcua.AttributeBrowseName:
		v = opcua.NewVariant(opcua.TypeQualifiedName, n.browseName)
	case opcua.AttributeDisplayName:
		v = opcua.NewVariant(opcua.TypeLocalizedText, n.displayName)
	case opcua.AttributeIsAbstract:
		if !n.isType() {
			return badValue(opcua.StatusBadAttributeIdInvalid)
		}
		v = opcua.NewVariant(opcua.TypeBoolean, n.isAbstract)
	case opcua.AttributeValue:
		if n.nodeClass != opcua.NodeClassVariable {
			return badValue(opcua.StatusBadAttributeIdInvalid)
		}
		return readValue(n, rv.IndexRange, now)
	case opcua.AttributeDataType:
		if n.nodeClass != opcua.NodeClassVariable {
			return badValue(opcua.StatusBadAttributeIdInvalid)
		}
		v = opcua.NewVariant(opcua.TypeNodeID, n.dataType)
	case opcua.AttributeValueRank:
		if n.nodeClass != opcua.NodeClassVariable {
			return badValue(opcua.StatusBadAttributeIdInvalid)
		}
		rank := opcua.ValueRankAny
		if n.value != nil {
			rank = int32(arrays.ValueRank(n.value.Value))
		}
		v = opcua.NewVariant(opcua.TypeInt32, rank)
	case opcua.AttributeArrayDimensions:
		if n.nodeClass != opcua.NodeClassVariable {
			return badValue(opcua.StatusBadAttributeIdInvalid)
		}
		if n.value == nil || !arrays.IsArray(n.value.Value) {
			return opcua.DataValue{StatusCode: opcua.StatusGood, ServerTimestamp: now}
		}
		dims := arrays.Dimensions(n.value.Value)
		out := make([]uint32, len(dims))
		for i, d := range dims {
			out[i] = uint32(d)
		}
		v = opcua.NewVariant(opcua.TypeUInt32, out)
	case opcua.AttributeDataTypeDefinition:
		if n.nodeClass != opcua.NodeClassDataType || n.definition == nil {
			return badValue(opcua.StatusBadAttributeIdInvalid)
		}
		eo, err := opcua.NewDefinitionObject(n.definition)
		if err != nil {
			return badValue(opcua.StatusCodeOf(err))
		}
		v = opcua.NewVariant(opcua.TypeExtensionObject, eo)
	default:
		return badValue(opcua.StatusBadAttributeIdInvalid)
	}
	return opcua.DataValue{Value: v, StatusCode: opcua.StatusGood, ServerTimestamp: now}
}

func readValue(n *node, indexRange string, now time.Time) opcua.DataValue {
	dv := opcua.DataValue{
		Value:           n.value,
		StatusCode:      opcua.StatusGood,
		SourceTimestamp: n.sourceTimestamp,
		ServerTimestamp: now,
	}
	if indexRange == "" {
		return dv
	}
	r, err := indexrange.Parse(indexRange)
	if err != nil {
		return badValue(opcua.StatusCodeOf(err))
	}
	out, err := indexrange.ReadDataValue(dv, r)
	if err != nil {
		return badValue(opcua.StatusCodeOf(err))
	}
	return out
}

// Write writes the Value attribute of variables. Other attributes are not
// writable.
func (s *Space) Write(ctx context.Context, nodesToWrite []opcua.WriteValue) ([]opcua.StatusCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(nodesToWrite) == 0 {
		return nil, opcua.NewOPCUAError(opcua.ServiceWrite, opcua.StatusBadNothingToDo, "no nodes to write")
	}

	now := s.opts.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]opcua.StatusCode, len(nodesToWrite))
	for i, wv := range nodesToWrite {
		results[i] = s.writeValue(wv, now)
		if results[i].IsBad() {
			s.logger.Debug().
				Str("node_id", wv.NodeID.String()).
				Str("index_range", wv.IndexRange).
				Str("status", results[i].String()).
				Msg("write rejected")
		}
	}
	return results, nil
}

func (s *Space) writeValue(wv opcua.WriteValue, now time.Time) opcua.StatusCode {
	n, ok := s.nodes[wv.NodeID.String()]
	if !ok {
		return opcua.StatusBadNodeIdUnknown
	}
	if wv.AttributeID != opcua.AttributeValue || n.nodeClass != opcua.NodeClassVariable || n.readOnly {
		return opcua.StatusBadNotWritable
	}
	update := wv.Value.Value
	if update == nil {
		return opcua.StatusBadTypeMismatch
	}
	if want, ok := s.builtinType(n.dataType); ok && want != opcua.TypeVariant && want != update.Type {
		return opcua.StatusBadTypeMismatch
	}
	if n.value != nil && n.value.Type != update.Type {
		return opcua.StatusBadTypeMismatch
	}

	value := update
	if wv.IndexRange != "" {
		r, err := indexrange.Parse(wv.IndexRange)
		if err != nil {
			return opcua.StatusCodeOf(err)
		}
		if value, err = indexrange.WriteVariant(n.value, update, r); err != nil {
			return opcua.StatusCodeOf(err)
		}
	}

	n.value = value
	n.sourceTimestamp = wv.Value.SourceTimestamp
	if n.sourceTimestamp.IsZero() {
		n.sourceTimestamp = now
	}
	return opcua.StatusGood
}

func (n *node) isType() bool {
	switch n.nodeClass {
	case opcua.NodeClassObjectType, opcua.NodeClassVariableType, opcua.NodeClassReferenceType, opcua.NodeClassDataType:
		return true
	}
	return false
}

func badValue(sc opcua.StatusCode) opcua.DataValue {
	return opcua.DataValue{StatusCode: sc}
}
