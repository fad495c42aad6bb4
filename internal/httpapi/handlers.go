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

package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/indexrange"
	"github.com/edgeo-scada/opcua-typesys/memspace"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// maxBodyBytes bounds PUT bodies.
const maxBodyBytes = 1 << 20

func (s *Server) nodeID(w http.ResponseWriter, r *http.Request) (opcua.NodeID, bool) {
	id, err := opcua.ParseNodeID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, opcua.StatusBadNodeIdInvalid.String(), err.Error())
		return opcua.NodeID{}, false
	}
	return id, true
}

// listTypes returns the data types below ?root= (default: the tree root)
// in depth-first order.
func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	root := s.backend.Tree.Root()
	if text := r.URL.Query().Get("root"); text != "" {
		id, err := opcua.ParseNodeID(text)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, opcua.StatusBadNodeIdInvalid.String(), err.Error())
			return
		}
		n, ok := s.backend.Tree.Node(id)
		if !ok {
			WriteError(w, r, http.StatusNotFound, opcua.StatusBadDataTypeIdUnknown.String(), "no data type "+id.String())
			return
		}
		root = n
	}

	types := make([]typeJSON, 0, s.backend.Tree.Len())
	root.Traverse(func(n *typetree.Node) bool {
		types = append(types, s.describe(n))
		return true
	})
	WriteJSON(w, http.StatusOK, map[string]any{"types": types})
}

func (s *Server) getType(w http.ResponseWriter, r *http.Request) {
	id, ok := s.nodeID(w, r)
	if !ok {
		return
	}
	n, ok := s.backend.Tree.Node(id)
	if !ok {
		WriteError(w, r, http.StatusNotFound, opcua.StatusBadDataTypeIdUnknown.String(), "no data type "+id.String())
		return
	}
	WriteJSON(w, http.StatusOK, s.detail(n))
}

// readValue reads the Value attribute, restricted to ?range= when given.
func (s *Server) readValue(w http.ResponseWriter, r *http.Request) {
	id, ok := s.nodeID(w, r)
	if !ok {
		return
	}
	rangeText := r.URL.Query().Get("range")
	if rangeText != "" {
		if _, err := indexrange.Parse(rangeText); err != nil {
			writeStatusError(w, r, err)
			return
		}
	}

	results, err := s.backend.Values.Read(r.Context(), []opcua.ReadValueID{
		{NodeID: id, AttributeID: opcua.AttributeValue, IndexRange: rangeText},
	})
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	dv := results[0]
	if dv.StatusCode.IsBad() {
		writeStatusError(w, r, opcua.NewOPCUAError(opcua.ServiceRead, dv.StatusCode, id.String()))
		return
	}
	WriteJSON(w, http.StatusOK, s.dataValue(id, rangeText, dv))
}

// writeValue writes the JSON body, coerced to the built-in type of the
// node's data type, restricted to ?range= when given.
func (s *Server) writeValue(w http.ResponseWriter, r *http.Request) {
	id, ok := s.nodeID(w, r)
	if !ok {
		return
	}
	rangeText := r.URL.Query().Get("range")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, r, http.StatusRequestEntityTooLarge, opcua.StatusBadEncodingLimitsExceeded.String(), err.Error())
		return
	}

	results, err := s.backend.Values.Read(r.Context(), []opcua.ReadValueID{
		{NodeID: id, AttributeID: opcua.AttributeDataType},
	})
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if results[0].StatusCode.IsBad() {
		writeStatusError(w, r, opcua.NewOPCUAError(opcua.ServiceRead, results[0].StatusCode, id.String()))
		return
	}
	dataType, ok := variantNodeID(results[0].Value)
	if !ok {
		WriteError(w, r, http.StatusUnprocessableEntity, opcua.StatusBadNotWritable.String(), id.String()+" has no data type")
		return
	}
	t := s.backend.Tree.BuiltinType(dataType)
	if t == opcua.TypeNull {
		WriteError(w, r, http.StatusNotFound, opcua.StatusBadDataTypeIdUnknown.String(), "no data type "+dataType.String())
		return
	}

	v, err := memspace.ParseValue(t, string(body))
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if err := s.backend.Values.WriteValue(r.Context(), id, rangeText, v); err != nil {
		writeStatusError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func variantNodeID(v *opcua.Variant) (opcua.NodeID, bool) {
	if v == nil {
		return opcua.NodeID{}, false
	}
	id, ok := v.Value.(opcua.NodeID)
	return id, ok && !id.IsNull()
}
