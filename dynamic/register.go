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

package dynamic

import (
	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// RegisterCodecs binds a codec built by factory to every data type below
// Structure that carries a StructureDefinition. A nil factory builds
// StructCodecs. Types whose codec cannot be built are skipped. It returns
// the number of types registered.
func RegisterCodecs(tree *typetree.Tree, m *Manager, factory CodecFactory) int {
	structure, ok := tree.Node(opcua.Structure)
	if !ok {
		m.logger.Warn().Msg("Structure not found in data type tree, no codecs registered")
		return 0
	}
	if factory == nil {
		factory = NewCodecFactory(m)
	}

	registered := 0
	structure.Traverse(func(n *typetree.Node) bool {
		dt := n.DataType()
		if _, ok := dt.StructureDefinition(); !ok {
			return true
		}

		codec, err := factory(dt, tree)
		if err != nil {
			m.metrics.SkippedTypes.Inc()
			m.logger.Warn().
				Err(err).
				Str("node_id", dt.NodeID().String()).
				Str("browse_name", dt.BrowseName().String()).
				Msg("skipping data type without a codec")
			return true
		}

		enc := dt.Encodings()
		m.logger.Debug().
			Str("node_id", dt.NodeID().String()).
			Str("browse_name", dt.BrowseName().String()).
			Msg("registering type")
		m.RegisterType(dt.NodeID(), codec, enc.Binary, enc.XML, enc.JSON)
		registered++
		return true
	})
	return registered
}
