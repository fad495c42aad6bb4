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

// Package dynamic binds codecs to structured data types discovered at
// runtime and decodes extension objects through them.
package dynamic

import (
	"sync"

	"github.com/rs/zerolog"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// Codec encodes and decodes the binary body of one structured data type.
type Codec interface {
	Encode(e *opcua.Encoder, v interface{}) error
	Decode(d *opcua.Decoder) (interface{}, error)
}

type entry struct {
	typeID    opcua.NodeID
	codec     Codec
	encodings typetree.Encodings
}

// Manager maps data type ids and encoding ids to codecs. It is safe for
// concurrent use.
type Manager struct {
	mu         sync.RWMutex
	byType     map[string]*entry
	byEncoding map[string]*entry

	metrics *Metrics
	logger  zerolog.Logger
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	m := o.metrics
	if m == nil {
		m = NewMetrics(o.registerer)
	}
	return &Manager{
		byType:     make(map[string]*entry),
		byEncoding: make(map[string]*entry),
		metrics:    m,
		logger:     o.logger,
	}
}

// RegisterType binds codec to a data type and to each of its non-nil
// encoding ids. Registering a type again replaces the previous binding,
// including its encodings.
func (m *Manager) RegisterType(typeID opcua.NodeID, codec Codec, binaryID, xmlID, jsonID *opcua.NodeID) {
	e := &entry{
		typeID:    typeID,
		codec:     codec,
		encodings: typetree.Encodings{Binary: binaryID, XML: xmlID, JSON: jsonID},
	}
	key := typeID.String()

	m.mu.Lock()
	if old, ok := m.byType[key]; ok {
		for _, id := range encodingIDs(old.encodings) {
			if m.byEncoding[id.String()] == old {
				delete(m.byEncoding, id.String())
			}
		}
	}
	m.byType[key] = e
	for _, id := range encodingIDs(e.encodings) {
		m.byEncoding[id.String()] = e
	}
	n := len(m.byType)
	m.mu.Unlock()

	m.metrics.RegisteredTypes.Set(float64(n))
	m.logger.Debug().Str("node_id", key).Msg("registered codec")
}

// CodecForType returns the codec bound to a data type id.
func (m *Manager) CodecForType(typeID opcua.NodeID) (Codec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byType[typeID.String()]
	if !ok {
		return nil, false
	}
	return e.codec, true
}

// CodecForEncoding returns the codec bound to an encoding id, together with
// the data type it encodes.
func (m *Manager) CodecForEncoding(encodingID opcua.NodeID) (Codec, opcua.NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byEncoding[encodingID.String()]
	if !ok {
		return nil, opcua.NodeID{}, false
	}
	return e.codec, e.typeID, true
}

// Len returns the number of registered data types.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byType)
}

// DecodeExtensionObject decodes the body of x with the codec bound to its
// encoding id. An empty extension object decodes to nil.
func (m *Manager) DecodeExtensionObject(x opcua.ExtensionObject) (interface{}, error) {
	switch x.Encoding {
	case opcua.ExtensionObjectEmpty:
		return nil, nil
	case opcua.ExtensionObjectBinary:
	default:
		m.metrics.DecodeErrors.Inc()
		return nil, opcua.NewStatusError(opcua.StatusBadDataEncodingUnsupported, "extension object encoding 0x%02X", x.Encoding)
	}

	codec, _, ok := m.CodecForEncoding(x.TypeID)
	if !ok {
		m.metrics.DecodeErrors.Inc()
		return nil, opcua.NewStatusError(opcua.StatusBadDataTypeIdUnknown, "no codec for encoding %s", x.TypeID)
	}
	v, err := codec.Decode(opcua.NewDecoder(x.Body))
	if err != nil {
		m.metrics.DecodeErrors.Inc()
		return nil, err
	}
	return v, nil
}

// EncodeExtensionObject encodes v as the binary body of the data type
// typeID.
func (m *Manager) EncodeExtensionObject(typeID opcua.NodeID, v interface{}) (opcua.ExtensionObject, error) {
	m.mu.RLock()
	e, ok := m.byType[typeID.String()]
	m.mu.RUnlock()
	if !ok {
		return opcua.ExtensionObject{}, opcua.NewStatusError(opcua.StatusBadDataTypeIdUnknown, "no codec for data type %s", typeID)
	}
	if e.encodings.Binary == nil {
		return opcua.ExtensionObject{}, opcua.NewStatusError(opcua.StatusBadDataEncodingUnsupported, "data type %s has no binary encoding", typeID)
	}

	enc := opcua.NewEncoder()
	if err := e.codec.Encode(enc, v); err != nil {
		return opcua.ExtensionObject{}, err
	}
	return opcua.ExtensionObject{
		TypeID:   *e.encodings.Binary,
		Encoding: opcua.ExtensionObjectBinary,
		Body:     enc.Bytes(),
	}, nil
}

func encodingIDs(enc typetree.Encodings) []opcua.NodeID {
	var ids []opcua.NodeID
	for _, id := range []*opcua.NodeID{enc.Binary, enc.XML, enc.JSON} {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	return ids
}
