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

// Package session holds per-session state that outlives a single request,
// most notably the data type tree discovered for the session.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// DataTypeTreeKey is the attribute key the discovered *typetree.Tree is
// stored under.
const DataTypeTreeKey = "opcua.dataTypeTree"

// Session is a set of named attributes bound to one server session.
type Session struct {
	id uuid.UUID

	mu    sync.RWMutex
	attrs map[string]interface{}
}

// New returns a session with a random id.
func New() *Session {
	return NewWithID(uuid.New())
}

// NewWithID returns a session with the given id.
func NewWithID(id uuid.UUID) *Session {
	return &Session{id: id, attrs: make(map[string]interface{})}
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Attribute returns the attribute stored under key.
func (s *Session) Attribute(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

// SetAttribute stores v under key, replacing any previous value.
func (s *Session) SetAttribute(key string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = v
}

// RemoveAttribute deletes key and returns the value it held.
func (s *Session) RemoveAttribute(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	delete(s.attrs, key)
	return v, ok
}

// TreeOf returns the data type tree cached on s.
func TreeOf(s *Session) (*typetree.Tree, bool) {
	v, ok := s.Attribute(DataTypeTreeKey)
	if !ok {
		return nil, false
	}
	tree, ok := v.(*typetree.Tree)
	return tree, ok && tree != nil
}
