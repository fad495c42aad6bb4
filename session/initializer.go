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

package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// Initializer prepares a session for decoding server-defined structures:
// it makes sure the session has a data type tree and registers a codec for
// every structure in it.
type Initializer struct {
	manager      *dynamic.Manager
	factory      dynamic.CodecFactory
	discoverOpts []typetree.Option
	logger       zerolog.Logger

	group singleflight.Group
}

// NewInitializer returns an Initializer registering codecs with m.
func NewInitializer(m *dynamic.Manager, opts ...Option) *Initializer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	factory := o.factory
	if factory == nil {
		factory = dynamic.NewCodecFactory(m)
	}
	return &Initializer{
		manager:      m,
		factory:      factory,
		discoverOpts: o.discoverOpts,
		logger:       o.logger,
	}
}

// Initialize returns the data type tree of s, discovering it through t when
// the session has none yet, and registers the tree's codecs.
//
// Concurrent calls for the same session share one discovery. The shared
// discovery is detached from the cancellation of ctx so that a caller giving
// up does not fail the others; a caller whose ctx ends returns ctx.Err()
// while the discovery goes on and caches its result. A failed discovery
// leaves the session untouched.
func (i *Initializer) Initialize(ctx context.Context, t typetree.Transport, s *Session) (*typetree.Tree, error) {
	if tree, ok := TreeOf(s); ok {
		i.register(s, tree)
		return tree, nil
	}

	build := context.WithoutCancel(ctx)
	ch := i.group.DoChan(s.ID().String(), func() (interface{}, error) {
		if tree, ok := TreeOf(s); ok {
			return tree, nil
		}
		tree, err := typetree.Discover(build, t, i.discoverOpts...)
		if err != nil {
			return nil, err
		}
		s.SetAttribute(DataTypeTreeKey, tree)
		i.register(s, tree)
		return tree, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("session %s: %w", s.ID(), res.Err)
		}
		return res.Val.(*typetree.Tree), nil
	}
}

func (i *Initializer) register(s *Session, tree *typetree.Tree) {
	n := dynamic.RegisterCodecs(tree, i.manager, i.factory)
	i.logger.Debug().
		Str("session_id", s.ID().String()).
		Int("types", n).
		Msg("registered session codecs")
}
