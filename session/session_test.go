package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/memspace"
	"github.com/edgeo-scada/opcua-typesys/session"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

const typesSnapshot = `
namespaces: [urn:edgeo:session]
dataTypes:
  - nodeId: ns=1;i=100
    browseName: 1:Reading
    encodings: {binary: ns=1;i=101}
    structure:
      fields:
        - {name: Value, dataType: i=11}
        - {name: Quality, dataType: i=19}
`

// countingTransport counts namespace array reads and can hold them until
// released.
type countingTransport struct {
	*memspace.Space
	namespaceReads atomic.Int32
	gate           chan struct{}
	err            error
}

func (c *countingTransport) Read(ctx context.Context, nodes []opcua.ReadValueID) ([]opcua.DataValue, error) {
	if len(nodes) == 1 && nodes[0].NodeID.Equal(opcua.ServerNamespaceArray) {
		c.namespaceReads.Add(1)
		if c.gate != nil {
			<-c.gate
		}
		if c.err != nil {
			return nil, c.err
		}
	}
	return c.Space.Read(ctx, nodes)
}

func newTransport(t *testing.T) *countingTransport {
	t.Helper()
	space := memspace.New()
	snap, err := memspace.LoadSnapshot(strings.NewReader(typesSnapshot))
	require.NoError(t, err)
	require.NoError(t, space.Apply(snap))
	return &countingTransport{Space: space}
}

func TestSession_Attributes(t *testing.T) {
	id := uuid.MustParse("0f5b8a8e-2c9b-4a57-9a38-5bd0b9a6e1c4")
	s := session.NewWithID(id)
	assert.Equal(t, id, s.ID())

	_, ok := s.Attribute("k")
	assert.False(t, ok)

	s.SetAttribute("k", 1)
	v, ok := s.Attribute("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = s.RemoveAttribute("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = s.Attribute("k")
	assert.False(t, ok)

	s.SetAttribute(session.DataTypeTreeKey, "not a tree")
	_, ok = session.TreeOf(s)
	assert.False(t, ok)

	assert.NotEqual(t, session.New().ID(), session.New().ID())
}

func TestInitializer_Initialize(t *testing.T) {
	tr := newTransport(t)
	m := dynamic.NewManager()
	initializer := session.NewInitializer(m)
	s := session.New()

	tree, err := initializer.Initialize(context.Background(), tr, s)
	require.NoError(t, err)
	_, ok := tree.Get(opcua.NewNumericNodeID(1, 100))
	assert.True(t, ok)

	cached, ok := session.TreeOf(s)
	require.True(t, ok)
	assert.Same(t, tree, cached)
	assert.Equal(t, 1, m.Len())
	_, _, ok = m.CodecForEncoding(opcua.NewNumericNodeID(1, 101))
	assert.True(t, ok)

	again, err := initializer.Initialize(context.Background(), tr, s)
	require.NoError(t, err)
	assert.Same(t, tree, again)
	assert.Equal(t, int32(1), tr.namespaceReads.Load())
}

func TestInitializer_Concurrent(t *testing.T) {
	tr := newTransport(t)
	tr.gate = make(chan struct{})
	initializer := session.NewInitializer(dynamic.NewManager())
	s := session.New()

	const callers = 8
	trees := make([]*typetree.Tree, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trees[i], errs[i] = initializer.Initialize(context.Background(), tr, s)
		}(i)
	}
	close(tr.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, trees[0], trees[i])
	}
	assert.Equal(t, int32(1), tr.namespaceReads.Load())
}

func TestInitializer_SeparateSessions(t *testing.T) {
	tr := newTransport(t)
	initializer := session.NewInitializer(dynamic.NewManager())

	a, err := initializer.Initialize(context.Background(), tr, session.New())
	require.NoError(t, err)
	b, err := initializer.Initialize(context.Background(), tr, session.New())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, int32(2), tr.namespaceReads.Load())
}

func TestInitializer_Error(t *testing.T) {
	tr := newTransport(t)
	tr.err = errors.New("link down")
	initializer := session.NewInitializer(dynamic.NewManager())
	s := session.New()

	_, err := initializer.Initialize(context.Background(), tr, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, tr.err)
	_, ok := s.Attribute(session.DataTypeTreeKey)
	assert.False(t, ok)

	tr.err = nil
	_, err = initializer.Initialize(context.Background(), tr, s)
	require.NoError(t, err)
	assert.Equal(t, int32(2), tr.namespaceReads.Load())
}

func TestInitializer_Cancelled(t *testing.T) {
	tr := newTransport(t)
	tr.gate = make(chan struct{})
	initializer := session.NewInitializer(dynamic.NewManager())
	s := session.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := initializer.Initialize(ctx, tr, s)
	assert.ErrorIs(t, err, context.Canceled)

	close(tr.gate)
	tree, err := initializer.Initialize(context.Background(), tr, s)
	require.NoError(t, err)
	assert.NotNil(t, tree)
	assert.LessOrEqual(t, tr.namespaceReads.Load(), int32(2))
}

func TestInitializer_CodecFactory(t *testing.T) {
	tr := newTransport(t)
	var built []string
	factory := func(dt *typetree.DataType, tree *typetree.Tree) (dynamic.Codec, error) {
		built = append(built, dt.BrowseName().String())
		return nil, errors.New("no codec")
	}
	m := dynamic.NewManager()
	initializer := session.NewInitializer(m, session.WithCodecFactory(factory),
		session.WithDiscoveryOptions(typetree.WithMaxConcurrentRequests(2)))

	_, err := initializer.Initialize(context.Background(), tr, session.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"1:Reading"}, built)
	assert.Equal(t, 0, m.Len())
}
