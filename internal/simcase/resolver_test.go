package simcase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/reservoir/internal/grid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/reservoir/internal/reserr"
)

func TestResolver(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMemSource("A", "B"))
	defer reg.CloseAll()
	res := NewResolver(reg)
	assert.Same(t, reg, res.Registry())

	a1, err := res.Case(ctx, "A")
	require.NoError(t, err)
	a2, err := res.Case(ctx, "A")
	require.NoError(t, err)
	assert.Same(t, a1, a2, "second lookup reuses the open case")
	assert.True(t, res.IsOpen("A"))
	assert.False(t, res.IsOpen("B"))
	assert.Equal(t, 1, reg.Len())

	_, err = res.Case(ctx, "Z")
	assert.ErrorIs(t, err, reserr.ErrUnknownCase)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, res.Release("A"))
	require.NoError(t, res.Release("A"), "second release is a no-op")
	assert.Zero(t, reg.Len())
	_, err = a1.Grid()
	assert.ErrorIs(t, err, reserr.ErrClosed)

	a3, err := res.Case(ctx, "A")
	require.NoError(t, err)
	assert.NotSame(t, a1, a3)
}

func TestResolver_ReopensClosedHandle(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMemSource("A"))
	defer reg.CloseAll()
	res := NewResolver(reg)

	_, err := res.Case(ctx, "A")
	require.NoError(t, err)
	reg.CloseAll()
	assert.False(t, res.IsOpen("A"))

	c, err := res.Case(ctx, "A")
	require.NoError(t, err)
	_, err = c.Grid()
	assert.NoError(t, err)
}

func TestResolver_Adopt(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMemSource("A", "B"))
	reg.SetOpenLimit(1)
	defer reg.CloseAll()
	res := NewResolver(reg)

	handles, err := reg.OpenAll(ctx, []string{"A", "B"})
	require.NoError(t, err)
	for _, h := range handles {
		require.NoError(t, res.Adopt(h))
	}
	assert.True(t, res.IsOpen("B"))

	b, err := res.Case(ctx, "B")
	require.NoError(t, err)
	viaHandle, err := reg.Get(handles[1])
	require.NoError(t, err)
	assert.Same(t, viaHandle, b)
	assert.Equal(t, 2, reg.Len())

	assert.ErrorIs(t, res.Adopt("missing"), reserr.ErrUnknownCase)
}

// slowGridSource blocks grid loads of one case until release is closed.
type slowGridSource struct {
	*memSource
	slow    string
	started chan struct{}
	release chan struct{}
}

func (s *slowGridSource) LoadGrid(ctx context.Context, id string) (grid.Spec, error) {
	if id == s.slow {
		s.started <- struct{}{}
		<-s.release
	}
	return s.memSource.LoadGrid(ctx, id)
}

func TestResolver_OpenCaseResolvesWhileAnotherLoads(t *testing.T) {
	ctx := context.Background()
	src := &slowGridSource{
		memSource: newMemSource("A", "B"),
		slow:      "B",
		started:   make(chan struct{}, 4),
		release:   make(chan struct{}),
	}
	reg := NewRegistry(src)
	defer reg.CloseAll()
	res := NewResolver(reg)

	a, err := res.Case(ctx, "A")
	require.NoError(t, err)

	results := make([]*Case, 3)
	var wg sync.WaitGroup
	for n := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := res.Case(ctx, "B")
			if err == nil {
				results[n] = c
			}
		}()
	}
	<-src.started

	got := make(chan *Case, 1)
	go func() {
		c, _ := res.Case(ctx, "A")
		got <- c
	}()
	select {
	case c := <-got:
		assert.Same(t, a, c)
	case <-time.After(5 * time.Second):
		t.Fatal("lookup of an open case waited on another case's load")
	}

	close(src.release)
	wg.Wait()
	assert.Len(t, src.started, 0, "concurrent requests share one load")
	for _, c := range results {
		require.NotNil(t, c)
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, 2, reg.Len())
}
