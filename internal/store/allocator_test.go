package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentspecflow/internal/store"
	"github.com/Lllllllleong/documentspecflow/internal/testutil"
)

func TestAppendSequentialVersions(t *testing.T) {
	st := testutil.NewMemoryStore()
	a := store.NewAllocator(st, 0)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		spec, err := a.Append(ctx, "doc-1", map[string]any{"n": want})
		require.NoError(t, err)
		assert.Equal(t, want, spec.Version)
		assert.Equal(t, "doc-1", spec.DocumentID)
		assert.False(t, spec.CreatedAt.IsZero())
	}

	spec, err := a.Append(ctx, "doc-2", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Version, "versions are per document")

	next, err := a.NextVersion(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestAppendRetriesOnConflict(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.ForceConflicts(3)
	a := store.NewAllocator(st, 5)

	spec, err := a.Append(context.Background(), "doc-1", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Version)
}

func TestAppendExhausted(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.ForceConflicts(3)
	a := store.NewAllocator(st, 3)

	_, err := a.Append(context.Background(), "doc-1", map[string]any{})
	require.ErrorIs(t, err, store.ErrAllocationExhausted)

	specs, err := st.ListSpecs(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestAppendStopsOnOtherErrors(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.InsertSpecErr = errors.New("permission denied")
	a := store.NewAllocator(st, 5)

	_, err := a.Append(context.Background(), "doc-1", map[string]any{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrAllocationExhausted)
	assert.Contains(t, err.Error(), "permission denied")

	st.InsertSpecErr = nil
	st.MaxVersionErr = errors.New("unavailable")
	_, err = a.Append(context.Background(), "doc-1", map[string]any{})
	assert.ErrorContains(t, err, "unavailable")
}

func TestAppendHonoursCancellation(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.ForceConflicts(100)
	a := store.NewAllocator(st, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Append(ctx, "doc-1", map[string]any{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAppendConcurrentNoGapsNoDuplicates(t *testing.T) {
	st := testutil.NewMemoryStore()
	a := store.NewAllocator(st, 50)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Append(context.Background(), "doc-1", map[string]any{"i": i})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	specs, err := st.ListSpecs(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, specs, n)
	for i, sp := range specs {
		assert.Equal(t, i+1, sp.Version)
	}
}
