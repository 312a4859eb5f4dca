package chromem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/store/chromem"
)

func vec(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := mock.New().Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestStore_UpsertQueryFilter(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New()
	require.NoError(t, err)
	require.NoError(t, store.EnsureIndex(ctx, "kb", mock.Dims))

	err = store.Upsert(ctx, "kb", []memory.Vector{
		{ID: "a", Values: vec(t, "go channels"), Content: "go channels", Metadata: map[string]string{"user_id": "u1"}},
		{ID: "b", Values: vec(t, "python asyncio"), Content: "python asyncio", Metadata: map[string]string{"user_id": "u1"}},
		{ID: "c", Values: vec(t, "go channels"), Content: "go channels", Metadata: map[string]string{"user_id": "u2"}},
	})
	require.NoError(t, err)

	matches, err := store.Query(ctx, "kb", vec(t, "go channels"), 5, map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	for _, m := range matches {
		assert.Equal(t, "u1", m.Metadata["user_id"])
	}
}

func TestStore_UpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New()
	require.NoError(t, err)

	for _, content := range []string{"first", "second"} {
		require.NoError(t, store.Upsert(ctx, "ns", []memory.Vector{
			{ID: "same", Values: vec(t, content), Content: content, Metadata: map[string]string{"user_id": "u"}},
		}))
	}

	matches, err := store.Query(ctx, "ns", vec(t, "second"), 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "second", matches[0].Content)
}

func TestStore_QueryEmptyNamespace(t *testing.T) {
	store, err := chromem.New()
	require.NoError(t, err)

	matches, err := store.Query(context.Background(), "nothing-here", vec(t, "x"), 3, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New()
	require.NoError(t, err)
	require.NoError(t, store.EnsureIndex(ctx, "ns", 4))

	err = store.Upsert(ctx, "ns", []memory.Vector{{ID: "x", Values: []float32{1, 0}}})
	assert.Error(t, err)
}
