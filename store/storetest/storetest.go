// Package storetest is a conformance suite every store backend runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

// Run exercises s against the store contract. s must be empty.
func Run(t *testing.T, s store.Store) {
	t.Run("ConversationLifecycle", func(t *testing.T) { testConversationLifecycle(t, s) })
	t.Run("SequenceNumbers", func(t *testing.T) { testSequenceNumbers(t, s) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, s) })
	t.Run("ToolCallsRoundTrip", func(t *testing.T) { testToolCalls(t, s) })
	t.Run("Preferences", func(t *testing.T) { testPreferences(t, s) })
	t.Run("Documents", func(t *testing.T) { testDocuments(t, s) })
}

func testConversationLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.CreateConversation(ctx, "alice", "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateConversation(ctx, "alice", "second")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "bob", "other")
	require.NoError(t, err)

	got, err := s.GetConversation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "first", got.Title)

	_, err = s.GetConversation(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// Appending bumps updated_at, so first moves ahead of second.
	time.Sleep(2 * time.Millisecond)
	_, err = s.AppendMessage(ctx, first.ID, core.RoleUser, "hello", nil)
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, 0, list[1].MessageCount)
}

func testSequenceNumbers(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, "carol", "seq")
	require.NoError(t, err)

	for i := 1; i <= 12; i++ {
		role := core.RoleUser
		if i%2 == 0 {
			role = core.RoleAssistant
		}
		msg, err := s.AppendMessage(ctx, conv.ID, role, fmt.Sprintf("turn %d", i), nil)
		require.NoError(t, err)
		assert.Equal(t, i, msg.SequenceNumber)
	}

	recent, err := s.RecentMessages(ctx, conv.ID, 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	for i, m := range recent {
		assert.Equal(t, 8+i, m.SequenceNumber)
		assert.Equal(t, fmt.Sprintf("turn %d", 8+i), m.Content)
	}

	all, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, all, 12)
	assert.Equal(t, core.RoleUser, all[0].Role)
	assert.Equal(t, core.RoleAssistant, all[1].Role)

	_, err = s.AppendMessage(ctx, "missing", core.RoleUser, "x", nil)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testConcurrentAppends(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, "dave", "race")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AppendMessage(ctx, conv.ID, core.RoleUser, fmt.Sprintf("m%d", i), nil); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, all, n)
	for i, m := range all {
		assert.Equal(t, i+1, m.SequenceNumber, "sequence numbers must be gapless")
	}
}

func testToolCalls(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, "erin", "tools")
	require.NoError(t, err)

	calls := []core.ToolInvocation{{
		ID:     "toolu_01",
		Tool:   "calculator",
		Input:  map[string]interface{}{"expression": "25 * 84"},
		Result: core.ToolResult{"expression": "25 * 84", "result": 2100, "formatted": "2100"},
	}}
	_, err = s.AppendMessage(ctx, conv.ID, core.RoleAssistant, "2100", calls)
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	got := msgs[0].ToolCalls[0]
	assert.Equal(t, "toolu_01", got.ID)
	assert.Equal(t, "calculator", got.Tool)
	assert.Equal(t, "25 * 84", got.Input["expression"])
	assert.Equal(t, "2100", got.Result["formatted"])
}

func testPreferences(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetPreference(ctx, "frank", "color")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.SavePreference(ctx, "frank", "color", "blue"))
	require.NoError(t, s.SavePreference(ctx, "frank", "color", "green"))
	require.NoError(t, s.SavePreference(ctx, "frank", "city", "Porto"))
	require.NoError(t, s.SavePreference(ctx, "grace", "color", "red"))

	v, err := s.GetPreference(ctx, "frank", "color")
	require.NoError(t, err)
	assert.Equal(t, "green", v)

	all, err := s.ListPreferences(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "green", "city": "Porto"}, all)
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()

	older := &store.Document{UserID: "heidi", Filename: "a.txt", FileType: "txt", FileSize: 10, Status: store.DocumentProcessing}
	require.NoError(t, s.CreateDocument(ctx, older))
	require.NotEmpty(t, older.ID)
	time.Sleep(2 * time.Millisecond)
	newer := &store.Document{UserID: "heidi", Filename: "b.md", FileType: "md", FileSize: 20, Status: store.DocumentProcessing}
	require.NoError(t, s.CreateDocument(ctx, newer))

	require.NoError(t, s.SaveChunks(ctx, older.ID, []store.Chunk{
		{ChunkIndex: 0, Text: "first"},
		{ChunkIndex: 1, Text: "second"},
	}))
	require.NoError(t, s.UpdateDocumentStatus(ctx, older.ID, store.DocumentCompleted, 2))

	got, err := s.GetDocument(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DocumentCompleted, got.Status)
	assert.Equal(t, 2, got.ChunkCount)
	assert.Equal(t, int64(10), got.FileSize)

	docs, err := s.ListDocuments(ctx, "heidi")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, newer.ID, docs[0].ID)
	assert.Equal(t, older.ID, docs[1].ID)

	err = s.UpdateDocumentStatus(ctx, "missing", store.DocumentFailed, 0)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.GetDocument(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
