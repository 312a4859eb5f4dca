// Package memstore is an in-process store for local and test use.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*store.Conversation
	messages      map[string][]store.Message
	preferences   map[string]map[string]string
	documents     map[string]*store.Document
	chunks        map[string][]store.Chunk
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]store.Message),
		preferences:   make(map[string]map[string]string),
		documents:     make(map[string]*store.Document),
		chunks:        make(map[string][]store.Chunk),
	}
}

func (s *Store) CreateConversation(_ context.Context, userID, title string) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c := &store.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[c.ID] = c
	out := *c
	return &out, nil
}

func (s *Store) GetConversation(_ context.Context, conversationID string) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}
	out := *c
	out.MessageCount = len(s.messages[conversationID])
	return &out, nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Conversation
	for _, c := range s.conversations {
		if c.UserID != userID {
			continue
		}
		cp := *c
		cp.MessageCount = len(s.messages[c.ID])
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, conversationID string, role core.Role, content string, toolCalls []core.ToolInvocation) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}
	now := time.Now().UTC()
	msg := store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		SequenceNumber: len(s.messages[conversationID]) + 1,
		ToolCalls:      toolCalls,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	c.UpdatedAt = now
	return &msg, nil
}

func (s *Store) RecentMessages(_ context.Context, conversationID string, limit int) ([]store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[conversationID]
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]store.Message, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *Store) Messages(ctx context.Context, conversationID string) ([]store.Message, error) {
	return s.RecentMessages(ctx, conversationID, 0)
}

func (s *Store) GetPreference(_ context.Context, userID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.preferences[userID][key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *Store) SavePreference(_ context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, ok := s.preferences[userID]
	if !ok {
		prefs = make(map[string]string)
		s.preferences[userID] = prefs
	}
	prefs[key] = value
	return nil
}

func (s *Store) ListPreferences(_ context.Context, userID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.preferences[userID]))
	for k, v := range s.preferences[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) CreateDocument(_ context.Context, doc *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *Store) UpdateDocumentStatus(_ context.Context, documentID string, status store.DocumentStatus, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	d.Status = status
	d.ChunkCount = chunkCount
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GetDocument(_ context.Context, documentID string) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	out := *d
	return &out, nil
}

func (s *Store) ListDocuments(_ context.Context, userID string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Document
	for _, d := range s.documents {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SaveChunks(_ context.Context, documentID string, chunks []store.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[documentID]; !ok {
		return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.DocumentID = documentID
		s.chunks[documentID] = append(s.chunks[documentID], c)
	}
	return nil
}

func (s *Store) Close() error { return nil }
