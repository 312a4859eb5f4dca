// Package store persists conversations, preferences and uploaded documents.
//
// Backends: memstore (in-process), postgres (pgx) and sqlite (modernc).
// All three assign message sequence numbers themselves so concurrent
// appends to one conversation never collide.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is a persisted conversation turn.
type Message struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversation_id"`
	Role           core.Role             `json:"role"`
	Content        string                `json:"content"`
	SequenceNumber int                   `json:"sequence_number"`
	ToolCalls      []core.ToolInvocation `json:"tool_calls,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Turn converts the message into the orchestrator's history form.
func (m Message) Turn() core.Turn {
	return core.Turn{
		Role:           m.Role,
		Content:        m.Content,
		SequenceNumber: m.SequenceNumber,
		ToolCalls:      m.ToolCalls,
		CreatedAt:      m.CreatedAt,
	}
}

// Turns converts messages in order.
func Turns(msgs []Message) []core.Turn {
	out := make([]core.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Turn())
	}
	return out
}

// DocumentStatus tracks ingestion progress.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is an uploaded file.
type Document struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Filename   string         `json:"filename"`
	FileType   string         `json:"file_type"`
	FileSize   int64          `json:"file_size"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Chunk is one persisted piece of a document's text.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// ConversationStore reads and writes conversation history.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	// ListConversations returns userID's conversations, most recently updated first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// AppendMessage stores a turn and assigns the next sequence number of the
	// conversation atomically.
	AppendMessage(ctx context.Context, conversationID string, role core.Role, content string, toolCalls []core.ToolInvocation) (*Message, error)
	// RecentMessages returns the last limit messages in sequence order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// Messages returns the full conversation in sequence order.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}

// PreferenceStore keeps one value per (user, key).
type PreferenceStore interface {
	// GetPreference returns ErrNotFound when the key has never been saved.
	GetPreference(ctx context.Context, userID, key string) (string, error)
	SavePreference(ctx context.Context, userID, key, value string) error
	ListPreferences(ctx context.Context, userID string) (map[string]string, error)
}

// DocumentStore tracks uploaded documents and their chunks.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *Document) error
	UpdateDocumentStatus(ctx context.Context, documentID string, status DocumentStatus, chunkCount int) error
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	// ListDocuments returns userID's documents, newest first.
	ListDocuments(ctx context.Context, userID string) ([]Document, error)
	SaveChunks(ctx context.Context, documentID string, chunks []Chunk) error
}

// Store is the full relational backend.
type Store interface {
	ConversationStore
	PreferenceStore
	DocumentStore
	Close() error
}

// EncodeToolCalls serializes tool calls for a text or jsonb column.
func EncodeToolCalls(calls []core.ToolInvocation) (string, error) {
	if len(calls) == 0 {
		return "", nil
	}
	b, err := json.Marshal(calls)
	if err != nil {
		return "", fmt.Errorf("marshal tool calls: %w", err)
	}
	return string(b), nil
}

// DecodeToolCalls is the inverse of EncodeToolCalls.
func DecodeToolCalls(raw string) ([]core.ToolInvocation, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var calls []core.ToolInvocation
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		return nil, fmt.Errorf("unmarshal tool calls: %w", err)
	}
	return calls, nil
}
