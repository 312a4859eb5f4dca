// Package postgres is the PostgreSQL store backed by pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

// Store persists conversations, preferences and documents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			next_seq INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			tool_calls JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (conversation_id, sequence_number)
		);`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			file_type TEXT NOT NULL DEFAULT '',
			file_size BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user_created ON documents (user_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_doc ON document_chunks (document_id, chunk_index);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*store.Conversation, error) {
	now := time.Now().UTC()
	c := &store.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

const conversationColumns = `c.id, c.user_id, c.title, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)`

func scanConversation(row pgx.Row) (store.Conversation, error) {
	var c store.Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount)
	return c, err
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id=$1`,
		conversationID,
	)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.user_id=$1 ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []store.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

// AppendMessage bumps conversations.next_seq and inserts the message in one
// transaction. The row lock taken by the UPDATE serializes concurrent
// appends to the same conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role core.Role, content string, toolCalls []core.ToolInvocation) (*store.Message, error) {
	encoded, err := store.EncodeToolCalls(toolCalls)
	if err != nil {
		return nil, err
	}
	var toolCallsArg interface{}
	if encoded != "" {
		toolCallsArg = json.RawMessage(encoded)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var seq int
	err = tx.QueryRow(ctx,
		`UPDATE conversations SET next_seq = next_seq + 1, updated_at = $2 WHERE id = $1 RETURNING next_seq`,
		conversationID, now,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("assign sequence number: %w", err)
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		SequenceNumber: seq,
		ToolCalls:      toolCalls,
		CreatedAt:      now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, sequence_number, tool_calls, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.SequenceNumber, toolCallsArg, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return msg, nil
}

func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		return s.Messages(ctx, conversationID)
	}
	msgs, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, role, content, sequence_number, COALESCE(tool_calls::text, ''), created_at
		   FROM messages WHERE conversation_id=$1 ORDER BY sequence_number DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	// Reverse into sequence order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) Messages(ctx context.Context, conversationID string) ([]store.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, conversation_id, role, content, sequence_number, COALESCE(tool_calls::text, ''), created_at
		   FROM messages WHERE conversation_id=$1 ORDER BY sequence_number ASC`,
		conversationID,
	)
}

func (s *Store) queryMessages(ctx context.Context, sql string, args ...interface{}) ([]store.Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var (
			m        store.Message
			role     string
			rawCalls string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.SequenceNumber, &rawCalls, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = core.Role(role)
		if m.ToolCalls, err = store.DecodeToolCalls(rawCalls); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func (s *Store) GetPreference(ctx context.Context, userID, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM user_preferences WHERE user_id=$1 AND key=$2`,
		userID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("get preference: %w", err)
	}
	return value, nil
}

func (s *Store) SavePreference(ctx context.Context, userID, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`,
		userID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

func (s *Store) ListPreferences(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM user_preferences WHERE user_id=$1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan preference row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference rows: %w", err)
	}
	return out, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *store.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, filename, file_type, file_size, status, chunk_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.UserID, doc.Filename, doc.FileType, doc.FileSize, string(doc.Status), doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, documentID string, status store.DocumentStatus, chunkCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status=$2, chunk_count=$3, updated_at=$4 WHERE id=$1`,
		documentID, string(status), chunkCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	return nil
}

const documentColumns = `id, user_id, filename, file_type, file_size, status, chunk_count, created_at, updated_at`

func scanDocument(row pgx.Row) (store.Document, error) {
	var (
		d      store.Document
		status string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.FileType, &d.FileSize, &status, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	d.Status = store.DocumentStatus(status)
	return d, err
}

func (s *Store) GetDocument(ctx context.Context, documentID string) (*store.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]store.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id=$1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

func (s *Store) SaveChunks(ctx context.Context, documentID string, chunks []store.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		batch.Queue(
			`INSERT INTO document_chunks (id, document_id, chunk_index, text) VALUES ($1, $2, $3, $4)`,
			c.ID, documentID, c.ChunkIndex, c.Text,
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
