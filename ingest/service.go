// Package ingest turns uploaded files into knowledge-base chunks.
package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/becomeliminal/nim-assistant/store"
	"github.com/becomeliminal/nim-assistant/tools"
)

// Indexer writes document chunks to the vector index.
// Implementations: tools.KnowledgeBase.
type Indexer interface {
	AddDocumentChunks(ctx context.Context, ownerID, documentID string, chunks []tools.DocumentChunk) error
}

// Recorder counts ingested documents by final status.
type Recorder interface {
	ObserveIngest(status string)
}

// Result summarizes one ingestion.
type Result struct {
	DocumentID string               `json:"document_id"`
	Filename   string               `json:"filename"`
	Status     store.DocumentStatus `json:"status"`
	Chunks     int                  `json:"chunks"`
}

// Service runs the ingestion pipeline.
type Service struct {
	docs      store.DocumentStore
	index     Indexer
	recorder  Recorder
	chunkSize int
}

// Option configures the service.
type Option func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		s.chunkSize = n
	}
}

// NewService creates an ingestion service.
func NewService(docs store.DocumentStore, index Indexer, opts ...Option) *Service {
	s := &Service{docs: docs, index: index, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest records the document, extracts and chunks its text, persists the
// chunks and indexes them for ownerID.
//
// Extraction and persistence failures mark the document failed and are
// returned. An indexing failure also marks it failed but is reported only
// through Result.Status; relational chunks already written are kept.
func (s *Service) Ingest(ctx context.Context, ownerID, filename string, content []byte) (*Result, error) {
	doc := &store.Document{
		UserID:   ownerID,
		Filename: filename,
		FileType: FileType(filename),
		FileSize: int64(len(content)),
		Status:   store.DocumentProcessing,
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	res := &Result{DocumentID: doc.ID, Filename: filename, Status: store.DocumentProcessing}

	text, err := ExtractText(doc.FileType, content)
	if err != nil {
		s.finish(ctx, res, store.DocumentFailed)
		return res, err
	}

	chunks := Chunk(text, s.chunkSize)
	res.Chunks = len(chunks)

	rows := make([]store.Chunk, len(chunks))
	indexed := make([]tools.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = store.Chunk{DocumentID: doc.ID, ChunkIndex: c.ChunkIndex, Text: c.Text}
		indexed[i] = tools.DocumentChunk{Text: c.Text, Source: filename, ChunkIndex: c.ChunkIndex}
	}
	if err := s.docs.SaveChunks(ctx, doc.ID, rows); err != nil {
		s.finish(ctx, res, store.DocumentFailed)
		return res, fmt.Errorf("save chunks: %w", err)
	}

	if err := s.index.AddDocumentChunks(ctx, ownerID, doc.ID, indexed); err != nil {
		log.Printf("[INGEST] Indexing %s (%s) failed: %v", filename, doc.ID, err)
		s.finish(ctx, res, store.DocumentFailed)
		return res, nil
	}

	s.finish(ctx, res, store.DocumentCompleted)
	log.Printf("[INGEST] %s (%s): %d chunks, status=%s", filename, doc.ID, res.Chunks, res.Status)
	return res, nil
}

func (s *Service) finish(ctx context.Context, res *Result, status store.DocumentStatus) {
	res.Status = status
	if err := s.docs.UpdateDocumentStatus(ctx, res.DocumentID, status, res.Chunks); err != nil {
		log.Printf("[INGEST] Could not update status of %s to %s: %v", res.DocumentID, status, err)
	}
	if s.recorder != nil {
		s.recorder.ObserveIngest(string(status))
	}
}

// List returns ownerID's documents, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]store.Document, error) {
	docs, err := s.docs.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
