package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/ingest"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/store/chromem"
	"github.com/becomeliminal/nim-assistant/store"
	"github.com/becomeliminal/nim-assistant/store/memstore"
	"github.com/becomeliminal/nim-assistant/tools"
)

type failingIndexer struct{}

func (failingIndexer) AddDocumentChunks(context.Context, string, string, []tools.DocumentChunk) error {
	return errors.New("index unavailable")
}

type statusRecorder struct{ statuses []string }

func (r *statusRecorder) ObserveIngest(status string) { r.statuses = append(r.statuses, status) }

func TestIngest_Completed(t *testing.T) {
	ctx := context.Background()
	docs := memstore.New()
	index, err := chromem.New()
	require.NoError(t, err)
	kb := tools.NewKnowledgeBase(ctx, index, mock.New(), "docs")
	rec := &statusRecorder{}
	svc := ingest.NewService(docs, kb, ingest.WithRecorder(rec), ingest.WithChunkSize(50))

	content := strings.Repeat("the warranty covers water damage for two years ", 10)
	res, err := svc.Ingest(ctx, "u1", "warranty.txt", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, store.DocumentCompleted, res.Status)
	assert.Equal(t, "warranty.txt", res.Filename)
	assert.Greater(t, res.Chunks, 1)

	doc, err := docs.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.DocumentCompleted, doc.Status)
	assert.Equal(t, res.Chunks, doc.ChunkCount)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, int64(len(content)), doc.FileSize)

	hits, err := kb.Search(ctx, "u1", "warranty water damage", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "warranty.txt", hits[0].Source)

	listed, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	assert.Equal(t, []string{"completed"}, rec.statuses)
}

func TestIngest_UnsupportedType(t *testing.T) {
	ctx := context.Background()
	docs := memstore.New()
	svc := ingest.NewService(docs, failingIndexer{})

	res, err := svc.Ingest(ctx, "u1", "slides.pptx", []byte("PK"))
	assert.True(t, errors.Is(err, ingest.ErrUnsupportedFileType))
	require.NotNil(t, res)
	assert.Equal(t, store.DocumentFailed, res.Status)

	doc, err := docs.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.DocumentFailed, doc.Status)
}

func TestIngest_PDF(t *testing.T) {
	ctx := context.Background()
	index, err := chromem.New()
	require.NoError(t, err)
	kb := tools.NewKnowledgeBase(ctx, index, mock.New(), "docs")
	svc := ingest.NewService(memstore.New(), kb)

	res, err := svc.Ingest(ctx, "u1", "Report.PDF", buildPDF(t, "warranty covers two years of repairs"))
	require.NoError(t, err)
	assert.Equal(t, store.DocumentCompleted, res.Status)
	assert.Equal(t, 1, res.Chunks)

	hits, err := kb.Search(ctx, "u1", "warranty repairs", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "warranty covers two years of repairs", hits[0].Text)
}

func TestIngest_UnreadableFile(t *testing.T) {
	ctx := context.Background()
	docs := memstore.New()
	svc := ingest.NewService(docs, failingIndexer{})

	res, err := svc.Ingest(ctx, "u1", "scan.pdf", []byte("%PDF-1.7"))
	assert.True(t, errors.Is(err, ingest.ErrUnreadableFile))
	require.NotNil(t, res)
	assert.Equal(t, store.DocumentFailed, res.Status)
}

func TestIngest_IndexFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	docs := memstore.New()
	svc := ingest.NewService(docs, failingIndexer{})

	res, err := svc.Ingest(ctx, "u1", "notes.md", []byte("some notes"))
	require.NoError(t, err)
	assert.Equal(t, store.DocumentFailed, res.Status)
	assert.Equal(t, 1, res.Chunks)

	doc, err := docs.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.DocumentFailed, doc.Status)
}
