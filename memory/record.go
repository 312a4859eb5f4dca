package memory

import (
	"fmt"
	"time"
)

const (
	metaText      = "text"
	metaTimestamp = "timestamp"
)

// Record is a single long-term memory: free text remembered for one owner.
// Records are write-once.
type Record struct {
	ID        string
	OwnerID   string
	Text      string
	Embedding []float32
	CreatedAt time.Time
	Metadata  map[string]string
}

// newRecordID builds the vector id for a memory. The nanosecond suffix keeps
// ids unique for one owner without a round trip to the index.
func newRecordID(ownerID string, at time.Time) string {
	return fmt.Sprintf("%s_%d", ownerID, at.UnixNano())
}

// toVector flattens the record into index metadata. Owner, text and
// timestamp are reserved keys and override caller metadata.
func (r *Record) toVector() Vector {
	meta := make(map[string]string, len(r.Metadata)+3)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[OwnerKey] = r.OwnerID
	meta[metaText] = r.Text
	meta[metaTimestamp] = r.CreatedAt.Format(time.RFC3339Nano)

	return Vector{
		ID:       r.ID,
		Values:   r.Embedding,
		Content:  r.Text,
		Metadata: meta,
	}
}

// searchResultFromMatch converts an index match back to a memory, dropping
// the reserved text and timestamp keys from the returned metadata.
func searchResultFromMatch(m Match) SearchResult {
	text := m.Metadata[metaText]
	if text == "" {
		text = m.Content
	}
	meta := make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		if k == metaText || k == metaTimestamp {
			continue
		}
		meta[k] = v
	}
	return SearchResult{
		Text:      text,
		Timestamp: m.Metadata[metaTimestamp],
		Score:     m.Score,
		Metadata:  meta,
	}
}
