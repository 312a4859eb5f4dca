// Package memory provides the retrieval building blocks shared by long-term
// conversation memory and the knowledge base.
//
// Architecture:
//   - Embedder: text-to-vector conversion (mock for tests, ONNX MiniLM locally)
//   - Index: namespaced vector index with metadata filters (chromem-go)
//   - LongTermMemory: stores "User/Assistant" exchanges and searches them per owner
//
// Memories and document chunks live in separate namespaces of the same
// index. Both are filtered by the "user_id" metadata key so retrieval never
// crosses owners.
package memory
