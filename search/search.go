// Package search defines the web search client contract used by the
// web_search tool.
package search

import "context"

// Result is one ranked web result.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is a synthesized answer plus ranked results.
type Response struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Searcher queries a web search backend.
// Implementations: tavily.Client.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (*Response, error)
}
