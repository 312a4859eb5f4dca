package tools

import (
	"context"
	"fmt"
	"log"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/search"
)

const defaultMaxResults = 5

// NewWebSearchTool creates the web_search tool backed by searcher.
func NewWebSearchTool(searcher search.Searcher) core.Tool {
	return New(core.ToolWebSearch).
		Description("Search the internet for current information, news, facts, or any real-time data. Use this when the user asks about current events, recent information, or anything that requires up-to-date data.").
		Schema(searchSchema("The search query to look up on the internet",
			"max_results", "Maximum number of results to return", defaultMaxResults)).
		Handler(func(ctx context.Context, params *core.ToolParams) core.ToolResult {
			query := core.StringArg(params.Input, "query", "")
			maxResults := core.IntArg(params.Input, "max_results", defaultMaxResults)
			if maxResults <= 0 {
				maxResults = defaultMaxResults
			}

			resp, err := searcher.Search(ctx, query, maxResults)
			if err != nil {
				log.Printf("[TOOLS] web_search failed for %q: %v", query, err)
				return core.ToolResult{
					"error":   fmt.Sprintf("Web search failed: %v", err),
					"answer":  "",
					"results": []interface{}{},
				}
			}

			results := make([]interface{}, 0, len(resp.Results))
			for _, r := range resp.Results {
				results = append(results, map[string]interface{}{
					"title":   r.Title,
					"url":     r.URL,
					"content": r.Content,
					"score":   r.Score,
				})
			}
			return core.ToolResult{
				"answer":  resp.Answer,
				"results": results,
			}
		})
}
