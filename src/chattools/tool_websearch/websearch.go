package tool_websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/kaenova/chatd/src/agent"
)

// Tool name constant
const Name = "web_search"

const webSearchPrompt = `Performs a web search and returns the top results.

WHEN TO USE THIS TOOL:
- Use when the user asks about current events or facts you are unsure of
- Helpful for finding documentation, articles, and reference material

HOW TO USE:
- Provide the search query string
- Optionally limit the number of results

FEATURES:
- Returns structured results with title, URL, and snippet
- Falls back to a markdown rendering of the result page when structured
  extraction finds nothing

LIMITATIONS:
- Maximum response size is 5MB
- Results reflect the configured search instance and its engines`

const (
	maxResponseSize   = 5 * 1024 * 1024
	defaultMaxResults = 5
	maxMaxResults     = 20
	fallbackMarkdown  = 4000
)

// WebSearchInput represents the parameters for web_search.
type WebSearchInput struct {
	Query      string `json:"query" required:"true" validate:"required" description:"The search query string to look up on the web"`
	MaxResults int    `json:"max_results,omitempty" description:"Maximum number of results to return (default 5, max 20)"`
}

// SearchResult is one extracted search hit.
type SearchResult struct {
	Title   string `json:"title" description:"Result title"`
	URL     string `json:"url" description:"Result URL"`
	Snippet string `json:"snippet,omitempty" description:"Short content extract"`
}

// WebSearchOutput represents the response from web_search.
type WebSearchOutput struct {
	Query    string         `json:"query" description:"The executed query"`
	Results  []SearchResult `json:"results" description:"Extracted search results"`
	Markdown string         `json:"markdown,omitempty" description:"Markdown rendering of the page when no structured results were found"`
}

// Tool returns the web_search tool definition backed by a SearxNG-compatible
// instance at searchURL.
func Tool(searchURL string) (agent.Tool, error) {
	return agent.NewGenericTool(Name, webSearchPrompt, makeWebSearchHandler(searchURL))
}

func makeWebSearchHandler(searchURL string) func(ctx context.Context, input WebSearchInput) (WebSearchOutput, error) {
	return func(ctx context.Context, input WebSearchInput) (WebSearchOutput, error) {
		query := strings.TrimSpace(input.Query)
		if query == "" {
			return WebSearchOutput{}, fmt.Errorf("query parameter is required")
		}
		if searchURL == "" {
			return WebSearchOutput{}, fmt.Errorf("web search is not configured")
		}

		limit := input.MaxResults
		if limit <= 0 {
			limit = defaultMaxResults
		} else if limit > maxMaxResults {
			limit = maxMaxResults
		}

		endpoint := strings.TrimRight(searchURL, "/") + "/search?q=" + url.QueryEscape(query)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return WebSearchOutput{}, fmt.Errorf("failed to create request: %v", err)
		}
		req.Header.Set("User-Agent", "chatd/1.0")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return WebSearchOutput{}, fmt.Errorf("failed to fetch search results: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return WebSearchOutput{}, fmt.Errorf("search request failed with status code: %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return WebSearchOutput{}, fmt.Errorf("failed to read response: %v", err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			return WebSearchOutput{}, fmt.Errorf("failed to parse results page: %v", err)
		}

		out := WebSearchOutput{Query: query, Results: []SearchResult{}}
		doc.Find("article.result, div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			link := sel.Find("h3 a, a.url_header").First()
			href, _ := link.Attr("href")
			title := strings.TrimSpace(link.Text())
			if title == "" {
				title = strings.TrimSpace(sel.Find("h3").First().Text())
			}
			if href == "" || title == "" {
				return true
			}
			out.Results = append(out.Results, SearchResult{
				Title:   title,
				URL:     href,
				Snippet: strings.TrimSpace(sel.Find("p.content, .content").First().Text()),
			})
			return len(out.Results) < limit
		})

		if len(out.Results) == 0 {
			converter := md.NewConverter("", true, nil)
			markdown, err := converter.ConvertString(string(body))
			if err == nil {
				if len(markdown) > fallbackMarkdown {
					markdown = markdown[:fallbackMarkdown]
				}
				out.Markdown = markdown
			}
		}
		return out, nil
	}
}
