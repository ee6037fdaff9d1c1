package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kilohq/kilo/internal/kiloerr"
)

const (
	braveEndpoint = "https://api.search.brave.com/res/v1/web/search"
	searchTimeout = 8 * time.Second
	searchCount   = 10
)

// SearchResult is one web search hit, scored for API-documentation
// likelihood.
type SearchResult struct {
	Title    string
	URL      string
	Snippet  string
	DocScore int
}

// apiDocPatterns score a result as API documentation by substring match
// against URL and title.
var apiDocPatterns = []string{
	"api reference", "api documentation", "developer docs", "rest api",
	"api docs", "developers.", "developer.", "docs.", "/api", "/docs",
	"/reference", "getting started", "authentication",
}

// Searcher queries the Brave Search API.
type Searcher struct {
	apiKey string
	client *http.Client
}

func NewSearcher(apiKey string) *Searcher {
	return &Searcher{
		apiKey: apiKey,
		client: &http.Client{Timeout: searchTimeout},
	}
}

// Search runs a web search and returns results sorted API-docs-first.
func (s *Searcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if s.apiKey == "" {
		return nil, stageErr("search", nil, "search API key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	u, _ := url.Parse(braveEndpoint)
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", searchCount))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, stageErr("search", err, "build search request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, stageErr("search", err, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, stageErr("search", nil, fmt.Sprintf("search API returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stageErr("search", err, "read search response")
	}

	var braveResp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &braveResp); err != nil {
		return nil, stageErr("search", err, "parse search response")
	}

	results := make([]SearchResult, 0, len(braveResp.Web.Results))
	for _, r := range braveResp.Web.Results {
		results = append(results, SearchResult{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Description,
			DocScore: scoreAPIDoc(r.URL, r.Title),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DocScore > results[j].DocScore
	})
	return results, nil
}

func scoreAPIDoc(rawURL, title string) int {
	haystack := strings.ToLower(rawURL + " " + title)
	score := 0
	for _, pattern := range apiDocPatterns {
		if strings.Contains(haystack, pattern) {
			score++
		}
	}
	return score
}

func stageErr(stage string, cause error, msg string) *kiloerr.Error {
	var err *kiloerr.Error
	if cause != nil {
		err = kiloerr.Wrap(cause, kiloerr.CodeWebResearch, msg)
	} else {
		err = kiloerr.New(kiloerr.CodeWebResearch, msg)
	}
	return err.WithDetail("stage", stage)
}
