package learning

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilohq/kilo/internal/net/ssrf"
)

const (
	fetchTimeout   = 10 * time.Second
	maxFetchURLs   = 5
	maxConcurrent  = 3
	maxBodyBytes   = 1 << 20 // 1 MB
	maxPageChars   = 50000
	fetchUserAgent = "Mozilla/5.0 (compatible; KiloBot/1.0)"
)

// Page is the extracted text of one fetched documentation page.
type Page struct {
	URL        string
	Title      string
	Text       string
	CodeBlocks []string
}

var (
	titleTag  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	codeBlock = regexp.MustCompile(`(?is)<(?:pre|code)[^>]*>(.*?)</(?:pre|code)>`)
	anyTag    = regexp.MustCompile(`<[^>]+>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
	spaceRuns = regexp.MustCompile(`[ \t]{2,}`)
)

// Fetcher pulls documentation pages with SSRF protection and size bounds.
type Fetcher struct {
	client *http.Client

	// skipSSRFCheck disables host validation. For testing only.
	skipSSRFCheck bool
}

func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// FetchPages retrieves up to maxFetchURLs results concurrently (bounded at
// maxConcurrent in flight). Individual page failures are skipped; the call
// errors only when nothing could be fetched.
func (f *Fetcher) FetchPages(ctx context.Context, results []SearchResult) ([]Page, error) {
	if len(results) > maxFetchURLs {
		results = results[:maxFetchURLs]
	}

	var mu sync.Mutex
	pages := make([]Page, 0, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, result := range results {
		result := result
		g.Go(func() error {
			page, err := f.fetchOne(gctx, result.URL)
			if err != nil {
				// Dead links and blocked hosts are expected in search
				// results; keep going with the rest.
				return nil
			}
			mu.Lock()
			pages = append(pages, *page)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stageErr("fetch", err, "fetch documentation pages")
	}
	if len(pages) == 0 {
		return nil, stageErr("fetch", nil, "no documentation pages could be fetched")
	}
	return pages, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !f.skipSSRFCheck {
		if err := ssrf.CheckHost(u.Hostname()); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	text, blocks := extractText(string(body))
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty page")
	}
	return &Page{
		URL:        rawURL,
		Title:      extractTitle(string(body)),
		Text:       text,
		CodeBlocks: blocks,
	}, nil
}

// extractTitle pulls the document title, if any.
func extractTitle(html string) string {
	m := titleTag.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(decodeEntities(anyTag.ReplaceAllString(m[1], "")))
}

// extractText strips markup down to readable prose, keeping pre/code
// contents separately since they usually hold the request examples.
func extractText(html string) (string, []string) {
	var blocks []string
	for _, m := range codeBlock.FindAllStringSubmatch(html, 40) {
		block := strings.TrimSpace(anyTag.ReplaceAllString(decodeEntities(m[1]), ""))
		if block != "" {
			blocks = append(blocks, block)
		}
	}

	stripped := dropContainer(html, "script")
	for _, tag := range []string{"style", "nav", "footer", "header", "noscript", "svg"} {
		stripped = dropContainer(stripped, tag)
	}
	stripped = anyTag.ReplaceAllString(stripped, "\n")
	stripped = decodeEntities(stripped)
	stripped = spaceRuns.ReplaceAllString(stripped, " ")
	stripped = blankRuns.ReplaceAllString(stripped, "\n\n")
	stripped = strings.TrimSpace(stripped)
	if len(stripped) > maxPageChars {
		stripped = stripped[:maxPageChars]
	}
	return stripped, blocks
}

func dropContainer(html, tag string) string {
	re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(html, " ")
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&", "&lt;", "<", "&gt;", ">",
	"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
)

func decodeEntities(s string) string {
	return entityReplacer.Replace(s)
}
