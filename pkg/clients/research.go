// Package clients wraps the external vendor APIs used by the agents: web
// research, bulk and per-person email discovery, WHOIS, and mail-merge
// delivery. Every wrapper takes a context and returns typed results plus an
// explicit error; credit accounting stays with the caller.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

// SearchResult is a single web search hit.
type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// SearchProvider is a pluggable web search backend.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Research bundles web search and page fetching.
type Research struct {
	provider   SearchProvider
	httpClient *http.Client
}

// NewResearch selects Google Custom Search when GOOGLE_SEARCH_API_KEY and
// GOOGLE_SEARCH_CX are set, otherwise falls back to DuckDuckGo instant
// answers.
func NewResearch() *Research {
	var provider SearchProvider
	if key, cx := os.Getenv("GOOGLE_SEARCH_API_KEY"), os.Getenv("GOOGLE_SEARCH_CX"); key != "" && cx != "" {
		provider = NewGoogleSearchProvider(key, cx)
	} else {
		provider = NewDuckDuckGoProvider()
	}
	return NewResearchWithProvider(provider)
}

// NewResearchWithProvider creates a research client over a specific provider.
func NewResearchWithProvider(provider SearchProvider) *Research {
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
	return &Research{provider: provider, httpClient: client}
}

// Search runs one web search.
func (r *Research) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	return r.provider.Search(ctx, query, maxResults)
}

// FetchPage downloads a page and returns its readable text, truncated to
// maxChars. Only text content types are accepted.
func (r *Research) FetchPage(ctx context.Context, pageURL string, maxChars int) (string, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return "", fmt.Errorf("url must start with http:// or https://")
	}
	if maxChars <= 0 {
		maxChars = 20000
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OutreachBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d %s", resp.StatusCode, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !isTextContent(ct) {
		return "", fmt.Errorf("unsupported content type %s", ct)
	}

	const maxBodyBytes = 2 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	text := extractText(string(body))
	if len(text) > maxChars {
		text = text[:maxChars] + "\n...(truncated)"
	}
	return text, nil
}

func isTextContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "text/plain") ||
		strings.Contains(ct, "application/xhtml") ||
		strings.Contains(ct, "application/xml") ||
		strings.Contains(ct, "text/xml")
}

var (
	scriptRe  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockRe   = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|br|hr)[^>]*>`)
	brRe      = regexp.MustCompile(`(?i)<br[^>]*>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	spaceRe   = regexp.MustCompile(`[ \t]+`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// extractText strips HTML down to readable text.
func extractText(html string) string {
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")
	html = commentRe.ReplaceAllString(html, "")
	html = blockRe.ReplaceAllString(html, "\n")
	html = brRe.ReplaceAllString(html, "\n")
	text := tagRe.ReplaceAllString(html, "")

	for entity, repl := range map[string]string{
		"&nbsp;": " ", "&amp;": "&", "&lt;": "<", "&gt;": ">",
		"&quot;": `"`, "&#39;": "'", "&apos;": "'",
	} {
		text = strings.ReplaceAll(text, entity, repl)
	}

	text = spaceRe.ReplaceAllString(text, " ")
	text = newlineRe.ReplaceAllString(text, "\n\n")

	var clean []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return strings.Join(clean, "\n")
}

// GoogleSearchProvider uses the Google Custom Search JSON API.
type GoogleSearchProvider struct {
	httpClient *http.Client
	apiKey     string
	cx         string
}

// NewGoogleSearchProvider creates a Google Custom Search provider.
func NewGoogleSearchProvider(apiKey, cx string) *GoogleSearchProvider {
	return &GoogleSearchProvider{
		apiKey:     apiKey,
		cx:         cx,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GoogleSearchProvider) Name() string { return "google" }

type googleSearchResponse struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search queries the Custom Search API.
func (p *GoogleSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf(
		"https://www.googleapis.com/customsearch/v1?key=%s&cx=%s&q=%s&num=%d",
		url.QueryEscape(p.apiKey), url.QueryEscape(p.cx), url.QueryEscape(query), maxResults)

	var parsed googleSearchResponse
	if err := getJSON(ctx, p.httpClient, searchURL, nil, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("google search error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, SearchResult{Title: item.Title, Description: item.Snippet, URL: item.Link})
	}
	return results, nil
}

// DuckDuckGoProvider uses the DuckDuckGo Instant Answer API. Keyless but
// limited to encyclopedic answers; fine as a fallback.
type DuckDuckGoProvider struct {
	httpClient *http.Client
}

// NewDuckDuckGoProvider creates the fallback provider.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (p *DuckDuckGoProvider) Name() string { return "duckduckgo" }

type ddgTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

type ddgResponse struct {
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Heading       string     `json:"Heading"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
	Results       []ddgTopic `json:"Results"`
}

// Search queries the instant answer endpoint.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf(
		"https://api.duckduckgo.com/?q=%s&format=json&no_html=1&skip_disambig=1",
		url.QueryEscape(query))

	var parsed ddgResponse
	headers := map[string]string{"User-Agent": "OutreachBot/1.0"}
	if err := getJSON(ctx, p.httpClient, searchURL, headers, &parsed); err != nil {
		return nil, err
	}

	var results []SearchResult
	if parsed.AbstractText != "" {
		results = append(results, SearchResult{
			Title: parsed.Heading, Description: parsed.AbstractText, URL: parsed.AbstractURL,
		})
	}
	for _, t := range append(parsed.Results, parsed.RelatedTopics...) {
		if len(results) >= maxResults {
			break
		}
		if t.Text != "" && t.FirstURL != "" {
			results = append(results, SearchResult{Title: t.Text, Description: t.Text, URL: t.FirstURL})
		}
	}
	return results, nil
}

// getJSON issues a GET and decodes the JSON body, the shared request shape of
// every vendor wrapper in this package.
func getJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, preview(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, preview(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
