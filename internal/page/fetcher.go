package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sylvia_browser_agent/internal/appinfo"
)

// maxContentChars bounds the text blob handed to the LLM.
const maxContentChars = 20000

// Context is the extracted title/text of a fetched web page. It is produced
// fresh per fetch and never persisted standalone.
type Context struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Selection string `json:"selection,omitempty"`
}

// AsValues shapes the context for command template rendering.
func (c Context) AsValues() map[string]any {
	values := map[string]any{
		"page": map[string]any{
			"title":   c.Title,
			"url":     c.URL,
			"content": c.Content,
		},
	}
	if strings.TrimSpace(c.Selection) != "" {
		values["selection"] = c.Selection
	}
	return values
}

type Fetcher struct {
	HTTPClient *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchContext GETs url and extracts the <title> text and the visible text
// of <body>, truncated to the content budget. Network and parse errors
// propagate unmodified; there is no retry or partial-content fallback.
func (f *Fetcher) FetchContext(ctx context.Context, rawURL string) (Context, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return Context{}, errors.New("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Context{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", appinfo.Display())

	client := f.httpClient()
	resp, err := client.Do(req)
	if err != nil {
		return Context{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Context{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Context{}, fmt.Errorf("parse %s: %w", url, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template").Remove()
	body := doc.Find("body")
	text := body.Text()
	if body.Length() == 0 {
		text = doc.Text()
	}

	return Context{
		URL:     url,
		Title:   title,
		Content: truncate(normalizeText(text), maxContentChars),
	}, nil
}

func (f *Fetcher) httpClient() *http.Client {
	if f == nil || f.HTTPClient == nil {
		return http.DefaultClient
	}
	return f.HTTPClient
}

// normalizeText collapses intra-line whitespace and drops blank lines so the
// content budget is spent on words rather than layout.
func normalizeText(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
