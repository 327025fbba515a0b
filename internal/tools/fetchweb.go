// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; KestrelBot/1.0)"

// maxContentChars caps extracted page content so a single scrape cannot
// dominate the execution context.
const maxContentChars = 50000

// FetchWebTool retrieves remote data, either scraping a page into clean
// markdown or fetching a JSON API endpoint.
type FetchWebTool struct {
	client    *http.Client
	converter *md.Converter
	sanitizer *bluemonday.Policy
}

// NewFetchWebTool creates the tool with a 30 second default timeout.
func NewFetchWebTool() *FetchWebTool {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &FetchWebTool{
		client:    &http.Client{Timeout: 30 * time.Second},
		converter: converter,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

func (t *FetchWebTool) Name() models.ToolType { return models.ToolFetchWeb }

// Run fetches the target named by the "query" param. The "method" param
// selects scraping (default) or raw API retrieval.
func (t *FetchWebTool) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, _ := params["query"].(string)
	if query == "" {
		// Some plans name the param "url" instead.
		query, _ = params["url"].(string)
	}
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}

	method, _ := params["method"].(string)
	switch method {
	case "", "scrape":
		return t.scrape(ctx, query)
	case "api":
		return t.fetchAPI(ctx, query)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

// scrape extracts the readable portion of a page and converts it to
// markdown.
func (t *FetchWebTool) scrape(ctx context.Context, rawURL string) (map[string]any, error) {
	body, err := t.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	article, err := readability.FromReader(body, target)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article from %q: %w", rawURL, err)
	}

	content, err := t.converter.ConvertString(t.sanitizer.Sanitize(article.Content))
	if err != nil {
		// Markdown conversion is best effort; fall back to plain text.
		content = bluemonday.StrictPolicy().Sanitize(article.TextContent)
	}
	content = strings.TrimSpace(content)
	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "\n... (content truncated)"
	}

	return map[string]any{
		"url":    rawURL,
		"status": "success",
		"data": map[string]any{
			"title":   article.Title,
			"excerpt": article.Excerpt,
			"content": content,
		},
		"timestamp": time.Now().Unix(),
	}, nil
}

// fetchAPI retrieves an endpoint and decodes it as JSON, falling back to
// raw text when the body is not JSON.
func (t *FetchWebTool) fetchAPI(ctx context.Context, endpoint string) (map[string]any, error) {
	body, err := t.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %q: %w", endpoint, err)
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		data = string(raw)
	}

	return map[string]any{
		"endpoint":  endpoint,
		"status":    "success",
		"data":      data,
		"timestamp": time.Now().Unix(),
	}, nil
}

func (t *FetchWebTool) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %q: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch of %q returned status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}
