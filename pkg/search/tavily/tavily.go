// Package tavily is a small client for the Tavily search API. Searches always
// use basic depth to conserve credits.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultBaseURL = "https://api.tavily.com"

	// MaxResults is the most results a single search may ask for.
	MaxResults = 5
)

// ErrNotConfigured is returned by Search when the client has no API key.
var ErrNotConfigured = errors.New("tavily api key is not configured")

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// StatusError reports a non-200 response from the API.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tavily error (status %d): %s", e.StatusCode, e.Body)
}

// Client calls the Tavily REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL and a
// nil httpClient selects http.DefaultClient.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// ClampResults limits n to the range 1..MaxResults. Zero or negative selects
// MaxResults.
func ClampResults(n int) int {
	switch {
	case n <= 0:
		return MaxResults
	case n > MaxResults:
		return MaxResults
	default:
		return n
	}
}

// Search runs query and returns at most maxResults hits.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	maxResults = ClampResults(maxResults)

	body, err := json.Marshal(map[string]any{
		"query":        query,
		"search_depth": "basic",
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(b)),
		}
	}

	var decoded struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Results) > maxResults {
		decoded.Results = decoded.Results[:maxResults]
	}
	return decoded.Results, nil
}
