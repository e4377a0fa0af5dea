// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package search implements the tier-3 client: a Perplexity online model
// queried through its chat-completions endpoint.
package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultBaseURL    = "https://api.perplexity.ai"
	DefaultModel      = "llama-3-sonar-small-32k-online"
	DefaultTimeout    = 30 * time.Second
	DefaultRatePer1K  = 0.002
	DefaultMaxTokens  = 1000
	DefaultMinimumEst = 0.01

	systemPrompt = "Eres un asistente de investigación. Proporciona respuestas precisas basadas en fuentes verificables y actualizadas."
)

var (
	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("search: PERPLEXITY_API_KEY not configured")
	// ErrRateLimited matches a StatusError for HTTP 429.
	ErrRateLimited = errors.New("search: rate limit exceeded")

	sourcePattern = regexp.MustCompile(`\[(\d+)\]\s*([^\n]+)`)
)

// Config configures the Perplexity client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Rates are USD per 1000 tokens.
	InputRatePer1K  float64
	OutputRatePer1K float64
	// MinEstimate is the floor for EstimateRequestCost.
	MinEstimate float64
	HTTPClient  *http.Client
}

// Source is a numbered reference found in the answer text.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Usage is the token accounting reported by the API.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is a parsed search answer.
type Response struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Citations []string `json:"citations"`
	Usage     Usage    `json:"usage"`
}

// StatusError is a non-200 reply from the API.
type StatusError struct {
	Code int
	Body string
	// RetryAfter is the raw Retry-After header, if any.
	RetryAfter string
}

func (e *StatusError) Error() string {
	if e.Code == http.StatusTooManyRequests {
		if e.RetryAfter != "" {
			return fmt.Sprintf("rate limit exceeded (retry after %s)", e.RetryAfter)
		}
		return "rate limit exceeded"
	}
	return fmt.Sprintf("API error %d: %s", e.Code, e.Body)
}

// Is lets errors.Is(err, ErrRateLimited) match 429 replies.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == http.StatusTooManyRequests
}

// RetryAfterDuration parses RetryAfter as seconds; zero when absent or not numeric.
func (e *StatusError) RetryAfterDuration() time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(e.RetryAfter))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Client talks to the Perplexity API.
type Client struct {
	cfg       Config
	http      *http.Client
	estimator *tokenEstimator
}

// New creates a search client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.InputRatePer1K <= 0 {
		cfg.InputRatePer1K = DefaultRatePer1K
	}
	if cfg.OutputRatePer1K <= 0 {
		cfg.OutputRatePer1K = DefaultRatePer1K
	}
	if cfg.MinEstimate <= 0 {
		cfg.MinEstimate = DefaultMinimumEst
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	log.Infof("search client initialised (model %s)", cfg.Model)
	return &Client{cfg: cfg, http: httpClient, estimator: newTokenEstimator()}, nil
}

// Search runs query against the online model.
func (c *Client) Search(ctx context.Context, query, userID string) (*Response, error) {
	payload, err := c.buildPayload(query)
	if err != nil {
		return nil, fmt.Errorf("failed to build search payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	log.WithField("user", userID).Debugf("search: querying %s", c.cfg.Model)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests {
			statusErr.RetryAfter = resp.Header.Get("Retry-After")
		}
		log.Debugf("search error, status: %d, body: %s", resp.StatusCode, statusErr.Body)
		return nil, statusErr
	}

	return ParseResponse(body)
}

func (c *Client) buildPayload(query string) ([]byte, error) {
	payload := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err == nil {
			payload, err = sjson.SetBytes(payload, path, value)
		}
	}
	set("model", c.cfg.Model)
	set("messages.0.role", "system")
	set("messages.0.content", systemPrompt)
	set("messages.1.role", "user")
	set("messages.1.content", query)
	set("max_tokens", DefaultMaxTokens)
	set("temperature", 0.2)
	set("top_p", 0.9)
	set("return_citations", true)
	set("search_recency_filter", "month")
	return payload, err
}

// ParseResponse extracts the answer, citations, usage and numbered sources
// from a chat-completions body.
func ParseResponse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed search response: invalid JSON")
	}
	root := gjson.ParseBytes(body)

	message := root.Get("choices.0.message")
	if !message.Exists() {
		return nil, fmt.Errorf("malformed search response: missing choices")
	}

	out := &Response{
		Answer: message.Get("content").String(),
		Usage: Usage{
			PromptTokens:     root.Get("usage.prompt_tokens").Int(),
			CompletionTokens: root.Get("usage.completion_tokens").Int(),
			TotalTokens:      root.Get("usage.total_tokens").Int(),
		},
		Citations: []string{},
	}
	for _, c := range root.Get("citations").Array() {
		out.Citations = append(out.Citations, c.String())
	}
	out.Sources = extractSources(out.Answer, out.Citations)
	return out, nil
}

// extractSources finds "[n] title" lines. When citation n exists its URL is
// attached.
func extractSources(content string, citations []string) []Source {
	sources := []Source{}
	for _, m := range sourcePattern.FindAllStringSubmatch(content, -1) {
		src := Source{ID: m[1], Title: strings.TrimSpace(m[2])}
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(citations) {
			src.URL = citations[n-1]
		}
		sources = append(sources, src)
	}
	return sources
}

// EstimateCost prices a completed search from its reported usage, rounded
// to six decimals. A nil response costs nothing.
func (c *Client) EstimateCost(resp *Response) float64 {
	if resp == nil {
		return 0
	}
	return priceTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, c.cfg.InputRatePer1K, c.cfg.OutputRatePer1K)
}

// EstimateRequestCost is the worst-case price of searching query: the
// prompt tokens plus a full max_tokens completion, never below MinEstimate.
func (c *Client) EstimateRequestCost(query string) float64 {
	prompt := c.estimator.count(systemPrompt) + c.estimator.count(query)
	cost := priceTokens(int64(prompt), DefaultMaxTokens, c.cfg.InputRatePer1K, c.cfg.OutputRatePer1K)
	if cost < c.cfg.MinEstimate {
		return c.cfg.MinEstimate
	}
	return cost
}
