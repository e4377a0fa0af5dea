// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reasoning implements the tier-2 client: a Gemini call that decides
// whether a query needs a skill and, if not, answers it directly.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-1.5-pro"

// TypeTextResponse tags an analysis built from a non-JSON model reply.
const TypeTextResponse = "text_response"

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("reasoning: GEMINI_API_KEY not configured")

// Config configures the Gemini client.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Analysis is the model's decision about a query.
type Analysis struct {
	SkillRequired  bool           `json:"skill_required"`
	SkillName      string         `json:"skill_name,omitempty"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Response       string         `json:"response,omitempty"`
	Type           string         `json:"type,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
}

// Map renders the analysis for skill contexts.
func (a *Analysis) Map() map[string]any {
	if a == nil {
		return nil
	}
	m := map[string]any{
		"skill_required": a.SkillRequired,
		"response":       a.Response,
		"type":           a.Type,
		"confidence":     a.Confidence,
	}
	if a.SkillName != "" {
		m["skill_name"] = a.SkillName
	}
	if a.StructuredData != nil {
		m["structured_data"] = a.StructuredData
	}
	return m
}

// Client calls Gemini through google.golang.org/genai.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Infof("reasoning client initialised (model %s)", model)
	return &Client{client: client, model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Analyze asks the model how to handle query. Transport and API errors are
// returned; a reply that is not a JSON object becomes a plain text analysis.
func (c *Client) Analyze(ctx context.Context, query, userID string) (*Analysis, error) {
	log.WithField("user", userID).Debugf("reasoning: analysing query (%d chars)", len(query))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(BuildAnalysisPrompt(query)),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	return ParseAnalysis(resp.Text()), nil
}

// ParseAnalysis converts a model reply into an Analysis. Replies that are not
// a JSON object, after stripping a Markdown code fence, are returned as a
// text_response.
func ParseAnalysis(text string) *Analysis {
	body := stripCodeFence(text)
	parsed := gjson.Parse(body)
	if !gjson.Valid(body) || !parsed.IsObject() {
		return &Analysis{
			Response:      text,
			SkillRequired: false,
			Type:          TypeTextResponse,
		}
	}

	a := &Analysis{
		SkillRequired: parsed.Get("skill_required").Bool(),
		Response:      parsed.Get("response").String(),
		Type:          parsed.Get("type").String(),
		Confidence:    parsed.Get("confidence").Float(),
	}
	if name := parsed.Get("skill_name"); name.Type == gjson.String {
		a.SkillName = strings.TrimSpace(name.Str)
	}
	if data := parsed.Get("structured_data"); data.IsObject() {
		a.StructuredData, _ = data.Value().(map[string]any)
	}
	return a
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
