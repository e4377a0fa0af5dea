// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	maxWebhookResponse    = 1 << 20
)

// WebhookSkill forwards the query to a remote HTTP endpoint.
//
// The endpoint receives {"skill", "query", "context"} and answers with
// {"result": ...} on success or {"error": "..."} on failure. Any other JSON
// body is taken as the result itself.
type WebhookSkill struct {
	desc   Descriptor
	client *http.Client
}

// NewWebhookSkill validates desc.URL and builds the skill.
func NewWebhookSkill(desc Descriptor) (*WebhookSkill, error) {
	u, err := url.Parse(desc.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid webhook url %q", desc.URL)
	}

	timeout := defaultWebhookTimeout
	if desc.TimeoutSeconds > 0 {
		timeout = time.Duration(desc.TimeoutSeconds) * time.Second
	}
	return &WebhookSkill{
		desc:   desc,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Descriptor implements Skill.
func (s *WebhookSkill) Descriptor() Descriptor { return s.desc }

// Execute implements Skill.
func (s *WebhookSkill) Execute(ctx context.Context, query string, sc Context) (any, error) {
	payload, err := json.Marshal(map[string]any{
		"skill":   s.desc.Name,
		"query":   query,
		"context": sc.Map(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.desc.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "nyx-skills/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skill %s request failed: %w", s.desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read skill response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			return nil, fmt.Errorf("skill %s returned status %d: %s", s.desc.Name, resp.StatusCode, msg.String())
		}
		return nil, fmt.Errorf("skill %s returned status %d", s.desc.Name, resp.StatusCode)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body)), nil
	}

	parsed := gjson.ParseBytes(body)
	if msg := parsed.Get("error"); msg.Exists() && msg.Type != gjson.Null {
		return nil, fmt.Errorf("%s", msg.String())
	}
	if result := parsed.Get("result"); result.Exists() {
		return result.Value(), nil
	}
	return parsed.Value(), nil
}
