// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RegisterBuiltInActions registers the default action handlers.
func RegisterBuiltInActions(m *HookManager) {
	m.RegisterAction(ActionLogWarning, handleLogWarning)
	m.RegisterAction(ActionLogInfo, handleLogInfo)
	wh := NewWebhookHandler()
	m.RegisterAction(ActionNotifyWebhook, wh.Handle)
}

func hookMessage(hook *Hook) string {
	msg, _ := hook.Params["message"].(string)
	if msg == "" {
		msg = "hook triggered"
	}
	return msg
}

func handleLogWarning(hook *Hook, ctx *EventContext) error {
	log.WithFields(log.Fields{"hook": hook.ID, "event": ctx.Event}).Warnf("[hook: %s] %s", hook.Name, hookMessage(hook))
	return nil
}

func handleLogInfo(hook *Hook, ctx *EventContext) error {
	log.WithFields(log.Fields{"hook": hook.ID, "event": ctx.Event}).Infof("[hook: %s] %s", hook.Name, hookMessage(hook))
	return nil
}

const (
	webhookUserAgent   = "nyx-hooks/1.0"
	webhookTimeout     = 5 * time.Second
	webhookPerMinute   = 10
	webhookSignatureHd = "X-Hook-Signature"
)

// WebhookHandler posts event payloads to hook URLs, signing them with the
// hook's secret and limiting each URL to ten calls per minute.
type WebhookHandler struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	client  *http.Client
	backoff []time.Duration
}

// NewWebhookHandler creates a handler with a 5s per-attempt timeout and
// 1s/2s/4s retry backoff.
func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		limiters: make(map[string]*rate.Limiter),
		client:   &http.Client{Timeout: webhookTimeout},
		backoff:  []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Handle sends the webhook for hook.
func (h *WebhookHandler) Handle(hook *Hook, ctx *EventContext) error {
	url, _ := hook.Params["url"].(string)
	if url == "" {
		return fmt.Errorf("missing webhook url")
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://localhost") {
		return fmt.Errorf("insecure webhook url (must be https or localhost): %s", url)
	}
	if !h.limiter(url).Allow() {
		return fmt.Errorf("rate limit exceeded for webhook: %s", url)
	}

	payload := map[string]any{
		"event":     ctx.Event,
		"timestamp": ctx.Timestamp,
		"hook_id":   hook.ID,
		"data":      ctx.Data,
	}
	if ctx.UserID != "" {
		payload["user_id"] = ctx.UserID
	}
	if ctx.Skill != "" {
		payload["skill"] = ctx.Skill
	}
	if ctx.ErrorMessage != "" {
		payload["error"] = ctx.ErrorMessage
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	secret, _ := hook.Params["secret"].(string)

	var lastErr error
	for attempt := 0; attempt <= len(h.backoff); attempt++ {
		if attempt > 0 {
			time.Sleep(h.backoff[attempt-1])
		}
		if lastErr = h.post(url, body, secret); lastErr == nil {
			return nil
		}
		log.Warnf("webhook attempt %d failed: %v", attempt+1, lastErr)
	}

	return fmt.Errorf("webhook failed after retries: %w", lastErr)
}

func (h *WebhookHandler) post(url string, body []byte, secret string) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if secret != "" {
		req.Header.Set(webhookSignatureHd, "sha256="+Sign(secret, body))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (h *WebhookHandler) limiter(url string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[url]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/webhookPerMinute), webhookPerMinute)
		h.limiters[url] = l
	}
	return l
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
