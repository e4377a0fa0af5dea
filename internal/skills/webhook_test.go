// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookSkill_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "not a url", "http://"} {
		_, err := NewWebhookSkill(Descriptor{Name: "remote", URL: u})
		assert.Error(t, err, u)
	}
}

func TestWebhookSkill_Execute(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": {"booked": true}}`))
	}))
	defer srv.Close()

	s, err := NewWebhookSkill(Descriptor{Name: "remote", URL: srv.URL})
	require.NoError(t, err)

	result, err := s.Execute(context.Background(), "reunión", Context{UserID: "u1", Level: 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"booked": true}, result)

	assert.Equal(t, "remote", got["skill"])
	assert.Equal(t, "reunión", got["query"])
	ctx := got["context"].(map[string]any)
	assert.Equal(t, "u1", ctx["user_id"])
	assert.Equal(t, float64(1), ctx["level"])
}

func TestWebhookSkill_Responses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    any
		wantErr string
	}{
		{"bare json", 200, `{"ok": 1}`, map[string]any{"ok": float64(1)}, ""},
		{"plain text", 200, "done\n", "done", ""},
		{"empty", 204, "", nil, ""},
		{"error field", 200, `{"error": "calendar full"}`, nil, "calendar full"},
		{"null error", 200, `{"error": null, "result": "x"}`, "x", ""},
		{"bad status", 502, `{"error": "upstream"}`, nil, "status 502: upstream"},
		{"bad status no body", 500, ``, nil, "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s, err := NewWebhookSkill(Descriptor{Name: "remote", URL: srv.URL})
			require.NoError(t, err)

			got, err := s.Execute(context.Background(), "q", Context{})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
