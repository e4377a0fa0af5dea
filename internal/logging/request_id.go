// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	requestIDField = "request_id"

	// RequestIDHeader is echoed on every HTTP response.
	RequestIDHeader = "X-Request-ID"
)

type requestIDKey struct{}

// NewRequestID returns a short random request id.
func NewRequestID() string {
	return uuid.NewString()[:8]
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns a log entry tagged with the request id in ctx, if any.
func FromContext(ctx context.Context) *log.Entry {
	if id := RequestID(ctx); id != "" {
		return log.WithField(requestIDField, id)
	}
	return log.NewEntry(log.StandardLogger())
}

// RequestIDMiddleware reuses an incoming X-Request-ID or generates one, and
// makes it available through the request context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = NewRequestID()
		}
		c.Set(requestIDField, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLogMiddleware logs one line per request through logrus.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := FromContext(c.Request.Context()).WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
			"client":  c.ClientIP(),
		})
		msg := c.Request.Method + " " + c.Request.URL.Path
		switch {
		case c.Writer.Status() >= 500:
			entry.Error(msg)
		case c.Writer.Status() >= 400:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	}
}
