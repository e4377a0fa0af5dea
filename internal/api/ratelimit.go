// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiter enforces a per-client request budget over a sliding window
// using one token bucket per client IP. Buckets idle for a whole window are
// full again, so they are swept instead of kept forever.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	every     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(limit int, window time.Duration) *clientLimiter {
	if limit < 1 {
		limit = 1
	}
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.sweepLocked(now)
	}

	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *clientLimiter) sweepLocked(now time.Time) {
	for client, b := range l.clients {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.clients, client)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// middleware rejects requests over the limit with 429.
func (l *clientLimiter) middleware() gin.HandlerFunc {
	secs := int(l.window / time.Duration(l.burst) / time.Second)
	if secs < 1 {
		secs = 1
	}
	retryAfter := strconv.Itoa(secs)
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, try again later",
			})
			return
		}
		c.Next()
	}
}
