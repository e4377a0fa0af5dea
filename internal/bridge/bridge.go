// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bridge serves the router over newline-delimited JSON, one request
// per input line and one response per output line. Stdout carries only
// responses; logs go wherever logrus is pointed.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/traylinx/nyx/internal/budget"
	"github.com/traylinx/nyx/internal/logging"
	"github.com/traylinx/nyx/internal/router"
	"github.com/traylinx/nyx/internal/skills"
)

// Request types.
const (
	TypeQuery        = "query"
	TypeListSkills   = "list_skills"
	TypeBudgetStatus = "budget_status"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 1 << 20

// Request is one input line.
type Request struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	RequestID json.RawMessage `json:"requestId,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Response is one output line. RequestID is echoed verbatim, so callers may
// use numbers or strings.
type Response struct {
	Success   bool            `json:"success"`
	Data      any             `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	RequestID json.RawMessage `json:"requestId,omitempty"`
}

// Querier routes a query.
type Querier interface {
	Route(ctx context.Context, query, userID string) *router.Result
}

// SkillLister reports the registered skills.
type SkillLister interface {
	List() []skills.Descriptor
}

// BudgetReporter reports search spend.
type BudgetReporter interface {
	Status() budget.Status
}

// Bridge answers NDJSON requests.
type Bridge struct {
	router Querier
	skills SkillLister
	budget BudgetReporter
	now    func() time.Time
}

// New creates a bridge. All collaborators are required.
func New(r Querier, s SkillLister, b BudgetReporter) (*Bridge, error) {
	if r == nil || s == nil || b == nil {
		return nil, errors.New("bridge: router, skills and budget are required")
	}
	return &Bridge{router: r, skills: s, budget: b, now: time.Now}, nil
}

// Serve reads requests from in until EOF or ctx is done and writes one
// response line per non-blank input line to out. Requests are handled in
// order. A line longer than maxLineBytes is answered with an error and
// skipped. When ctx ends and in is an io.Closer, in is closed so the reader
// does not stay blocked.
func (b *Bridge) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan inputLine)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		r := bufio.NewReaderSize(in, 64*1024)
		for {
			line, err := readLine(r, maxLineBytes)
			if len(line.data) > 0 || line.tooLong {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
		}
	}()

	w := &lineWriter{w: bufio.NewWriter(out)}
	log.Info("bridge ready for requests")

	for {
		select {
		case <-ctx.Done():
			if c, ok := in.(io.Closer); ok {
				_ = c.Close()
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("bridge: read: %w", err)
				default:
				}
				return nil
			}
			var resp *Response
			switch {
			case line.tooLong:
				log.Warnf("bridge: request line over %d bytes skipped", maxLineBytes)
				resp = &Response{Success: false, Error: "request too large", Timestamp: b.timestamp()}
			case len(strings.TrimSpace(string(line.data))) == 0:
				continue
			default:
				resp = b.Handle(ctx, line.data)
			}
			if err := w.write(resp); err != nil {
				return fmt.Errorf("bridge: write: %w", err)
			}
		}
	}
}

type inputLine struct {
	data    []byte
	tooLong bool
}

// readLine returns the next line without its terminator. A line over max
// bytes is consumed to its end and reported as tooLong with no data.
func readLine(r *bufio.Reader, max int) (inputLine, error) {
	var line inputLine
	for {
		chunk, err := r.ReadSlice('\n')
		if !line.tooLong {
			if len(line.data)+len(chunk) > max+1 {
				line = inputLine{tooLong: true}
			} else {
				line.data = append(line.data, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line.data = bytes.TrimSuffix(bytes.TrimSuffix(line.data, []byte("\n")), []byte("\r"))
		return line, err
	}
}

// Handle answers a single request line.
func (b *Bridge) Handle(ctx context.Context, line []byte) *Response {
	if !gjson.ValidBytes(line) {
		log.Warnf("bridge: malformed request line (%d bytes)", len(line))
		return &Response{Success: false, Error: "malformed JSON"}
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return &Response{Success: false, Error: "malformed JSON"}
	}

	ctx = logging.WithRequestID(ctx, requestIDString(req.RequestID))
	logging.FromContext(ctx).Debugf("bridge request: %s", req.Type)

	var resp *Response
	switch req.Type {
	case TypeQuery:
		resp = b.query(ctx, req)
	case TypeListSkills:
		list := b.skills.List()
		resp = &Response{Success: true, Data: map[string]any{"skills": list, "count": len(list)}}
	case TypeBudgetStatus:
		resp = &Response{Success: true, Data: b.budget.Status()}
	default:
		resp = &Response{Success: false, Error: fmt.Sprintf("unknown request type: %q", req.Type)}
	}
	resp.RequestID = req.RequestID
	return resp
}

func (b *Bridge) query(ctx context.Context, req Request) *Response {
	if strings.TrimSpace(req.Message) == "" {
		return &Response{Success: false, Error: "message required"}
	}
	user := req.UserID
	if user == "" {
		user = router.DefaultUserID
	}
	ts := req.Timestamp
	if ts == "" {
		ts = b.timestamp()
	}
	return &Response{Success: true, Data: b.router.Route(ctx, req.Message, user), Timestamp: ts}
}

func (b *Bridge) timestamp() string {
	return b.now().UTC().Format(time.RFC3339)
}

func requestIDString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return gjson.ParseBytes(raw).String()
}

// lineWriter serialises responses, one per line, flushing after each.
type lineWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (lw *lineWriter) write(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(&Response{Success: false, Error: "failed to encode response", RequestID: resp.RequestID})
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return lw.w.Flush()
}
