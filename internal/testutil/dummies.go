// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// LogEntry is one recorded log call.
type LogEntry struct {
	Level  string
	Msg    string
	Fields []logging.Field
}

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu      sync.Mutex
	Errors  []string
	Infos   []string
	Debugs  []string
	Warns   []string
	entries []LogEntry
}

func (l *DummyLogger) record(level, msg string, fields []logging.Field, dst *[]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*dst = append(*dst, msg)
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Fields: append([]logging.Field(nil), fields...)})
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.record("debug", msg, fields, &l.Debugs)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.record("info", msg, fields, &l.Infos)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.record("warn", msg, fields, &l.Warns)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.record("error", msg, fields, &l.Errors)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// Entries returns a copy of every recorded call.
func (l *DummyLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// WarnCount returns how many warnings contain substr.
func (l *DummyLogger) WarnCount(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.Warns {
		if strings.Contains(w, substr) {
			n++
		}
	}
	return n
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Responses are looked up by URL in Pages; unknown URLs get a 404.
// Set FailURLs[url] = true to force a transport error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Pages         map[string]string
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, errors.New("dummy fetch fail for " + req.URL)
	}

	body, ok := d.Pages[req.URL]
	status := 200
	if !ok {
		status = 404
		body = "not found"
	}
	return &webclient.Response{
		Request:    req,
		Body:       []byte(body),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns how many requests have been made.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}
