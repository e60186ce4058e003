// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package upstream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeSession struct {
	id     int
	tools  []*mcp.Tool
	closed atomic.Int32
	lists  atomic.Int32

	mu      sync.Mutex
	listErr error
}

func (s *fakeSession) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *fakeSession) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	s.lists.Add(1)
	s.mu.Lock()
	err := s.listErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.tools, ctx.Err()
}

func (s *fakeSession) CallTool(ctx context.Context, name string, _ map[string]any) (*mcp.CallToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: name}}}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

// fakeOpener hands out fakeSessions. fail makes every open after the first
// `allow` fail; block makes Open wait for ctx.
type fakeOpener struct {
	tools []*mcp.Tool
	opens atomic.Int32
	delay time.Duration

	mu       sync.Mutex
	sessions []*fakeSession
	fail     bool
	allow    int
	block    bool
}

var errRefused = errors.New("connection refused")

func (o *fakeOpener) Open(ctx context.Context) (Session, error) {
	n := int(o.opens.Add(1))

	o.mu.Lock()
	fail, allow, block := o.fail, o.allow, o.block
	o.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail && n > allow {
		return nil, errRefused
	}

	s := &fakeSession{id: n, tools: o.tools}
	o.mu.Lock()
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
	return s, nil
}

func (o *fakeOpener) session(i int) *fakeSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[i]
}

func (o *fakeOpener) failAfter(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail, o.allow = true, n
}

func testTools(names ...string) []*mcp.Tool {
	out := make([]*mcp.Tool, 0, len(names))
	for _, n := range names {
		out = append(out, &mcp.Tool{Name: n, InputSchema: map[string]any{"type": "object"}})
	}
	return out
}

func waitUntil(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
