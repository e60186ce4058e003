// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package invoker dispatches tool calls and listings through the upstream
// connection manager.
package invoker

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/apierr"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/metrics"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/upstream"
)

const defaultCallTimeout = 30 * time.Second

// Outcomes recorded for each call.
const (
	OutcomeOK          = "ok"
	OutcomeToolError   = "tool_error"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
	OutcomeCancelled   = "cancelled"
)

// Manager is the part of upstream.Manager the invoker depends on.
type Manager interface {
	Acquire(ctx context.Context) (*upstream.Lease, error)
}

// Invoker validates calls against the snapshot and forwards them upstream.
type Invoker struct {
	manager     Manager
	callTimeout time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// New returns an Invoker. A zero callTimeout selects the default.
func New(manager Manager, callTimeout time.Duration, logger zerolog.Logger, mt *metrics.Metrics) *Invoker {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Invoker{
		manager:     manager,
		callTimeout: callTimeout,
		logger:      logger.With().Str("component", "invoker").Logger(),
		metrics:     mt,
	}
}

// Call invokes name with args on the live session.
//
// An absent or stale session gets one reconnect attempt; if that fails the
// error is apierr.KindUpstreamConnect. A name missing from the snapshot is
// apierr.KindToolNotFound, even if upstream might accept it. Any upstream
// failure marks the session stale and is apierr.KindInvocation. A result
// with IsError set is a successful call.
func (i *Invoker) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}

	lease, err := i.manager.Acquire(ctx)
	if err != nil {
		i.metrics.ObserveToolCall(OutcomeUnavailable)
		return nil, err
	}
	defer lease.Release()

	if !lease.Snapshot().Has(name) {
		i.metrics.ObserveToolCall(OutcomeNotFound)
		return nil, apierr.ToolNotFound(name)
	}

	callCtx, cancel := context.WithTimeout(ctx, i.callTimeout)
	defer cancel()

	start := time.Now()
	res, err := lease.Session().CallTool(callCtx, name, args)
	if err != nil {
		if ctx.Err() != nil {
			// client went away; the session is not at fault
			i.metrics.ObserveToolCall(OutcomeCancelled)
			return nil, apierr.Invocation(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			i.logger.Warn().Str("tool", name).Dur("timeout", i.callTimeout).Msg("tool call timed out")
		}
		lease.MarkStale(err)
		i.metrics.ObserveToolCall(OutcomeFailed)
		return nil, apierr.Invocation(err)
	}
	if res == nil {
		res = &mcp.CallToolResult{}
	}

	if res.IsError {
		i.metrics.ObserveToolCall(OutcomeToolError)
	} else {
		i.metrics.ObserveToolCall(OutcomeOK)
	}
	i.logger.Debug().
		Str("tool", name).
		Bool("is_error", res.IsError).
		Dur("duration", time.Since(start)).
		Msg("tool call completed")
	return res, nil
}

// ListTools returns the live snapshot, reconnecting once if needed.
func (i *Invoker) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	lease, err := i.manager.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Snapshot().Tools(), nil
}
