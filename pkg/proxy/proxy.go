// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/apierr"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/auth"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/content"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/metrics"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/upstream"
)

// Routes served by the gateway.
const (
	RouteInvoke  = "/tools"
	RouteList    = "/tools/list"
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"
)

const defaultMaxBodyBytes = 1 << 20

// Invoker dispatches tool calls and listings upstream.
type Invoker interface {
	Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
}

// Authenticator verifies the credential carried by a request.
type Authenticator interface {
	Validate(r *http.Request) (*auth.Claims, error)
}

// StatusReporter reports upstream state without blocking.
type StatusReporter interface {
	Status() upstream.Status
}

// Options wires a Server to its collaborators.
type Options struct {
	Invoker       Invoker
	Authenticator Authenticator
	Status        StatusReporter
	// Metrics is optional; /metrics answers 404 without it.
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// MaxBodyBytes caps POST bodies; zero selects 1 MiB.
	MaxBodyBytes int64
}

// Server is the gateway's http.Handler.
type Server struct {
	// invoker forwards validated calls to the upstream session.
	invoker Invoker
	// auth verifies bearer credentials on protected routes.
	auth Authenticator
	// status backs /health.
	status StatusReporter
	// metrics records per-route counters and durations.
	metrics *metrics.Metrics
	// logger emits one record per request.
	logger zerolog.Logger
	// maxBodyBytes bounds the invocation body.
	maxBodyBytes int64
	mux          *http.ServeMux
}

// New builds the handler and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Invoker == nil || opts.Authenticator == nil || opts.Status == nil {
		return nil, errors.New("proxy: invoker, authenticator and status are required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		invoker:      opts.Invoker,
		auth:         opts.Authenticator,
		status:       opts.Status,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With().Str("component", "proxy").Logger(),
		maxBodyBytes: opts.MaxBodyBytes,
		mux:          http.NewServeMux(),
	}

	s.mux.Handle("POST "+RouteInvoke, s.handle(RouteInvoke, true, s.invoke))
	s.mux.Handle("GET "+RouteList, s.handle(RouteList, true, s.listTools))
	s.mux.Handle("GET "+RouteHealth, s.handle(RouteHealth, false, s.health))
	s.mux.Handle("GET "+RouteMetrics, s.metrics.Handler())
	s.mux.Handle("/", s.handle("unmatched", false, notFound))

	return s, nil
}

// ServeHTTP dispatches to the registered routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// exchange carries one request through the pipeline. Endpoints fill in body
// on success or err on failure; status defaults to 200.
type exchange struct {
	id      string
	claims  *auth.Claims
	request any
	status  int
	body    any
	err     error
}

type endpoint func(r *http.Request, x *exchange)

// handle wraps an endpoint with authentication, error mapping, response
// writing, metrics and the request log record.
func (s *Server) handle(route string, protected bool, ep endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		x := &exchange{
			id:      requestID(r),
			request: map[string]any{},
			status:  http.StatusOK,
		}
		w.Header().Set(HeaderRequestID, x.id)

		if protected {
			x.claims, x.err = s.auth.Validate(r)
		}
		if x.err == nil {
			s.run(ep, r, x)
		}
		if x.err != nil {
			x.status, x.body = apierr.Map(x.err)
		}

		s.writeJSON(w, x)
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, x.status, elapsed)
		s.logExchange(r, x, elapsed)
	})
}

// run invokes ep and converts a panic into an internal error.
func (s *Server) run(ep endpoint, r *http.Request, x *exchange) {
	defer func() {
		if rec := recover(); rec != nil {
			x.body = nil
			x.err = fmt.Errorf("panic in handler: %v", rec)
		}
	}()
	ep(r, x)
}

func (s *Server) writeJSON(w http.ResponseWriter, x *exchange) {
	payload, err := json.Marshal(x.body)
	if err != nil {
		x.err = fmt.Errorf("encode response: %w", err)
		x.status, x.body = apierr.Map(x.err)
		payload, _ = json.Marshal(x.body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(x.status)
	if _, err := w.Write(append(payload, '\n')); err != nil {
		s.logger.Debug().Err(err).Str("request_id", x.id).Msg("write response failed")
	}
}

// invoke serves POST /tools.
func (s *Server) invoke(r *http.Request, x *exchange) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		x.err = apierr.Validation("failed to read request body")
		return
	}
	if int64(len(raw)) > s.maxBodyBytes {
		x.err = apierr.Validation("request body exceeds %d bytes", s.maxBodyBytes)
		return
	}

	req, logged, err := parseInvocation(raw)
	if logged != nil {
		x.request = logged
	}
	if err != nil {
		x.err = err
		return
	}

	res, err := s.invoker.Call(r.Context(), req.Method, req.Args)
	if err != nil {
		x.err = err
		return
	}
	x.body = content.Result(res)
}

// listTools serves GET /tools/list.
func (s *Server) listTools(r *http.Request, x *exchange) {
	tools, err := s.invoker.ListTools(r.Context())
	if err != nil {
		x.err = err
		return
	}
	x.body = map[string]any{"tools": content.Tools(tools, s.logger)}
}

// health serves GET /health. It never fails and never touches upstream.
func (s *Server) health(_ *http.Request, x *exchange) {
	st := s.status.Status()
	x.body = map[string]any{
		"status":                "healthy",
		"mcp_connected":         st.Connected(),
		"available_tools_count": st.Tools,
	}
}

func notFound(_ *http.Request, x *exchange) {
	x.status = http.StatusNotFound
	x.body = apierr.Body{Error: apierr.Detail{
		Message: http.StatusText(http.StatusNotFound),
		Code:    http.StatusNotFound,
	}}
}
