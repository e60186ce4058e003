// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/apierr"
)

// HeaderRequestID carries the request identifier in both directions.
const HeaderRequestID = "X-Request-Id"

const maxRequestIDLen = 128

// requestID reuses a caller supplied identifier when it is sane and
// generates a new one otherwise.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" && len(id) <= maxRequestIDLen {
		return id
	}
	return uuid.NewString()
}

// clientAddr is the first X-Forwarded-For hop, else the socket peer.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// logExchange emits the single record for a request. 5xx responses log at
// error level; only internal failures include the underlying cause.
func (s *Server) logExchange(r *http.Request, x *exchange, elapsed time.Duration) {
	var event *zerolog.Event
	if x.status >= http.StatusInternalServerError {
		event = s.logger.Error()
	} else {
		event = s.logger.Info()
	}

	event = event.
		Str("request_id", x.id).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Interface("request", x.request).
		Interface("response", x.body).
		Int("status_code", x.status).
		Float64("execution_time_ms", math.Round(float64(elapsed.Microseconds())/10)/100).
		Dur("duration", elapsed).
		Str("remote_addr", clientAddr(r)).
		Str("user_agent", r.UserAgent())

	if x.claims != nil && x.claims.UserID != "" {
		event = event.Str("user_id", x.claims.UserID)
	}
	if x.err != nil {
		event = event.Str("error_kind", apierr.KindOf(x.err).String())
		if apierr.LogDetail(x.err) {
			event = event.Err(x.err)
		}
	}
	event.Msg("request completed")
}
