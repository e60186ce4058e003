// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKinds(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:3000: connection refused")

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", Validation("missing %q field", "method"), http.StatusBadRequest, `missing "method" field`},
		{"authentication", Authentication(cause), http.StatusUnauthorized, MessageAuthentication},
		{"tool not found", ToolNotFound("search"), http.StatusNotFound, `tool "search" not found`},
		{"upstream connect", UpstreamConnect(cause), http.StatusServiceUnavailable, MessageUpstreamConnect},
		{"invocation", Invocation(cause), http.StatusInternalServerError, MessageInvocation},
		{"internal kind", &Error{Kind: KindInternal, Message: "boom", Err: cause}, http.StatusInternalServerError, MessageInternal},
		{"unclassified", cause, http.StatusInternalServerError, MessageInternal},
		{"wrapped", fmt.Errorf("handler: %w", ToolNotFound("x")), http.StatusNotFound, `tool "x" not found`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Map(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.status, body.Error.Code)
			assert.Equal(t, tt.message, body.Error.Message)
			assert.NotContains(t, body.Error.Message, "connection refused")
		})
	}
}

func TestErrorUnwrapAndKindOf(t *testing.T) {
	cause := errors.New("upstream closed")
	err := fmt.Errorf("call: %w", Invocation(cause))

	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindInvocation, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.True(t, strings.Contains(err.Error(), "InvocationError"))
}

func TestLogDetail(t *testing.T) {
	assert.True(t, LogDetail(errors.New("panic-ish")))
	assert.True(t, LogDetail(&Error{Kind: KindInternal}))
	assert.False(t, LogDetail(Validation("bad")))
	assert.False(t, LogDetail(Invocation(nil)))
}

func TestEmptyMessageFallsBackToStatusText(t *testing.T) {
	status, body := Map(&Error{Kind: KindToolNotFound})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusText(http.StatusNotFound), body.Error.Message)
}
