// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/apierr"
)

// InvocationRequest is the validated body of POST /tools.
type InvocationRequest struct {
	Method string
	Args   map[string]any
}

// parseInvocation validates raw. The decoded body is also returned, when
// there is one, so it can be logged even if validation fails.
func parseInvocation(raw []byte) (*InvocationRequest, any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil, apierr.Validation("request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, nil, apierr.Validation("request body must be valid JSON")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, nil, apierr.Validation("request body must contain a single JSON object")
	}

	body, ok := decoded.(map[string]any)
	if !ok {
		return nil, decoded, apierr.Validation("request body must be a JSON object")
	}

	rawMethod, ok := body["method"]
	if !ok {
		return nil, body, apierr.Validation("method is required")
	}
	method, ok := rawMethod.(string)
	if !ok {
		return nil, body, apierr.Validation("method must be a string")
	}
	if strings.TrimSpace(method) == "" {
		return nil, body, apierr.Validation("method must not be empty")
	}

	args := map[string]any{}
	if rawArgs, present := body["args"]; present {
		args, ok = rawArgs.(map[string]any)
		if !ok {
			return nil, body, apierr.Validation("args must be a JSON object")
		}
	}

	return &InvocationRequest{Method: method, Args: args}, body, nil
}
