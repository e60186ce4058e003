// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package content

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// PlaceholderDescription replaces the description of a tool that could not
// be serialized. The cause is only logged.
const PlaceholderDescription = "tool descriptor could not be serialized"

var errNilTool = errors.New("nil tool descriptor")

// Tool renders one tool descriptor. Unlike Value it is strict: a descriptor
// without a name or whose input schema has no JSON form is an error, so the
// caller can substitute a placeholder.
func Tool(t *mcp.Tool) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("serialize tool: %v", r)
		}
	}()

	if t == nil {
		return nil, errNilTool
	}
	if t.Name == "" {
		return nil, errors.New("tool descriptor without name")
	}

	schema, err := schemaTree(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %q input schema: %w", t.Name, err)
	}

	out = map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"inputSchema": schema,
	}
	if t.Title != "" {
		out["title"] = t.Title
	}
	return out, nil
}

func schemaTree(schema any) (any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// Placeholder is the entry substituted for the tool at 1-based position n.
func Placeholder(n int) map[string]any {
	return map[string]any{
		"name":        fmt.Sprintf("tool_%d", n),
		"description": PlaceholderDescription,
		"error":       true,
	}
}

// Tools renders a listing. A descriptor that fails to serialize is replaced by
// a Placeholder and logged; the remaining descriptors are still returned.
func Tools(tools []*mcp.Tool, logger zerolog.Logger) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for i, t := range tools {
		rendered, err := Tool(t)
		if err != nil {
			logger.Error().Err(err).Int("index", i+1).Msg("failed to serialize tool descriptor")
			out = append(out, Placeholder(i+1))
			continue
		}
		out = append(out, rendered)
	}
	return out
}
