// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package content turns heterogeneous upstream payloads (tool results, content
// blocks, tool descriptors) into JSON-safe trees of primitives, slices and
// string-keyed maps. Nothing in this package fails a whole response because
// of one unconvertible value.
package content

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Block is the closed set of content shapes the gateway renders. Every
// upstream mcp.Content is classified into exactly one Block by Classify.
type Block interface {
	// Render returns the JSON-safe representation of the block.
	Render() map[string]any
}

// TextBlock is a plain text segment.
type TextBlock struct {
	Text string
}

// Render implements Block.
func (b TextBlock) Render() map[string]any {
	return map[string]any{"type": "text", "text": b.Text}
}

// BinaryBlock is inline binary media such as an image or audio clip.
type BinaryBlock struct {
	Type     string // "image" or "audio"
	MIMEType string
	Data     []byte
}

// Render implements Block.
func (b BinaryBlock) Render() map[string]any {
	return map[string]any{
		"type":     b.Type,
		"mimeType": b.MIMEType,
		"data":     Value(b.Data),
	}
}

// StructuredBlock is a resource-shaped block: an embedded resource or a link
// to one. Fields hold the already-rendered attributes.
type StructuredBlock struct {
	Type   string
	Fields map[string]any
}

// Render implements Block.
func (b StructuredBlock) Render() map[string]any {
	out := make(map[string]any, len(b.Fields)+1)
	for k, v := range b.Fields {
		out[k] = v
	}
	out["type"] = b.Type
	return out
}

// ErrorBlock marks an item the gateway could not interpret.
type ErrorBlock struct {
	Message string
}

// Render implements Block.
func (b ErrorBlock) Render() map[string]any {
	return map[string]any{"type": "error", "error": true, "message": b.Message}
}

// UnknownBlock wraps content of a type not modelled above.
type UnknownBlock struct {
	Value any
}

// Render implements Block.
func (b UnknownBlock) Render() map[string]any {
	return map[string]any{"type": "unknown", "value": Value(b.Value)}
}

// Classify maps an upstream content item onto a Block.
func Classify(c mcp.Content) Block {
	switch v := c.(type) {
	case nil:
		return ErrorBlock{Message: "missing content"}
	case *mcp.TextContent:
		if v == nil {
			return ErrorBlock{Message: "missing content"}
		}
		return TextBlock{Text: v.Text}
	case *mcp.ImageContent:
		if v == nil {
			return ErrorBlock{Message: "missing content"}
		}
		return BinaryBlock{Type: "image", MIMEType: v.MIMEType, Data: v.Data}
	case *mcp.AudioContent:
		if v == nil {
			return ErrorBlock{Message: "missing content"}
		}
		return BinaryBlock{Type: "audio", MIMEType: v.MIMEType, Data: v.Data}
	case *mcp.EmbeddedResource:
		if v == nil || v.Resource == nil {
			return ErrorBlock{Message: "embedded resource without contents"}
		}
		return StructuredBlock{Type: "resource", Fields: map[string]any{"resource": resourceContents(v.Resource)}}
	case *mcp.ResourceLink:
		if v == nil {
			return ErrorBlock{Message: "missing content"}
		}
		return StructuredBlock{Type: "resource_link", Fields: resourceLink(v)}
	default:
		return UnknownBlock{Value: c}
	}
}

func resourceContents(rc *mcp.ResourceContents) map[string]any {
	out := map[string]any{"uri": rc.URI}
	if rc.MIMEType != "" {
		out["mimeType"] = rc.MIMEType
	}
	if rc.Blob != nil {
		out["blob"] = Value(rc.Blob)
	} else {
		out["text"] = rc.Text
	}
	return out
}

func resourceLink(l *mcp.ResourceLink) map[string]any {
	out := map[string]any{"uri": l.URI, "name": l.Name}
	if l.Title != "" {
		out["title"] = l.Title
	}
	if l.Description != "" {
		out["description"] = l.Description
	}
	if l.MIMEType != "" {
		out["mimeType"] = l.MIMEType
	}
	if l.Size != nil {
		out["size"] = *l.Size
	}
	return out
}

// Result renders a tool call result. Upstream tool errors (IsError) are part
// of the payload, not a gateway failure.
func Result(res *mcp.CallToolResult) map[string]any {
	if res == nil {
		return map[string]any{"content": []any{}, "isError": false}
	}

	blocks := make([]any, 0, len(res.Content))
	for _, c := range res.Content {
		blocks = append(blocks, renderSafely(c))
	}

	out := map[string]any{
		"content": blocks,
		"isError": res.IsError,
	}
	if res.StructuredContent != nil {
		out["structuredContent"] = Value(res.StructuredContent)
	}
	return out
}

func renderSafely(c mcp.Content) (out map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			out = ErrorBlock{Message: "content could not be rendered"}.Render()
		}
	}()
	return Classify(c).Render()
}
