// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package upstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/auth"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/config"
)

// Session is one open, initialized session with the tool server.
type Session interface {
	// ListTools returns the complete tool listing, following pagination.
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	// CallTool invokes name with args.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	// Close releases the session and its transport.
	Close() error
}

// Opener opens and initializes new sessions. The context passed to Open
// bounds the lifetime of the session's transport, not just the handshake.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// TransportFunc builds a fresh transport for each connection attempt.
type TransportFunc func() mcp.Transport

// SDKOpener opens sessions through the go-sdk client.
type SDKOpener struct {
	client    *mcp.Client
	transport TransportFunc
}

// NewSDKOpener returns an Opener that connects a client identified by impl
// over transports produced by transport.
func NewSDKOpener(impl *mcp.Implementation, transport TransportFunc) *SDKOpener {
	return &SDKOpener{
		client:    mcp.NewClient(impl, nil),
		transport: transport,
	}
}

// NewSSEOpener builds an SDKOpener for the SSE endpoint in cfg. Every HTTP
// request on the session, including the event stream, goes through a
// SigningTransport so optional session and HMAC headers are applied.
func NewSSEOpener(cfg config.Config, impl *mcp.Implementation) *SDKOpener {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
		},
	}

	signing := &auth.SigningTransport{
		Base:          base,
		SessionHeader: cfg.SessionHeader,
		SessionValue:  cfg.SessionValue,
	}
	if cfg.SigningEnabled() {
		signing.Signer = auth.NewSigner(cfg.UpstreamAPIKey, cfg.UpstreamAPISecret)
	}

	// No client timeout: the event stream stays open for the session lifetime.
	httpClient := &http.Client{Transport: signing}
	endpoint := cfg.Upstream.String()

	return NewSDKOpener(impl, func() mcp.Transport {
		return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}
	})
}

// Open connects and performs the initialize handshake.
func (o *SDKOpener) Open(ctx context.Context) (Session, error) {
	cs, err := o.client.Connect(ctx, o.transport(), nil)
	if err != nil {
		return nil, fmt.Errorf("initialize session: %w", err)
	}
	return &sdkSession{cs: cs}, nil
}

type sdkSession struct {
	cs *mcp.ClientSession
}

func (s *sdkSession) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var (
		tools  []*mcp.Tool
		cursor string
	)
	for {
		params := &mcp.ListToolsParams{}
		if cursor != "" {
			params.Cursor = cursor
		}
		res, err := s.cs.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		if res.NextCursor == cursor {
			return nil, fmt.Errorf("list tools: upstream repeated cursor %q", cursor)
		}
		cursor = res.NextCursor
	}
}

func (s *sdkSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		// a nil map would encode as null
		args = map[string]any{}
	}
	return s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

func (s *sdkSession) Close() error {
	return s.cs.Close()
}
