// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy exposes the synchronous HTTP API in front of the upstream MCP
// tool server. Each protected request is authenticated, validated, dispatched
// through the invoker, serialized to JSON and logged as one structured record.
// Every failure is converted to the JSON error envelope at a single point.
package proxy
