// Package mcp implements MCP (Model Context Protocol) server support,
// exposing the gateway's chat tools to AI-agent hosts.
//
// MCP uses JSON-RPC 2.0 over two transports: stdio (the gateway runs
// as a subprocess of the agent host) and streamable HTTP. Hosts
// discover tools via tools/list and invoke them via tools/call; both
// are answered from the shared tool registry.
//
// This implementation covers the server side only; Parley does not
// connect out to other MCP servers.
package mcp
