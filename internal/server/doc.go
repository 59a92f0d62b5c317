// Package server provides the MCP server context, session management,
// and OAuth-protected HTTP server for gmail-mcp.
//
// # Key Components
//
// ServerContext manages Gmail API clients with lazy initialization and
// caching. It supports multiple accounts and can use different token
// providers:
//   - FileTokenProvider: For STDIO transport, reads tokens from disk
//   - OAuth TokenProvider: For HTTP/SSE transport, tokens come from the
//     OAuth middleware
//
// OAuthHTTPServer wraps an MCP server with OAuth authentication backed by
// Google as the authorization server. The server itself acts only as a
// protected resource:
//   - Protected Resource Metadata (RFC 9728)
//   - Bearer token validation against Google
//   - Automatic token refresh for long-lived sessions
//
// SessionIDManager handles multi-account session tracking for HTTP
// transport. It maps Bearer tokens to Google accounts so the OAuth
// middleware can skip redundant token store writes while multiple users
// share a single MCP server instance.
//
// HealthChecker exposes a liveness endpoint reporting server and token
// store status.
package server
