// Package oauth implements the OAuth 2.1 Resource Server role for the Gmail
// MCP server when running over HTTP transports.
//
// The server never issues tokens of its own. MCP clients obtain Google access
// tokens directly (Google is advertised as the authorization server in the
// RFC 9728 protected resource metadata) and present them as Bearer tokens.
// Incoming tokens are validated against Google's userinfo endpoint, cached in
// an in-memory store keyed by user email, and made available to MCP tools via
// the TokenProvider.
//
// SSO deployments behind an aggregator are supported through the
// X-Google-Access-Token forwarding headers, building on the
// github.com/giantswarm/mcp-oauth library for user identity propagation.
package oauth
