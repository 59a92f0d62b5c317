// Package resources provides MCP resources for exposing mailbox data.
// Resources are read-only data sources that MCP clients can fetch, such as
// the authenticated mailbox profile.
//
// On HTTP transports the account is resolved from the OAuth context, so each
// authenticated user sees their own mailbox; the stdio transport falls back
// to the default account's cached token.
package resources
