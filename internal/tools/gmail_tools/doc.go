// Package gmail_tools registers the Gmail MCP tool surface.
//
// Tools are grouped into reading (list, search, get, labels, profile,
// threads), management (send, reply, mark read/unread, archive, delete,
// label operations) and advanced operations (forward, move to folder,
// drafts, attachments). Write operations are skipped entirely when the
// server runs in read-only mode.
//
// All handlers follow one error policy: failures of any kind, whether a
// missing argument or an upstream Gmail API error, are returned as
// mcp.NewToolResultError with a descriptive message. Successful results
// are JSON documents.
//
// Account resolution is delegated to common.GetAccountFromArgs: an
// OAuth-authenticated user's email wins over the explicit account
// argument, which in turn wins over "default".
package gmail_tools
