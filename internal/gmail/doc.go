// Package gmail provides the mailbox facade and the message projection and
// composition engine on top of the Gmail API.
//
// Reading a message goes through three stages: the raw API record's payload
// tree is walked to extract flattened plain-text, HTML, and attachment
// descriptors; the ordered header sequence is folded into a case-insensitive
// lookup; and the result is projected into a Message at one of five detail
// levels (minimal, compact, metadata, full, raw). Compact is the cheap
// default for listings: header-derived subject/sender/recipient plus the
// plain-text body, with HTML and attachments skipped.
//
// Writing goes the other way: Compose builds an RFC 2822 message (text,
// multipart/alternative, or multipart/mixed with file attachments) and
// encodes it URL-safe base64 for the raw field of a send or draft request.
// Replies and forwards are specializations that fetch the original message
// first to derive recipients, subject prefixes, threading headers and the
// quoted forward block.
//
// The Client supports multi-account authentication using the unified Google
// OAuth token from the google package. For HTTP transports OAuth is handled
// by the MCP OAuth middleware; for STDIO transport tokens are loaded from
// the file system (~/.cache/gmail-mcp/).
//
// Example usage:
//
//	ctx := context.Background()
//	client, err := gmail.NewClient(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// List the ten most recent inbox messages at compact detail
//	page, err := client.ListMessages(ctx, gmail.ListOptions{
//	    LabelIDs: []string{"INBOX"},
//	    Detail:   gmail.DetailCompact,
//	})
//
//	// Send an email
//	id, _, err := client.SendMessage(ctx, &gmail.ComposeRequest{
//	    To:       []string{"recipient@example.com"},
//	    Subject:  "Hello",
//	    BodyText: "This is a test email",
//	})
package gmail
