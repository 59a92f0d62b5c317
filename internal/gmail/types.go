package gmail

import (
	"fmt"
	"time"
)

// DetailLevel controls how much of a message is extracted and returned.
// Levels are ordered from cheapest to most expensive: minimal < compact <
// metadata/full/raw. The compact level is our own addition on top of the
// Gmail API formats; it is translated to the store's "metadata" format on
// fetch and extracts the plain-text body only.
type DetailLevel string

const (
	DetailMinimal  DetailLevel = "minimal"
	DetailCompact  DetailLevel = "compact"
	DetailMetadata DetailLevel = "metadata"
	DetailFull     DetailLevel = "full"
	DetailRaw      DetailLevel = "raw"
)

// ParseDetailLevel parses a user-supplied detail level string.
// An empty string defaults to compact.
func ParseDetailLevel(s string) (DetailLevel, error) {
	switch DetailLevel(s) {
	case "":
		return DetailCompact, nil
	case DetailMinimal, DetailCompact, DetailMetadata, DetailFull, DetailRaw:
		return DetailLevel(s), nil
	default:
		return "", fmt.Errorf("invalid detail level %q (must be one of minimal, compact, metadata, full, raw)", s)
	}
}

// StoreFormat returns the Gmail API format parameter to use when fetching
// a message at this level. Compact has no native Gmail equivalent and maps
// to "metadata"; everything else passes through unchanged.
func (l DetailLevel) StoreFormat() string {
	if l == DetailCompact {
		return "metadata"
	}
	return string(l)
}

// includesContent reports whether this level carries extracted body content.
func (l DetailLevel) includesContent() bool {
	return l != DetailMinimal
}

// includesStructure reports whether this level carries the full payload tree
// and attachment descriptors.
func (l DetailLevel) includesStructure() bool {
	switch l {
	case DetailMetadata, DetailFull, DetailRaw:
		return true
	}
	return false
}

// Header is a single name/value header pair as it appears on the wire.
// Order and duplicates are preserved; use ExtractHeaders for lookups.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NodeBody is the body of a single MIME part. Inline content arrives as
// URL-safe base64 in Data; attachment content is referenced by AttachmentID
// and fetched separately.
type NodeBody struct {
	Data         string `json:"data,omitempty"`
	AttachmentID string `json:"attachmentId,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// MessageNode is one node of a message's MIME structure: either a leaf
// carrying content or a container of child parts. Content lives in leaves;
// container nodes only group their children.
type MessageNode struct {
	PartID   string         `json:"partId,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Filename string         `json:"filename,omitempty"`
	Headers  []Header       `json:"headers,omitempty"`
	Body     *NodeBody      `json:"body,omitempty"`
	Parts    []*MessageNode `json:"parts,omitempty"`
}

// AttachmentRef describes an attachment by reference. Data is populated only
// after an explicit fetch and stays in the Gmail API's URL-safe base64
// encoding. Refs are rebuilt on every request and never cached.
type AttachmentRef struct {
	AttachmentID string `json:"attachmentId"`
	Size         int64  `json:"size"`
	Data         string `json:"data,omitempty"`
}

// Message is the read-model projection of a Gmail message. The base fields
// (ID through SizeEstimate, plus Date) are populated at every detail level.
// The derived fields (Subject, Sender, Recipient, BodyText, BodyHTML) are
// populated together when content extraction ran, and Attachments is always
// an empty slice rather than nil when extraction was skipped.
type Message struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	LabelIDs     []string     `json:"labelIds,omitempty"`
	Snippet      string       `json:"snippet,omitempty"`
	HistoryID    uint64       `json:"historyId,omitempty"`
	InternalDate int64        `json:"internalDate,omitempty"`
	SizeEstimate int64        `json:"sizeEstimate,omitempty"`
	Payload      *MessageNode `json:"payload,omitempty"`
	Raw          string       `json:"raw,omitempty"`

	Subject     string          `json:"subject,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	Recipient   string          `json:"recipient,omitempty"`
	Date        time.Time       `json:"date,omitzero"`
	BodyText    string          `json:"bodyText,omitempty"`
	BodyHTML    string          `json:"bodyHtml,omitempty"`
	Attachments []AttachmentRef `json:"attachments"`
}

// Thread is a conversation: its messages in the order the store returns
// them (chronological).
type Thread struct {
	ID        string     `json:"id"`
	Snippet   string     `json:"snippet,omitempty"`
	HistoryID uint64     `json:"historyId,omitempty"`
	Messages  []*Message `json:"messages"`
}

// Draft pairs a draft ID with its (unsent) message.
type Draft struct {
	ID      string   `json:"id"`
	Message *Message `json:"message,omitempty"`
}

// Label is a Gmail label, system or user-defined.
type Label struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Type                  string `json:"type,omitempty"`
	MessageListVisibility string `json:"messageListVisibility,omitempty"`
	LabelListVisibility   string `json:"labelListVisibility,omitempty"`
	MessagesTotal         int64  `json:"messagesTotal,omitempty"`
	MessagesUnread        int64  `json:"messagesUnread,omitempty"`
}

// Profile is the authenticated mailbox's profile.
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
	HistoryID     uint64 `json:"historyId,omitempty"`
}
