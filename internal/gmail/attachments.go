package gmail

import (
	"context"
	"fmt"
	"strings"
)

// MaxAttachmentSize is the maximum attachment size that can be fetched (25MB)
// This matches Gmail's attachment size limit
const MaxAttachmentSize = 25 * 1024 * 1024

// AttachmentInfo describes one attachment found in a message's payload
// tree, with enough metadata to fetch it.
type AttachmentInfo struct {
	MessageID    string `json:"messageId"`
	PartID       string `json:"partId"`
	AttachmentID string `json:"attachmentId"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// walkNodes visits every node in a payload-tree mirror in pre-order.
func walkNodes(node *MessageNode, fn func(*MessageNode)) {
	if node == nil {
		return
	}
	fn(node)
	for _, child := range node.Parts {
		walkNodes(child, fn)
	}
}

// ListAttachments fetches a message and returns descriptors for every
// attachment part in its payload tree. Filenames are sanitized so a hostile
// sender cannot smuggle path separators into them.
func (c *Client) ListAttachments(ctx context.Context, messageID string) ([]*AttachmentInfo, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}

	msg, err := c.GetMessage(ctx, messageID, DetailFull)
	if err != nil {
		return nil, err
	}

	var attachments []*AttachmentInfo
	walkNodes(msg.Payload, func(node *MessageNode) {
		if node.Filename != "" && node.Body != nil && node.Body.AttachmentID != "" {
			attachments = append(attachments, &AttachmentInfo{
				MessageID:    messageID,
				PartID:       node.PartID,
				AttachmentID: node.Body.AttachmentID,
				Filename:     SanitizeFilename(node.Filename),
				MimeType:     node.MimeType,
				Size:         node.Body.Size,
			})
		}
	})
	return attachments, nil
}

// FetchAttachment downloads one attachment's bytes. The returned ref keeps
// the data in the Gmail API's URL-safe base64 encoding so it stays
// JSON-safe; the payload is decoded once to validate the encoding before
// being passed along. Attachments over MaxAttachmentSize are refused.
func (c *Client) FetchAttachment(ctx context.Context, messageID, attachmentID string) (*AttachmentRef, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	att, err := c.svc.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s from message %s: %w", attachmentID, messageID, err)
	}

	if att.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum allowed size %d", att.Size, MaxAttachmentSize)
	}

	if _, err := decodeBody(att.Data); err != nil {
		return nil, fmt.Errorf("attachment %s: %w", attachmentID, err)
	}

	return &AttachmentRef{
		AttachmentID: attachmentID,
		Size:         att.Size,
		Data:         att.Data,
	}, nil
}

// SanitizeFilename removes path separators and parent-directory sequences
// from a filename so it is safe to echo back to callers or write to disk.
func SanitizeFilename(filename string) string {
	sanitized := strings.ReplaceAll(filename, "..", "_")
	sanitized = strings.ReplaceAll(sanitized, "/", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	return sanitized
}
