package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

// ExtractHeaders folds an ordered header sequence into a case-insensitive
// lookup keyed by the lower-cased header name. When a name repeats (multiple
// Received headers, for example) the last occurrence wins.
func ExtractHeaders(headers []*gmail.MessagePartHeader) map[string]string {
	result := make(map[string]string, len(headers))
	for _, h := range headers {
		if h == nil {
			continue
		}
		result[strings.ToLower(h.Name)] = h.Value
	}
	return result
}

// decodeBody decodes a part body from the Gmail API's URL-safe base64.
// Some messages arrive with standard base64 instead, so that is tried as a
// fallback before giving up.
func decodeBody(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode part body: %w", err)
		}
	}
	return decoded, nil
}

// extractContent walks a payload tree depth-first in pre-order and collects
// the flattened plain-text body, HTML body, and attachment descriptors.
// Multiple text parts of the same type concatenate in traversal order.
//
// Each node matches at most one rule, in this order: inline text/plain,
// inline text/html, then attachment (non-empty filename plus an attachment
// ID). A part carrying both a filename and inline text data is therefore
// treated as text, matching the Gmail API's own convention. Recursion
// continues into child parts regardless of whether the node matched.
func extractContent(payload *gmail.MessagePart) (plainText, htmlText string, attachments []AttachmentRef, err error) {
	var plain, html strings.Builder

	var walk func(p *gmail.MessagePart) error
	walk = func(p *gmail.MessagePart) error {
		if p == nil {
			return nil
		}

		if p.MimeType == "text/plain" && p.Body != nil && p.Body.Data != "" {
			decoded, err := decodeBody(p.Body.Data)
			if err != nil {
				return fmt.Errorf("text/plain part %q: %w", p.PartId, err)
			}
			plain.Write(decoded)
		} else if p.MimeType == "text/html" && p.Body != nil && p.Body.Data != "" {
			decoded, err := decodeBody(p.Body.Data)
			if err != nil {
				return fmt.Errorf("text/html part %q: %w", p.PartId, err)
			}
			html.Write(decoded)
		} else if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
			attachments = append(attachments, AttachmentRef{
				AttachmentID: p.Body.AttachmentId,
				Size:         p.Body.Size,
			})
		}

		for _, child := range p.Parts {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(payload); err != nil {
		return "", "", nil, err
	}
	return plain.String(), html.String(), attachments, nil
}

// mirrorNode builds a structural copy of the payload tree, one MessageNode
// per source part. The mirror is only surfaced at the metadata, full and raw
// detail levels.
func mirrorNode(p *gmail.MessagePart) *MessageNode {
	if p == nil {
		return nil
	}

	node := &MessageNode{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	for _, h := range p.Headers {
		if h == nil {
			continue
		}
		node.Headers = append(node.Headers, Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		node.Body = &NodeBody{
			Data:         p.Body.Data,
			AttachmentID: p.Body.AttachmentId,
			Size:         p.Body.Size,
		}
	}
	for _, child := range p.Parts {
		node.Parts = append(node.Parts, mirrorNode(child))
	}
	return node
}

// ProjectMessage turns a raw Gmail message record into a Message at the
// requested detail level. The base identity, label, snippet, history and
// size fields are always populated, as is Date (internalDate is epoch
// milliseconds). Everything else depends on the level:
//
//   - minimal: no content extraction at all
//   - compact: top-level headers (subject/from/to) and the plain-text body;
//     the HTML body and attachments are deliberately skipped
//   - metadata/full/raw: headers, both bodies, attachment descriptors and
//     the payload-tree mirror; raw is passed through when the store
//     supplied it
//
// A record missing its id or threadId is a malformed upstream response and
// fails; so does undecodable base64 in a part body. Projection never
// mutates the input and is deterministic for a given record and level.
func ProjectMessage(raw *gmail.Message, level DetailLevel) (*Message, error) {
	if raw == nil {
		return nil, fmt.Errorf("message record is nil")
	}
	if raw.Id == "" {
		return nil, fmt.Errorf("message record is missing required field id")
	}
	if raw.ThreadId == "" {
		return nil, fmt.Errorf("message record %s is missing required field threadId", raw.Id)
	}

	msg := &Message{
		ID:           raw.Id,
		ThreadID:     raw.ThreadId,
		LabelIDs:     raw.LabelIds,
		Snippet:      raw.Snippet,
		HistoryID:    raw.HistoryId,
		InternalDate: raw.InternalDate,
		SizeEstimate: raw.SizeEstimate,
		Attachments:  []AttachmentRef{},
	}
	if raw.InternalDate != 0 {
		msg.Date = time.UnixMilli(raw.InternalDate)
	}

	if !level.includesContent() || raw.Payload == nil {
		return msg, nil
	}

	headers := ExtractHeaders(raw.Payload.Headers)
	msg.Subject = headers["subject"]
	msg.Sender = headers["from"]
	msg.Recipient = headers["to"]

	plain, html, attachments, err := extractContent(raw.Payload)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", raw.Id, err)
	}
	msg.BodyText = plain

	if !level.includesStructure() {
		// Compact trades completeness for size: plain text only, no HTML,
		// no attachment descriptors, no payload tree.
		return msg, nil
	}

	msg.BodyHTML = html
	if attachments != nil {
		msg.Attachments = attachments
	}
	msg.Payload = mirrorNode(raw.Payload)
	msg.Raw = raw.Raw
	return msg, nil
}
