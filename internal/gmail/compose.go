package gmail

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mailworks/gmail-mcp/internal/logging"
)

// ComposeRequest describes an outbound message for Compose. At least one of
// BodyText and BodyHTML must be set, and To must be non-empty.
type ComposeRequest struct {
	To              []string
	Cc              []string
	Bcc             []string
	Subject         string
	BodyText        string
	BodyHTML        string
	ThreadID        string
	InReplyTo       string
	AttachmentPaths []string
}

// encodeRFC2047 encodes a header value per RFC 2047 when it contains
// non-ASCII characters (umlauts, CJK, emoji). ASCII-only values pass
// through unchanged.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// newBoundary returns a random MIME boundary token.
func newBoundary() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// fixed marker rather than aborting the send.
		return "=-=gmail-mcp-boundary=-="
	}
	return "=-=" + hex.EncodeToString(buf[:]) + "=-="
}

// wrapBase64 splits a base64 string into 76-character lines as required for
// base64 content-transfer-encoding.
func wrapBase64(s string) string {
	const lineLen = 76
	var b strings.Builder
	b.Grow(len(s) + len(s)/lineLen*2 + 2)
	for len(s) > lineLen {
		b.WriteString(s[:lineLen])
		b.WriteString("\r\n")
		s = s[lineLen:]
	}
	b.WriteString(s)
	return b.String()
}

// Compose builds an RFC 2822 message from the request and returns it
// URL-safe-base64 encoded, ready for the raw field of a Gmail send or
// draft call.
//
// When BodyHTML is set the body is a multipart/alternative container with
// the plain-text part first (so clients preferring plain text pick it up)
// and the HTML part last; otherwise the body is a single text/plain part.
// When attachments are given the whole body is wrapped in a multipart/mixed
// container with one base64-encoded application/octet-stream part per file.
// Attachment paths that do not exist are skipped with a warning rather than
// failing the send.
//
// InReplyTo becomes the In-Reply-To header. ThreadID becomes the References
// header value as-is; the thread id stands in for a true Message-ID chain,
// which Gmail accepts for threading. Callers replying within a thread must
// also set ThreadID on the send request itself.
func Compose(req *ComposeRequest) (string, error) {
	if len(req.To) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	if req.BodyText == "" && req.BodyHTML == "" {
		return "", fmt.Errorf("either a text body or an HTML body is required")
	}

	var msg strings.Builder

	msg.WriteString("To: ")
	msg.WriteString(strings.Join(req.To, ", "))
	msg.WriteString("\r\n")
	if len(req.Cc) > 0 {
		msg.WriteString("Cc: ")
		msg.WriteString(strings.Join(req.Cc, ", "))
		msg.WriteString("\r\n")
	}
	if len(req.Bcc) > 0 {
		msg.WriteString("Bcc: ")
		msg.WriteString(strings.Join(req.Bcc, ", "))
		msg.WriteString("\r\n")
	}
	msg.WriteString("Subject: ")
	msg.WriteString(encodeRFC2047(req.Subject))
	msg.WriteString("\r\n")
	if req.InReplyTo != "" {
		msg.WriteString("In-Reply-To: ")
		msg.WriteString(req.InReplyTo)
		msg.WriteString("\r\n")
	}
	if req.ThreadID != "" {
		msg.WriteString("References: ")
		msg.WriteString(req.ThreadID)
		msg.WriteString("\r\n")
	}
	msg.WriteString("MIME-Version: 1.0\r\n")

	attachments, err := readAttachments(req.AttachmentPaths)
	if err != nil {
		return "", err
	}

	if len(attachments) == 0 {
		writeBody(&msg, req.BodyText, req.BodyHTML)
	} else {
		mixed := newBoundary()
		fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed)

		msg.WriteString("--" + mixed + "\r\n")
		writeBody(&msg, req.BodyText, req.BodyHTML)
		msg.WriteString("\r\n")

		for _, att := range attachments {
			msg.WriteString("--" + mixed + "\r\n")
			msg.WriteString("Content-Type: application/octet-stream\r\n")
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			fmt.Fprintf(&msg, "Content-Disposition: attachment; filename=%q\r\n\r\n", att.name)
			msg.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(att.data)))
			msg.WriteString("\r\n")
		}
		msg.WriteString("--" + mixed + "--\r\n")
	}

	return base64.URLEncoding.EncodeToString([]byte(msg.String())), nil
}

// writeBody writes the Content-Type header and body content for the text
// and/or HTML bodies. The plain part always precedes the HTML part.
func writeBody(msg *strings.Builder, bodyText, bodyHTML string) {
	if bodyHTML == "" {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		msg.WriteString(bodyText)
		return
	}

	alt := newBoundary()
	fmt.Fprintf(msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", alt)
	if bodyText != "" {
		msg.WriteString("--" + alt + "\r\n")
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		msg.WriteString(bodyText)
		msg.WriteString("\r\n")
	}
	msg.WriteString("--" + alt + "\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(bodyHTML)
	msg.WriteString("\r\n")
	msg.WriteString("--" + alt + "--\r\n")
}

type attachmentFile struct {
	name string
	data []byte
}

// readAttachments loads attachment files from disk. Missing files are
// skipped with a warning so a stale path does not fail the whole send; any
// other read error aborts.
func readAttachments(paths []string) ([]attachmentFile, error) {
	var files []attachmentFile
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Skipping missing attachment file",
				logging.KeyComponent, "composer",
				"path", path,
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
		}
		files = append(files, attachmentFile{name: filepath.Base(path), data: data})
	}
	return files, nil
}

// ReplySubject prefixes a subject with "Re: " unless it already carries a
// reply prefix.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// ForwardSubject prefixes a subject with "Fwd: " unless it already carries
// a forward prefix.
func ForwardSubject(subject string) string {
	lower := strings.ToLower(subject)
	if strings.HasPrefix(lower, "fwd:") || strings.HasPrefix(lower, "fw:") {
		return subject
	}
	return "Fwd: " + subject
}

// forwardPreamble renders the quoted header block prepended to a forwarded
// message body, preceded by the caller's additional text when given.
func forwardPreamble(original *Message, additional string) string {
	var b strings.Builder
	if additional != "" {
		b.WriteString(additional)
		b.WriteString("\n\n")
	}
	b.WriteString("---------- Forwarded message ---------\n")
	fmt.Fprintf(&b, "From: %s\n", original.Sender)
	fmt.Fprintf(&b, "Date: %s\n", formatForwardDate(original.Date))
	fmt.Fprintf(&b, "Subject: %s\n", original.Subject)
	fmt.Fprintf(&b, "To: %s\n\n", original.Recipient)
	return b.String()
}

func formatForwardDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC1123Z)
}

// BuildForward assembles the compose request for forwarding an original
// message to new recipients. The quoted header block is prepended to the
// plain-text body; when the original carried HTML the block is rendered a
// second time with <br> line breaks and prepended to the HTML body, so the
// multipart/alternative assembly in Compose keeps both variants aligned.
func BuildForward(original *Message, to, cc, bcc []string, additional string) *ComposeRequest {
	preamble := forwardPreamble(original, additional)

	req := &ComposeRequest{
		To:       to,
		Cc:       cc,
		Bcc:      bcc,
		Subject:  ForwardSubject(original.Subject),
		BodyText: preamble + original.BodyText,
	}
	if original.BodyHTML != "" {
		req.BodyHTML = strings.ReplaceAll(preamble, "\n", "<br>") + original.BodyHTML
	}
	return req
}
