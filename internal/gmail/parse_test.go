package gmail

import (
	"encoding/base64"
	"reflect"
	"testing"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers []*gmail.MessagePartHeader
		want    map[string]string
	}{
		{
			name:    "empty input yields empty map",
			headers: nil,
			want:    map[string]string{},
		},
		{
			name: "names are lower-cased",
			headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Hi"},
				{Name: "From", Value: "a@x.com"},
			},
			want: map[string]string{"subject": "Hi", "from": "a@x.com"},
		},
		{
			name: "last occurrence wins on duplicates",
			headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "A"},
				{Name: "subject", Value: "B"},
			},
			want: map[string]string{"subject": "B"},
		},
		{
			name: "multiple received headers collapse to the last",
			headers: []*gmail.MessagePartHeader{
				{Name: "Received", Value: "hop1"},
				{Name: "Received", Value: "hop2"},
				{Name: "Received", Value: "hop3"},
			},
			want: map[string]string{"received": "hop3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractHeaders(tt.headers)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractHeaders() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name            string
		payload         *gmail.MessagePart
		wantPlain       string
		wantHTML        string
		wantAttachments int
		wantErr         bool
	}{
		{
			name:    "nil payload is an empty tree",
			payload: nil,
		},
		{
			name: "simple text message",
			payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: b64("hello")},
			},
			wantPlain: "hello",
		},
		{
			name: "multipart alternative collects both bodies",
			payload: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain")}},
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html</p>")}},
				},
			},
			wantPlain: "plain",
			wantHTML:  "<p>html</p>",
		},
		{
			name: "multiple plain parts concatenate in traversal order",
			payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("first ")}},
					{
						MimeType: "multipart/alternative",
						Parts: []*gmail.MessagePart{
							{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("second ")}},
						},
					},
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("third")}},
				},
			},
			wantPlain: "first second third",
		},
		{
			name: "attachment descriptors are collected from nested parts",
			payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("body")}},
					{
						PartId:   "1",
						Filename: "document.pdf",
						MimeType: "application/pdf",
						Body:     &gmail.MessagePartBody{AttachmentId: "att123", Size: 1024},
					},
					{
						PartId:   "2",
						Filename: "image.png",
						MimeType: "image/png",
						Body:     &gmail.MessagePartBody{AttachmentId: "att456", Size: 2048},
					},
				},
			},
			wantPlain:       "body",
			wantAttachments: 2,
		},
		{
			name: "part with filename and inline text data counts as text, not attachment",
			payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Filename: "inline.txt",
				Body:     &gmail.MessagePartBody{Data: b64("inline content"), AttachmentId: "att999"},
			},
			wantPlain: "inline content",
		},
		{
			name: "filename without attachment id is ignored",
			payload: &gmail.MessagePart{
				MimeType: "application/pdf",
				Filename: "broken.pdf",
				Body:     &gmail.MessagePartBody{},
			},
		},
		{
			name: "malformed base64 propagates as an error",
			payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: "!!!not-base64!!!"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plain, html, attachments, err := extractContent(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractContent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if plain != tt.wantPlain {
				t.Errorf("plain = %q, want %q", plain, tt.wantPlain)
			}
			if html != tt.wantHTML {
				t.Errorf("html = %q, want %q", html, tt.wantHTML)
			}
			if len(attachments) != tt.wantAttachments {
				t.Errorf("attachments = %d, want %d", len(attachments), tt.wantAttachments)
			}
		})
	}
}

func TestExtractContent_DeepNesting(t *testing.T) {
	// Build a deeply nested tree: each level wraps one text part and the
	// next container. Extraction must be depth-independent.
	leafData := []string{"a", "b", "c", "d", "e"}
	payload := &gmail.MessagePart{MimeType: "multipart/mixed"}
	current := payload
	for i, s := range leafData {
		current.Parts = append(current.Parts, &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: b64(s)},
		})
		if i < len(leafData)-1 {
			next := &gmail.MessagePart{MimeType: "multipart/mixed"}
			current.Parts = append(current.Parts, next)
			current = next
		}
	}

	plain, _, _, err := extractContent(payload)
	if err != nil {
		t.Fatalf("extractContent() error = %v", err)
	}
	if plain != "abcde" {
		t.Errorf("plain = %q, want %q (pre-order concatenation)", plain, "abcde")
	}
}

func TestMirrorNode(t *testing.T) {
	payload := &gmail.MessagePart{
		PartId:   "0",
		MimeType: "multipart/mixed",
		Headers:  []*gmail.MessagePartHeader{{Name: "Content-Type", Value: "multipart/mixed"}},
		Parts: []*gmail.MessagePart{
			{
				PartId:   "0.0",
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: b64("text"), Size: 4},
			},
			{
				PartId:   "0.1",
				Filename: "file.pdf",
				MimeType: "application/pdf",
				Body:     &gmail.MessagePartBody{AttachmentId: "att1", Size: 100},
			},
		},
	}

	node := mirrorNode(payload)
	if node == nil {
		t.Fatal("mirrorNode() returned nil")
	}
	if node.PartID != "0" || node.MimeType != "multipart/mixed" {
		t.Errorf("root node = %+v", node)
	}
	if len(node.Headers) != 1 || node.Headers[0].Name != "Content-Type" {
		t.Errorf("root headers = %+v", node.Headers)
	}
	if len(node.Parts) != 2 {
		t.Fatalf("root has %d children, want 2", len(node.Parts))
	}
	if node.Parts[0].Body == nil || node.Parts[0].Body.Data != b64("text") {
		t.Errorf("first child body not echoed: %+v", node.Parts[0].Body)
	}
	if node.Parts[1].Filename != "file.pdf" || node.Parts[1].Body.AttachmentID != "att1" {
		t.Errorf("second child not mirrored: %+v", node.Parts[1])
	}

	if mirrorNode(nil) != nil {
		t.Error("mirrorNode(nil) should be nil")
	}
}

func testRawMessage() *gmail.Message {
	return &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		LabelIds:     []string{"INBOX"},
		Snippet:      "hello...",
		HistoryId:    42,
		InternalDate: 1700000000000,
		SizeEstimate: 2048,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Hi"},
				{Name: "From", Value: "a@x.com"},
				{Name: "To", Value: "b@x.com"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("hello")}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>hello</p>")}},
				{
					PartId:   "2",
					Filename: "doc.pdf",
					MimeType: "application/pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att1", Size: 512},
				},
			},
		},
	}
}

func TestProjectMessage_Minimal(t *testing.T) {
	msg, err := ProjectMessage(testRawMessage(), DetailMinimal)
	if err != nil {
		t.Fatalf("ProjectMessage() error = %v", err)
	}

	if msg.ID != "m1" || msg.ThreadID != "t1" {
		t.Errorf("identity fields = %q/%q", msg.ID, msg.ThreadID)
	}
	if len(msg.LabelIDs) != 1 || msg.LabelIDs[0] != "INBOX" {
		t.Errorf("labelIds = %v", msg.LabelIDs)
	}
	if msg.Date.IsZero() {
		t.Error("date must be populated even at minimal detail")
	}
	if want := time.UnixMilli(1700000000000); !msg.Date.Equal(want) {
		t.Errorf("date = %v, want %v", msg.Date, want)
	}
	if msg.Subject != "" || msg.Sender != "" || msg.BodyText != "" || msg.BodyHTML != "" {
		t.Errorf("derived fields must be absent at minimal detail: %+v", msg)
	}
	if msg.Payload != nil || msg.Raw != "" {
		t.Error("payload and raw must be absent at minimal detail")
	}
	if msg.Attachments == nil || len(msg.Attachments) != 0 {
		t.Errorf("attachments must be an empty slice, got %v", msg.Attachments)
	}
}

func TestProjectMessage_Compact(t *testing.T) {
	msg, err := ProjectMessage(testRawMessage(), DetailCompact)
	if err != nil {
		t.Fatalf("ProjectMessage() error = %v", err)
	}

	if msg.Subject != "Hi" || msg.Sender != "a@x.com" || msg.Recipient != "b@x.com" {
		t.Errorf("header-derived fields = %q/%q/%q", msg.Subject, msg.Sender, msg.Recipient)
	}
	if msg.BodyText != "hello" {
		t.Errorf("bodyText = %q, want %q", msg.BodyText, "hello")
	}
	// Compact deliberately skips the HTML body, attachments, and payload
	// tree even when the record carries them.
	if msg.BodyHTML != "" {
		t.Errorf("bodyHtml = %q, want empty at compact detail", msg.BodyHTML)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("attachments = %v, want empty at compact detail", msg.Attachments)
	}
	if msg.Payload != nil || msg.Raw != "" {
		t.Error("payload and raw must be absent at compact detail")
	}
}

func TestProjectMessage_Full(t *testing.T) {
	msg, err := ProjectMessage(testRawMessage(), DetailFull)
	if err != nil {
		t.Fatalf("ProjectMessage() error = %v", err)
	}

	if msg.BodyText != "hello" || msg.BodyHTML != "<p>hello</p>" {
		t.Errorf("bodies = %q/%q", msg.BodyText, msg.BodyHTML)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].AttachmentID != "att1" || msg.Attachments[0].Size != 512 {
		t.Errorf("attachments = %+v", msg.Attachments)
	}
	if msg.Payload == nil || len(msg.Payload.Parts) != 3 {
		t.Errorf("payload mirror = %+v", msg.Payload)
	}
}

func TestProjectMessage_RawPassthrough(t *testing.T) {
	raw := testRawMessage()
	raw.Raw = b64("full rfc2822 text")

	msg, err := ProjectMessage(raw, DetailRaw)
	if err != nil {
		t.Fatalf("ProjectMessage() error = %v", err)
	}
	if msg.Raw != raw.Raw {
		t.Errorf("raw = %q, want passthrough of store value", msg.Raw)
	}

	// Full projects the same record without raw unless the store set it.
	raw2 := testRawMessage()
	msg2, err := ProjectMessage(raw2, DetailFull)
	if err != nil {
		t.Fatalf("ProjectMessage() error = %v", err)
	}
	if msg2.Raw != "" {
		t.Errorf("raw = %q, want empty when store omitted it", msg2.Raw)
	}
}

func TestProjectMessage_MonotonicRichness(t *testing.T) {
	raw := testRawMessage()

	minimal, err := ProjectMessage(raw, DetailMinimal)
	if err != nil {
		t.Fatal(err)
	}
	compact, err := ProjectMessage(raw, DetailCompact)
	if err != nil {
		t.Fatal(err)
	}
	full, err := ProjectMessage(raw, DetailFull)
	if err != nil {
		t.Fatal(err)
	}

	// Every field populated at a cheaper level must be populated, with the
	// same value, at the richer levels.
	if compact.ID != minimal.ID || compact.ThreadID != minimal.ThreadID || !compact.Date.Equal(minimal.Date) {
		t.Error("compact must preserve all minimal fields")
	}
	if full.Subject != compact.Subject || full.Sender != compact.Sender || full.BodyText != compact.BodyText {
		t.Error("full must preserve all compact fields")
	}
	if len(full.Attachments) < len(compact.Attachments) {
		t.Error("full must not drop attachments present at compact")
	}
}

func TestProjectMessage_Idempotent(t *testing.T) {
	raw := testRawMessage()
	for _, level := range []DetailLevel{DetailMinimal, DetailCompact, DetailMetadata, DetailFull, DetailRaw} {
		first, err := ProjectMessage(raw, level)
		if err != nil {
			t.Fatalf("level %s: %v", level, err)
		}
		second, err := ProjectMessage(raw, level)
		if err != nil {
			t.Fatalf("level %s: %v", level, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("level %s: repeated projection differs", level)
		}
	}
}

func TestProjectMessage_MalformedRecord(t *testing.T) {
	tests := []struct {
		name string
		raw  *gmail.Message
	}{
		{name: "nil record", raw: nil},
		{name: "missing id", raw: &gmail.Message{ThreadId: "t1"}},
		{name: "missing threadId", raw: &gmail.Message{Id: "m1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ProjectMessage(tt.raw, DetailFull); err == nil {
				t.Error("ProjectMessage() should fail on malformed upstream record")
			}
		})
	}
}

func TestProjectMessage_DecodeErrorPropagates(t *testing.T) {
	raw := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: "%%%"},
		},
	}
	if _, err := ProjectMessage(raw, DetailCompact); err == nil {
		t.Error("ProjectMessage() should propagate body decode errors")
	}
}

func TestParseDetailLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    DetailLevel
		wantErr bool
	}{
		{input: "", want: DetailCompact},
		{input: "minimal", want: DetailMinimal},
		{input: "compact", want: DetailCompact},
		{input: "metadata", want: DetailMetadata},
		{input: "full", want: DetailFull},
		{input: "raw", want: DetailRaw},
		{input: "FULL", wantErr: true},
		{input: "everything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("input="+tt.input, func(t *testing.T) {
			got, err := ParseDetailLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDetailLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDetailLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDetailLevelStoreFormat(t *testing.T) {
	if got := DetailCompact.StoreFormat(); got != "metadata" {
		t.Errorf("compact store format = %q, want %q", got, "metadata")
	}
	for _, level := range []DetailLevel{DetailMinimal, DetailMetadata, DetailFull, DetailRaw} {
		if got := level.StoreFormat(); got != string(level) {
			t.Errorf("%s store format = %q, want passthrough", level, got)
		}
	}
}

func TestDecodeBody_Fallback(t *testing.T) {
	// URL-safe decoding is tried first, standard base64 second.
	want := "Special: ?>>>???"
	urlEncoded := base64.URLEncoding.EncodeToString([]byte(want))
	stdEncoded := base64.StdEncoding.EncodeToString([]byte(want))

	for _, input := range []string{urlEncoded, stdEncoded} {
		got, err := decodeBody(input)
		if err != nil {
			t.Fatalf("decodeBody(%q) error = %v", input, err)
		}
		if string(got) != want {
			t.Errorf("decodeBody(%q) = %q, want %q", input, got, want)
		}
	}
}
