package gmail_tools

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailworks/gmail-mcp/internal/server"
)

func newTestServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	sc, err := server.NewServerContext(context.Background())
	if err != nil {
		t.Fatalf("NewServerContext() error = %v", err)
	}
	t.Cleanup(func() { sc.Shutdown() })
	return sc
}

func callToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestHandleReplyToEmail_RequiresSomeBody(t *testing.T) {
	sc := newTestServerContext(t)

	result, err := handleReplyToEmail(context.Background(), callToolRequest(map[string]interface{}{
		"messageId": "m1",
	}), sc)
	if err != nil {
		t.Fatalf("handleReplyToEmail() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("reply without body or bodyHtml should fail")
	}
	if got := resultText(t, result); !strings.Contains(got, "either body or bodyHtml") {
		t.Errorf("error = %q, want at-least-one-of message", got)
	}
}

func TestHandleReplyToEmail_HTMLOnlyBody(t *testing.T) {
	sc := newTestServerContext(t)

	// An HTML-only reply must pass body validation. The unauthenticated
	// test context stops the call at client creation, which proves the
	// handler got past the body check.
	result, err := handleReplyToEmail(context.Background(), callToolRequest(map[string]interface{}{
		"account":   "no-such-account",
		"messageId": "m1",
		"bodyHtml":  "<p>read this</p>",
	}), sc)
	if err != nil {
		t.Fatalf("handleReplyToEmail() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected auth failure for unauthenticated account")
	}
	got := resultText(t, result)
	if strings.Contains(got, "either body or bodyHtml") {
		t.Errorf("HTML-only reply rejected by body validation: %q", got)
	}
	if !strings.Contains(got, "OAuth token not found") {
		t.Errorf("error = %q, want auth guidance", got)
	}
}

func TestHandleSendEmail_RequiresSomeBody(t *testing.T) {
	sc := newTestServerContext(t)

	result, err := handleSendEmail(context.Background(), callToolRequest(map[string]interface{}{
		"to":      "a@example.com",
		"subject": "Hi",
	}), sc)
	if err != nil {
		t.Fatalf("handleSendEmail() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("send without body or bodyHtml should fail")
	}
	if got := resultText(t, result); !strings.Contains(got, "either body or bodyHtml") {
		t.Errorf("error = %q, want at-least-one-of message", got)
	}
}

func TestForwardEmailTool_AcceptsCcBcc(t *testing.T) {
	sc := newTestServerContext(t)

	s := mcpserver.NewMCPServer("test-server", "0.0.1")
	if err := RegisterEmailTools(s, sc, false); err != nil {
		t.Fatalf("RegisterEmailTools() error = %v", err)
	}

	for _, st := range s.ListTools() {
		if st.Tool.Name != "gmail_forward_email" {
			continue
		}
		for _, prop := range []string{"cc", "bcc"} {
			if _, ok := st.Tool.InputSchema.Properties[prop]; !ok {
				t.Errorf("gmail_forward_email is missing the %q argument", prop)
			}
		}
		return
	}
	t.Fatal("gmail_forward_email not registered")
}
