package gmail_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailworks/gmail-mcp/internal/gmail"
	"github.com/mailworks/gmail-mcp/internal/server"
)

// getGmailClient returns the Gmail client for the given account, creating it
// from the server's token provider on first use. When no token exists the
// returned error carries the full authorization instructions, so handlers can
// surface it to the agent verbatim.
func getGmailClient(ctx context.Context, account string, sc *server.ServerContext) (*gmail.Client, error) {
	client := sc.GmailClientForAccount(account)
	if client == nil {
		authURL := gmail.GetAuthURLForAccount(account)
		return nil, fmt.Errorf(`Google OAuth token not found for account "%s". To authorize access:

1. Visit this URL in your browser:
   %s

2. Sign in with your Google account
3. Grant access to Gmail
4. Copy the authorization code

5. Provide the authorization code to your AI agent
   The agent will use the google_save_auth_code tool with account="%s" to complete authentication.

Note: You only need to authorize once. The tokens will be automatically refreshed.`, account, authURL, account)
	}
	return client, nil
}

// RegisterGmailTools registers all Gmail tools with the MCP server.
// When readOnly is true, only tools without side effects are registered.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterReadTools(s, sc); err != nil {
		return fmt.Errorf("failed to register read tools: %w", err)
	}

	if err := RegisterEmailTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register email tools: %w", err)
	}

	if err := RegisterLabelTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register label tools: %w", err)
	}

	if err := RegisterDraftTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register draft tools: %w", err)
	}

	if err := RegisterAttachmentTools(s, sc); err != nil {
		return fmt.Errorf("failed to register attachment tools: %w", err)
	}

	return nil
}

// jsonResult marshals v as indented JSON and wraps it in a text result.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to serialize result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// stringArg returns the named string argument, or "" when absent.
func stringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// int64Arg returns the named numeric argument. JSON numbers arrive as
// float64; anything else yields the fallback.
func int64Arg(args map[string]interface{}, name string, fallback int64) int64 {
	if v, ok := args[name].(float64); ok {
		return int64(v)
	}
	return fallback
}

// boolArg returns the named boolean argument, or false when absent.
func boolArg(args map[string]interface{}, name string) bool {
	v, _ := args[name].(bool)
	return v
}

// splitEmailAddresses splits a comma-separated string of email addresses,
// trimming whitespace and dropping empty entries.
func splitEmailAddresses(addresses string) []string {
	if addresses == "" {
		return nil
	}

	parts := strings.Split(addresses, ",")
	result := make([]string, 0, len(parts))
	for _, addr := range parts {
		trimmed := strings.TrimSpace(addr)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// listOptionsFromArgs builds list options from the common paging and detail
// arguments shared by the list/search/thread tools.
func listOptionsFromArgs(args map[string]interface{}) (gmail.ListOptions, error) {
	level, err := gmail.ParseDetailLevel(stringArg(args, "detail"))
	if err != nil {
		return gmail.ListOptions{}, err
	}

	opts := gmail.ListOptions{
		Query:            stringArg(args, "query"),
		MaxResults:       int64Arg(args, "maxResults", 10),
		IncludeSpamTrash: boolArg(args, "includeSpamTrash"),
		PageToken:        stringArg(args, "pageToken"),
		Detail:           level,
	}
	if label := stringArg(args, "label"); label != "" {
		opts.LabelIDs = []string{label}
	}
	return opts, nil
}
