package gmail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailworks/gmail-mcp/internal/gmail"
	"github.com/mailworks/gmail-mcp/internal/instrumentation"
	"github.com/mailworks/gmail-mcp/internal/server"
	"github.com/mailworks/gmail-mcp/internal/tools/common"
)

// RegisterReadTools registers the read-only Gmail tools with the MCP server.
func RegisterReadTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Get emails tool
	getEmailsTool := mcp.NewTool("gmail_get_emails",
		mcp.WithDescription("List emails from the mailbox, optionally filtered by label"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("label",
			mcp.Description("Label ID to filter by (e.g., 'INBOX', 'UNREAD', or a user label ID)"),
		),
		mcp.WithString("detail",
			mcp.Description("Detail level: minimal, compact, metadata, full, or raw (default: compact)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
		mcp.WithBoolean("includeSpamTrash",
			mcp.Description("Include messages from SPAM and TRASH (default: false)"),
		),
		mcp.WithString("pageToken",
			mcp.Description("Page token from a previous call to fetch the next page"),
		),
	)

	s.AddTool(getEmailsTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_emails", instrumentation.ServiceGmail, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEmails(ctx, request, sc)
		}))

	// Search emails tool
	searchEmailsTool := mcp.NewTool("gmail_search_emails",
		mcp.WithDescription("Search emails with a Gmail query string"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail search query (e.g., 'from:user@example.com is:unread')"),
		),
		mcp.WithString("detail",
			mcp.Description("Detail level: minimal, compact, metadata, full, or raw (default: compact)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
		mcp.WithBoolean("includeSpamTrash",
			mcp.Description("Include messages from SPAM and TRASH (default: false)"),
		),
		mcp.WithString("pageToken",
			mcp.Description("Page token from a previous call to fetch the next page"),
		),
	)

	s.AddTool(searchEmailsTool, common.InstrumentedToolHandlerWithService(
		"gmail_search_emails", instrumentation.ServiceGmail, instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchEmails(ctx, request, sc)
		}))

	// Get email by ID tool
	getEmailByIDTool := mcp.NewTool("gmail_get_email_by_id",
		mcp.WithDescription("Get a single email by its message ID"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to fetch"),
		),
		mcp.WithString("detail",
			mcp.Description("Detail level: minimal, compact, metadata, full, or raw (default: compact)"),
		),
	)

	s.AddTool(getEmailByIDTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_email_by_id", instrumentation.ServiceGmail, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEmailByID(ctx, request, sc)
		}))

	// Get labels tool
	getLabelsTool := mcp.NewTool("gmail_get_labels",
		mcp.WithDescription("List all labels in the mailbox"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
	)

	s.AddTool(getLabelsTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_labels", instrumentation.ServiceGmail, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetLabels(ctx, request, sc)
		}))

	// Get profile tool
	getProfileTool := mcp.NewTool("gmail_get_profile",
		mcp.WithDescription("Get the authenticated mailbox profile (email address, message and thread counts)"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
	)

	s.AddTool(getProfileTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_profile", instrumentation.ServiceGmail, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetProfile(ctx, request, sc)
		}))

	// Get threads tool
	getThreadsTool := mcp.NewTool("gmail_get_threads",
		mcp.WithDescription("List threads matching a query, with their full messages"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("query",
			mcp.Description("Gmail search query (e.g., 'in:inbox')"),
		),
		mcp.WithString("label",
			mcp.Description("Label ID to filter by"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of threads to return (default: 10)"),
		),
		mcp.WithString("pageToken",
			mcp.Description("Page token from a previous call to fetch the next page"),
		),
	)

	s.AddTool(getThreadsTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_threads", instrumentation.ServiceGmail, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetThreads(ctx, request, sc)
		}))

	return nil
}

func handleGetEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	opts, err := listOptionsFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	page, err := client.ListMessages(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list emails: %v", err)), nil
	}

	return jsonResult(page)
}

func handleSearchEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	query := stringArg(args, "query")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	opts, err := listOptionsFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	page, err := client.ListMessages(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search emails: %v", err)), nil
	}

	return jsonResult(page)
}

func handleGetEmailByID(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	messageID := stringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	level, err := gmail.ParseDetailLevel(stringArg(args, "detail"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := client.GetMessage(ctx, messageID, level)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get email: %v", err)), nil
	}

	return jsonResult(msg)
}

func handleGetLabels(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	labels, err := client.ListLabels(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list labels: %v", err)), nil
	}

	return jsonResult(labels)
}

func handleGetProfile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	profile, err := client.GetProfile(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
	}

	return jsonResult(profile)
}

func handleGetThreads(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	opts, err := listOptionsFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	threads, nextPageToken, err := client.ListThreads(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list threads: %v", err)), nil
	}

	return jsonResult(struct {
		Threads       []*gmail.Thread `json:"threads"`
		NextPageToken string          `json:"nextPageToken,omitempty"`
	}{Threads: threads, NextPageToken: nextPageToken})
}
