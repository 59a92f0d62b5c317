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

// RegisterDraftTools registers the draft tools with the MCP server.
// Listing drafts is always available; creating and sending drafts mutate the
// mailbox and are skipped in read-only mode.
func RegisterDraftTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	// Get drafts tool
	getDraftsTool := mcp.NewTool("gmail_get_drafts",
		mcp.WithDescription("List drafts in the mailbox"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of drafts to return (default: 10)"),
		),
		mcp.WithString("pageToken",
			mcp.Description("Page token from a previous call to fetch the next page"),
		),
	)

	s.AddTool(getDraftsTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_drafts", instrumentation.ServiceGmail, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetDrafts(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	// Create draft tool
	createDraftTool := mcp.NewTool("gmail_create_draft",
		mcp.WithDescription("Create a draft email without sending it"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text email body"),
		),
		mcp.WithString("bodyHtml",
			mcp.Description("HTML email body. When set, the draft is multipart/alternative."),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("threadId",
			mcp.Description("Thread ID to attach the draft to"),
		),
	)

	s.AddTool(createDraftTool, common.InstrumentedToolHandlerWithService(
		"gmail_create_draft", instrumentation.ServiceGmail, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateDraft(ctx, request, sc)
		}))

	// Send draft tool
	sendDraftTool := mcp.NewTool("gmail_send_draft",
		mcp.WithDescription("Send an existing draft"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("draftId",
			mcp.Required(),
			mcp.Description("The ID of the draft to send"),
		),
	)

	s.AddTool(sendDraftTool, common.InstrumentedToolHandlerWithService(
		"gmail_send_draft", instrumentation.ServiceGmail, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendDraft(ctx, request, sc)
		}))

	return nil
}

func handleGetDrafts(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	drafts, nextPageToken, err := client.ListDrafts(ctx, int64Arg(args, "maxResults", 10), stringArg(args, "pageToken"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list drafts: %v", err)), nil
	}

	return jsonResult(struct {
		Drafts        []*gmail.Draft `json:"drafts"`
		NextPageToken string         `json:"nextPageToken,omitempty"`
	}{Drafts: drafts, NextPageToken: nextPageToken})
}

func handleCreateDraft(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	to := splitEmailAddresses(stringArg(args, "to"))
	if len(to) == 0 {
		return mcp.NewToolResultError("to is required"), nil
	}

	subject := stringArg(args, "subject")
	if subject == "" {
		return mcp.NewToolResultError("subject is required"), nil
	}

	body := stringArg(args, "body")
	bodyHTML := stringArg(args, "bodyHtml")
	if body == "" && bodyHTML == "" {
		return mcp.NewToolResultError("body is required"), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	draft, err := client.CreateDraft(ctx, &gmail.ComposeRequest{
		To:       to,
		Cc:       splitEmailAddresses(stringArg(args, "cc")),
		Bcc:      splitEmailAddresses(stringArg(args, "bcc")),
		Subject:  subject,
		BodyText: body,
		BodyHTML: bodyHTML,
		ThreadID: stringArg(args, "threadId"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create draft: %v", err)), nil
	}

	return jsonResult(draft)
}

func handleSendDraft(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	draftID := stringArg(args, "draftId")
	if draftID == "" {
		return mcp.NewToolResultError("draftId is required"), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	messageID, err := client.SendDraft(ctx, draftID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send draft: %v", err)), nil
	}

	return jsonResult(struct {
		DraftID   string `json:"draftId"`
		MessageID string `json:"messageId"`
	}{DraftID: draftID, MessageID: messageID})
}
