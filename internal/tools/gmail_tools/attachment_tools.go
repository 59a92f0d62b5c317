package gmail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailworks/gmail-mcp/internal/instrumentation"
	"github.com/mailworks/gmail-mcp/internal/server"
	"github.com/mailworks/gmail-mcp/internal/tools/common"
)

// RegisterAttachmentTools registers the attachment tool with the MCP server.
// Attachment access is read-only and always available.
func RegisterAttachmentTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getAttachmentsTool := mcp.NewTool("gmail_get_attachments",
		mcp.WithDescription("List attachments of an email, or fetch one attachment's content as base64"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message"),
		),
		mcp.WithString("attachmentId",
			mcp.Description("Attachment ID to fetch. When omitted, only attachment descriptors are returned."),
		),
	)

	s.AddTool(getAttachmentsTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_attachments", instrumentation.ServiceGmail, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetAttachments(ctx, request, sc)
		}))

	return nil
}

func handleGetAttachments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	messageID := stringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if attachmentID := stringArg(args, "attachmentId"); attachmentID != "" {
		ref, err := client.FetchAttachment(ctx, messageID, attachmentID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch attachment: %v", err)), nil
		}
		return jsonResult(ref)
	}

	attachments, err := client.ListAttachments(ctx, messageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list attachments: %v", err)), nil
	}

	return jsonResult(attachments)
}
