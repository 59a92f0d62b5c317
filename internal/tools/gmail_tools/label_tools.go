package gmail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailworks/gmail-mcp/internal/gmail"
	"github.com/mailworks/gmail-mcp/internal/instrumentation"
	"github.com/mailworks/gmail-mcp/internal/server"
	"github.com/mailworks/gmail-mcp/internal/tools/batch"
	"github.com/mailworks/gmail-mcp/internal/tools/common"
)

// RegisterLabelTools registers the label and mailbox state tools with the
// MCP server. All of them mutate the mailbox and are skipped in read-only
// mode.
func RegisterLabelTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if readOnly {
		return nil
	}

	// Mark as read tool (supports single or multiple messages)
	markReadTool := mcp.NewTool("gmail_mark_as_read",
		mcp.WithDescription("Mark one or more emails as read by removing the UNREAD label"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("Message ID (string) or array of message IDs"),
		),
	)

	s.AddTool(markReadTool, common.InstrumentedToolHandlerWithService(
		"gmail_mark_as_read", instrumentation.ServiceGmail, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleLabelBatch(ctx, request, sc, nil, []string{"UNREAD"})
		}))

	// Mark as unread tool (supports single or multiple messages)
	markUnreadTool := mcp.NewTool("gmail_mark_as_unread",
		mcp.WithDescription("Mark one or more emails as unread by adding the UNREAD label"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("Message ID (string) or array of message IDs"),
		),
	)

	s.AddTool(markUnreadTool, common.InstrumentedToolHandlerWithService(
		"gmail_mark_as_unread", instrumentation.ServiceGmail, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleLabelBatch(ctx, request, sc, []string{"UNREAD"}, nil)
		}))

	// Archive tool (supports single or multiple messages)
	archiveTool := mcp.NewTool("gmail_archive_email",
		mcp.WithDescription("Archive one or more emails by removing them from the inbox"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("Message ID (string) or array of message IDs"),
		),
	)

	s.AddTool(archiveTool, common.InstrumentedToolHandlerWithService(
		"gmail_archive_email", instrumentation.ServiceGmail, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleLabelBatch(ctx, request, sc, nil, []string{"INBOX"})
		}))

	// Delete tool
	deleteTool := mcp.NewTool("gmail_delete_email",
		mcp.WithDescription("Permanently delete an email. This bypasses the trash and cannot be undone."),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to delete"),
		),
	)

	s.AddTool(deleteTool, common.InstrumentedToolHandlerWithService(
		"gmail_delete_email", instrumentation.ServiceGmail, instrumentation.OperationDelete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEmail(ctx, request, sc)
		}))

	// Add label tool
	addLabelTool := mcp.NewTool("gmail_add_label",
		mcp.WithDescription("Add a label to an email"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message"),
		),
		mcp.WithString("labelId",
			mcp.Required(),
			mcp.Description("The ID of the label to add"),
		),
	)

	s.AddTool(addLabelTool, common.InstrumentedToolHandlerWithService(
		"gmail_add_label", instrumentation.ServiceGmail, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleModifyLabel(ctx, request, sc, true)
		}))

	// Remove label tool
	removeLabelTool := mcp.NewTool("gmail_remove_label",
		mcp.WithDescription("Remove a label from an email"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message"),
		),
		mcp.WithString("labelId",
			mcp.Required(),
			mcp.Description("The ID of the label to remove"),
		),
	)

	s.AddTool(removeLabelTool, common.InstrumentedToolHandlerWithService(
		"gmail_remove_label", instrumentation.ServiceGmail, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleModifyLabel(ctx, request, sc, false)
		}))

	// Create label tool
	createLabelTool := mcp.NewTool("gmail_create_label",
		mcp.WithDescription("Create a new user label"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Label name. Use '/' for nesting (e.g., 'Projects/Mailworks')."),
		),
		mcp.WithString("messageListVisibility",
			mcp.Description("Message list visibility: 'show' or 'hide' (default: 'show')"),
		),
		mcp.WithString("labelListVisibility",
			mcp.Description("Label list visibility: 'labelShow', 'labelShowIfUnread' or 'labelHide' (default: 'labelShow')"),
		),
	)

	s.AddTool(createLabelTool, common.InstrumentedToolHandlerWithService(
		"gmail_create_label", instrumentation.ServiceGmail, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateLabel(ctx, request, sc)
		}))

	// Move to folder tool (supports single or multiple messages)
	moveTool := mcp.NewTool("gmail_move_to_folder",
		mcp.WithDescription("Move one or more emails to a folder by applying the target label and removing INBOX"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("Message ID (string) or array of message IDs"),
		),
		mcp.WithString("labelId",
			mcp.Required(),
			mcp.Description("The ID of the target label (use 'INBOX' to move back to the inbox)"),
		),
	)

	s.AddTool(moveTool, common.InstrumentedToolHandlerWithService(
		"gmail_move_to_folder", instrumentation.ServiceGmail, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMoveToFolder(ctx, request, sc)
		}))

	return nil
}

// handleLabelBatch applies one label mutation to a batch of messages and
// reports per-message results.
func handleLabelBatch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, add, remove []string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	messageIDs, err := batch.ParseStringOrArray(args["messageIds"], "messageIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(messageIDs, func(messageID string) (string, error) {
		if _, err := client.ModifyLabels(ctx, messageID, add, remove); err != nil {
			return "", err
		}
		return "labels updated", nil
	})

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleDeleteEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
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

	if err := client.DeleteMessage(ctx, messageID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to delete email: %v", err)), nil
	}

	return jsonResult(struct {
		MessageID string `json:"messageId"`
		Status    string `json:"status"`
	}{MessageID: messageID, Status: "deleted"})
}

func handleModifyLabel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, add bool) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	messageID := stringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}
	labelID := stringArg(args, "labelId")
	if labelID == "" {
		return mcp.NewToolResultError("labelId is required"), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var msg *gmail.Message
	if add {
		msg, err = client.ModifyLabels(ctx, messageID, []string{labelID}, nil)
	} else {
		msg, err = client.ModifyLabels(ctx, messageID, nil, []string{labelID})
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to modify labels: %v", err)), nil
	}

	return jsonResult(msg)
}

func handleCreateLabel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	name := stringArg(args, "name")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	label, err := client.CreateLabel(ctx, name,
		stringArg(args, "messageListVisibility"),
		stringArg(args, "labelListVisibility"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create label: %v", err)), nil
	}

	return jsonResult(label)
}

// moveLabelChanges computes the label mutation for moving a message to the
// given target. Moving to INBOX only adds the label; any other target also
// removes INBOX so the message leaves the inbox.
func moveLabelChanges(targetLabelID string) (add, remove []string) {
	add = []string{targetLabelID}
	if targetLabelID != "INBOX" {
		remove = []string{"INBOX"}
	}
	return add, remove
}

func handleMoveToFolder(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	labelID := stringArg(args, "labelId")
	if labelID == "" {
		return mcp.NewToolResultError("labelId is required"), nil
	}

	messageIDs, err := batch.ParseStringOrArray(args["messageIds"], "messageIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	add, remove := moveLabelChanges(labelID)
	results := batch.ProcessBatch(messageIDs, func(messageID string) (string, error) {
		if _, err := client.ModifyLabels(ctx, messageID, add, remove); err != nil {
			return "", err
		}
		return fmt.Sprintf("moved to %s", labelID), nil
	})

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}
