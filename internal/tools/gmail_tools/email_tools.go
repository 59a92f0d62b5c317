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

// RegisterEmailTools registers the send/reply/forward tools with the MCP
// server. All three mutate the mailbox and are skipped in read-only mode.
func RegisterEmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if readOnly {
		return nil
	}

	// Send email tool
	sendEmailTool := mcp.NewTool("gmail_send_email",
		mcp.WithDescription("Send an email through Gmail"),
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
			mcp.Description("Plain-text email body. At least one of body or bodyHtml must be provided."),
		),
		mcp.WithString("bodyHtml",
			mcp.Description("HTML email body. When set, the email is sent as multipart/alternative."),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("attachments",
			mcp.Description("File path (string) or array of file paths to attach"),
		),
		mcp.WithString("threadId",
			mcp.Description("Thread ID to send the message in (for replies within an existing thread)"),
		),
		mcp.WithString("inReplyTo",
			mcp.Description("Message ID this email replies to (sets the In-Reply-To header)"),
		),
	)

	s.AddTool(sendEmailTool, common.InstrumentedToolHandlerWithService(
		"gmail_send_email", instrumentation.ServiceGmail, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendEmail(ctx, request, sc)
		}))

	// Reply to email tool
	replyTool := mcp.NewTool("gmail_reply_to_email",
		mcp.WithDescription("Reply to an existing email. The recipient defaults to the original sender and the reply stays in its thread."),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to reply to"),
		),
		mcp.WithString("body",
			mcp.Description("Plain-text reply body. At least one of body or bodyHtml must be provided."),
		),
		mcp.WithString("bodyHtml",
			mcp.Description("HTML reply body. At least one of body or bodyHtml must be provided."),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithBoolean("replyAll",
			mcp.Description("Reply to all original recipients (currently accepted but not expanded)"),
		),
	)

	s.AddTool(replyTool, common.InstrumentedToolHandlerWithService(
		"gmail_reply_to_email", instrumentation.ServiceGmail, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReplyToEmail(ctx, request, sc)
		}))

	// Forward email tool
	forwardTool := mcp.NewTool("gmail_forward_email",
		mcp.WithDescription("Forward an existing email to new recipients with the quoted original"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to forward"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("additionalText",
			mcp.Description("Text to prepend above the forwarded message"),
		),
	)

	s.AddTool(forwardTool, common.InstrumentedToolHandlerWithService(
		"gmail_forward_email", instrumentation.ServiceGmail, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleForwardEmail(ctx, request, sc)
		}))

	return nil
}

func handleSendEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
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
		return mcp.NewToolResultError("either body or bodyHtml must be provided"), nil
	}

	var attachmentPaths []string
	if raw, ok := args["attachments"]; ok && raw != nil {
		paths, err := batch.ParseStringOrArray(raw, "attachments")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		attachmentPaths = paths
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	messageID, threadID, err := client.SendMessage(ctx, &gmail.ComposeRequest{
		To:              to,
		Cc:              splitEmailAddresses(stringArg(args, "cc")),
		Bcc:             splitEmailAddresses(stringArg(args, "bcc")),
		Subject:         subject,
		BodyText:        body,
		BodyHTML:        bodyHTML,
		ThreadID:        stringArg(args, "threadId"),
		InReplyTo:       stringArg(args, "inReplyTo"),
		AttachmentPaths: attachmentPaths,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send email: %v", err)), nil
	}

	return jsonResult(struct {
		MessageID string `json:"messageId"`
		ThreadID  string `json:"threadId"`
	}{MessageID: messageID, ThreadID: threadID})
}

func handleReplyToEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	messageID := stringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	body := stringArg(args, "body")
	bodyHTML := stringArg(args, "bodyHtml")
	if body == "" && bodyHTML == "" {
		return mcp.NewToolResultError("either body or bodyHtml must be provided"), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sentID, threadID, err := client.ReplyToMessage(ctx, messageID,
		body,
		bodyHTML,
		splitEmailAddresses(stringArg(args, "cc")),
		splitEmailAddresses(stringArg(args, "bcc")),
		boolArg(args, "replyAll"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reply to email: %v", err)), nil
	}

	return jsonResult(struct {
		MessageID string `json:"messageId"`
		ThreadID  string `json:"threadId"`
	}{MessageID: sentID, ThreadID: threadID})
}

func handleForwardEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(ctx, args)

	messageID := stringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	to := splitEmailAddresses(stringArg(args, "to"))
	if len(to) == 0 {
		return mcp.NewToolResultError("to is required"), nil
	}

	client, err := getGmailClient(ctx, account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sentID, err := client.ForwardMessage(ctx, messageID, to,
		splitEmailAddresses(stringArg(args, "cc")),
		splitEmailAddresses(stringArg(args, "bcc")),
		stringArg(args, "additionalText"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to forward email: %v", err)), nil
	}

	return jsonResult(struct {
		MessageID string `json:"messageId"`
	}{MessageID: sentID})
}
