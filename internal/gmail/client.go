package gmail

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/mailworks/gmail-mcp/internal/google"
)

// DefaultRequestsPerMinute caps Gmail API calls per client. Gmail enforces
// per-user quota units; staying near 100 requests a minute keeps a chatty
// agent well inside it.
const DefaultRequestsPerMinute = 100

// Client is the mailbox facade: it owns the credential handle for one
// account and translates typed requests into Gmail API calls, projecting
// raw responses back through ProjectMessage. It holds no other state.
type Client struct {
	svc     *gmail.UsersService
	account string
	limiter *rate.Limiter
}

// Account returns the account name this client is associated with.
func (c *Client) Account() string {
	return c.account
}

// HasTokenForAccount checks if a valid OAuth token exists for the specified account
func HasTokenForAccount(account string) bool {
	return google.HasTokenForAccount(account)
}

// HasToken checks if a valid OAuth token exists for the default account
func HasToken() bool {
	return google.HasToken()
}

// GetAuthURLForAccount returns the OAuth URL to authorize the given account.
func GetAuthURLForAccount(account string) string {
	return google.GetAuthURLForAccount(account)
}

// NewClientForAccount creates a new Gmail client with OAuth2 authentication
// for a specific account. The token must already exist, either cached on
// disk (stdio transport) or provided through the OAuth middleware (HTTP
// transport).
func NewClientForAccount(ctx context.Context, account string) (*Client, error) {
	httpClient, err := google.GetHTTPClientForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found for account %s: %w. Please authenticate with Google through your MCP client", account, err)
	}

	svc, err := gmail.New(httpClient)
	if err != nil {
		return nil, err
	}

	return &Client{
		svc:     svc.Users,
		account: account,
		limiter: rate.NewLimiter(rate.Every(time.Minute/DefaultRequestsPerMinute), 10),
	}, nil
}

// NewClient creates a new Gmail client for the default account.
func NewClient(ctx context.Context) (*Client, error) {
	return NewClientForAccount(ctx, "default")
}

// HasTokenForAccountWithProvider checks if the given token provider holds a
// token for the account.
func HasTokenForAccountWithProvider(account string, provider google.TokenProvider) bool {
	if provider == nil {
		return false
	}
	return provider.HasTokenForAccount(account)
}

// NewClientForAccountWithProvider creates a Gmail client whose credentials
// come from the given token provider instead of the on-disk token cache.
// This is the construction path for HTTP transports, where tokens arrive via
// OAuth validation or SSO forwarding.
func NewClientForAccountWithProvider(ctx context.Context, account string, tokenProvider google.TokenProvider) (*Client, error) {
	if tokenProvider == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}

	token, err := tokenProvider.GetTokenForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google OAuth token for account %s: %w", account, err)
	}

	httpClient := google.HTTPClientFromToken(ctx, token)

	svc, err := gmail.New(httpClient)
	if err != nil {
		return nil, err
	}

	return &Client{
		svc:     svc.Users,
		account: account,
		limiter: rate.NewLimiter(rate.Every(time.Minute/DefaultRequestsPerMinute), 10),
	}, nil
}

// NewClientWithProvider creates a Gmail client for the default account using
// the provided token provider.
func NewClientWithProvider(ctx context.Context, provider google.TokenProvider) (*Client, error) {
	return NewClientForAccountWithProvider(ctx, "default", provider)
}

// wait blocks until the rate limiter admits another API call, or the
// context is cancelled.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// GetProfile fetches the authenticated mailbox's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	p, err := c.svc.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryID:     p.HistoryId,
	}, nil
}

// GetMessage fetches one message and projects it at the given detail level.
func (c *Client) GetMessage(ctx context.Context, id string, level DetailLevel) (*Message, error) {
	if id == "" {
		return nil, fmt.Errorf("message id is required")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	raw, err := c.svc.Messages.Get("me", id).Format(level.StoreFormat()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return ProjectMessage(raw, level)
}

// ListOptions are the knobs for ListMessages and ListThreads. Pagination is
// explicit: callers pass the page token from a prior call, nothing is
// auto-paginated or buffered.
type ListOptions struct {
	LabelIDs         []string
	Query            string
	MaxResults       int64
	IncludeSpamTrash bool
	PageToken        string
	Detail           DetailLevel
}

// MessagePage is one page of projected messages.
type MessagePage struct {
	Messages           []*Message `json:"messages"`
	NextPageToken      string     `json:"nextPageToken,omitempty"`
	ResultSizeEstimate int64      `json:"resultSizeEstimate,omitempty"`
}

// ListMessages lists message IDs matching the options and hydrates each one
// via GetMessage at the requested detail level. The Gmail list endpoint
// only returns id/threadId stubs, so hydration is one fetch per message.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) (*MessagePage, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	level := opts.Detail
	if level == "" {
		level = DetailCompact
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	call := c.svc.Messages.List("me").
		MaxResults(maxResults).
		IncludeSpamTrash(opts.IncludeSpamTrash)
	if len(opts.LabelIDs) > 0 {
		call = call.LabelIds(opts.LabelIDs...)
	}
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &MessagePage{
		Messages:           make([]*Message, 0, len(res.Messages)),
		NextPageToken:      res.NextPageToken,
		ResultSizeEstimate: res.ResultSizeEstimate,
	}
	for _, stub := range res.Messages {
		msg, err := c.GetMessage(ctx, stub.Id, level)
		if err != nil {
			return nil, err
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}

// SendMessage composes and sends a message. When the request carries a
// thread ID it is set on the send request as well as in the References
// header, keeping the reply in its thread.
func (c *Client) SendMessage(ctx context.Context, req *ComposeRequest) (messageID, threadID string, err error) {
	raw, err := Compose(req)
	if err != nil {
		return "", "", err
	}
	if err := c.wait(ctx); err != nil {
		return "", "", err
	}
	sent, err := c.svc.Messages.Send("me", &gmail.Message{
		Raw:      raw,
		ThreadId: req.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("failed to send message: %w", err)
	}
	return sent.Id, sent.ThreadId, nil
}

// ReplyToMessage sends a reply to an existing message. The recipient
// defaults to the original sender and the subject gains a "Re: " prefix.
// replyAll is accepted for interface compatibility but does not currently
// expand Cc recipients from the original headers.
func (c *Client) ReplyToMessage(ctx context.Context, messageID, bodyText, bodyHTML string, cc, bcc []string, replyAll bool) (string, string, error) {
	if messageID == "" {
		return "", "", fmt.Errorf("messageID is required")
	}

	original, err := c.GetMessage(ctx, messageID, DetailCompact)
	if err != nil {
		return "", "", fmt.Errorf("failed to get original message: %w", err)
	}
	if original.Sender == "" {
		return "", "", fmt.Errorf("original message %s has no From header", messageID)
	}

	_ = replyAll // reply-all recipient expansion is not implemented yet

	return c.SendMessage(ctx, &ComposeRequest{
		To:        []string{original.Sender},
		Cc:        cc,
		Bcc:       bcc,
		Subject:   ReplySubject(original.Subject),
		BodyText:  bodyText,
		BodyHTML:  bodyHTML,
		ThreadID:  original.ThreadID,
		InReplyTo: messageID,
	})
}

// ForwardMessage forwards an existing message to new recipients, prepending
// the quoted header block and any additional text the caller supplies.
func (c *Client) ForwardMessage(ctx context.Context, messageID string, to, cc, bcc []string, additional string) (string, error) {
	if messageID == "" {
		return "", fmt.Errorf("messageID is required")
	}
	if len(to) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	original, err := c.GetMessage(ctx, messageID, DetailFull)
	if err != nil {
		return "", fmt.Errorf("failed to get original message: %w", err)
	}

	id, _, err := c.SendMessage(ctx, BuildForward(original, to, cc, bcc, additional))
	return id, err
}

// ModifyLabels adds and/or removes labels on a message and returns the
// store's post-mutation representation, re-projected. The projection is
// rebuilt fresh; nothing is mutated in place.
func (c *Client) ModifyLabels(ctx context.Context, id string, add, remove []string) (*Message, error) {
	if id == "" {
		return nil, fmt.Errorf("message id is required")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	updated, err := c.svc.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to modify labels on message %s: %w", id, err)
	}
	return ProjectMessage(updated, DetailMinimal)
}

// DeleteMessage permanently deletes a message. This bypasses the trash.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("message id is required")
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.svc.Messages.Delete("me", id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return nil
}

// ListLabels lists all labels in the mailbox.
func (c *Client) ListLabels(ctx context.Context) ([]*Label, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.svc.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	labels := make([]*Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, toLabel(l))
	}
	return labels, nil
}

// CreateLabel creates a user label. Empty visibilities fall back to the
// Gmail defaults (show in message list, show in label list).
func (c *Client) CreateLabel(ctx context.Context, name, messageListVisibility, labelListVisibility string) (*Label, error) {
	if name == "" {
		return nil, fmt.Errorf("label name is required")
	}
	if messageListVisibility == "" {
		messageListVisibility = "show"
	}
	if labelListVisibility == "" {
		labelListVisibility = "labelShow"
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	created, err := c.svc.Labels.Create("me", &gmail.Label{
		Name:                  name,
		MessageListVisibility: messageListVisibility,
		LabelListVisibility:   labelListVisibility,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create label %q: %w", name, err)
	}
	return toLabel(created), nil
}

func toLabel(l *gmail.Label) *Label {
	return &Label{
		ID:                    l.Id,
		Name:                  l.Name,
		Type:                  l.Type,
		MessageListVisibility: l.MessageListVisibility,
		LabelListVisibility:   l.LabelListVisibility,
		MessagesTotal:         l.MessagesTotal,
		MessagesUnread:        l.MessagesUnread,
	}
}

// ListThreads lists threads matching the options and hydrates each one with
// its full messages via a per-thread get. Returns the threads and the next
// page token.
func (c *Client) ListThreads(ctx context.Context, opts ListOptions) ([]*Thread, string, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	call := c.svc.Threads.List("me").
		MaxResults(maxResults).
		IncludeSpamTrash(opts.IncludeSpamTrash)
	if len(opts.LabelIDs) > 0 {
		call = call.LabelIds(opts.LabelIDs...)
	}
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list threads: %w", err)
	}

	threads := make([]*Thread, 0, len(res.Threads))
	for _, stub := range res.Threads {
		thread, err := c.GetThread(ctx, stub.Id)
		if err != nil {
			return nil, "", err
		}
		threads = append(threads, thread)
	}
	return threads, res.NextPageToken, nil
}

// GetThread fetches a full thread and projects each of its messages.
func (c *Client) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	raw, err := c.svc.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}

	thread := &Thread{
		ID:        raw.Id,
		Snippet:   raw.Snippet,
		HistoryID: raw.HistoryId,
		Messages:  make([]*Message, 0, len(raw.Messages)),
	}
	for _, rawMsg := range raw.Messages {
		msg, err := ProjectMessage(rawMsg, DetailFull)
		if err != nil {
			return nil, fmt.Errorf("thread %s: %w", threadID, err)
		}
		thread.Messages = append(thread.Messages, msg)
	}
	return thread, nil
}

// CreateDraft composes the request and stores it as a draft. The thread ID,
// when given, attaches the draft to an existing thread.
func (c *Client) CreateDraft(ctx context.Context, req *ComposeRequest) (*Draft, error) {
	raw, err := Compose(req)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	created, err := c.svc.Drafts.Create("me", &gmail.Draft{
		Message: &gmail.Message{
			Raw:      raw,
			ThreadId: req.ThreadID,
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	draft := &Draft{ID: created.Id}
	if created.Message != nil && created.Message.Id != "" {
		msg, err := ProjectMessage(created.Message, DetailMinimal)
		if err != nil {
			return nil, err
		}
		draft.Message = msg
	}
	return draft, nil
}

// ListDrafts lists drafts and hydrates each via a per-draft get, projecting
// the contained message at compact detail.
func (c *Client) ListDrafts(ctx context.Context, maxResults int64, pageToken string) ([]*Draft, string, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	call := c.svc.Drafts.List("me").MaxResults(maxResults)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list drafts: %w", err)
	}

	drafts := make([]*Draft, 0, len(res.Drafts))
	for _, stub := range res.Drafts {
		if err := c.wait(ctx); err != nil {
			return nil, "", err
		}
		full, err := c.svc.Drafts.Get("me", stub.Id).Format(DetailCompact.StoreFormat()).Context(ctx).Do()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get draft %s: %w", stub.Id, err)
		}
		draft := &Draft{ID: full.Id}
		if full.Message != nil {
			msg, err := ProjectMessage(full.Message, DetailCompact)
			if err != nil {
				return nil, "", err
			}
			draft.Message = msg
		}
		drafts = append(drafts, draft)
	}
	return drafts, res.NextPageToken, nil
}

// SendDraft sends an existing draft and returns the sent message's ID.
func (c *Client) SendDraft(ctx context.Context, draftID string) (string, error) {
	if draftID == "" {
		return "", fmt.Errorf("draft id is required")
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	sent, err := c.svc.Drafts.Send("me", &gmail.Draft{Id: draftID}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send draft %s: %w", draftID, err)
	}
	return sent.Id, nil
}
