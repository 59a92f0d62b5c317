package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mailworks/gmail-mcp/internal/gmail"
	"github.com/mailworks/gmail-mcp/internal/google"
	"github.com/mailworks/gmail-mcp/internal/instrumentation"
	"github.com/mailworks/gmail-mcp/internal/logging"
)

// ServerContext holds the shared state for the MCP server: cached Gmail
// clients per account, the token provider they draw credentials from, and
// the instrumentation handles tools record into.
type ServerContext struct {
	ctx           context.Context
	cancel        context.CancelFunc
	gmailClients  map[string]*gmail.Client // account name -> Gmail client
	tokenProvider google.TokenProvider
	metrics       *instrumentation.Metrics
	auditLogger   *instrumentation.AuditLogger
	logger        *slog.Logger
	mu            sync.RWMutex
	shutdown      bool
}

// ServerContextOption configures a ServerContext.
type ServerContextOption func(*ServerContext)

// WithTokenProvider sets the token provider used to build Gmail clients.
// HTTP transports pass the OAuth store-backed provider here; the default is
// the file-based provider used by the stdio transport.
func WithTokenProvider(provider google.TokenProvider) ServerContextOption {
	return func(sc *ServerContext) {
		sc.tokenProvider = provider
	}
}

// WithMetrics sets the metrics recorder for tool instrumentation.
func WithMetrics(metrics *instrumentation.Metrics) ServerContextOption {
	return func(sc *ServerContext) {
		sc.metrics = metrics
	}
}

// WithAuditLogger sets the audit logger for tool invocations.
func WithAuditLogger(auditLogger *instrumentation.AuditLogger) ServerContextOption {
	return func(sc *ServerContext) {
		sc.auditLogger = auditLogger
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServerContextOption {
	return func(sc *ServerContext) {
		sc.logger = logger
	}
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, opts ...ServerContextOption) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:           shutdownCtx,
		cancel:        cancel,
		gmailClients:  make(map[string]*gmail.Client),
		tokenProvider: google.NewFileTokenProvider(),
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(sc)
	}

	// Eagerly create the default client when a token already exists, so
	// the first tool call does not pay the construction cost. Missing
	// tokens are not an error here; clients are lazily created on first
	// use once the user authenticates.
	if gmail.HasTokenForAccountWithProvider("default", sc.tokenProvider) {
		client, err := gmail.NewClientWithProvider(shutdownCtx, sc.tokenProvider)
		if err != nil {
			sc.logger.Warn("failed to create Gmail client for default account",
				logging.Component("server"),
				logging.Err(err))
		} else {
			sc.gmailClients["default"] = client
		}
	}

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// TokenProvider returns the token provider Gmail clients are built from.
func (sc *ServerContext) TokenProvider() google.TokenProvider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.tokenProvider
}

// SetTokenProvider replaces the token provider. Cached clients built from
// the previous provider are dropped so subsequent calls use fresh tokens.
func (sc *ServerContext) SetTokenProvider(provider google.TokenProvider) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.tokenProvider = provider
	sc.gmailClients = make(map[string]*gmail.Client)
}

// Metrics returns the metrics recorder, or nil when instrumentation is
// disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil when audit logging is
// disabled.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Logger returns the structured logger.
func (sc *ServerContext) Logger() *slog.Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// GmailClientForAccount returns the Gmail client for a specific account.
// Creates and caches the client if it doesn't exist yet.
// Returns nil if the account has no token.
func (sc *ServerContext) GmailClientForAccount(account string) *gmail.Client {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Check if client already exists
	if client, ok := sc.gmailClients[account]; ok {
		return client
	}

	// Try to create client if token exists
	if !gmail.HasTokenForAccountWithProvider(account, sc.tokenProvider) {
		return nil
	}

	client, err := gmail.NewClientForAccountWithProvider(sc.ctx, account, sc.tokenProvider)
	if err != nil {
		sc.logger.Warn("failed to create Gmail client",
			logging.Component("server"),
			logging.Account(account),
			logging.Err(err))
		return nil
	}

	sc.gmailClients[account] = client
	return client
}

// GmailClient returns the Gmail client for the default account
func (sc *ServerContext) GmailClient() *gmail.Client {
	return sc.GmailClientForAccount("default")
}

// SetGmailClientForAccount sets the Gmail client for a specific account
func (sc *ServerContext) SetGmailClientForAccount(account string, client *gmail.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gmailClients[account] = client
}

// SetGmailClient sets the Gmail client for the default account
func (sc *ServerContext) SetGmailClient(client *gmail.Client) {
	sc.SetGmailClientForAccount("default", client)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
