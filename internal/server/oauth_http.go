package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/giantswarm/mcp-oauth/storage"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailworks/gmail-mcp/internal/instrumentation"
	"github.com/mailworks/gmail-mcp/internal/mcp/oauth"
)

// OAuthHTTPServer wraps an MCP server with OAuth 2.1 authentication.
// It implements RFC 9728 Protected Resource Metadata so MCP clients can
// discover Google as the authorization server, validates bearer tokens on
// every MCP request, and feeds validated tokens to the Gmail clients through
// the token provider.
type OAuthHTTPServer struct {
	mcpServer      *mcpserver.MCPServer
	oauthHandler   *oauth.Handler
	tokenStore     storage.TokenStore
	tokenProvider  *oauth.TokenProvider
	sessionManager *SessionIDManager
	httpServer     *http.Server
	serverType     string // "sse" or "streamable-http"
	healthChecker  *HealthChecker
	metrics        *instrumentation.Metrics
	logger         *slog.Logger

	googleClientID     string
	googleClientSecret string
	trustProxy         bool
	tlsCertFile        string
	tlsKeyFile         string
}

// OAuthHTTPServerOption configures an OAuthHTTPServer.
type OAuthHTTPServerOption func(*OAuthHTTPServer)

// WithOAuthMetrics attaches a metrics recorder for HTTP and OAuth metrics.
func WithOAuthMetrics(metrics *instrumentation.Metrics) OAuthHTTPServerOption {
	return func(s *OAuthHTTPServer) {
		s.metrics = metrics
	}
}

// WithOAuthLogger sets the structured logger.
func WithOAuthLogger(logger *slog.Logger) OAuthHTTPServerOption {
	return func(s *OAuthHTTPServer) {
		s.logger = logger
	}
}

// WithHealthChecker attaches a health checker whose endpoints are registered
// on the server mux.
func WithHealthChecker(h *HealthChecker) OAuthHTTPServerOption {
	return func(s *OAuthHTTPServer) {
		s.healthChecker = h
	}
}

// WithGoogleCredentials provides the Google OAuth client credentials that
// enable automatic refresh of stored tokens. Without them, users must
// re-authenticate when their tokens expire.
func WithGoogleCredentials(clientID, clientSecret string) OAuthHTTPServerOption {
	return func(s *OAuthHTTPServer) {
		s.googleClientID = clientID
		s.googleClientSecret = clientSecret
	}
}

// WithTrustProxy makes the rate limiters trust X-Forwarded-For headers.
// Enable only when the server runs behind a trusted reverse proxy.
func WithTrustProxy(trust bool) OAuthHTTPServerOption {
	return func(s *OAuthHTTPServer) {
		s.trustProxy = trust
	}
}

// WithTLS serves HTTPS with the given certificate and key files.
func WithTLS(certFile, keyFile string) OAuthHTTPServerOption {
	return func(s *OAuthHTTPServer) {
		s.tlsCertFile = certFile
		s.tlsKeyFile = keyFile
	}
}

// NewOAuthHTTPServer creates a new OAuth-enabled HTTP server for MCP
func NewOAuthHTTPServer(mcpServer *mcpserver.MCPServer, serverType string, baseURL string, opts ...OAuthHTTPServerOption) (*OAuthHTTPServer, error) {
	s := &OAuthHTTPServer{
		mcpServer:  mcpServer,
		serverType: serverType,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Create OAuth handler with Google as the authorization server.
	// Scopes default to the Gmail scope set inside NewHandler.
	oauthConfig := &oauth.Config{
		Resource: baseURL,
		GoogleAuth: oauth.GoogleAuthConfig{
			ClientID:     s.googleClientID,
			ClientSecret: s.googleClientSecret,
		},
		RateLimit: oauth.RateLimitConfig{
			Rate:       oauth.DefaultRateLimitRate,
			Burst:      oauth.DefaultRateLimitBurst,
			UserRate:   oauth.DefaultRateLimitRate,
			TrustProxy: s.trustProxy,
		},
		CleanupInterval: oauth.DefaultCleanupInterval,
		Logger:          s.logger,
	}

	oauthHandler, err := oauth.NewHandler(oauthConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth handler: %w", err)
	}
	s.oauthHandler = oauthHandler

	// Token store shared by the SSO middleware and the token provider.
	// Gmail clients resolve credentials from here on HTTP transports.
	s.tokenStore = memory.New()
	s.tokenProvider = oauth.NewTokenProvider(s.tokenStore)

	// Sessions track which bearer token already synced its account's token,
	// so repeat requests skip the store write.
	s.sessionManager = NewSessionIDManager()

	return s, nil
}

// TokenProvider returns the token provider backed by the OAuth token store.
// Pass this to the ServerContext so Gmail clients use validated tokens.
func (s *OAuthHTTPServer) TokenProvider() *oauth.TokenProvider {
	return s.tokenProvider
}

// GetOAuthHandler returns the OAuth handler for testing or direct access
func (s *OAuthHTTPServer) GetOAuthHandler() *oauth.Handler {
	return s.oauthHandler
}

// wrapMCPHandler layers the middleware stack around an MCP endpoint:
// rate limiting, bearer token validation, per-user rate limiting, SSO token
// forwarding, and instrumentation.
func (s *OAuthHTTPServer) wrapMCPHandler(handler http.Handler) http.Handler {
	// Innermost first: SSO forwarding runs after validation so the user
	// identity is in context, then per-user rate limiting.
	wrapped := oauth.WrapWithSSOAccessTokenAndMetrics(handler, s.tokenStore, s.logger, s.ssoMetrics())
	wrapped = s.tokenSyncMiddleware(wrapped)
	wrapped = s.oauthHandler.UserRateLimitMiddleware(wrapped)
	wrapped = s.oauthHandler.ValidateGoogleToken(wrapped)
	wrapped = s.oauthHandler.RateLimitMiddleware(wrapped)
	wrapped = s.oauthInstrumentationWrapper(wrapped)
	return s.instrumentationMiddleware(wrapped)
}

// tokenSyncMiddleware copies the validated bearer token into the shared
// token store under the user's email, so the token provider can hand it to
// Gmail clients. Runs after ValidateGoogleToken, which put both the user and
// the token in context. The session manager keys sessions by bearer token, so
// a token already synced for this account is not written again; a rotated
// token hashes to a new session and gets stored.
func (s *OAuthHTTPServer) tokenSyncMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userInfo, userOK := oauth.GetUserFromContext(ctx)
		token, tokenOK := oauth.GetGoogleTokenFromContext(ctx)
		if userOK && tokenOK && userInfo.Email != "" {
			sessionID, err := s.sessionManager.ResolveSessionID(r)
			if err == nil && s.sessionManager.AccountForSession(sessionID) == userInfo.Email {
				next.ServeHTTP(w, r)
				return
			}
			if err := s.tokenStore.SaveToken(ctx, userInfo.Email, token); err != nil {
				s.logger.Warn("failed to sync token to store", "error", err)
			} else if sessionID != "" {
				s.sessionManager.BindSession(sessionID, userInfo.Email)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ssoMetrics returns the SSO metrics recorder, or nil when metrics are
// disabled. A typed nil interface would defeat the middleware's nil check.
func (s *OAuthHTTPServer) ssoMetrics() oauth.SSOMetricsRecorder {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

// Start starts the OAuth-enabled HTTP server
func (s *OAuthHTTPServer) Start(addr string) error {
	// Validate HTTPS requirement for OAuth 2.1
	// Exception: localhost is allowed to use HTTP for development
	config := s.oauthHandler.GetConfig()
	baseURL := config.Resource
	if err := validateHTTPSRequirement(baseURL); err != nil {
		return err
	}

	mux := http.NewServeMux()

	// Protected Resource Metadata endpoint (RFC 9728).
	// This tells MCP clients where to find the authorization server (Google).
	metadataHandler := http.HandlerFunc(s.oauthHandler.ServeProtectedResourceMetadata)
	mux.Handle("/.well-known/oauth-protected-resource", s.oauthHandler.RateLimitMiddleware(metadataHandler))

	// Token revocation endpoint
	revokeHandler := http.HandlerFunc(s.oauthHandler.ServeRevoke)
	mux.Handle("/oauth/revoke", s.oauthHandler.RateLimitMiddleware(revokeHandler))

	// Health endpoints for Kubernetes probes
	if s.healthChecker != nil {
		s.healthChecker.RegisterHealthEndpoints(mux)
	}

	// Register MCP endpoints based on server type
	switch s.serverType {
	case "sse":
		sseServer := mcpserver.NewSSEServer(s.mcpServer,
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
		)

		mux.Handle("/sse", s.wrapMCPHandler(sseServer))
		mux.Handle("/message", s.wrapMCPHandler(sseServer))

	case "streamable-http":
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
		)

		mux.Handle("/mcp", s.wrapMCPHandler(httpServer))

	default:
		return fmt.Errorf("unsupported server type: %s", s.serverType)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting OAuth HTTP server",
		"addr", addr,
		"transport", s.serverType,
		"resource", baseURL,
		"tls", s.tlsCertFile != "" && s.tlsKeyFile != "")
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	if s.sessionManager != nil {
		s.sessionManager.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// responseWriter wraps http.ResponseWriter to capture the status code for
// instrumentation.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrumentationMiddleware records HTTP request metrics for every request.
func (s *OAuthHTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// oauthInstrumentationWrapper records authentication outcomes for requests
// passing through the OAuth middleware. A 401 response means token
// validation failed.
func (s *OAuthHTTPServer) oauthInstrumentationWrapper(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		if rw.statusCode == http.StatusUnauthorized {
			s.metrics.RecordOAuthAuth(r.Context(), "failure")
		} else if rw.statusCode < 400 {
			s.metrics.RecordOAuthAuth(r.Context(), "success")
		}
	})
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	// Parse URL to properly validate scheme and host
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	// Allow HTTP only for loopback addresses
	switch u.Scheme {
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	case "https":
	default:
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
