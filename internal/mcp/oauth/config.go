package oauth

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds the OAuth handler configuration
type Config struct {
	// Resource is the MCP server resource identifier for RFC 8707
	// This should be the base URL of the MCP server
	Resource string

	// SupportedScopes are all available Google API scopes
	SupportedScopes []string

	// Google OAuth credentials used for refreshing stored tokens
	GoogleAuth GoogleAuthConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CleanupInterval is how often to cleanup expired tokens
	// Default: 1 minute
	CleanupInterval time.Duration

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is a custom HTTP client for OAuth requests
	// If not provided, uses the default HTTP client
	// Can be used to add timeouts, logging, metrics, etc.
	HTTPClient *http.Client
}

// GoogleAuthConfig holds Google OAuth client configuration
type GoogleAuthConfig struct {
	// ClientID is the Google OAuth Client ID
	// Required for refreshing stored Google tokens
	ClientID string

	// ClientSecret is the Google OAuth Client Secret
	// Required for refreshing stored Google tokens
	ClientSecret string

	// RedirectURL is the callback URL for Google OAuth flow
	// Default: {Resource}/oauth/google/callback
	RedirectURL string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is the number of requests per second allowed per IP (0 = no limit)
	Rate int

	// Burst is the maximum burst size allowed per IP
	Burst int

	// CleanupInterval is how often to cleanup inactive rate limiters
	// Default: 5 minutes
	CleanupInterval time.Duration

	// UserRate is the number of requests per second allowed per authenticated user (0 = no limit)
	// This is in addition to IP-based rate limiting
	UserRate int

	// UserBurst is the maximum burst size allowed per authenticated user
	UserBurst int

	// TrustProxy indicates whether to trust X-Forwarded-For and X-Real-IP headers
	// Only set to true if the server is behind a trusted proxy
	// Default: false (secure by default)
	TrustProxy bool
}
