package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	mcpoauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers"
	"golang.org/x/oauth2"
)

// UserInfo is the authenticated user identity attached to request contexts.
// It is the provider-neutral identity type from the mcp-oauth library, which
// carries SSO metadata (TokenSource, IsSSO) alongside the basic profile.
type UserInfo = providers.UserInfo

// contextKey is the type for context keys
type contextKey string

const (
	// tokenContextKey is the key for storing the Google token in the request context
	tokenContextKey contextKey = "google_token"

	// googleAccessTokenContextKey is the key for storing a forwarded Google
	// access token string in the request context (SSO token forwarding)
	googleAccessTokenContextKey contextKey = "google_access_token"
)

// ContextWithUserInfo returns a context carrying the authenticated user.
// The user is stored via the mcp-oauth library context so that library
// middleware and this package agree on where identity lives.
func ContextWithUserInfo(ctx context.Context, userInfo *UserInfo) context.Context {
	return mcpoauth.ContextWithUserInfo(ctx, userInfo)
}

// GetUserFromContext retrieves the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (*UserInfo, bool) {
	userInfo, ok := mcpoauth.UserInfoFromContext(ctx)
	if !ok || userInfo == nil {
		return nil, false
	}
	return userInfo, true
}

// ContextWithGoogleAccessToken returns a context carrying a raw Google access
// token. Used by the SSO middleware to hand forwarded tokens to MCP tools
// without a store round trip.
func ContextWithGoogleAccessToken(ctx context.Context, accessToken string) context.Context {
	return context.WithValue(ctx, googleAccessTokenContextKey, accessToken)
}

// GetGoogleAccessTokenFromContext retrieves a forwarded Google access token
// from the request context
func GetGoogleAccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(googleAccessTokenContextKey).(string)
	return token, ok && token != ""
}

// ContextWithGoogleToken returns a context carrying a validated Google token.
// The validation middlewares attach the token here so downstream middleware
// and MCP tools can call Google APIs on the user's behalf.
func ContextWithGoogleToken(ctx context.Context, token *oauth2.Token) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetGoogleTokenFromContext retrieves the validated Google token from the request context
func GetGoogleTokenFromContext(ctx context.Context) (*oauth2.Token, bool) {
	token, ok := ctx.Value(tokenContextKey).(*oauth2.Token)
	return token, ok
}

// ValidateGoogleToken is middleware that validates Google OAuth tokens.
// It validates the bearer token against Google's userinfo endpoint and stores
// the resulting user identity and token in the request context.
func (h *Handler) ValidateGoogleToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			// Return 401 with WWW-Authenticate header pointing to resource metadata
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource"`,
				h.config.Resource,
			))
			h.writeUnauthorizedError(w, "missing_token", "Missing Authorization header")
			return
		}

		// Check for Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource", error="invalid_token", error_description="Invalid Authorization header format"`,
				h.config.Resource,
			))
			h.writeUnauthorizedError(w, "invalid_token", "Invalid Authorization header format")
			return
		}

		accessToken := parts[1]

		token := &oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
		}

		// Validate token by calling Google's userinfo endpoint
		googleUser, err := h.getUserInfoFromGoogle(r.Context(), token)
		if err != nil {
			errorDesc := getActionableErrorMessage(err)
			h.logger.Debug("Rejected bearer token",
				"token", HashForDisplay(accessToken),
				"error", err)

			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource", error="invalid_token", error_description="%s"`,
				h.config.Resource,
				errorDesc,
			))
			h.writeUnauthorizedError(w, "invalid_token", errorDesc)
			return
		}

		// Store user info and token in context
		ctx := ContextWithUserInfo(r.Context(), googleUser.ToUserInfo())
		ctx = ContextWithGoogleToken(ctx, token)

		// Save the token for this user so we can use it to access Google APIs.
		// Email is the account identifier.
		if err := h.store.SaveGoogleToken(googleUser.Email, token); err != nil {
			// Log but don't fail, the request can still proceed with the
			// token from context
			h.logger.Warn("Failed to save Google token",
				"email", hashEmailForLog(googleUser.Email),
				"error", err)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateGoogleTokenFunc is a function-based middleware that validates Google OAuth tokens
func (h *Handler) ValidateGoogleTokenFunc(next http.HandlerFunc) http.HandlerFunc {
	return h.ValidateGoogleToken(next).ServeHTTP
}

// OptionalGoogleToken is middleware that optionally validates Google OAuth tokens.
// If a token is present, it validates it; if not, it continues without authentication.
func (h *Handler) OptionalGoogleToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			// No token provided, continue without authentication
			next.ServeHTTP(w, r)
			return
		}

		// Token provided, validate it
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			h.writeUnauthorizedError(w, "invalid_token", "Invalid Authorization header format")
			return
		}

		token := &oauth2.Token{
			AccessToken: parts[1],
			TokenType:   "Bearer",
		}

		googleUser, err := h.getUserInfoFromGoogle(r.Context(), token)
		if err != nil {
			h.writeUnauthorizedError(w, "invalid_token", fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		ctx := ContextWithUserInfo(r.Context(), googleUser.ToUserInfo())
		ctx = ContextWithGoogleToken(ctx, token)

		if err := h.store.SaveGoogleToken(googleUser.Email, token); err != nil {
			h.logger.Warn("Failed to save Google token",
				"email", hashEmailForLog(googleUser.Email),
				"error", err)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getUserInfoFromGoogle validates a token by calling Google's userinfo endpoint
func (h *Handler) getUserInfoFromGoogle(ctx context.Context, token *oauth2.Token) (*GoogleUserInfo, error) {
	// Route the oauth2 transport through the handler's HTTP client so
	// timeouts and instrumentation apply to the userinfo call
	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var userInfo GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &userInfo, nil
}

// writeUnauthorizedError writes an OAuth error response with 401 status
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, errorCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}

// getActionableErrorMessage converts technical errors into user-friendly, actionable messages
func getActionableErrorMessage(err error) string {
	errStr := err.Error()

	// Check for common error patterns and provide actionable guidance
	if strings.Contains(errStr, "401") || strings.Contains(errStr, "Unauthorized") {
		return "Google token is invalid or expired. Please re-authenticate through your MCP client to continue."
	}

	if strings.Contains(errStr, "403") || strings.Contains(errStr, "Forbidden") {
		return "Access denied by Google. Please ensure your token has the required scopes and re-authenticate through your MCP client."
	}

	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") || strings.Contains(errStr, "dial") {
		return "Unable to verify token with Google due to network issues. Please try again in a moment."
	}

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return "Google API rate limit exceeded. Please wait a moment and try again."
	}

	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		return "Google authentication service is temporarily unavailable. Please try again in a few minutes."
	}

	// Default message with error details
	return fmt.Sprintf("Token validation failed: %v. Please re-authenticate through your MCP client.", err)
}

// CacheGoogleToken caches a Google token for future use.
// This can be called by endpoints that receive tokens through other means.
func (h *Handler) CacheGoogleToken(email string, token *oauth2.Token) error {
	return h.store.SaveGoogleToken(email, token)
}

// GetCachedGoogleToken retrieves a cached Google token for a user
func (h *Handler) GetCachedGoogleToken(email string) (*oauth2.Token, error) {
	return h.store.GetGoogleToken(email)
}
