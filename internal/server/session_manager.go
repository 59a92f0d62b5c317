package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrNoAuthorizationHeader is returned when a request carries no
// Authorization header to derive a session from.
var ErrNoAuthorizationHeader = errors.New("no authorization header provided")

// sessionInfo tracks which account a session belongs to and when it was
// last seen, for expiry.
type sessionInfo struct {
	account    string
	lastAccess time.Time
}

// SessionIDManager maps bearer tokens to Gmail accounts on HTTP transports.
// Each distinct bearer token is one session; once a session is bound to an
// account email the token store write for that token can be skipped on
// subsequent requests. Sessions expire after a period of inactivity, so a
// rotated token gets a fresh session and a fresh store write.
type SessionIDManager struct {
	sessions       map[string]*sessionInfo
	mu             sync.RWMutex
	cleanupTicker  *time.Ticker
	cleanupDone    chan struct{}
	sessionTimeout time.Duration
	logger         *slog.Logger
}

// NewSessionIDManager creates a session manager with a 24 hour inactivity
// timeout and the default logger.
func NewSessionIDManager() *SessionIDManager {
	return NewSessionIDManagerWithTimeout(24 * time.Hour)
}

// NewSessionIDManagerWithTimeout creates a session manager with a custom
// inactivity timeout.
func NewSessionIDManagerWithTimeout(timeout time.Duration) *SessionIDManager {
	m := &SessionIDManager{
		sessions:       make(map[string]*sessionInfo),
		cleanupTicker:  time.NewTicker(10 * time.Minute),
		cleanupDone:    make(chan struct{}),
		sessionTimeout: timeout,
		logger:         slog.Default(),
	}

	go m.cleanupLoop()

	return m
}

// ResolveSessionID derives the session ID for an HTTP request from its
// Authorization header. The same bearer token always yields the same ID.
func (m *SessionIDManager) ResolveSessionID(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthorizationHeader
	}

	hash := sha256.Sum256([]byte(authHeader))
	return hex.EncodeToString(hash[:]), nil
}

// AccountForSession returns the account bound to a session, or "" when the
// session is unknown or expired. A hit refreshes the session's last access
// time.
func (m *SessionIDManager) AccountForSession(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.sessions[sessionID]
	if !ok {
		return ""
	}
	info.lastAccess = time.Now()
	return info.account
}

// BindSession associates an account email with a session ID.
func (m *SessionIDManager) BindSession(sessionID, account string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = &sessionInfo{
		account:    account,
		lastAccess: time.Now(),
	}
}

// ActiveSessions returns the number of currently tracked sessions.
func (m *SessionIDManager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionIDManager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			if expired := m.sweepExpired(time.Now()); expired > 0 {
				m.logger.Info("Cleaned up expired sessions", "count", expired)
			}
		case <-m.cleanupDone:
			return
		}
	}
}

// sweepExpired removes sessions idle longer than the timeout and returns
// how many were dropped.
func (m *SessionIDManager) sweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for sessionID, info := range m.sessions {
		if now.Sub(info.lastAccess) > m.sessionTimeout {
			delete(m.sessions, sessionID)
			expired++
		}
	}
	return expired
}

// Stop stops the session cleanup goroutine.
func (m *SessionIDManager) Stop() {
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	if m.cleanupDone != nil {
		close(m.cleanupDone)
	}
}
