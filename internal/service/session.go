package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/splitsmart/splitsmart-go/internal/domain"
	"github.com/splitsmart/splitsmart-go/internal/port"
)

// TokenHolder is the in-memory bearer token shared with the API client.
// It implements port.TokenSource.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
}

// NewTokenHolder creates an empty holder (unauthenticated).
func NewTokenHolder() *TokenHolder {
	return &TokenHolder{}
}

// Token returns the current bearer token, or "" when unauthenticated.
func (h *TokenHolder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *TokenHolder) set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Session owns the authentication flow: login, registration, logout, and
// restoring a persisted token at startup. It is the single writer of the
// persisted-credential store.
type Session struct {
	api    port.API
	tokens *TokenHolder
	store  port.TokenStore
	logger *zap.Logger

	mu   sync.Mutex
	user *domain.User
}

// NewSession creates the session service.
func NewSession(api port.API, tokens *TokenHolder, store port.TokenStore, logger *zap.Logger) *Session {
	return &Session{api: api, tokens: tokens, store: store, logger: logger}
}

// Authenticated reports whether a bearer token is currently held.
func (s *Session) Authenticated() bool {
	return s.tokens.Token() != ""
}

// User returns the profile fetched at login/restore, possibly nil.
func (s *Session) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Restore loads the persisted token and reports whether the user can skip
// the login screen. A token whose exp claim has already passed is discarded
// locally so the first screen is login rather than a doomed API call. The
// token is then verified against the backend; a rejection clears it, while
// a network failure keeps it (being offline must not log the user out).
func (s *Session) Restore(ctx context.Context) bool {
	token, err := s.store.Load()
	if err != nil {
		s.logger.Warn("session: failed to load persisted token", zap.Error(err))
		return false
	}
	if token == "" {
		return false
	}
	if tokenExpired(token) {
		s.logger.Info("session: persisted token expired, clearing")
		_ = s.store.Clear()
		return false
	}

	s.tokens.set(token)

	user, err := s.api.Me(ctx)
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			s.logger.Info("session: persisted token rejected by backend")
			s.tokens.set("")
			_ = s.store.Clear()
			return false
		}
		s.logger.Warn("session: could not verify persisted token", zap.Error(err))
		return true
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return true
}

// Login authenticates and persists the token on success.
func (s *Session) Login(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	token, err := s.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	s.tokens.set(token.AccessToken)
	if err := s.store.Save(token.AccessToken); err != nil {
		s.logger.Warn("session: failed to persist token", zap.Error(err))
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		// Logged in, profile fetch failed: stay logged in without a name.
		s.logger.Warn("session: profile fetch after login failed", zap.Error(err))
		return nil, nil
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

// Register creates an account. The caller logs in afterwards; the backend
// does not auto-issue a token on registration.
func (s *Session) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	return s.api.Register(ctx, req)
}

// Logout clears the in-memory and persisted token.
func (s *Session) Logout() error {
	s.tokens.set("")
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	return s.store.Clear()
}

// tokenExpired inspects the token's exp claim without verifying the
// signature; verification is the backend's job. Unparseable tokens count as
// expired, a missing exp claim as still valid.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
