// Package google connects Google accounts directly through OAuth and exposes
// their calendars as a gateway provider.
package google

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/crypto"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/settings"
	"github.com/dtorcivia/calmerge/internal/util"
)

const oauthStateKey = "google_oauth_state"

// ErrNoToken is returned when an account has no stored refresh token.
var ErrNoToken = errors.New("no OAuth token stored for account")

// OAuthManager handles per-account Google OAuth tokens.
type OAuthManager struct {
	config    *oauth2.Config
	db        *database.DB
	settings  *settings.Store
	encryptor *crypto.Encryptor

	mu    sync.Mutex // serializes token refresh
	cache map[string]*oauth2.Token
}

// NewOAuthManager creates a new OAuth manager.
func NewOAuthManager(cfg config.GoogleConfig, db *database.DB, encryptor *crypto.Encryptor) *OAuthManager {
	return &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
		db:        db,
		settings:  settings.NewStore(db),
		encryptor: encryptor,
		cache:     make(map[string]*oauth2.Token),
	}
}

// IsConfigured checks if Google OAuth is configured.
func (m *OAuthManager) IsConfigured() bool {
	return m.config.ClientID != "" && m.config.ClientSecret != ""
}

// AuthURL returns the consent URL. Offline access with forced approval makes
// Google return a refresh token every time.
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (m *OAuthManager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("google returned no refresh token")
	}
	return token, nil
}

// SaveToken stores the account's refresh token encrypted.
func (m *OAuthManager) SaveToken(ctx context.Context, accountID string, token *oauth2.Token) error {
	if err := m.storeToken(ctx, accountID, token); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[accountID] = token
	m.mu.Unlock()
	return nil
}

func (m *OAuthManager) storeToken(ctx context.Context, accountID string, token *oauth2.Token) error {
	if token.RefreshToken == "" {
		return fmt.Errorf("no refresh token to save")
	}

	sealed, err := m.encryptor.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	scopes := ""
	if s, ok := token.Extra("scope").(string); ok {
		scopes = s
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (account_id, refresh_token_enc, scopes, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(account_id) DO UPDATE SET
			refresh_token_enc = excluded.refresh_token_enc,
			scopes = excluded.scopes,
			updated_at = datetime('now')
	`, accountID, sealed, scopes)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// ValidToken returns a usable access token for the account, refreshing it
// when it expires within five minutes.
func (m *OAuthManager) ValidToken(ctx context.Context, accountID string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.cache[accountID]; ok && time.Now().Add(5*time.Minute).Before(tok.Expiry) {
		return tok, nil
	}

	token, err := m.loadToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	fresh, err := m.config.TokenSource(ctx, token).Token()
	if err != nil {
		util.Warn("Google token refresh failed", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}
	if fresh.RefreshToken != token.RefreshToken {
		if err := m.storeToken(ctx, accountID, fresh); err != nil {
			util.Error("Failed to save rotated refresh token", "account_id", accountID, "error", err)
		}
	}

	m.cache[accountID] = fresh
	return fresh, nil
}

func (m *OAuthManager) loadToken(ctx context.Context, accountID string) (*oauth2.Token, error) {
	var sealed []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT refresh_token_enc FROM oauth_tokens WHERE account_id = ?
	`, accountID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	refresh, err := m.encryptor.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}

	// Expired on purpose so the first use refreshes.
	return &oauth2.Token{RefreshToken: refresh, Expiry: time.Now().Add(-time.Hour)}, nil
}

// HasToken reports whether a refresh token is stored for the account.
func (m *OAuthManager) HasToken(ctx context.Context, accountID string) bool {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oauth_tokens WHERE account_id = ?`, accountID).Scan(&count)
	return err == nil && count > 0
}

// Forget drops the cached access token so the next call reloads from storage.
func (m *OAuthManager) Forget(accountID string) {
	m.mu.Lock()
	delete(m.cache, accountID)
	m.mu.Unlock()
}

// Client returns an HTTP client authorized for the account.
func (m *OAuthManager) Client(ctx context.Context, accountID string) (*http.Client, error) {
	token, err := m.ValidToken(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return m.config.Client(ctx, token), nil
}

// ClientForToken returns an HTTP client for a token that is not yet bound to
// an account, as during the OAuth callback.
func (m *OAuthManager) ClientForToken(ctx context.Context, token *oauth2.Token) *http.Client {
	return m.config.Client(ctx, token)
}

type oauthState struct {
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewState creates and stores a single-use state parameter valid for ten minutes.
func (m *OAuthManager) NewState(ctx context.Context) (string, error) {
	state, err := crypto.GenerateState()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(oauthState{State: state, ExpiresAt: time.Now().Add(10 * time.Minute)})
	if err != nil {
		return "", err
	}
	if err := m.settings.Set(ctx, oauthStateKey, string(data)); err != nil {
		return "", err
	}
	return state, nil
}

// ConsumeState validates and deletes the stored state.
func (m *OAuthManager) ConsumeState(ctx context.Context, state string) error {
	raw, ok, err := m.settings.Get(ctx, oauthStateKey)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no OAuth state found")
	}

	var stored oauthState
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return fmt.Errorf("invalid state data: %w", err)
	}
	if stored.State == "" || stored.State != state {
		return fmt.Errorf("state mismatch")
	}
	if time.Now().After(stored.ExpiresAt) {
		return fmt.Errorf("state expired")
	}

	return m.settings.Delete(ctx, oauthStateKey)
}
