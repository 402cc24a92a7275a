package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// APITokenPrefix marks tokens produced by GenerateAPIToken.
const APITokenPrefix = "cm_"

// TokenVerifier checks bearer tokens against the configured API token.
// Only an HMAC of the token is kept in memory.
type TokenVerifier struct {
	secret []byte
	digest string
}

// NewTokenVerifier creates a verifier for token. secret keys the HMAC; when
// empty a random key is used for the life of the process.
func NewTokenVerifier(token, secret string) (*TokenVerifier, error) {
	if token == "" {
		return nil, fmt.Errorf("api token is empty")
	}

	var key []byte
	if secret != "" {
		if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && len(decoded) >= 16 {
			key = decoded
		} else {
			key = []byte(secret)
		}
	} else {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate hmac key: %w", err)
		}
	}

	v := &TokenVerifier{secret: key}
	v.digest = v.hash(token)
	return v, nil
}

func (v *TokenVerifier) hash(token string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether presented matches the configured token in constant time.
func (v *TokenVerifier) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	return hmac.Equal([]byte(v.hash(presented)), []byte(v.digest))
}

// GenerateAPIToken creates a random token suitable for auth.api_token.
// Format: cm_{32 base62 chars}
func GenerateAPIToken() (string, error) {
	s, err := randomBase62(32)
	if err != nil {
		return "", err
	}
	return APITokenPrefix + s, nil
}

// GenerateState creates an unguessable OAuth state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateRequestID creates a short id for correlating log lines.
func GenerateRequestID() string {
	s, err := randomBase62(12)
	if err != nil {
		return "req_unknown"
	}
	return "req_" + s
}

func randomBase62(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = base62Chars[int(b[i])%len(base62Chars)]
	}
	return string(b), nil
}
