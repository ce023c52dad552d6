package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	apperrors "github.com/target/receiptq/internal/errors"
)

// CallbackAuthenticator gates the completion callback behind a shared secret.
type CallbackAuthenticator struct {
	digest [sha256.Size]byte
}

// NewCallbackAuthenticator returns an authenticator for secret, which must not be empty.
func NewCallbackAuthenticator(secret string) (*CallbackAuthenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("callback secret token is required")
	}
	return &CallbackAuthenticator{digest: sha256.Sum256([]byte(secret))}, nil
}

// VerifyToken returns the trimmed provided token when it matches the configured secret.
// Surrounding whitespace is ignored on both sides, matching NewCallbackAuthenticator.
// Both sides are hashed first so the comparison time is independent of the token length.
func (a *CallbackAuthenticator) VerifyToken(provided string) (string, error) {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return "", apperrors.Unauthenticated("missing callback token")
	}
	got := sha256.Sum256([]byte(provided))
	if subtle.ConstantTimeCompare(got[:], a.digest[:]) != 1 {
		return "", apperrors.Unauthenticated("invalid callback token")
	}
	return provided, nil
}
