package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/croftbase/member-console/models"
	"github.com/oklog/ulid/v2"
)

// generateToken returns a fresh single-use token and its storable hash.
// Only the hash is persisted; the raw value goes into the emailed link.
func generateToken() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newID() string {
	return ulid.Make().String()
}

// newVerification assembles a single-use token row scoped to an email and
// returns it together with the raw token for the outgoing link.
func newVerification(scope, email string, value interface{}, ttl time.Duration) (*models.Verification, string, error) {
	raw, hash, err := generateToken()
	if err != nil {
		return nil, "", err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode token payload: %w", err)
	}
	verification := &models.Verification{
		ID:         newID(),
		Identifier: scope + ":" + strings.ToLower(email),
		TokenHash:  hash,
		Value:      payload,
		ExpiresAt:  time.Now().Add(ttl),
	}
	return verification, raw, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// imageExtension maps the accepted avatar content types to file extensions.
func imageExtension(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported image content type: %q", contentType)
	}
}
