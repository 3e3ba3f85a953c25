package keys

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAttachToken is returned for tokens that fail shape or signature
// checks.
var ErrInvalidAttachToken = errors.New("invalid attach token")

// AttachToken mints and verifies the opaque bearer handed out by the
// control API for joining a session over the live channel. The token is
// sessionID.tenantID.HMAC-SHA256(sessionID|tenantID).
type AttachToken struct {
	secret []byte
}

func NewAttachToken(secret string) *AttachToken {
	return &AttachToken{secret: []byte(secret)}
}

func (a *AttachToken) Mint(sessionID, tenantID string) string {
	enc := base64.RawURLEncoding
	return strings.Join([]string{
		enc.EncodeToString([]byte(sessionID)),
		enc.EncodeToString([]byte(tenantID)),
		enc.EncodeToString(a.sign(sessionID, tenantID)),
	}, ".")
}

// Verify returns the session and tenant bound to the token.
func (a *AttachToken) Verify(token string) (sessionID, tenantID string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", "", ErrInvalidAttachToken
	}
	enc := base64.RawURLEncoding
	rawSession, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", "", ErrInvalidAttachToken
	}
	rawTenant, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", "", ErrInvalidAttachToken
	}
	sig, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", "", ErrInvalidAttachToken
	}
	want := a.sign(string(rawSession), string(rawTenant))
	if !hmac.Equal(sig, want) {
		return "", "", ErrInvalidAttachToken
	}
	return string(rawSession), string(rawTenant), nil
}

func (a *AttachToken) sign(sessionID, tenantID string) []byte {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s|%s", sessionID, tenantID)
	return mac.Sum(nil)
}
