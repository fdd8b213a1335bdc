// Package identity signs and verifies the identity tokens that bind a Discord user to a connection.
//
// Tokens are HS256 JWTs whose subject is the Discord user id. They are issued by POST /api/token
// after the OAuth code exchange and presented again in the WebSocket handshake.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every verification failure: bad signature, wrong
// algorithm, expired, malformed or missing subject.
var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the verified user behind a connection. It is a value type and never mutated.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar,omitempty"`
}

// Profile is the subset of the Discord /users/@me payload the server signs into tokens.
type Profile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

// Claims is the JWT payload. Subject carries the Discord user id.
type Claims struct {
	jwt.RegisteredClaims
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

// Identity converts verified claims into an Identity. The display name falls back to the
// username when the user has no global name.
func (c *Claims) Identity() Identity {
	display := c.GlobalName
	if display == "" {
		display = c.Username
	}
	return Identity{
		UserID:      c.Subject,
		DisplayName: display,
		Username:    c.Username,
		Avatar:      c.Avatar,
	}
}

// Verifier validates signed tokens against a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier returns a Verifier that only accepts HS256 tokens carrying an expiry.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses and validates token, returning the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.key); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token missing subject", ErrInvalidToken)
	}
	return claims.Identity(), nil
}

func (v *Verifier) key(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// Signer issues tokens for Discord profiles.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer whose tokens expire ttl after issue.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns an HS256 token for profile.
func (s *Signer) Sign(profile Profile) (string, error) {
	if profile.ID == "" {
		return "", errors.New("profile has no id")
	}

	issued := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
		Username:   profile.Username,
		GlobalName: profile.GlobalName,
		Avatar:     profile.Avatar,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
