// Package auth implements the hub's admission policy: by default, permit
// any origin in an allow-list and issue an anonymous peer id; an optional
// bearer token, when present and valid, attaches a display name to the
// peer instead of a generated one.
//
// There are no accounts or per-document roles in this design — the token
// only carries a display name, not a capability.
package auth

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/collab-docs/backend/internal/models"
)

// Claims is the minimal identity a bearer token may carry: a display name
// attached to an otherwise-anonymous peer.
type Claims struct {
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// IssueToken signs a token asserting displayName, for clients (e.g. the
// Obsidian plugin) that want a stable identity across reconnects.
func IssueToken(secret, displayName string) (string, error) {
	claims := Claims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "collab-docs",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken verifies tokenString against secret and returns its claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ResolvePeer implements the default admission policy: a fresh anonymous
// peer id, with an optional bearer token attaching a display name. An
// invalid bearer token does not reject the connection — it falls back to
// anonymous, since this design has no accounts to reject against.
func ResolvePeer(secret, bearerToken string) models.Peer {
	peer := models.Peer{ID: uuid.New().String(), Anonymous: true}
	if bearerToken == "" {
		return peer
	}
	claims, err := ValidateToken(secret, bearerToken)
	if err != nil {
		return peer
	}
	peer.DisplayName = claims.DisplayName
	peer.Anonymous = false
	return peer
}

// OriginAllowed checks origin against allowList. A single "*" entry
// permits any origin (the default).
func OriginAllowed(origin string, allowList []string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range allowList {
		if allowed == "*" {
			return true
		}
		if matchOrigin(origin, allowed) {
			return true
		}
	}
	return false
}

func matchOrigin(origin, allowed string) bool {
	if origin == allowed {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, allowed) || strings.EqualFold(u.Hostname(), allowed)
}
