// Package session issues and verifies bearer tokens, and implements the
// refresh-token rotation protocol on top of a domain.SessionRepository
// (spec.md §4.3). Unlike the teacher's EdDSA/JWKS-based issuer, tokens
// here are signed with a single HMAC-SHA-family shared secret: the core
// never needs third parties to verify its tokens out of band, so there
// is no JWKS endpoint and no asymmetric key rotation machinery.
package session

import (
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes an access token from a refresh token at
// verification time, so one cannot be presented in place of the other.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Issuer signs and verifies access/refresh bearer tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// AccessClaims is the decoded payload of an access token: the session id
// and nothing else — session state (type, twoStep, user) is always
// re-read from storage, never trusted from the token.
type AccessClaims struct {
	SessionID string
	ExpiresAt time.Time
}

// RefreshClaims points at a specific refresh-token row (a link of the
// session's rotation chain), not just the session.
type RefreshClaims struct {
	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

func (i *Issuer) IssueAccess(sessionID string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.accessTTL)
	claims := jwt.MapClaims{
		"kind": string(KindAccess),
		"sid":  sessionID,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.secret)
	return signed, exp, err
}

func (i *Issuer) IssueRefresh(sessionID, tokenID string, ttlOverride *time.Duration) (string, time.Time, error) {
	ttl := i.refreshTTL
	if ttlOverride != nil {
		ttl = *ttlOverride
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"kind": string(KindRefresh),
		"sid":  sessionID,
		"tid":  tokenID,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.secret)
	return signed, exp, err
}

func (i *Issuer) keyfunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
	}
	return i.secret, nil
}

func (i *Issuer) VerifyAccess(token string) (AccessClaims, error) {
	claims, err := i.parse(token, KindAccess)
	if err != nil {
		return AccessClaims{}, err
	}
	sid, _ := claims["sid"].(string)
	exp, _ := claims["exp"].(float64)
	return AccessClaims{SessionID: sid, ExpiresAt: time.Unix(int64(exp), 0)}, nil
}

func (i *Issuer) VerifyRefresh(token string) (RefreshClaims, error) {
	claims, err := i.parse(token, KindRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}
	sid, _ := claims["sid"].(string)
	tid, _ := claims["tid"].(string)
	exp, _ := claims["exp"].(float64)
	return RefreshClaims{SessionID: sid, TokenID: tid, ExpiresAt: time.Unix(int64(exp), 0)}, nil
}

func (i *Issuer) parse(token string, want TokenKind) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, i.keyfunc, jwt.WithValidMethods([]string{"HS512"}))
	if err != nil {
		return nil, fmt.Errorf("session: invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("session: malformed claims")
	}
	if kind, _ := claims["kind"].(string); kind != string(want) {
		return nil, fmt.Errorf("session: expected %s token, got %s", want, kind)
	}
	return claims, nil
}
