package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strefethen/heos-hub-go/internal/config"
)

const (
	tokenIssuer   = "heos-hub"
	tokenAudience = "heos-hub-client"
)

// TokenType describes access vs refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Scope limits what a paired client may do. A control token can also read.
type Scope string

const (
	// ScopeRead allows entity reads, the event stream and system info.
	ScopeRead    Scope = "read"
	// ScopeControl additionally allows commands, refresh, removal and MCP.
	ScopeControl Scope = "control"
)

// ParseScope maps a requested scope to a Scope. Empty means control.
func ParseScope(value string) (Scope, error) {
	switch Scope(value) {
	case "", ScopeControl:
		return ScopeControl, nil
	case ScopeRead:
		return ScopeRead, nil
	}
	return "", fmt.Errorf("%w: %q", ErrScopeInvalid, value)
}

// Allows reports whether s covers required.
func (s Scope) Allows(required Scope) bool {
	return s == ScopeControl || s == required
}

// TokenPayload represents the validated payload data.
type TokenPayload struct {
	Sub        string
	ClientName string
	Type       TokenType
	Scope      Scope
}

// TokenPair is returned for pairing and refresh flows.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
	ErrScopeInvalid = errors.New("invalid scope")
)

type tokenClaims struct {
	ClientName string    `json:"clientName"`
	Type       TokenType `json:"type"`
	Scope      Scope     `json:"scope"`
	jwt.RegisteredClaims
}

// GenerateTokenPair creates a new access and refresh token. Both carry
// payload.Scope; an empty scope is issued as control.
func GenerateTokenPair(cfg config.Config, payload TokenPayload) (TokenPair, error) {
	scope, err := ParseScope(string(payload.Scope))
	if err != nil {
		return TokenPair{}, err
	}
	payload.Scope = scope

	accessToken, err := generateToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := generateToken(cfg, payload, TokenTypeRefresh, cfg.JWTRefreshTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresInSec: cfg.JWTAccessTokenExpirySec,
	}, nil
}

// RefreshAccessToken validates a refresh token and returns a new access token
// with the same scope.
func RefreshAccessToken(cfg config.Config, refreshToken string) (string, int, error) {
	payload, err := VerifyToken(cfg, refreshToken)
	if err != nil {
		return "", 0, err
	}
	if payload.Type != TokenTypeRefresh {
		return "", 0, ErrTokenType
	}
	accessToken, err := generateToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return "", 0, err
	}
	return accessToken, cfg.JWTAccessTokenExpirySec, nil
}

// VerifyToken parses and validates the JWT.
func VerifyToken(cfg config.Config, token string) (TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	payload := TokenPayload{
		Sub:        claims.Subject,
		ClientName: claims.ClientName,
		Type:       claims.Type,
		Scope:      claims.Scope,
	}
	if payload.Sub == "" || payload.ClientName == "" {
		return TokenPayload{}, ErrTokenInvalid
	}
	if payload.Type != TokenTypeAccess && payload.Type != TokenTypeRefresh {
		return TokenPayload{}, ErrTokenInvalid
	}
	if payload.Scope != ScopeRead && payload.Scope != ScopeControl {
		return TokenPayload{}, ErrTokenInvalid
	}

	return payload, nil
}

func generateToken(cfg config.Config, payload TokenPayload, tokenType TokenType, expirySec int) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		ClientName: payload.ClientName,
		Type:       tokenType,
		Scope:      payload.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Sub,
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expirySec) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}
