package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gauntlethq/gauntlet/pkg/auth"
)

const tokenIssuer = "gauntlet"

// JWTService issues and verifies the bearer tokens the API hands out at
// login. Tokens are HMAC-signed with the daemon's configured secret.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService creates a JWT service. Tokens expire expirationHours after
// issue.
func NewJWTService(secret string, expirationHours int) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		ttl:    time.Duration(expirationHours) * time.Hour,
	}
}

// accountClaims binds a token to the account that logged in.
type accountClaims struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for an authenticated account.
func (s *JWTService) GenerateToken(account auth.Account) (string, error) {
	now := time.Now()
	claims := accountClaims{
		AccountID: account.ID,
		Username:  account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   account.ID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken verifies a token's signature, lifetime and issuer, and
// returns the account ID it was issued to.
func (s *JWTService) ValidateToken(tokenString string) (string, error) {
	claims := &accountClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.AccountID == "" {
		return "", errors.New("invalid token claims")
	}

	return claims.AccountID, nil
}
