// Package auth issues and verifies operator API tokens. Tokens are stateless
// HMAC-signed JWTs; the subject becomes the timeline actor for any change the
// operator makes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/socialdeskapp/socialdesk/internal/models"
)

const issuer = "socialdesk"

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth token secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}, nil
}

// Issue creates a signed token for an operator.
func (m *TokenManager) Issue(operatorID uuid.UUID, name string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  issuer,
		"sub":  operatorID.String(),
		"name": name,
		"iat":  now.Unix(),
		"exp":  now.Add(m.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses and validates a token and returns the operator it identifies
// as a timeline actor.
func (m *TokenManager) Verify(tokenString string) (models.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, ErrTokenExpired
		}
		return models.Actor{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Actor{}, ErrTokenInvalid
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	operatorID, err := uuid.Parse(subject)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: malformed subject", ErrTokenInvalid)
	}

	name, _ := claims["name"].(string)
	return models.Actor{Type: models.ActorOperator, ID: operatorID, Name: name}, nil
}
