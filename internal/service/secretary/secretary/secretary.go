// Package secretary provides methods for token issuance and validation.
package secretary

import (
	"errors"
	"fmt"
	"time"

	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/models/modelclaims"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// Secretary defines object structure and its attributes.
type Secretary struct {
	key []byte
}

// NewSecretaryService initializes a secretary service with token functionality.
func NewSecretaryService(c *config.SecretConfig) (*Secretary, error) {
	if len(c.SecretKey) == 0 {
		return nil, errors.New("empty secret key was found")
	}
	return &Secretary{key: []byte(c.SecretKey)}, nil
}

// ValidateToken parses and verifies an access token returning its claims.
func (s *Secretary) ValidateToken(accessToken string) (*modelclaims.MyCustomClaims, error) {
	token, err := jwt.ParseWithClaims(accessToken, &modelclaims.MyCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*modelclaims.MyCustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid access token")
}

// NewToken generates a fresh user identifier and a signed token carrying it.
func (s *Secretary) NewToken(role string) (string, string, error) {
	userID := uuid.New().String()
	accessToken, err := s.GetTokenForUser(userID, role)
	if err != nil {
		return "", "", err
	}
	return accessToken, userID, nil
}

// GetTokenForUser signs a token for a known user identifier.
func (s *Secretary) GetTokenForUser(userID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &modelclaims.MyCustomClaims{
		UserID: userID,
		Role:   role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
		},
	})
	return token.SignedString(s.key)
}
