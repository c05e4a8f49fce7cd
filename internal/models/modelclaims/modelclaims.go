// Package modelclaims provides types for token authorization.

package modelclaims

import "github.com/golang-jwt/jwt"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type MyCustomClaims struct {
	UserID string `json:"userID"`
	Role   string `json:"role"`
	jwt.StandardClaims
}
