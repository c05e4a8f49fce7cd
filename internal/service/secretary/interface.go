// Package secretary provides methods for token issuance and validation.
package secretary

import "github.com/capitalengine/capitalengine/internal/models/modelclaims"

// Secretary defines a set of methods for types implementing Secretary.
type Secretary interface {
	NewToken(role string) (string, string, error)
	GetTokenForUser(userID, role string) (string, error)
	ValidateToken(accessToken string) (*modelclaims.MyCustomClaims, error)
}
