package security

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

var tokenTTL = 72 * time.Hour

// Identity is the caller a verified token speaks for. Every job and note
// query is scoped to UserID.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// InitJWT configures the HS256 signer shared by the router and the auth service.
func InitJWT(key []byte, ttl time.Duration) {
	TokenAuth = jwtauth.New("HS256", key, nil)
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func GenerateToken(id Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  id.UserID,
		"username": id.Username,
		"role":     id.Role,
		"exp":      now.Add(tokenTTL).Unix(),
		"iat":      now.Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// IdentityFromClaims rebuilds the caller from verified claims. user_id and
// role are mandatory; username is informational.
func IdentityFromClaims(claims jwt.MapClaims) (Identity, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return Identity{}, errors.New("user_id claim is missing or not a string")
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Identity{}, errors.New("role claim is missing or not a string")
	}
	username, _ := claims["username"].(string)
	return Identity{UserID: id, Username: username, Role: role}, nil
}
