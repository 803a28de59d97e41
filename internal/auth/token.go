package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/veildata/api/internal/model"
)

// Claims carries the verified caller identity for every request: user,
// organization (tenant boundary) and role.
type Claims struct {
	UserID         uint       `json:"userId"`
	OrganizationID uint       `json:"organizationId"`
	Role           model.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HMAC token for the given user.
func IssueToken(user *model.User, secret string, expiration time.Duration) (string, error) {
	claims := Claims{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "veildata-api",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken verifies an HMAC-signed token and returns its claims.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
