// Package testhelpers provides utilities for testing ekaya-rest components.
package testhelpers

import (
	"github.com/golang-jwt/jwt/v5"
)

// GenerateTestJWT returns an unsigned (alg "none") token for servers that
// run with verification disabled. Empty projectID or role leave the claim
// out so the session defaults apply.
func GenerateTestJWT(sub, projectID, role string) string {
	claims := jwt.MapClaims{"sub": sub}
	if projectID != "" {
		claims["pid"] = projectID
	}
	if role != "" {
		claims["role"] = role
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		panic(err)
	}
	return token
}

// GenerateTestJWTWithBearer returns GenerateTestJWT as an Authorization header value.
func GenerateTestJWTWithBearer(sub, projectID, role string) string {
	return "Bearer " + GenerateTestJWT(sub, projectID, role)
}
