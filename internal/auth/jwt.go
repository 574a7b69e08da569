package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	errTokenExpired = errors.New("token expired")
	errTokenInvalid = errors.New("invalid token")
)

// accessClaims is the subset of the Supabase access token we rely on.
type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type tokenVerifier struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

func newTokenVerifier(secret string, now func() time.Time) *tokenVerifier {
	return &tokenVerifier{
		secret: []byte(secret),
		now:    now,
		// expiry is checked against now below, not the package clock
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
	}
}

func (v *tokenVerifier) verify(tokenString string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTokenInvalid, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errTokenInvalid)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", errTokenInvalid)
	}
	if !claims.VerifyExpiresAt(v.now().Add(expirySkew), true) {
		return nil, errTokenExpired
	}
	return claims, nil
}
