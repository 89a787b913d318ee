// Package auth handles the identity boundary. The engine never checks
// credentials itself: it trusts a signed assertion carrying the user's
// id, display name, and avatar reference, issued by the identity
// provider.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"realtalk/domain"
	"realtalk/errors"
)

// IdentityClaims is the payload of an identity assertion.
type IdentityClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoRef    string `json:"photo_ref,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates identity assertions against a shared secret. The
// secret comes from configuration, never from code.
type Verifier struct {
	key []byte
}

func NewVerifier(key []byte) Verifier {
	return Verifier{key: key}
}

// Verify parses and validates the assertion's signature and expiry, and
// returns the user it attests to.
func (v Verifier) Verify(tokenString string) (domain.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return domain.User{}, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return domain.User{}, errors.ErrInvalidToken
	}
	if err := ValidateIdentity(claims); err != nil {
		return domain.User{}, err
	}

	return domain.User{
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		PhotoRef:    claims.PhotoRef,
	}, nil
}

// Issue creates a signed assertion. In production this lives with the
// identity provider; the engine exposes it for tooling and tests.
func (v Verifier) Issue(user domain.User, validity time.Duration) (string, error) {
	now := time.Now()
	claims := &IdentityClaims{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		PhotoRef:    user.PhotoRef,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "realtalk",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.key)
}
