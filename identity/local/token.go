package local

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sessioncore/internal/uuid"
)

const tokenIssuer = "sessioncore"

type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// issueToken signs an HS256 access token for the user. The signing key only
// leaves its enclave for the duration of the signing call.
func (p *Provider) issueToken(rec *userRecord, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		Email: rec.Email,
		Role:  string(rec.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   rec.ID,
			IssuedAt:  jwt.NewNumericDate(p.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New(),
		},
	}

	buf, err := p.signingKey.Open()
	if err != nil {
		return "", fmt.Errorf("opening signing key: %w", err)
	}
	defer buf.Destroy()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return token, nil
}

// VerifyToken parses and validates a previously issued token and returns its
// claims. Used by HTTP callers that authenticate requests out of band of the
// session core itself.
func (p *Provider) VerifyToken(token string) (userID, email, role string, err error) {
	buf, err := p.signingKey.Open()
	if err != nil {
		return "", "", "", fmt.Errorf("opening signing key: %w", err)
	}
	defer buf.Destroy()
	key := append([]byte(nil), buf.Bytes()...)

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return key, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", "", "", fmt.Errorf("parsing session token: %w", err)
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return "", "", "", jwt.ErrSignatureInvalid
	}
	return claims.Subject, claims.Email, claims.Role, nil
}
