package tenant

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Tenant string   `json:"tenant"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and feeds its claims into Resolve.
// An empty issuer skips the issuer check.
func ParseToken(token, secret, issuer string) (Identity, error) {
	if token == "" {
		return Identity{}, domain.ErrNotAuthenticated
	}
	if secret == "" {
		return Identity{}, domain.WrapError(domain.ErrCodeInternal, "token secret is not configured", nil)
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, domain.WrapError(domain.ErrCodeUnauthorized, "invalid token", err)
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, true) {
		return Identity{}, domain.WrapError(domain.ErrCodeUnauthorized, "invalid token", fmt.Errorf("unexpected issuer %q", claims.Issuer))
	}

	return Resolve(claims.Subject, claims.Tenant, claims.Roles), nil
}
