package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sapliy/rental-ecosystem/pkg/jsonutil"
)

// ErrInvalidToken is returned for tokens that are malformed, expired or badly signed.
var ErrInvalidToken = errors.New("invalid token")

// ErrMissingToken is returned when no bearer token was supplied.
var ErrMissingToken = errors.New("missing token")

// Claims issued by the rental platform auth service.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
}

// TokenValidator validates HS256 tokens issued by the auth service.
type TokenValidator struct {
	secret []byte
	issuer string
}

func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer}
}

// Validate parses the token and returns the caller it identifies.
func (v *TokenValidator) Validate(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return Principal{}, errors.New("token validator has no signing secret")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// Authenticate satisfies the realtime handshake authenticator.
func (v *TokenValidator) Authenticate(ctx context.Context, token string) (string, error) {
	p, err := v.Validate(token)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by Middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Middleware rejects requests without a valid bearer token.
func Middleware(v *TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Validate(BearerToken(r))
			if err != nil {
				if errors.Is(err, ErrMissingToken) {
					jsonutil.WriteError(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				jsonutil.WriteError(w, http.StatusUnauthorized, "Invalid authentication token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
