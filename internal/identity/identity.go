// Package identity resolves the calling user from a bearer token. Tokens are issued elsewhere;
// this package only verifies them.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Caller is the verified identity of a request
type Caller struct {
	ID    string
	Roles []string
}

// Claims are the token claims this service reads. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Verifier checks HS256 bearer tokens
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a token
func (v *Verifier) Verify(tokenString string) (*Caller, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Caller{ID: claims.Subject, Roles: claims.Roles}, nil
}

// SignToken issues a token for userID. The service never calls it; it exists for tools and tests.
func (v *Verifier) SignToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type ctxKey struct{}

const ginCallerKey = "caller"

// WithCaller attaches a caller to ctx
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, caller)
}

// FromContext returns the caller on ctx, if any
func FromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(ctxKey{}).(*Caller)
	return caller, ok && caller != nil
}

// CallerID returns the authenticated user id of a gin request, or "" for anonymous requests
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(ginCallerKey); ok {
		if caller, ok := v.(*Caller); ok {
			return caller.ID
		}
	}
	return ""
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

func (v *Verifier) attach(c *gin.Context, caller *Caller) {
	c.Set(ginCallerKey, caller)
	c.Request = c.Request.WithContext(WithCaller(c.Request.Context(), caller))
}

// RequireAuth rejects requests without a valid bearer token
func (v *Verifier) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err == nil {
			var caller *Caller
			if caller, err = v.Verify(token); err == nil {
				v.attach(c, caller)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": err.Error()},
		})
	}
}

// OptionalAuth resolves the caller when a valid token is present and lets anonymous requests through.
// A present but invalid token is still rejected.
func (v *Verifier) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if errors.Is(err, ErrMissingToken) {
			c.Next()
			return
		}
		if err == nil {
			var caller *Caller
			if caller, err = v.Verify(token); err == nil {
				v.attach(c, caller)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": err.Error()},
		})
	}
}
