// Package auth resolves the caller identity from a bearer token or an extension API key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims represents the payload extracted from a JWT.
type Claims struct {
	Subject string
}

var (
	// ErrUnauthenticated is returned when no usable credential identifies a user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMissingToken is returned when the bearer token is empty.
	ErrMissingToken = fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	// ErrInvalidToken wraps parsing/validation errors.
	ErrInvalidToken = fmt.Errorf("%w: invalid bearer token", ErrUnauthenticated)
	// ErrUnknownAPIKey is returned when an API key does not belong to any user.
	ErrUnknownAPIKey = fmt.Errorf("%w: unknown api key", ErrUnauthenticated)
)

// Parse validates a JWT and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{Subject: subject}, nil
}

// KeyLookup maps an extension API key to its owner.
type KeyLookup interface {
	UserIDForAPIKey(ctx context.Context, apiKey string) (string, error)
}

// Method names how the caller authenticated.
type Method string

const (
	MethodBearer Method = "bearer"
	MethodAPIKey Method = "api_key"
)

// Credential is what the transport extracted from the request.
type Credential struct {
	Bearer string
	APIKey string
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Method Method
}

// Resolver turns credentials into an Identity.
type Resolver struct {
	cfg  Config
	keys KeyLookup
}

// NewResolver builds a Resolver. keys may be nil, in which case API keys are rejected.
func NewResolver(cfg Config, keys KeyLookup) *Resolver {
	return &Resolver{cfg: cfg, keys: keys}
}

// ResolveCallerIdentity prefers the API key used by the editor extension and falls back
// to a bearer token.
func (r *Resolver) ResolveCallerIdentity(ctx context.Context, cred Credential) (Identity, error) {
	if key := strings.TrimSpace(cred.APIKey); key != "" {
		if r.keys == nil {
			return Identity{}, ErrUnknownAPIKey
		}
		userID, err := r.keys.UserIDForAPIKey(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return Identity{}, ErrUnknownAPIKey
			}
			return Identity{}, err
		}
		return Identity{UserID: userID, Method: MethodAPIKey}, nil
	}

	claims, err := Parse(cred.Bearer, r.cfg)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.Subject, Method: MethodBearer}, nil
}
