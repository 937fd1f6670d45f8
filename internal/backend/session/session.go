package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/chestxray/internal/common"
)

const (
	TypeRedis = "redis"
	TypeJWT   = "jwt"

	DefaultTTL = 7 * 24 * time.Hour
)

// Session is the identity asserted by a session cookie
type Session struct {
	Username string `json:"_username"`
	FullName string `json:"fullName"`
}

// Store issues and resolves opaque session tokens
type Store interface {
	// Create persists the session and returns the token to place in the cookie.
	Create(ctx context.Context, session Session) (string, error)
	// Get resolves a token. Unknown or expired tokens yield common.ErrNotAuthenticated,
	// malformed ones common.ErrInvalidSession.
	Get(ctx context.Context, token string) (*Session, error)
	// Delete revokes a token where the backend supports it.
	Delete(ctx context.Context, token string) error
	TTL() time.Duration
	Close() error
}

// Config selects and parameterizes a session backend
type Config struct {
	Type          string
	Secret        string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// NewStore creates the configured session backend
func NewStore(config Config) (Store, error) {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	switch config.Type {
	case TypeRedis:
		return NewRedisStore(config.RedisAddress, config.RedisPassword, config.RedisDB, ttl), nil
	case TypeJWT:
		return NewJWTStore([]byte(config.Secret), ttl)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", config.Type)
	}
}

func validateSession(session *Session) error {
	if strings.TrimSpace(session.Username) == "" {
		return fmt.Errorf("%w: session missing username", common.ErrInvalidSession)
	}
	return nil
}
