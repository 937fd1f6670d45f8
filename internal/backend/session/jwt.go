package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jo-hoe/chestxray/internal/common"
)

// MinSecretLength is the shortest accepted HMAC secret
const MinSecretLength = 16

// Claims carries the session identity next to the registered claims
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"_username"`
	FullName string `json:"fullName"`
}

// JWTStore signs sessions into HS256 tokens. Nothing is stored server side,
// so Delete cannot revoke a token before it expires.
type JWTStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTStore(secret []byte, ttl time.Duration) (*JWTStore, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt session secret must be at least %d bytes", MinSecretLength)
	}
	return &JWTStore{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (s *JWTStore) Create(_ context.Context, session Session) (string, error) {
	if err := validateSession(&session); err != nil {
		return "", err
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: session.Username,
		FullName: session.FullName,
	})
	return token.SignedString(s.secret)
}

func (s *JWTStore) Get(_ context.Context, tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, common.ErrNotAuthenticated
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidSession, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidSession
	}

	session := &Session{Username: claims.Username, FullName: claims.FullName}
	if err := validateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *JWTStore) Delete(context.Context, string) error {
	return nil
}

func (s *JWTStore) TTL() time.Duration {
	return s.ttl
}

func (s *JWTStore) Close() error {
	return nil
}
