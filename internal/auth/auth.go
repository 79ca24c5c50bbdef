// Package auth implements the control plane's single-operator-account
// login: bcrypt password check plus JWT issuance, the same pair of
// mechanics the teacher's UserService.Login uses, narrowed from a
// multi-user/role model to one configured operator account.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultExpiration = 24 * time.Hour

// Claims is the JWT payload issued on successful login.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service authenticates the single configured operator account and issues
// and verifies bearer tokens for it.
type Service struct {
	username     string
	passwordHash string
	secret       []byte
	expiration   time.Duration
}

// NewService constructs a Service for one operator account. passwordHash
// must be a bcrypt hash (as produced by HashPassword), never a plaintext
// password. expiration <= 0 falls back to 24h.
func NewService(username, passwordHash, secret string, expiration time.Duration) *Service {
	if expiration <= 0 {
		expiration = defaultExpiration
	}
	return &Service{username: username, passwordHash: passwordHash, secret: []byte(secret), expiration: expiration}
}

// HashPassword bcrypt-hashes a plaintext password for storage in
// configuration.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing operator password: %w", err)
	}
	return string(hash), nil
}

// Login checks username/password against the configured operator account
// and, on success, issues a signed bearer token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username {
		return "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a bearer token, returning its username claim.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.Username, nil
}
