package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCode is returned when the admin code does not match
	ErrInvalidCode = errors.New("invalid admin code")
	// ErrInvalidToken is returned for missing, expired, forged or non-admin tokens
	ErrInvalidToken = errors.New("invalid token")
)

// AuthService handles admin authentication
type AuthService struct {
	codeHash []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthService creates a new auth service. The admin code is kept only as a bcrypt hash.
func NewAuthService(adminCode, secret string, ttl time.Duration) (*AuthService, error) {
	if adminCode == "" {
		return nil, fmt.Errorf("admin code cannot be empty")
	}
	if secret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	if len(adminCode) > 72 {
		return nil, fmt.Errorf("admin code too long (max 72 characters)")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminCode), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &AuthService{codeHash: hash, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of issued tokens
func (s *AuthService) TTL() time.Duration {
	return s.ttl
}

// Login verifies the admin code and generates a JWT
func (s *AuthService) Login(code string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.codeHash, []byte(code)); err != nil {
		return "", ErrInvalidCode
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"isAdmin": true,
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ValidateToken checks the signature and expiry and that the token grants admin rights
func (s *AuthService) ValidateToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	if admin, _ := claims["isAdmin"].(bool); !admin {
		return fmt.Errorf("%w: not an admin token", ErrInvalidToken)
	}
	return nil
}
