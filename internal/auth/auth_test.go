package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	s, err := NewAuthService("admin123", "test-secret", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to create auth service: %v", err)
	}
	return s
}

func TestNewAuthService(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		secret      string
		expectError bool
	}{
		{name: "Success", code: "admin123", secret: "secret", expectError: false},
		{name: "EmptyCode", code: "", secret: "secret", expectError: true},
		{name: "EmptySecret", code: "admin123", secret: "", expectError: true},
		{name: "LongCode", code: strings.Repeat("a", 100), secret: "secret", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthService(tt.code, tt.secret, time.Hour)
			if tt.expectError && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	s := newTestService(t)

	tests := []struct {
		name        string
		code        string
		expectError bool
	}{
		{name: "Success", code: "admin123", expectError: false},
		{name: "WrongCode", code: "admin124", expectError: true},
		{name: "EmptyCode", code: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Login(tt.code)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
				return []byte("test-secret"), nil
			})
			if err != nil {
				t.Errorf("invalid token: %v", err)
				return
			}
			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok || claims["isAdmin"] != true {
				t.Errorf("invalid token claims")
			}
			exp, err := claims.GetExpirationTime()
			if err != nil || exp.Sub(time.Now()) < 29*24*time.Hour {
				t.Errorf("expected a 30 day token, got exp %v (%v)", exp, err)
			}
		})
	}
}

func TestAuthService_ValidateToken(t *testing.T) {
	s := newTestService(t)
	token, err := s.Login("admin123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	sign := func(claims jwt.MapClaims, key string) string {
		str, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return str
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name        string
		token       string
		expectError bool
	}{
		{name: "Success", token: token, expectError: false},
		{name: "ExpiredToken", token: sign(jwt.MapClaims{"isAdmin": true, "exp": time.Now().Add(-time.Hour).Unix()}, "test-secret"), expectError: true},
		{name: "InvalidSignature", token: sign(jwt.MapClaims{"isAdmin": true, "exp": future}, "wrong-key"), expectError: true},
		{name: "NotAdmin", token: sign(jwt.MapClaims{"isAdmin": false, "exp": future}, "test-secret"), expectError: true},
		{name: "NoExpiry", token: sign(jwt.MapClaims{"isAdmin": true}, "test-secret"), expectError: true},
		{name: "EmptyToken", token: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateToken(tt.token)
			if tt.expectError && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
