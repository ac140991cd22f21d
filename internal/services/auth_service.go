package services

import (
	"fmt"
	"log"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// AuthService authenticates console operators. There is no user table: the
// console is an internal staff tool, so a single operator account comes from
// configuration as a username and a bcrypt password hash. Login issues an
// HS256 JWT that the mutation routes require.
type AuthService struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
	tokenDurat   time.Duration
}

// NewAuthService creates an AuthService from the configured credentials.
func NewAuthService(username, passwordHash, jwtSecret string) *AuthService {
	return &AuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(jwtSecret),
		tokenDurat:   24 * time.Hour,
	}
}

// Login checks the credentials and returns a signed token on success. The
// error is the same for a wrong username and a wrong password.
func (s *AuthService) Login(username, password string) (string, error) {
	if username != s.username {
		return "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"exp":      now.Add(s.tokenDurat).Unix(),
		"iat":      now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		log.Printf("Token validation error: %v", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// HashPassword produces the bcrypt hash expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
