package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the identity carried by a bearer token.
type Principal struct {
	UserID   string
	TenantID string
}

type AuthService struct {
	jwtSecret []byte
	jwtExpiry time.Duration
}

func NewAuthService(secret string, expiry time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: []byte(secret),
		jwtExpiry: expiry,
	}
}

// IssueToken signs a token for userID within tenantID.
func (s *AuthService) IssueToken(userID, tenantID string) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   userID,
		"tenant_id": tenantID,
		"exp":       now.Add(s.jwtExpiry).Unix(),
		"iat":       now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// Validates a JWT token and returns its principal
func (s *AuthService) ValidateToken(tokenString string) (Principal, error) {
	if len(s.jwtSecret) == 0 {
		return Principal{}, errors.New("jwt secret is not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifying signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return Principal{}, err
	}

	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid token claims")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Principal{}, errors.New("token has no user_id claim")
	}
	tenantID, _ := claims["tenant_id"].(string)

	return Principal{UserID: userID, TenantID: tenantID}, nil
}
