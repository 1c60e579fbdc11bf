package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/pool-service/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("technician not found")
	ErrUserInactive       = errors.New("technician is inactive")
)

const (
	defaultSecret   = "default-secret-key-change-in-production"
	defaultTokenExp = 24 * time.Hour
)

// TechnicianFinder loads the technician a token was issued for.
type TechnicianFinder interface {
	FindTechnicianByID(ctx context.Context, id string) (*models.Technician, error)
}

// Service handles authentication operations
type Service struct {
	jwtSecret []byte
	tokenExp  time.Duration
}

// NewService creates a new authentication service. An empty secret or
// non-positive expiry falls back to the defaults.
func NewService(secret string, tokenExp time.Duration) *Service {
	if secret == "" {
		secret = defaultSecret
	}
	if tokenExp <= 0 {
		tokenExp = defaultTokenExp
	}
	return &Service{
		jwtSecret: []byte(secret),
		tokenExp:  tokenExp,
	}
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword checks if a password matches a hash
func (s *Service) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken generates a JWT token for a technician
func (s *Service) GenerateToken(t *models.Technician) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"technician_id": t.ID.Hex(),
		"email":         t.Email,
		"role":          string(t.Role),
		"exp":           now.Add(s.tokenExp).Unix(),
		"iat":           now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*models.Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	technicianID, ok := claims["technician_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	email, _ := claims["email"].(string)

	roleStr, ok := claims["role"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &models.Claims{
		TechnicianID: technicianID,
		Email:        email,
		Role:         models.Role(roleStr),
		Exp:          int64(exp),
	}, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func (s *Service) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrInvalidToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}

	return parts[1], nil
}

// Authenticate resolves an Authorization header into a principal. The
// technician is re-read on every call so deactivation takes effect at once.
func (s *Service) Authenticate(ctx context.Context, authHeader string, finder TechnicianFinder) (*models.Principal, error) {
	token, err := s.ExtractTokenFromHeader(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	tech, err := finder.FindTechnicianByID(ctx, claims.TechnicianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !tech.IsActive {
		return nil, ErrUserInactive
	}

	return models.NewPrincipal(tech), nil
}

// ValidatePassword validates password strength
func (s *Service) ValidatePassword(password string) error {
	if len(password) < 8 {
		return models.Invalid("password must be at least 8 characters long")
	}
	return nil
}

// ValidateEmail validates email format
func (s *Service) ValidateEmail(email string) error {
	if !models.ValidEmail(email) {
		return models.Invalid("invalid email format")
	}
	return nil
}
