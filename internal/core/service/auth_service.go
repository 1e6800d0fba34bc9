package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/repository"
)

const (
	AuthCodeExpirationMinutes = 10
	TokenExpirationHours      = 1
	BcryptCost                = 10

	// DownloadGrantTTL bounds how long a capability URL stays valid.
	DownloadGrantTTL = 5 * time.Minute
)

type AuthService struct {
	userRepo     repository.UserRepository
	authCodeRepo repository.AuthCodeRepository
	grantRepo    repository.DownloadGrantRepository
	jwtSecret    string
	jwtAlgorithm string
}

func NewAuthService(
	userRepo repository.UserRepository,
	authCodeRepo repository.AuthCodeRepository,
	grantRepo repository.DownloadGrantRepository,
	jwtSecret string,
	jwtAlgorithm string,
) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		authCodeRepo: authCodeRepo,
		grantRepo:    grantRepo,
		jwtSecret:    jwtSecret,
		jwtAlgorithm: jwtAlgorithm,
	}
}

// HashPassword hashes a password using bcrypt
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against a hash
func (s *AuthService) VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// AuthorizeUser authenticates a user and returns an auth code
func (s *AuthService) AuthorizeUser(ctx context.Context, username, password string) (*domain.AuthCode, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	if !s.VerifyPassword(password, user.Password) {
		return nil, fmt.Errorf("invalid credentials")
	}

	authCode := domain.NewAuthCode(username, AuthCodeExpirationMinutes)

	if err := s.authCodeRepo.Create(ctx, authCode); err != nil {
		return nil, fmt.Errorf("failed to create auth code: %w", err)
	}

	// Clean up expired codes
	_ = s.authCodeRepo.DeleteExpired(ctx)

	return authCode, nil
}

// ExchangeAuthCode exchanges an auth code for a JWT token
func (s *AuthService) ExchangeAuthCode(ctx context.Context, code string) (string, error) {
	authCode, err := s.authCodeRepo.FindByCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("invalid auth code")
	}

	if authCode.IsExpired() {
		_ = s.authCodeRepo.Delete(ctx, code)
		return "", fmt.Errorf("auth code expired")
	}

	// The role claim is sourced from the user row at exchange time, so a
	// role change invalidates future tokens even for outstanding codes.
	user, err := s.userRepo.FindByUsername(ctx, authCode.Username)
	if err != nil {
		_ = s.authCodeRepo.Delete(ctx, code)
		return "", fmt.Errorf("unknown principal")
	}

	token, err := s.generateJWT(user.Username, user.Role)
	if err != nil {
		return "", err
	}

	// Delete auth code (single use)
	_ = s.authCodeRepo.Delete(ctx, code)

	return token, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != s.jwtAlgorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token claims")
}

// ResolvePrincipal validates the token and confirms the principal still
// exists. Both download paths (session header and query token) end here, so
// the authorization predicate cannot diverge between them.
func (s *AuthService) ResolvePrincipal(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, NewServiceError(http.StatusUnauthorized, "invalid or expired token")
	}
	if _, err := s.userRepo.FindByUsername(ctx, claims.Subject); err != nil {
		return nil, NewServiceError(http.StatusUnauthorized, "unknown principal")
	}
	return claims, nil
}

// RequireRole is the single authorization predicate for backup management.
func (s *AuthService) RequireRole(claims *TokenClaims, role string) error {
	if claims == nil {
		return NewServiceError(http.StatusUnauthorized, "authentication required")
	}
	if claims.Role != role {
		return NewServiceError(http.StatusForbidden, "insufficient role")
	}
	return nil
}

// IssueDownloadGrant creates a short-lived single-use capability for one
// backup archive. The caller must already have passed the role check.
func (s *AuthService) IssueDownloadGrant(ctx context.Context, backupID, username string) (*domain.DownloadGrant, error) {
	grant := domain.NewDownloadGrant(backupID, username, DownloadGrantTTL)
	if err := s.grantRepo.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to create download grant: %w", err)
	}
	_ = s.grantRepo.DeleteExpired(ctx)
	return grant, nil
}

// ConsumeDownloadGrant validates and burns a capability token. A grant is
// only good for the backup it was issued for, and only once.
func (s *AuthService) ConsumeDownloadGrant(ctx context.Context, token, backupID string) error {
	grant, err := s.grantRepo.FindByToken(ctx, token)
	if err != nil {
		return NewServiceError(http.StatusUnauthorized, "invalid download grant")
	}
	if grant.IsExpired() {
		_ = s.grantRepo.Delete(ctx, token)
		return NewServiceError(http.StatusUnauthorized, "download grant expired")
	}
	if grant.BackupID != backupID {
		return NewServiceError(http.StatusUnauthorized, "download grant does not match this backup")
	}
	if err := s.grantRepo.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to consume download grant: %w", err)
	}
	return nil
}

// generateJWT generates a JWT token
func (s *AuthService) generateJWT(subject, role string) (string, error) {
	now := time.Now()
	expiresAt := now.Add(TokenExpirationHours * time.Hour)

	claims := TokenClaims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "respaldo",
		},
	}

	var signingMethod jwt.SigningMethod
	switch s.jwtAlgorithm {
	case "HS256":
		signingMethod = jwt.SigningMethodHS256
	case "HS384":
		signingMethod = jwt.SigningMethodHS384
	case "HS512":
		signingMethod = jwt.SigningMethodHS512
	default:
		signingMethod = jwt.SigningMethodHS256
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}
