package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"identity-server/internal/domain"
	"identity-server/internal/repository"
	"identity-server/pkg/jwt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

const (
	AccessAudience = "access"
	ResetAudience  = "password-reset"

	refreshTokenBytes = 32
)

// ResetClaims is what a verified password-reset token proves.
type ResetClaims struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

// TokenService issues and verifies the three token classes. Access and reset
// tokens are self-contained RS256 JWTs with separate key pairs; refresh tokens
// are opaque random values whose only state is their stored record.
type TokenService struct {
	access      *jwt.Signer
	reset       *jwt.Signer
	refreshRepo repository.RefreshTokenRepository
	now         func() time.Time
}

func NewTokenService(access, reset *jwt.Signer, refreshRepo repository.RefreshTokenRepository) (*TokenService, error) {
	if access == nil || reset == nil {
		return nil, errors.New("access and reset signers are required")
	}
	if access.SharesKeyWith(reset) {
		return nil, errors.New("access and reset tokens must use different key pairs")
	}

	return &TokenService{
		access:      access,
		reset:       reset,
		refreshRepo: refreshRepo,
		now:         time.Now,
	}, nil
}

func (s *TokenService) AccessTokenLifetime() time.Duration {
	return s.access.Lifetime()
}

func (s *TokenService) IssueAccessToken(user *domain.User) (string, error) {
	token, err := s.access.Issue(jwt.Claims{
		Username: user.Username,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject: user.ID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}
	return token, nil
}

func (s *TokenService) VerifyAccessToken(token string) (*domain.Identity, error) {
	claims, err := s.access.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &domain.Identity{
		Subject:  claims.Subject,
		Username: claims.Username,
	}, nil
}

// IssueRefreshToken stores a new refresh token for user and returns its value.
// The value is not recoverable from storage afterwards.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	value, err := generateSecureToken()
	if err != nil {
		return "", err
	}

	record := &domain.RefreshToken{
		TokenHash: hashToken(value),
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.refreshRepo.Create(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return value, nil
}

// RotateRefreshToken revokes value and issues a replacement for the same
// user. Exactly one of several concurrent rotations of one value succeeds.
func (s *TokenService) RotateRefreshToken(ctx context.Context, value string) (userID, replacement string, err error) {
	if value == "" {
		return "", "", ErrInvalidToken
	}

	record, err := s.refreshRepo.FindByHash(ctx, hashToken(value))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "", ErrInvalidToken
		}
		return "", "", fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if err := s.refreshRepo.Delete(ctx, record.TokenHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "", ErrInvalidToken
		}
		return "", "", fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	replacement, err = s.IssueRefreshToken(ctx, record.UserID)
	if err != nil {
		return "", "", err
	}

	return record.UserID, replacement, nil
}

// RevokeRefreshToken deletes the stored record for value. A value that was
// never issued or is already revoked yields ErrNotFound.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, value string) error {
	if value == "" {
		return ErrNotFound
	}

	if err := s.refreshRepo.Delete(ctx, hashToken(value)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return nil
}

func (s *TokenService) RevokeAllRefreshTokens(ctx context.Context, userID string) (int, error) {
	n, err := s.refreshRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return n, nil
}

func (s *TokenService) IssuePasswordResetToken(user *domain.User) (string, error) {
	token, err := s.reset.Issue(jwt.Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject: user.ID,
			ID:      ulid.Make().String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue password reset token: %w", err)
	}
	return token, nil
}

func (s *TokenService) VerifyPasswordResetToken(token string) (*ResetClaims, error) {
	claims, err := s.reset.Verify(token)
	if err != nil || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return &ResetClaims{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func generateSecureToken() (string, error) {
	bytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// hashToken is the storage key for a refresh token value.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
