package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"identity-server/internal/domain"
	"identity-server/internal/mail"
	"identity-server/internal/repository"
	"identity-server/pkg/hash"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type AuthServiceDeps struct {
	UserRepo      repository.UserRepository
	Authenticator *Authenticator
	Tokens        *TokenService
	Hasher        *hash.Hasher
	Mailer        mail.Mailer
	// ResetLedger makes reset tokens single-use. Nil disables tracking.
	ResetLedger repository.ResetTokenLedger
	ResetURL    string
	Logger      *slog.Logger
}

type AuthService struct {
	userRepo      repository.UserRepository
	authenticator *Authenticator
	tokens        *TokenService
	hasher        *hash.Hasher
	mailer        mail.Mailer
	resetLedger   repository.ResetTokenLedger
	resetURL      string
	logger        *slog.Logger
	validator     *validator.Validate
	now           func() time.Time
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		userRepo:      deps.UserRepo,
		authenticator: deps.Authenticator,
		tokens:        deps.Tokens,
		hasher:        deps.Hasher,
		mailer:        deps.Mailer,
		resetLedger:   deps.ResetLedger,
		resetURL:      deps.ResetURL,
		logger:        logger,
		validator:     NewValidator(),
		now:           time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserPublic, error) {
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	hashedPassword, err := hashPassword(s.hasher, "password", req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     strings.ToLower(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user.ToPublic(), nil
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	user, err := s.authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResponse{
		User:         user.ToPublic(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTokenLifetime().Seconds()),
	}, nil
}

// Refresh exchanges a refresh token for a new access token and a replacement
// refresh token. The presented refresh token stops working.
func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.TokenResponse, error) {
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	userID, replacement, err := s.tokens.RotateRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if revokeErr := s.tokens.RevokeRefreshToken(ctx, replacement); revokeErr != nil {
			s.logger.WarnContext(ctx, "failed to revoke orphaned refresh token", "error", revokeErr)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: replacement,
		ExpiresIn:    int64(s.tokens.AccessTokenLifetime().Seconds()),
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, req *domain.RefreshTokenRequest) error {
	if err := validate(s.validator, req); err != nil {
		return err
	}
	return s.tokens.RevokeRefreshToken(ctx, req.RefreshToken)
}

// ForgotPassword mails a reset link when email belongs to an account. It
// reports success either way so the endpoint cannot be used to discover which
// emails are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, req *domain.ForgotPasswordRequest) error {
	if err := validate(s.validator, req); err != nil {
		return err
	}

	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	token, err := s.tokens.IssuePasswordResetToken(user)
	if err != nil {
		return err
	}

	msg := mail.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body:    s.resetBody(user, token),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver password reset mail", "user_id", user.ID, "error", err)
	}

	return nil
}

// ResetPassword sets a new password using a reset token. Each token works
// once when a ledger is configured; every refresh token of the account is
// revoked afterwards. The token is only spent once the new password is
// acceptable, and is handed back if saving it fails.
func (s *AuthService) ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error {
	if err := validate(s.validator, req); err != nil {
		return err
	}

	claims, err := s.tokens.VerifyPasswordResetToken(req.Token)
	if err != nil {
		return err
	}

	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	hashedPassword, err := hashPassword(s.hasher, "password", req.Password)
	if err != nil {
		return err
	}

	if s.resetLedger != nil {
		fresh, err := s.resetLedger.Consume(ctx, claims.TokenID, claims.ExpiresAt.Sub(s.now()))
		if err != nil {
			return fmt.Errorf("failed to consume reset token: %w", err)
		}
		if !fresh {
			return ErrInvalidToken
		}
	}

	if err := updatePassword(ctx, s.userRepo, user, hashedPassword, s.now()); err != nil {
		if s.resetLedger != nil {
			if releaseErr := s.resetLedger.Release(ctx, claims.TokenID); releaseErr != nil {
				s.logger.WarnContext(ctx, "failed to release reset token", "user_id", user.ID, "error", releaseErr)
			}
		}
		return err
	}

	if _, err := s.tokens.RevokeAllRefreshTokens(ctx, user.ID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID)
	return nil
}

func (s *AuthService) resetBody(user *domain.User, token string) string {
	link := s.resetURL
	if link != "" {
		separator := "?"
		if strings.Contains(link, "?") {
			separator = "&"
		}
		link = link + separator + "token=" + url.QueryEscape(token)
	} else {
		link = token
	}

	return fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password. It expires soon and works once.\n\n%s\n\nIf you did not ask for this, ignore this email.\n",
		user.Username, link)
}

// hashPassword hashes password and reports the hasher's length limits as a
// validation failure on field. Request validation counts characters while
// bcrypt counts bytes, so a multibyte password can pass one and not the other.
func hashPassword(hasher *hash.Hasher, field, password string) (string, error) {
	hashedPassword, err := hasher.Hash(password)
	switch {
	case errors.Is(err, hash.ErrPasswordTooShort):
		return "", &ValidationError{Fields: map[string]string{field: "must be at least 8 bytes"}}
	case errors.Is(err, hash.ErrPasswordTooLong):
		return "", &ValidationError{Fields: map[string]string{field: "must be at most 72 bytes"}}
	case err != nil:
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return hashedPassword, nil
}

// updatePassword stores hashedPassword on user. Callers revoke the account's
// refresh tokens afterwards to end sessions opened with the old password.
func updatePassword(ctx context.Context, repo repository.UserRepository, user *domain.User, hashedPassword string, now time.Time) error {
	user.PasswordHash = hashedPassword
	user.UpdatedAt = now.UTC()

	if err := repo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}
