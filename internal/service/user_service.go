package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-server/internal/domain"
	"identity-server/internal/repository"
	"identity-server/pkg/hash"

	"github.com/go-playground/validator/v10"
)

// UserService serves operations on a single, already authorized account and
// the shared user listing.
type UserService struct {
	userRepo      repository.UserRepository
	authenticator *Authenticator
	tokens        *TokenService
	hasher        *hash.Hasher
	validator     *validator.Validate
	now           func() time.Time
}

func NewUserService(userRepo repository.UserRepository, authenticator *Authenticator, tokens *TokenService, hasher *hash.Hasher) *UserService {
	return &UserService{
		userRepo:      userRepo,
		authenticator: authenticator,
		tokens:        tokens,
		hasher:        hasher,
		validator:     NewValidator(),
		now:           time.Now,
	}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.UserPublic, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user.ToPublic(), nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID string, req *domain.ChangePasswordRequest) error {
	if err := validate(s.validator, req); err != nil {
		return err
	}

	user, err := s.authenticator.VerifyPassword(ctx, userID, req.CurrentPassword)
	if err != nil {
		return err
	}

	hashedPassword, err := hashPassword(s.hasher, "new_password", req.NewPassword)
	if err != nil {
		return err
	}

	if err := updatePassword(ctx, s.userRepo, user, hashedPassword, s.now()); err != nil {
		return err
	}

	_, err = s.tokens.RevokeAllRefreshTokens(ctx, user.ID)
	return err
}

// Delete removes the account and every refresh token it holds. Access tokens
// already issued stay valid until they expire.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.userRepo.Delete(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if errors.Is(err, repository.ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if _, err := s.tokens.RevokeAllRefreshTokens(ctx, user.ID); err != nil {
		return err
	}

	return nil
}

func (s *UserService) List(ctx context.Context, query domain.ListUsersQuery) (*domain.UserPage, error) {
	query = query.Normalize()

	users, total, err := s.userRepo.Search(ctx, query.Search, query.Offset(), query.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	items := make([]*domain.UserPublic, len(users))
	for i, user := range users {
		items[i] = user.ToPublic()
	}

	return domain.NewUserPage(query, items, total), nil
}
