package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity-server/internal/domain"
	"identity-server/internal/repository"
	"identity-server/pkg/hash"
)

// Authenticator checks a username and password against the account directory.
type Authenticator struct {
	userRepo repository.UserRepository
	hasher   *hash.Hasher
}

func NewAuthenticator(userRepo repository.UserRepository, hasher *hash.Hasher) *Authenticator {
	return &Authenticator{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

// Authenticate returns the matching user with its password hash cleared. An
// unknown username and a wrong password both yield ErrInvalidCredentials after
// one bcrypt comparison, so neither the error nor the latency reveals whether
// the account exists.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := a.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		a.hasher.DummyVerify(password)
		return nil, ErrInvalidCredentials
	}

	if !a.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return user, nil
}

// VerifyPassword checks password against the stored hash of user id. It is
// used where the caller is already authenticated, e.g. changing a password.
func (a *Authenticator) VerifyPassword(ctx context.Context, userID, password string) (*domain.User, error) {
	user, err := a.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.hasher.DummyVerify(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !a.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
