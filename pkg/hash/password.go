package hash

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost = 12
	MinCost     = 10

	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost        int
	placeholder []byte
}

// NewHasher builds a Hasher. The placeholder digest used by DummyVerify is
// computed once here at the same cost as real digests.
func NewHasher(cost int) (*Hasher, error) {
	if cost < MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", MinCost, bcrypt.MaxCost, cost)
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("failed to generate placeholder secret: %w", err)
	}

	placeholder, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(random)), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder: %w", err)
	}

	return &Hasher{
		cost:        cost,
		placeholder: placeholder,
	}, nil
}

func (h *Hasher) Cost() int {
	return h.cost
}

func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hashedBytes), nil
}

// Verify reports whether password matches digest. An empty or malformed
// digest yields false after the same amount of work as a real comparison.
func (h *Hasher) Verify(password, digest string) bool {
	if digest == "" {
		h.DummyVerify(password)
		return false
	}

	if _, err := bcrypt.Cost([]byte(digest)); err != nil {
		h.DummyVerify(password)
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// DummyVerify burns one comparison against the placeholder digest. Callers
// use it when there is no stored digest to compare against.
func (h *Hasher) DummyVerify(password string) {
	_ = bcrypt.CompareHashAndPassword(h.placeholder, []byte(password))
}
