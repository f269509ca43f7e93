package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"identity-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const (
	usernameDocType = "username"
	emailDocType    = "email"

	// Mango queries default to 25 rows; counting needs an explicit ceiling.
	maxCountRows = 1 << 20
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, user *domain.User) error
	Search(ctx context.Context, substring string, offset, limit int) ([]*domain.User, int, error)
	EnsureIndexes(ctx context.Context) error
}

// reservation claims a unique value (username or email) for one user. CouchDB
// only guarantees uniqueness of document ids, so each unique field gets its
// own document keyed by the lowercased value.
type reservation struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type userRepository struct {
	db *kivik.DB
}

func NewUserRepository(client *kivik.Client, dbName string) UserRepository {
	return &userRepository{
		db: client.DB(dbName),
	}
}

func userDocID(id string) string {
	return fmt.Sprintf("user:%s", id)
}

func usernameDocID(username string) string {
	return fmt.Sprintf("%s:%s", usernameDocType, strings.ToLower(username))
}

func emailDocID(email string) string {
	return fmt.Sprintf("%s:%s", emailDocType, strings.ToLower(email))
}

func (r *userRepository) EnsureIndexes(ctx context.Context) error {
	index := map[string]interface{}{
		"fields": []string{"type", "username"},
	}
	if err := r.db.CreateIndex(ctx, "users", "type-username", index); err != nil {
		return fmt.Errorf("failed to create username index: %w", err)
	}

	return nil
}

// Create reserves the username (and email, when set) before writing the user
// document. A taken reservation yields ErrConflict.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	user.Type = domain.UserDocType

	if _, err := r.db.Put(ctx, usernameDocID(user.Username), reservation{Type: usernameDocType, UserID: user.ID}); err != nil {
		return fmt.Errorf("failed to reserve username: %w", translateError(err))
	}

	if user.Email != "" {
		if _, err := r.db.Put(ctx, emailDocID(user.Email), reservation{Type: emailDocType, UserID: user.ID}); err != nil {
			r.release(ctx, usernameDocID(user.Username))
			return fmt.Errorf("failed to reserve email: %w", translateError(err))
		}
	}

	rev, err := r.db.Put(ctx, userDocID(user.ID), user)
	if err != nil {
		r.release(ctx, usernameDocID(user.Username))
		if user.Email != "" {
			r.release(ctx, emailDocID(user.Email))
		}
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}

	user.Rev = rev
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.Get(ctx, userDocID(id)).ScanDoc(&user); err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", translateError(err))
	}

	return &user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findByReservation(ctx, usernameDocID(username))
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findByReservation(ctx, emailDocID(email))
}

func (r *userRepository) findByReservation(ctx context.Context, docID string) (*domain.User, error) {
	var res reservation
	if err := r.db.Get(ctx, docID).ScanDoc(&res); err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", docID, translateError(err))
	}

	return r.FindByID(ctx, res.UserID)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.Type = domain.UserDocType

	rev, err := r.db.Put(ctx, userDocID(user.ID), user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translateError(err))
	}

	user.Rev = rev
	return nil
}

func (r *userRepository) Delete(ctx context.Context, user *domain.User) error {
	if _, err := r.db.Delete(ctx, userDocID(user.ID), user.Rev); err != nil {
		return fmt.Errorf("failed to delete user: %w", translateError(err))
	}

	r.release(ctx, usernameDocID(user.Username))
	if user.Email != "" {
		r.release(ctx, emailDocID(user.Email))
	}

	return nil
}

// Search returns one page of users whose username contains substring, sorted
// by username, together with the total number of matches.
func (r *userRepository) Search(ctx context.Context, substring string, offset, limit int) ([]*domain.User, int, error) {
	selector := searchSelector(substring)

	query := map[string]interface{}{
		"selector": selector,
		"sort": []map[string]string{
			{"type": "asc"},
			{"username": "asc"},
		},
		"skip":  offset,
		"limit": limit,
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", translateError(err))
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.ScanDoc(&user); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}

	total, err := r.count(ctx, selector)
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) count(ctx context.Context, selector map[string]interface{}) (int, error) {
	query := map[string]interface{}{
		"selector": selector,
		"fields":   []string{"_id"},
		"limit":    maxCountRows,
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", translateError(err))
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		total++
	}

	return total, rows.Err()
}

func (r *userRepository) release(ctx context.Context, docID string) {
	rev, err := r.db.GetRev(ctx, docID)
	if err != nil {
		return
	}
	_, _ = r.db.Delete(ctx, docID, rev)
}

// searchSelector builds the Mango selector for a case-insensitive substring
// match. Usernames are stored lowercased, so lowercasing the needle suffices.
func searchSelector(substring string) map[string]interface{} {
	selector := map[string]interface{}{
		"type": domain.UserDocType,
	}

	if substring = strings.TrimSpace(substring); substring != "" {
		selector["username"] = map[string]interface{}{
			"$regex": regexp.QuoteMeta(strings.ToLower(substring)),
		}
	}

	return selector
}
