package repository

import (
	"context"
	"fmt"

	"identity-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUserID(ctx context.Context, userID string) (int, error)
	EnsureIndexes(ctx context.Context) error
}

type refreshTokenRepository struct {
	db *kivik.DB
}

func NewRefreshTokenRepository(client *kivik.Client, dbName string) RefreshTokenRepository {
	return &refreshTokenRepository{
		db: client.DB(dbName),
	}
}

func refreshTokenDocID(tokenHash string) string {
	return fmt.Sprintf("%s:%s", domain.RefreshTokenDocType, tokenHash)
}

func (r *refreshTokenRepository) EnsureIndexes(ctx context.Context) error {
	index := map[string]interface{}{
		"fields": []string{"type", "user_id"},
	}
	if err := r.db.CreateIndex(ctx, "refresh_tokens", "type-user", index); err != nil {
		return fmt.Errorf("failed to create refresh token index: %w", err)
	}

	return nil
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	token.Type = domain.RefreshTokenDocType

	rev, err := r.db.Put(ctx, refreshTokenDocID(token.TokenHash), token)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", translateError(err))
	}

	token.Rev = rev
	return nil
}

func (r *refreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	if err := r.db.Get(ctx, refreshTokenDocID(tokenHash)).ScanDoc(&token); err != nil {
		return nil, fmt.Errorf("refresh token not found: %w", translateError(err))
	}

	return &token, nil
}

// Delete removes the token at its current revision. When two callers race,
// CouchDB accepts exactly one delete; the other sees ErrNotFound.
func (r *refreshTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	docID := refreshTokenDocID(tokenHash)

	rev, err := r.db.GetRev(ctx, docID)
	if err != nil {
		return fmt.Errorf("refresh token not found: %w", translateError(err))
	}

	if _, err := r.db.Delete(ctx, docID, rev); err != nil {
		err = translateError(err)
		if err == ErrConflict {
			err = ErrNotFound
		}
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	return nil
}

func (r *refreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (int, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type":    domain.RefreshTokenDocType,
			"user_id": userID,
		},
		"fields": []string{"_id", "_rev"},
		"limit":  maxCountRows,
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to query refresh tokens: %w", translateError(err))
	}
	defer rows.Close()

	var docs []docMeta
	for rows.Next() {
		var meta docMeta
		if err := rows.ScanDoc(&meta); err != nil {
			return 0, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		docs = append(docs, meta)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate refresh tokens: %w", err)
	}

	deleted := 0
	for _, doc := range docs {
		if _, err := r.db.Delete(ctx, doc.ID, doc.Rev); err != nil {
			if translateError(err) == ErrNotFound || translateError(err) == ErrConflict {
				continue
			}
			return deleted, fmt.Errorf("failed to delete refresh token: %w", err)
		}
		deleted++
	}

	return deleted, nil
}
