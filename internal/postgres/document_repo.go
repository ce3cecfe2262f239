package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cwrk-planet/collab-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DocumentRepository struct {
	db rowQuerier
}

func NewDocumentRepository(db rowQuerier) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const resolveDocumentQuery = `
	SELECT id::text
	FROM documents
	WHERE deleted_at IS NULL
	  AND (id::text = $1 OR (share_token = $1 AND share_enabled))
	ORDER BY (id::text = $1) DESC
	LIMIT 1`

// Resolve: document id or enabled share token -> canonical id
func (r *DocumentRepository) Resolve(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrMissingRoomKey
	}

	var id string
	err := r.db.QueryRow(ctx, resolveDocumentQuery, key).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrDocumentNotFound
		}
		return "", fmt.Errorf("resolve document %q: %w", key, err)
	}
	return id, nil
}
