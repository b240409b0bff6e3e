package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/repository"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/database"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
)

// IdempotencyRepository implements repository.IdempotencyRepository using
// PostgreSQL. Responses live in the same store as the data they describe so a
// replayed request and its original effect cannot diverge across restarts.
type IdempotencyRepository struct {
	pool database.DBTX
}

// NewIdempotencyRepository creates a new PostgreSQL-backed idempotency repository.
func NewIdempotencyRepository(pool database.DBTX) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Get retrieves the stored response for (key, route, userID) created at or
// after notBefore. Records older than the caller's window are treated as
// absent; the janitor reclaims them separately.
func (r *IdempotencyRepository) Get(ctx context.Context, key, route, userID string, notBefore int64) (rec *repository.IdempotencyRecord, err error) {
	query := `
		SELECT key, route, user_id, response_status, response_body, created_at
		FROM idempotency_keys
		WHERE key = $1 AND route = $2 AND user_id = $3 AND created_at >= $4`

	ctx, end := database.TraceQuery(ctx, "idempotency.get", query)
	defer func() { end(err) }()

	var stored repository.IdempotencyRecord
	err = r.pool.QueryRow(ctx, query, key, route, userID, notBefore).Scan(
		&stored.Key,
		&stored.Route,
		&stored.UserID,
		&stored.Status,
		&stored.Body,
		&stored.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	return &stored, nil
}

// Put stores a response record. The first write for a given
// (key, route, userID) wins; concurrent duplicates are silently dropped.
func (r *IdempotencyRepository) Put(ctx context.Context, rec *repository.IdempotencyRecord) (err error) {
	query := `
		INSERT INTO idempotency_keys (key, route, user_id, response_status, response_body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key, route, user_id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "idempotency.put", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		rec.Key,
		rec.Route,
		rec.UserID,
		rec.Status,
		rec.Body,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put idempotency record: %w", err)
	}

	return nil
}

// DeleteOlderThan removes records created before cutoff and returns how many
// rows were reclaimed.
func (r *IdempotencyRepository) DeleteOlderThan(ctx context.Context, cutoff int64) (deleted int64, err error) {
	query := `DELETE FROM idempotency_keys WHERE created_at < $1`

	ctx, end := database.TraceQuery(ctx, "idempotency.delete_older_than", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete idempotency records: %w", err)
	}

	return ct.RowsAffected(), nil
}
