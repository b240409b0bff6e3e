package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/database"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
)

// ReservationRepository implements repository.ReservationRepository using
// PostgreSQL. It only covers reads; stock-moving writes run inside
// service-owned transactions so the decrement and the hold commit together.
type ReservationRepository struct {
	pool database.DBTX
}

// NewReservationRepository creates a new PostgreSQL-backed reservation repository.
func NewReservationRepository(pool database.DBTX) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// GetByID retrieves a reservation by its unique identifier.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (res *domain.Reservation, err error) {
	query := `
		SELECT id, user_id, item_id, qty, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "reservations.get_by_id", query)
	defer func() { end(err) }()

	var rv domain.Reservation
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&rv.ID,
		&rv.UserID,
		&rv.ItemID,
		&rv.Qty,
		&rv.Status,
		&rv.ExpiresAt,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ReservationNotFound(id)
		}
		return nil, fmt.Errorf("get reservation by id: %w", err)
	}

	return &rv, nil
}

// ListByUser returns a user's reservations newest-first, optionally filtered
// by status. A positive limit windows the result; total_count always reports
// the full match count.
func (r *ReservationRepository) ListByUser(ctx context.Context, userID, status string, limit, offset int) (reservations []domain.Reservation, total int, err error) {
	query := `
		SELECT id, user_id, item_id, qty, status, expires_at, created_at, updated_at,
		       count(*) OVER() AS total_count
		FROM reservations
		WHERE user_id = $1`
	args := []any{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if limit > 0 {
		p1 := strconv.Itoa(len(args) + 1)
		p2 := strconv.Itoa(len(args) + 2)
		query += ` LIMIT $` + p1 + ` OFFSET $` + p2
		args = append(args, limit, offset)
	}

	ctx, end := database.TraceQuery(ctx, "reservations.list_by_user", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations by user: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rv domain.Reservation
		if err = rows.Scan(
			&rv.ID,
			&rv.UserID,
			&rv.ItemID,
			&rv.Qty,
			&rv.Status,
			&rv.ExpiresAt,
			&rv.CreatedAt,
			&rv.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan reservation row: %w", err)
		}
		reservations = append(reservations, rv)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reservation rows: %w", err)
	}

	if reservations == nil {
		reservations = []domain.Reservation{}
	}

	return reservations, total, nil
}
