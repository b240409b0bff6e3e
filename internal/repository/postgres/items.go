package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/database"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
)

// sortColumns maps wire sort keys to their column expressions. Sort input is
// validated upstream; anything unknown falls back to name.
var sortColumns = map[string]string{
	domain.SortByName:         "name",
	domain.SortByAvailableQty: "available_qty",
}

// ItemRepository implements repository.ItemRepository using PostgreSQL.
type ItemRepository struct {
	pool database.DBTX
}

// NewItemRepository creates a new PostgreSQL-backed item repository.
func NewItemRepository(pool database.DBTX) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// GetByID retrieves an item by its identifier.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (item *domain.Item, err error) {
	query := `
		SELECT id, name, available_qty, created_at, updated_at
		FROM items
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "items.get_by_id", query)
	defer func() { end(err) }()

	var it domain.Item
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&it.ID,
		&it.Name,
		&it.AvailableQty,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ItemNotFound(id)
		}
		return nil, fmt.Errorf("get item by id: %w", err)
	}

	return &it, nil
}

// List returns all items ordered by the given sort key and direction.
func (r *ItemRepository) List(ctx context.Context, sortBy, sortOrder string) (items []domain.Item, err error) {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = "name"
	}
	direction := "ASC"
	if sortOrder == domain.SortOrderDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT id, name, available_qty, created_at, updated_at
		FROM items
		ORDER BY %s %s, id ASC`, column, direction)

	ctx, end := database.TraceQuery(ctx, "items.list", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.Item
		if err = rows.Scan(
			&it.ID,
			&it.Name,
			&it.AvailableQty,
			&it.CreatedAt,
			&it.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		items = append(items, it)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}

	if items == nil {
		items = []domain.Item{}
	}

	return items, nil
}

// Create inserts a new item. A duplicate id reports a conflict.
func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) (err error) {
	query := `
		INSERT INTO items (id, name, available_qty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "items.create", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query,
		item.ID,
		item.Name,
		item.AvailableQty,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.ItemExists(item.ID)
	}

	return nil
}

// AdjustQty atomically applies delta to the item's available quantity. The
// WHERE clause refuses changes that would drive availability negative; the
// returned bool reports whether a row matched (false covers both a missing
// item and an underflow, which the caller tells apart with a follow-up read).
func (r *ItemRepository) AdjustQty(ctx context.Context, id string, delta int, nowMs int64) (item *domain.Item, matched bool, err error) {
	query := `
		UPDATE items
		SET available_qty = available_qty + $2, updated_at = $3
		WHERE id = $1 AND available_qty + $2 >= 0
		RETURNING id, name, available_qty, created_at, updated_at`

	ctx, end := database.TraceQuery(ctx, "items.adjust_qty", query)
	defer func() { end(err) }()

	var it domain.Item
	err = r.pool.QueryRow(ctx, query, id, delta, nowMs).Scan(
		&it.ID,
		&it.Name,
		&it.AvailableQty,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("adjust item quantity: %w", err)
	}

	return &it, true, nil
}
