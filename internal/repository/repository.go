package repository

import (
	"context"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
)

// ItemRepository defines the interface for item persistence operations.
type ItemRepository interface {
	// GetByID retrieves an item by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Item, error)

	// List returns all items ordered by the given sort key and direction.
	List(ctx context.Context, sortBy, sortOrder string) ([]domain.Item, error)

	// Create inserts a new item. Returns a conflict error if the id is taken.
	Create(ctx context.Context, item *domain.Item) error

	// AdjustQty atomically applies delta to the item's available quantity,
	// refusing changes that would drive it negative. The bool reports whether
	// a row matched; false means the item is missing or the delta would
	// underflow, which callers disambiguate with a follow-up read.
	AdjustQty(ctx context.Context, id string, delta int, nowMs int64) (*domain.Item, bool, error)
}

// ReservationRepository defines the interface for reservation read operations.
// Stock-moving reservation writes run inside service-owned transactions.
type ReservationRepository interface {
	// GetByID retrieves a reservation by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// ListByUser returns a user's reservations newest-first, optionally
	// filtered by status. A positive limit windows the result; the returned
	// int is the total match count regardless of windowing.
	ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]domain.Reservation, int, error)
}

// IdempotencyRecord is a stored mutation response keyed by
// (key, route, userID). CreatedAt is unix milliseconds.
type IdempotencyRecord struct {
	Key       string
	Route     string
	UserID    string
	Status    int
	Body      []byte
	CreatedAt int64
}

// IdempotencyRepository defines the interface for replayable response storage.
type IdempotencyRepository interface {
	// Get retrieves the record for (key, route, userID) created at or after
	// notBefore (unix milliseconds). Older or absent records report not found.
	Get(ctx context.Context, key, route, userID string, notBefore int64) (*IdempotencyRecord, error)

	// Put stores a record. The first write for a given (key, route, userID)
	// wins; later writes are silently ignored.
	Put(ctx context.Context, rec *IdempotencyRecord) error

	// DeleteOlderThan removes records created before cutoff (unix
	// milliseconds) and returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}
