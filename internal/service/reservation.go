package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/event"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/repository"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/cache"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/database"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/slug"
)

// ReservationService implements the business logic for stock reservations.
// Multi-step mutations run inside a single transaction on db; simple reads go
// through the repositories so they stay individually testable.
type ReservationService struct {
	items        repository.ItemRepository
	reservations repository.ReservationRepository
	db           database.DBTX
	producer     *event.Producer
	listCache    *cache.Cache[[]domain.Item]
	itemCache    *cache.Cache[domain.Item]
	logger       *slog.Logger
	holdTTL      time.Duration

	// Injectable for deterministic tests.
	nowFunc func() time.Time
	newID   func() string
}

// NewReservationService creates a new reservation service. holdTTL is how
// long a reservation holds stock before the expiration worker reclaims it.
func NewReservationService(
	items repository.ItemRepository,
	reservations repository.ReservationRepository,
	db database.DBTX,
	producer *event.Producer,
	listCache *cache.Cache[[]domain.Item],
	itemCache *cache.Cache[domain.Item],
	logger *slog.Logger,
	holdTTL time.Duration,
) *ReservationService {
	return &ReservationService{
		items:        items,
		reservations: reservations,
		db:           db,
		producer:     producer,
		listCache:    listCache,
		itemCache:    itemCache,
		logger:       logger,
		holdTTL:      holdTTL,
		nowFunc:      time.Now,
		newID:        uuid.NewString,
	}
}

// nowMs returns the current time as unix milliseconds, the unit used on the
// wire and in the store.
func (s *ReservationService) nowMs() int64 {
	return s.nowFunc().UnixMilli()
}

// itemListCacheKey builds the list cache key for a sort combination.
func itemListCacheKey(sortBy, sortOrder string) string {
	return "items:" + sortBy + ":" + sortOrder
}

// invalidateItem drops the cached list variants and the per-item entry.
// Called synchronously on every stock-moving mutation so reads after a write
// never serve the pre-write quantity from cache.
func (s *ReservationService) invalidateItem(itemID string) {
	s.listCache.Clear()
	s.itemCache.Delete(itemID)
}

// ---------------------------------------------------------------------------
// Reservation engine
// ---------------------------------------------------------------------------

// Reserve places a time-limited hold of qty units on an item. The conditional
// decrement with its rows-affected check is the sole anti-oversell mechanism;
// there is deliberately no check-then-write sequence.
func (s *ReservationService) Reserve(ctx context.Context, userID, itemID string, qty int) (*domain.Reservation, error) {
	if !domain.IsValidQty(qty) {
		return nil, apperrors.InvalidQuantity(domain.MinReservationQty, domain.MaxReservationQty)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin reserve transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Pre-read for the 404 check and the conflict payload. The availability
	// reported on OUT_OF_STOCK may already be stale; the predicate in the
	// UPDATE below is what actually guards the invariant.
	var available int
	readQuery := `
		SELECT available_qty
		FROM items
		WHERE id = $1`

	err = tx.QueryRow(ctx, readQuery, itemID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ItemNotFound(itemID)
		}
		return nil, fmt.Errorf("read item availability: %w", err)
	}

	now := s.nowMs()

	decrementQuery := `
		UPDATE items
		SET available_qty = available_qty - $2, updated_at = $3
		WHERE id = $1 AND available_qty >= $2`

	ct, err := tx.Exec(ctx, decrementQuery, itemID, qty, now)
	if err != nil {
		return nil, fmt.Errorf("decrement available stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, apperrors.OutOfStock(itemID, available)
	}

	res := &domain.Reservation{
		ID:        "res_" + s.newID(),
		UserID:    userID,
		ItemID:    itemID,
		Qty:       qty,
		Status:    domain.ReservationStatusReserved,
		ExpiresAt: now + s.holdTTL.Milliseconds(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	insertQuery := `
		INSERT INTO reservations (id, user_id, item_id, qty, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, insertQuery,
		res.ID,
		res.UserID,
		res.ItemID,
		res.Qty,
		res.Status,
		res.ExpiresAt,
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve transaction: %w", err)
	}

	s.invalidateItem(itemID)

	if err := s.producer.PublishReservationCreated(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reservation-created event",
			slog.String("reservation_id", res.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "stock reserved",
		slog.String("reservation_id", res.ID),
		slog.String("user_id", userID),
		slog.String("item_id", itemID),
		slog.Int("qty", qty),
		slog.Int64("expires_at", res.ExpiresAt),
	)

	return res, nil
}

// Confirm permanently consumes the stock held by a reservation. A confirm
// arriving after the deadline performs the expiry transition inline (refund
// stock, mark expired) so a late confirm never leaks held stock, even if the
// expiration worker has not run yet.
func (s *ReservationService) Confirm(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin confirm transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := lockReservation(ctx, tx, reservationID, userID)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case domain.ReservationStatusConfirmed:
		return nil, apperrors.AlreadyConfirmed(res.ID)
	case domain.ReservationStatusCancelled:
		return nil, apperrors.Cancelled(res.ID)
	case domain.ReservationStatusExpired:
		return nil, apperrors.Expired(res.ID)
	}

	now := s.nowMs()

	if res.IsExpiredAt(now) {
		if err := expireInTx(ctx, tx, res, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit inline expiry transaction: %w", err)
		}

		s.invalidateItem(res.ItemID)

		if err := s.producer.PublishReservationExpired(ctx, res); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish reservation-expired event",
				slog.String("reservation_id", res.ID),
				slog.String("error", err.Error()),
			)
		}

		s.logger.InfoContext(ctx, "reservation expired on confirm",
			slog.String("reservation_id", res.ID),
			slog.String("item_id", res.ItemID),
			slog.Int("qty", res.Qty),
		)

		return nil, apperrors.Expired(res.ID)
	}

	statusQuery := `
		UPDATE reservations
		SET status = $2, updated_at = $3
		WHERE id = $1`

	_, err = tx.Exec(ctx, statusQuery, res.ID, domain.ReservationStatusConfirmed, now)
	if err != nil {
		return nil, fmt.Errorf("update reservation status to confirmed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm transaction: %w", err)
	}

	res.Status = domain.ReservationStatusConfirmed
	res.UpdatedAt = now

	if err := s.producer.PublishReservationConfirmed(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reservation-confirmed event",
			slog.String("reservation_id", res.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reservation confirmed",
		slog.String("reservation_id", res.ID),
		slog.String("user_id", userID),
		slog.String("item_id", res.ItemID),
		slog.Int("qty", res.Qty),
	)

	return res, nil
}

// Cancel releases a hold, returning its stock. Cancelling an expired
// reservation re-tags the row as cancelled without refunding: the expiry
// path already returned the stock, and a second refund would double it.
func (s *ReservationService) Cancel(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := lockReservation(ctx, tx, reservationID, userID)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case domain.ReservationStatusCancelled:
		return nil, apperrors.AlreadyCancelled(res.ID)
	case domain.ReservationStatusConfirmed:
		return nil, apperrors.AlreadyConfirmed(res.ID)
	}

	now := s.nowMs()
	refunded := res.Status == domain.ReservationStatusReserved

	if refunded {
		refundQuery := `
			UPDATE items
			SET available_qty = available_qty + $2, updated_at = $3
			WHERE id = $1`

		_, err = tx.Exec(ctx, refundQuery, res.ItemID, res.Qty, now)
		if err != nil {
			return nil, fmt.Errorf("refund stock for cancellation: %w", err)
		}
	}

	statusQuery := `
		UPDATE reservations
		SET status = $2, updated_at = $3
		WHERE id = $1`

	_, err = tx.Exec(ctx, statusQuery, res.ID, domain.ReservationStatusCancelled, now)
	if err != nil {
		return nil, fmt.Errorf("update reservation status to cancelled: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel transaction: %w", err)
	}

	res.Status = domain.ReservationStatusCancelled
	res.UpdatedAt = now

	if refunded {
		s.invalidateItem(res.ItemID)
	}

	if err := s.producer.PublishReservationCancelled(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reservation-cancelled event",
			slog.String("reservation_id", res.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reservation cancelled",
		slog.String("reservation_id", res.ID),
		slog.String("user_id", userID),
		slog.String("item_id", res.ItemID),
		slog.Int("qty", res.Qty),
		slog.Bool("refunded", refunded),
	)

	return res, nil
}

// ExpireDue transitions every overdue hold to expired and refunds its stock,
// all in one transaction. Idempotent: the status predicate makes repeated or
// overlapping runs harmless. Returns the number of reservations transitioned.
func (s *ReservationService) ExpireDue(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("begin expire transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.nowMs()

	dueQuery := `
		SELECT id, user_id, item_id, qty, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
		FOR UPDATE`

	rows, err := tx.Query(ctx, dueQuery, domain.ReservationStatusReserved, now)
	if err != nil {
		return 0, fmt.Errorf("select due reservations: %w", err)
	}

	var due []domain.Reservation
	for rows.Next() {
		var rv domain.Reservation
		if err := rows.Scan(
			&rv.ID,
			&rv.UserID,
			&rv.ItemID,
			&rv.Qty,
			&rv.Status,
			&rv.ExpiresAt,
			&rv.CreatedAt,
			&rv.UpdatedAt,
		); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan due reservation: %w", err)
		}
		due = append(due, rv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate due reservations: %w", err)
	}

	if len(due) == 0 {
		return 0, nil
	}

	for i := range due {
		if err := expireInTx(ctx, tx, &due[i], now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit expire transaction: %w", err)
	}

	touched := make(map[string]struct{}, len(due))
	for i := range due {
		if _, seen := touched[due[i].ItemID]; !seen {
			touched[due[i].ItemID] = struct{}{}
			s.invalidateItem(due[i].ItemID)
		}

		if err := s.producer.PublishReservationExpired(ctx, &due[i]); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish reservation-expired event",
				slog.String("reservation_id", due[i].ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "expired due reservations",
		slog.Int("count", len(due)),
	)

	return len(due), nil
}

// lockReservation loads a reservation by (id, user) under a row lock so the
// status transition below cannot race a concurrent confirm, cancel or expiry.
// An ownership mismatch is indistinguishable from a missing row.
func lockReservation(ctx context.Context, tx pgx.Tx, reservationID, userID string) (*domain.Reservation, error) {
	query := `
		SELECT id, user_id, item_id, qty, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`

	var res domain.Reservation
	err := tx.QueryRow(ctx, query, reservationID, userID).Scan(
		&res.ID,
		&res.UserID,
		&res.ItemID,
		&res.Qty,
		&res.Status,
		&res.ExpiresAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ReservationNotFound(reservationID)
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	return &res, nil
}

// expireInTx refunds a hold's stock and flips the row to expired. The caller
// holds the row lock and owns the commit.
func expireInTx(ctx context.Context, tx pgx.Tx, res *domain.Reservation, nowMs int64) error {
	refundQuery := `
		UPDATE items
		SET available_qty = available_qty + $2, updated_at = $3
		WHERE id = $1`

	_, err := tx.Exec(ctx, refundQuery, res.ItemID, res.Qty, nowMs)
	if err != nil {
		return fmt.Errorf("refund stock for expiry: %w", err)
	}

	statusQuery := `
		UPDATE reservations
		SET status = $2, updated_at = $3
		WHERE id = $1`

	_, err = tx.Exec(ctx, statusQuery, res.ID, domain.ReservationStatusExpired, nowMs)
	if err != nil {
		return fmt.Errorf("mark reservation expired: %w", err)
	}

	res.Status = domain.ReservationStatusExpired
	res.UpdatedAt = nowMs

	return nil
}

// ---------------------------------------------------------------------------
// Item catalog
// ---------------------------------------------------------------------------

// ListItems returns the catalog ordered by the given sort key, serving from
// the list cache when a fresh entry exists.
func (s *ReservationService) ListItems(ctx context.Context, sortBy, sortOrder string) ([]domain.Item, error) {
	key := itemListCacheKey(sortBy, sortOrder)
	if items, ok := s.listCache.Get(key); ok {
		return items, nil
	}

	items, err := s.items.List(ctx, sortBy, sortOrder)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	s.listCache.Set(key, items)
	return items, nil
}

// GetItem returns a single item, serving from the per-item cache when fresh.
func (s *ReservationService) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	if item, ok := s.itemCache.Get(id); ok {
		return &item, nil
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.itemCache.Set(id, *item)
	return item, nil
}

// CreateItem adds an item to the catalog. When id is empty it is derived
// from the name.
func (s *ReservationService) CreateItem(ctx context.Context, id, name string, qty int) (*domain.Item, error) {
	if id == "" {
		id = slug.Generate(name)
	}
	if id == "" {
		return nil, apperrors.Validation("item id cannot be derived from name, provide an explicit id")
	}

	now := s.nowMs()
	item := &domain.Item{
		ID:           id,
		Name:         name,
		AvailableQty: qty,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.invalidateItem(item.ID)

	if err := s.producer.PublishItemCreated(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish item-created event",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "item created",
		slog.String("item_id", item.ID),
		slog.String("name", item.Name),
		slog.Int("available_qty", item.AvailableQty),
	)

	return item, nil
}

// AdjustStock applies an administrative delta to an item's availability.
// Underflow is refused by the same rows-affected mechanism reserve uses.
func (s *ReservationService) AdjustStock(ctx context.Context, itemID string, delta int) (*domain.Item, error) {
	updated, matched, err := s.items.AdjustQty(ctx, itemID, delta, s.nowMs())
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}
	if !matched {
		// Either the item is missing or the delta would underflow; a
		// follow-up read tells the two apart.
		item, gerr := s.items.GetByID(ctx, itemID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, apperrors.OutOfStock(itemID, item.AvailableQty)
	}

	s.invalidateItem(itemID)

	if err := s.producer.PublishStockAdjusted(ctx, updated, delta); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock-adjusted event",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "stock adjusted",
		slog.String("item_id", itemID),
		slog.Int("delta", delta),
		slog.Int("available_qty", updated.AvailableQty),
	)

	return updated, nil
}

// ---------------------------------------------------------------------------
// Reservation reads
// ---------------------------------------------------------------------------

// GetReservation returns a reservation by id. Reservation reads are never
// cached; holders poll them for status changes.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

// ListUserReservations returns a user's reservations newest-first, optionally
// filtered by status and windowed by page/perPage (page <= 0 disables
// windowing). The returned int is the total match count.
func (s *ReservationService) ListUserReservations(ctx context.Context, userID, status string, page, perPage int) ([]domain.Reservation, int, error) {
	if status != "" && !domain.IsValidReservationStatus(status) {
		return nil, 0, apperrors.Validation(fmt.Sprintf("invalid status filter %q", status))
	}

	limit, offset := 0, 0
	if page > 0 {
		if perPage <= 0 {
			perPage = 20
		}
		limit = perPage
		offset = (page - 1) * perPage
	}

	reservations, total, err := s.reservations.ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list user reservations: %w", err)
	}

	return reservations, total, nil
}
