package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/event"
	appmw "github.com/hemasoorya80-maker/stock-reservation-service/internal/middleware"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/repository"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/service"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/cache"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/database"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/health"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/httputil"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/middleware"
)

// --- Mock ItemRepository ---

type mockItemRepository struct {
	mock.Mock
}

func (m *mockItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *mockItemRepository) List(ctx context.Context, sortBy, sortOrder string) ([]domain.Item, error) {
	args := m.Called(ctx, sortBy, sortOrder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Item), args.Error(1)
}

func (m *mockItemRepository) Create(ctx context.Context, item *domain.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *mockItemRepository) AdjustQty(ctx context.Context, id string, delta int, nowMs int64) (*domain.Item, bool, error) {
	args := m.Called(ctx, id, delta, nowMs)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Item), args.Bool(1), args.Error(2)
}

// --- Mock ReservationRepository ---

type mockReservationRepository struct {
	mock.Mock
}

func (m *mockReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *mockReservationRepository) ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]domain.Reservation, int, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Reservation), args.Int(1), args.Error(2)
}

// --- In-memory IdempotencyRepository ---

type memIdempotencyRepo struct {
	mu   sync.Mutex
	recs map[string]*repository.IdempotencyRecord
}

func newMemIdempotencyRepo() *memIdempotencyRepo {
	return &memIdempotencyRepo{recs: make(map[string]*repository.IdempotencyRecord)}
}

func idemKey(key, route, userID string) string {
	return key + "|" + route + "|" + userID
}

func (m *memIdempotencyRepo) Get(_ context.Context, key, route, userID string, notBefore int64) (*repository.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[idemKey(key, route, userID)]
	if !ok || rec.CreatedAt < notBefore {
		return nil, apperrors.ErrNotFound
	}
	return rec, nil
}

func (m *memIdempotencyRepo) Put(_ context.Context, rec *repository.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := idemKey(rec.Key, rec.Route, rec.UserID)
	if _, exists := m.recs[k]; exists {
		return nil
	}
	m.recs[k] = rec
	return nil
}

func (m *memIdempotencyRepo) DeleteOlderThan(_ context.Context, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for k, rec := range m.recs {
		if rec.CreatedAt < cutoff {
			delete(m.recs, k)
			deleted++
		}
	}
	return deleted, nil
}

// --- Test Harness ---

var txReadCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func defaultLimits() appmw.RateLimiterConfig {
	// Generous enough that no test trips a limiter by accident.
	return appmw.RateLimiterConfig{
		Window:          time.Minute,
		MaxRequests:     100,
		ReadMaxRequests: 200,
	}
}

// harness runs requests through the production router: the full middleware
// chain, the real service, and mock repositories with a pgxmock pool behind
// the transactional paths.
type harness struct {
	router       http.Handler
	items        *mockItemRepository
	reservations *mockReservationRepository
	db           pgxmock.PgxPoolIface
	idem         *memIdempotencyRepo
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithLimits(t, defaultLimits())
}

func newHarnessWithLimits(t *testing.T, limits appmw.RateLimiterConfig) *harness {
	t.Helper()

	itemRepo := new(mockItemRepository)
	reservationRepo := new(mockReservationRepository)

	db, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(db.Close)

	logger := newTestLogger()
	svc := service.NewReservationService(
		itemRepo,
		reservationRepo,
		db,
		event.NewProducer(nil, logger),
		cache.New[[]domain.Item](time.Minute),
		cache.New[domain.Item](time.Minute),
		logger,
		10*time.Minute,
	)

	checks := health.NewHandler()
	checks.RegisterCritical("database", func(context.Context) error { return nil })

	idem := newMemIdempotencyRepo()

	router := NewRouter(RouterDeps{
		Service:     svc,
		Health:      checks,
		RateLimiter: appmw.NewRateLimiter(limits, logger),
		Idempotency: appmw.NewIdempotency(idem, 24*time.Hour, logger),
		Logger:      logger,
		APIPrefix:   "/api/v1",
		CORS:        middleware.DefaultCORSConfig(),
	})

	return &harness{
		router:       router,
		items:        itemRepo,
		reservations: reservationRepo,
		db:           db,
		idem:         idem,
	}
}

func (h *harness) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) post(t *testing.T, target, body string) *httptest.ResponseRecorder {
	return h.postWithHeaders(t, target, body, nil)
}

func (h *harness) postWithHeaders(t *testing.T, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return resp
}

func dataMap(t *testing.T, resp httputil.Response) map[string]any {
	t.Helper()

	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %#v", resp.Data)
	return m
}

func metaMap(t *testing.T, resp httputil.Response) map[string]any {
	t.Helper()

	m, ok := resp.Meta.(map[string]any)
	require.True(t, ok, "meta is not an object: %#v", resp.Meta)
	return m
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) httputil.Response {
	t.Helper()

	assert.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, code, resp.Error.Code)
	return resp
}

// ============================================================
// Content negotiation
// ============================================================

func TestRouter_RejectsNonJSONContentType(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reserve",
		strings.NewReader(`{"userId":"user-1","itemId":"trail-mix","qty":1}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assertErrorCode(t, rec, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE")
	assert.NoError(t, h.db.ExpectationsWereMet())
}

func TestRouter_AcceptsJSONWithCharset(t *testing.T) {
	h := newHarness(t)

	// Passing the media-type gate means the request reaches field validation.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reserve",
		strings.NewReader(`{"itemId":"trail-mix","qty":1}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assertErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

// ============================================================
// Health and metrics
// ============================================================

func TestRouter_HealthLive(t *testing.T) {
	h := newHarness(t)

	rec := h.get(t, "/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusUp, resp.Status)
	assert.Greater(t, resp.Timestamp, int64(0))
}

func TestRouter_HealthReady(t *testing.T) {
	h := newHarness(t)

	rec := h.get(t, "/health/ready")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusUp, resp.Status)
	assert.Equal(t, health.StatusUp, resp.Checks["database"].Status)
	assert.True(t, resp.Checks["database"].Critical)
}

func TestRouter_APIHealthSummary(t *testing.T) {
	h := newHarness(t)

	rec := h.get(t, "/api/v1/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
}

func TestRouter_Metrics(t *testing.T) {
	h := newHarness(t)

	rec := h.get(t, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// ============================================================
// Request identity
// ============================================================

func TestRouter_RequestIDEchoed(t *testing.T) {
	h := newHarness(t)
	h.items.On("List", mock.Anything, domain.SortByName, domain.SortOrderAsc).
		Return([]domain.Item{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	req.Header.Set("X-Request-Id", "req-test-123")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-test-123", rec.Header().Get("X-Request-Id"))
}

func TestRouter_RequestIDGeneratedWhenMissing(t *testing.T) {
	h := newHarness(t)
	h.items.On("List", mock.Anything, domain.SortByName, domain.SortOrderAsc).
		Return([]domain.Item{}, nil)

	rec := h.get(t, "/api/v1/items")

	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}

// ============================================================
// Rate limiting
// ============================================================

func TestRouter_RateLimitHeadersOnReads(t *testing.T) {
	h := newHarness(t)
	h.items.On("List", mock.Anything, domain.SortByName, domain.SortOrderAsc).
		Return([]domain.Item{}, nil)

	rec := h.get(t, "/api/v1/items")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "199", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRouter_RateLimitExceeded(t *testing.T) {
	limits := defaultLimits()
	limits.ReadMaxRequests = 1
	h := newHarnessWithLimits(t, limits)
	h.items.On("List", mock.Anything, domain.SortByName, domain.SortOrderAsc).
		Return([]domain.Item{}, nil)

	first := h.get(t, "/api/v1/items")
	require.Equal(t, http.StatusOK, first.Code)

	second := h.get(t, "/api/v1/items")
	assertErrorCode(t, second, http.StatusTooManyRequests, "RATE_LIMITED")
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// The rejected request never reached the handler.
	h.items.AssertNumberOfCalls(t, "List", 1)
}

// ============================================================
// Idempotency
// ============================================================

func TestRouter_IdempotentReplay(t *testing.T) {
	h := newHarness(t)

	// A single scripted transaction: the replayed attempt must not open
	// another one.
	h.db.ExpectBeginTx(txReadCommitted)
	h.db.ExpectQuery("SELECT available_qty FROM items WHERE id").
		WithArgs("trail-mix").
		WillReturnRows(pgxmock.NewRows([]string{"available_qty"}).AddRow(10))
	h.db.ExpectExec("UPDATE items SET available_qty = available_qty -").
		WithArgs("trail-mix", 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	h.db.ExpectExec("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), "user-1", "trail-mix", 2, domain.ReservationStatusReserved,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	h.db.ExpectCommit()

	body := `{"userId":"user-1","itemId":"trail-mix","qty":2}`
	headers := map[string]string{"Idempotency-Key": "checkout-1111-aaaa"}

	first := h.postWithHeaders(t, "/api/v1/reserve", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, "body: %s", first.Body.String())
	assert.Empty(t, first.Header().Get("Idempotent-Replay"))

	second := h.postWithHeaders(t, "/api/v1/reserve", body, headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.NoError(t, h.db.ExpectationsWereMet())
}

func TestRouter_InvalidIdempotencyKeyRejected(t *testing.T) {
	h := newHarness(t)

	rec := h.postWithHeaders(t, "/api/v1/reserve",
		`{"userId":"user-1","itemId":"trail-mix","qty":1}`,
		map[string]string{"Idempotency-Key": "short"})

	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY")
	assert.NoError(t, h.db.ExpectationsWereMet())
}

// ============================================================
// Surface boundaries
// ============================================================

func TestRouter_PprofDeniedByDefault(t *testing.T) {
	h := newHarness(t)

	rec := h.get(t, "/debug/pprof/")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_UnknownRouteNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.get(t, "/api/v1/warehouses")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PreflightHandled(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/reserve", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
