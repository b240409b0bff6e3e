package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/repository"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/httputil"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"

	// maxIdempotencyBody caps how much of the request body the middleware
	// reads while probing for the caller identity.
	maxIdempotencyBody = 1 << 20
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,255}$`)

// Idempotency replays stored responses for repeated mutations. A response is
// keyed by (key, route, userId): the Idempotency-Key header, the request
// path, and the userId field of the JSON body. Only 2xx responses are
// stored, so a failed attempt can be retried with the same key.
type Idempotency struct {
	repo   repository.IdempotencyRepository
	ttl    time.Duration
	logger *slog.Logger

	nowFunc func() time.Time // injectable clock for testing
}

// NewIdempotency creates the middleware. ttl bounds how long a stored
// response stays replayable.
func NewIdempotency(repo repository.IdempotencyRepository, ttl time.Duration, logger *slog.Logger) *Idempotency {
	return &Idempotency{
		repo:    repo,
		ttl:     ttl,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Middleware returns the handler wrapper. Mount it on mutation routes only.
func (i *Idempotency) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !idempotencyKeyPattern.MatchString(key) {
				httputil.WriteError(w, r,
					apperrors.InvalidIdempotencyKey("Idempotency-Key must be 8-255 characters of [A-Za-z0-9_-]"),
					i.logger)
				return
			}

			userID, ok := i.readUserID(r)
			if !ok || userID == "" {
				// No caller identity: let the handler reject the request
				// through its own validation.
				next.ServeHTTP(w, r)
				return
			}

			// The body probe is the first place the caller identity is known,
			// so stamp it into the context for downstream log lines.
			ctx := logger.WithUserID(r.Context(), userID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", userID)))
			r = r.WithContext(ctx)

			now := i.nowFunc().UnixMilli()
			notBefore := now - i.ttl.Milliseconds()

			rec, err := i.repo.Get(r.Context(), key, r.URL.Path, userID, notBefore)
			if err == nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(replayHeader, "true")
				w.WriteHeader(rec.Status)
				_, _ = w.Write(rec.Body)
				return
			}
			if !errors.Is(err, apperrors.ErrNotFound) {
				// Storage trouble must not block the mutation; worst case the
				// caller loses replay protection for this request.
				i.logger.ErrorContext(r.Context(), "idempotency lookup failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}

			rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if rw.status < 200 || rw.status >= 300 {
				return
			}

			putErr := i.repo.Put(r.Context(), &repository.IdempotencyRecord{
				Key:       key,
				Route:     r.URL.Path,
				UserID:    userID,
				Status:    rw.status,
				Body:      rw.body.Bytes(),
				CreatedAt: now,
			})
			if putErr != nil {
				i.logger.ErrorContext(r.Context(), "idempotency store failed",
					slog.String("key", key),
					slog.String("error", putErr.Error()),
				)
			}
		})
	}
}

// readUserID probes the JSON body for the caller identity and restores the
// body for the handler. The bool is false when the body is missing or not
// JSON.
func (i *Idempotency) readUserID(r *http.Request) (string, bool) {
	if r.Body == nil {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return "", false
	}

	var probe struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", false
	}
	return probe.UserID, true
}

// Sweep deletes expired records on an interval until ctx is cancelled. Reads
// already ignore records past the TTL; the sweep reclaims the space.
func (i *Idempotency) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := i.nowFunc().UnixMilli() - i.ttl.Milliseconds()
			deleted, err := i.repo.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				i.logger.Error("idempotency sweep failed", slog.String("error", err.Error()))
				continue
			}
			if deleted > 0 {
				i.logger.Info("idempotency sweep", slog.Int64("deleted", deleted))
			}
		}
	}
}

// recordingWriter captures the status and body while streaming the response
// through, so a successful mutation can be stored for replay.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
