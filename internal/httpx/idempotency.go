package httpx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// IdempotencyKeyHeader: заголовок с ключом идемпотентности REST-запроса.
const IdempotencyKeyHeader = "Idempotency-Key"

// Ключи REST хранятся в отдельном пространстве, чтобы не пересекаться с gRPC.
const idempotencyKeyPrefix = "http:"

// idempotencyMiddleware кэширует ответ мутирующего запроса по Idempotency-Key.
// Без заголовка запрос обрабатывается как обычно.
func idempotencyMiddleware(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		if repo == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = idempotencyKeyPrefix + key

			// Размер тела уже ограничен middleware.RequestSize.
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeDecodeError(w, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := r.Context()
			record, err := repo.CreateProcessing(ctx, key, requestHash(r, body), time.Now().UTC().Add(ttl))
			if err != nil {
				replayHTTP(w, logger, err, record)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			mark := repo.MarkDone
			if rec.status >= http.StatusBadRequest {
				mark = repo.MarkFailed
			}
			if err := mark(ctx, key, rec.body.Bytes(), rec.status); err != nil {
				logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent http response")
			}
		})
	}
}

func replayHTTP(w http.ResponseWriter, logger *log.Entry, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: "idempotency key is already used with different request payload",
			Kind:  "conflict",
		})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing || len(record.ResponseBody) == 0 {
			writeJSON(w, http.StatusConflict, errorBody{
				Error: "request with the same idempotency key is already processing",
				Kind:  "conflict",
			})
			return
		}
		code := record.StatusCode
		if code < 100 || code > 599 {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(code)
		_, _ = w.Write(record.ResponseBody)
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: "internal"})
	}
}

func requestHash(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte{' '})
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte{':'})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// responseRecorder дублирует тело ответа для сохранения в кэше.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
