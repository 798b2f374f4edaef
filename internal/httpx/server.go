// Package httpx публикует REST API заказов и каталога поверх chi.
package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// Deps: зависимости REST-слоя.
type Deps struct {
	Orders      grpcsvc.OrderUseCases
	Catalog     grpcsvc.CatalogUseCases
	Idempotency domain.IdempotencyRepository
	// IdempotencyTTL: срок хранения ответа по Idempotency-Key.
	IdempotencyTTL time.Duration
	Limiter        *RateLimiter
	Logger         *log.Entry
	Timeout        time.Duration
	// MaxBodyBytes ограничивает тело запроса; больше лимита отвечаем 413.
	MaxBodyBytes int64
}

// NewRouter собирает роутер с middleware и маршрутами /api.
func NewRouter(deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.RequestSize(maxBody))
	if deps.Limiter != nil {
		r.Use(deps.Limiter.Middleware)
	}

	idem := idempotencyMiddleware(deps.Idempotency, deps.IdempotencyTTL, logger)

	orders := &ordersHandler{orders: deps.Orders, logger: logger}
	products := &productsHandler{catalog: deps.Catalog, logger: logger}

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(idem).Post("/", orders.create)
			r.Get("/{id}", orders.get)
			r.Get("/{id}/timeline", orders.timeline)
			r.Patch("/{id}/status", orders.updateStatus)
			r.With(idem).Post("/{id}/cancel", orders.cancel)
		})
		r.Get("/users/{userID}/orders", orders.listForUser)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", products.create)
			r.Get("/{id}", products.get)
			r.Patch("/{id}", products.update)
			r.Post("/{id}/stock", products.adjustStock)
		})
	})

	return r
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(started).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("http request failed")
				return
			}
			entry.Debug("http request served")
		})
	}
}
