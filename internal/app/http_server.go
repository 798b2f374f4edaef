package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/erp-orders/internal/health"
)

const (
	httpShutdownTimeout = 5 * time.Second
	readHeaderTimeout   = 5 * time.Second
)

// newMetricsServer отдаёт /metrics и пробы здоровья.
func newMetricsServer(healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	return &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
}

func newAPIServer(handler http.Handler, requestTimeout time.Duration) *http.Server {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	if requestTimeout > 0 {
		srv.WriteTimeout = requestTimeout + time.Second
	}
	return srv
}

// serveHTTP запускает сервер в группе и останавливает его при отмене ctx.
func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server, lis net.Listener, logger *log.Entry) {
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve %s: %w", lis.Addr(), err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
		return nil
	})
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
