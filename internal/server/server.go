// Пакет server — HTTP-сервер Storage Gateway с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/bigkaa/goartstore/storage-gateway/internal/api/generated"
	"github.com/bigkaa/goartstore/storage-gateway/internal/api/handlers"
	"github.com/bigkaa/goartstore/storage-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/storage-gateway/internal/config"
)

// Drainer дожидается завершения фоновой обработки при остановке.
type Drainer interface {
	Wait(ctx context.Context) error
}

// Server — HTTP-сервер Storage Gateway.
type Server struct {
	httpServer *http.Server
	drainer    Drainer
	logger     *slog.Logger
	cfg        *config.Config
}

// NewRouter собирает маршруты. api — реализация generated.ServerInterface,
// монтируется под /api/v1. auth может быть nil (все вызывающие анонимны).
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	api generated.ServerInterface,
	health *handlers.HealthHandler,
	auth *middleware.Authenticator,
) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORSAllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Authorization", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
		}
		if auth != nil {
			r.Use(auth.Middleware())
		}

		// Маршруты API через HandlerFromMux (oapi-codegen chi-server)
		generated.HandlerFromMux(api, r)
	})

	return router
}

// New создаёт сервер. drainer может быть nil.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler, drainer Drainer) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		drainer: drainer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Run запускает сервер и ожидает SIGINT/SIGTERM. После остановки
// HTTP дожидается асинхронных обработчиков событий в пределах того же
// таймаута.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	if s.drainer != nil {
		if err := s.drainer.Wait(ctx); err != nil {
			s.logger.Warn("Не все фоновые события обработаны", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
