package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SendAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "send_attempts_total",
		Help: "Попытки отправки по учёткам и исходам",
	}, []string{"account", "outcome"})

	FloodWaitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flood_waits_total",
		Help: "Полученные флуд-паузы по учёткам",
	}, []string{"account"})

	PeerPoolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peer_pool_size",
		Help: "Размер пула пригодных пиров по учёткам",
	}, []string{"account"})

	TemplateCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "template_cache_size",
		Help: "Количество шаблонов в кэше комментариев",
	})

	CommonPeerSetSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "common_peer_set_size",
		Help: "Размер снимка общих пиров всех учёток",
	})

	CommentEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comment_events_total",
		Help: "Обработанные события комментирования по результатам",
	}, []string{"result"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SendAttemptsTotal,
		FloodWaitsTotal,
		PeerPoolSize,
		TemplateCacheSize,
		CommonPeerSetSize,
		CommentEventsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
