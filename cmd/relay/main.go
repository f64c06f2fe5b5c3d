package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kakioki/internal/app"
	"kakioki/internal/bus"
	"kakioki/internal/domain"
	"kakioki/internal/metrics"
	"kakioki/internal/relay"
)

func main() {
	_ = godotenv.Load(".env")

	var (
		addr     string
		redisURL string
		ceiling  int
		logLevel string
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "In-memory development relay for kakioki",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger(logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return run(cmd.Context(), log, addr, redisURL, ceiling)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("KAKIOKI_RELAY_ADDR", ":8080"), "HTTP listen address")
	cmd.Flags().StringVar(&redisURL, "redis", os.Getenv("KAKIOKI_REDIS_ADDR"), "redis address; enables realtime publishing")
	cmd.Flags().IntVar(&ceiling, "payload-ceiling", bus.DefaultPayloadCeiling, "maximum realtime payload size in bytes")
	cmd.Flags().StringVar(&logLevel, "log-level", envOr("KAKIOKI_LOG_LEVEL", "info"), "debug, info, warn or error")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, log *zap.Logger, addr, redisURL string, ceiling int) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var opts []relay.BackendOption
	if redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		var rb domain.RealtimeBus = bus.NewRedisBus(rdb, log.Named("bus"))
		opts = append(opts, relay.WithPublisher(bus.NewPublisher(rb, log.Named("publisher"), m, ceiling)))
		log.Info("publishing realtime events", zap.String("redis", redisURL))
	}

	srv := relay.NewServer(relay.NewBackend(log.Named("backend"), opts...), log.Named("http"), m)
	router := srv.Router()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.Use(accessLog(log.Named("access")))

	hs := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	log.Info("relay listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdown)
}

type statusRecorder struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// accessLog records method, path, remote, status, bytes and duration.
func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", rec.code),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
