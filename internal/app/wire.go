package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kakioki/internal/bus"
	"kakioki/internal/domain"
	"kakioki/internal/metrics"
	"kakioki/internal/relay"
	"kakioki/internal/services/chat"
	"kakioki/internal/services/keyvault"
	"kakioki/internal/services/sharedkey"
	"kakioki/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config   Config
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Accounts *store.AccountFileStore
	Friends  *store.FriendFileStore
	Outbox   *store.OutboxFileStore
	Secrets  domain.SecretStore
	Vault    *keyvault.Vault
	Keys     *sharedkey.Service
	Relay    *relay.HTTP
	Bus      domain.RealtimeBus // nil without redis_addr

	redis redis.UniversalClient
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, log *zap.Logger) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Wire{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
		Accounts: store.NewAccountFileStore(cfg.Home),
		Friends:  store.NewFriendFileStore(cfg.Home),
		Outbox:   store.NewOutboxFileStore(cfg.Home),
	}
	w.Metrics = metrics.New(w.Registry)

	if cfg.RedisAddr != "" {
		w.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		w.Bus = bus.NewRedisBus(w.redis, log.Named("bus"))
	}

	switch cfg.Session.Store {
	case SecretStoreRedis:
		w.Secrets = store.NewRedisSecretStore(w.redis, cfg.UserID.String())
	case SecretStoreNone:
		w.Secrets = store.NoopSecretStore{}
	default:
		w.Secrets = store.NewMemorySecretStore()
	}

	w.Vault = keyvault.New(log.Named("vault"), w.Secrets, keyvault.Options{
		KDF:         cfg.KDF,
		PasswordTTL: cfg.Session.PasswordTTL,
	})

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	w.Relay = relay.NewHTTP(cfg.RelayURL, cfg.UserID)
	w.Relay.HTTP = httpClient

	w.Keys = sharedkey.New(log.Named("sharedkey"), w.Vault, w.Relay, w.Metrics)
	return w, nil
}

// Session returns a chat session for the configured user.
func (w *Wire) Session() *chat.Session {
	return chat.New(
		w.Log.Named("chat"),
		w.Config.UserID,
		w.Relay,
		w.Keys,
		w.Bus,
		w.Friends,
		w.Metrics,
		chat.Options{PageSize: w.Config.PageSize, Outbox: w.Outbox},
	)
}

// Close releases network clients.
func (w *Wire) Close() error {
	if w.redis == nil {
		return nil
	}
	if err := w.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Ping checks the optional redis connection.
func (w *Wire) Ping(ctx context.Context) error {
	if w.redis == nil {
		return nil
	}
	return w.redis.Ping(ctx).Err()
}
