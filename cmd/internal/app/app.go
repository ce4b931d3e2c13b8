// Package app wires the beauty server runtime: config, logging, auth and
// session services, HTTP routes, and the realtime gateway.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"beauty/cmd/identity"
	"beauty/cmd/internal/auth/api"
	"beauty/cmd/internal/auth/credential"
	"beauty/cmd/internal/auth/mfa"
	"beauty/cmd/internal/auth/ratelimit"
	"beauty/cmd/internal/auth/session"
	"beauty/cmd/internal/auth/smsotp"
	"beauty/cmd/internal/metrics"
	"beauty/cmd/internal/notify"
	"beauty/cmd/internal/realtime"
)

// App is the beauty server runtime: it owns the HTTP server wiring and
// the backing resources (DB pool, Redis client).
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	redisClient *redis.Client

	memLimiter *ratelimit.MemoryLimiter

	metrics *metrics.Metrics
	ws      *realtime.Gateway
	auth    *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	authCfg := api.LoadConfigFromEnv()

	// Persistence: Postgres when configured, in-memory dev stores otherwise.
	var (
		accounts  identity.Store
		sessStore session.Store
		mfaStore  mfa.Store
		otpStore  smsotp.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		a.dbEnabled = true

		idStore, err := identity.NewPostgresStore(pool)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		accounts = idStore
		sessStore = session.NewPostgresStore(pool)
		mfaStore = mfa.NewPostgresStore(pool)
		log.Info("db.enabled.postgres_store")
	} else {
		accounts = identity.NewMemoryStore()
		sessStore = session.NewMemoryStore()
		mfaStore = mfa.NewMemoryStore()
		log.Info("db.disabled.inmemory_store")
	}

	// Throttling: Redis when configured, in-memory otherwise.
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.redisClient = client
		limiter = ratelimit.NewRedisLimiter(client)
		otpStore = smsotp.NewRedisStore(client)
		log.Info("redis.enabled")
	} else {
		a.memLimiter = ratelimit.NewMemoryLimiter()
		limiter = a.memLimiter
		otpStore = smsotp.NewMemoryStore()
		log.Info("redis.disabled.inmemory_limiter")
	}

	sessCfg, err := sessionConfig(authCfg, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	hub := realtime.NewHub(log)
	sessions, err := session.NewService(sessCfg, sessStore, tokens,
		session.WithRevocationHook(hub.NotifySessionRevoked))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	verifier := credential.NewVerifier(credential.DefaultConfig(), accounts, limiter, log)
	sender := notify.NewLogSender(log)
	otpSvc := smsotp.NewService(smsotp.DefaultConfig(), otpStore, limiter, sender)
	mfaSvc := mfa.NewService(sessCfg.Issuer, mfaStore, accounts)

	opts := []api.HandlerOption{}
	if authCfg.RateLimitBypassEnabled && !authCfg.IsProduction() {
		opts = append(opts,
			api.WithBypassVerifier(credential.NewVerifier(credential.DefaultConfig(), accounts, ratelimit.NopLimiter{}, log)),
			api.WithBypassOTP(smsotp.NewService(smsotp.DefaultConfig(), otpStore, ratelimit.NopLimiter{}, sender)),
		)
	}

	a.auth = api.NewHandler(log, authCfg, api.Deps{
		Accounts: accounts,
		Verifier: verifier,
		Sessions: sessions,
		MFA:      mfaSvc,
		OTP:      otpSvc,
		Limiter:  limiter,
		Metrics:  a.metrics,
		Pool:     a.dbPool,
	}, opts...)

	a.ws = realtime.NewGateway(log, hub, sessions).WithConnectionGauge(a.metrics.RealtimeConnected)

	return a, nil
}

// sessionConfig loads the session key material. Outside production, a
// missing key pair is replaced with ephemeral keys so dev servers start
// with zero configuration; sessions then do not survive a restart.
func sessionConfig(authCfg api.Config, log Logger) (session.Config, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err == nil {
		return sessCfg, nil
	}
	if !errors.Is(err, session.ErrConfig) || authCfg.IsProduction() {
		return session.Config{}, err
	}

	log.Warn("session keys missing, generating ephemeral dev keys")

	sessCfg = session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()

	fp := make([]byte, 32)
	if _, err := rand.Read(fp); err != nil {
		return session.Config{}, err
	}
	sessCfg.FingerprintKeyHex = hex.EncodeToString(fp)
	return sessCfg, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.auth, a.metrics)

	var handler http.Handler = mux
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithSecurityHeaders(handler)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled, "redis_enabled", a.redisClient != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.Close(shutdownCtx)
	a.log.Info("server.stopped")
	return nil
}

// Close releases pooled resources. Safe to call more than once.
func (a *App) Close(_ context.Context) {
	if a.memLimiter != nil {
		a.memLimiter.Close()
		a.memLimiter = nil
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
		a.redisClient = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
