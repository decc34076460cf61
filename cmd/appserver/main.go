// Command appserver starts the PowerAuth activation/signature server: it
// loads configuration, wires a storage backend (in-memory or Postgres),
// builds the service façade, and serves the chi-routed HTTP API of §6.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"powerauth-server/internal/cache"
	"powerauth-server/internal/callback"
	"powerauth-server/internal/config"
	"powerauth-server/internal/httpapi"
	"powerauth-server/internal/httpapi/middleware"
	"powerauth-server/internal/metrics"
	"powerauth-server/internal/observability/logging"
	paruntime "powerauth-server/internal/runtime"
	"powerauth-server/internal/service"
	"powerauth-server/internal/store/memory"
	"powerauth-server/internal/store/postgres"
	"powerauth-server/internal/sweep"
	"powerauth-server/pkg/version"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	adminUser := flag.String("admin-user", "", "admin HTTP Basic username (overrides POWERAUTH_ADMIN_USER)")
	adminPass := flag.String("admin-pass", "", "admin HTTP Basic password (overrides POWERAUTH_ADMIN_PASS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("appserver", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.Init("powerauth-server")

	svc := service.New(cfg)
	svc.Logger = log
	svc.Metrics = m

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsnVal := resolveDSN(*dsn, cfg)

	health := middleware.NewHealthChecker(version.Version)

	var closeStore func()
	if dsnVal != "" {
		db, err := postgres.Open(rootCtx, dsnVal)
		if err != nil {
			log.WithField("error", err.Error()).Fatal("connect to postgres")
		}
		configurePool(db, cfg)
		if *runMigrations {
			if err := postgres.ApplyMigrations(db); err != nil {
				log.WithField("error", err.Error()).Fatal("apply migrations")
			}
		}
		pg := postgres.New(db)
		svc.Activations = pg.Activations()
		svc.AppVersions = pg.AppVersions()
		svc.MasterKeys = pg.MasterKeys()
		svc.Audit = pg.Audit()
		svc.History = pg.History()
		svc.Recovery = pg.Recovery()
		svc.Tokens = pg.Tokens()
		health.RegisterCheck("store", func() error { return db.Ping() })
		closeStore = func() { db.Close() }
	} else {
		log.Info("no database DSN configured; using in-memory storage")
		svc.Activations = memory.NewActivationStore()
		svc.AppVersions = memory.NewApplicationVersionStore()
		svc.MasterKeys = memory.NewMasterKeyPairStore()
		svc.Audit = memory.NewSignatureAuditStore()
		svc.History = memory.NewActivationHistoryStore()
		svc.Recovery = memory.NewRecoveryStore()
		svc.Tokens = memory.NewTokenStore()
		health.RegisterCheck("store", func() error { return nil })
		closeStore = func() {}
	}
	defer closeStore()

	if addr := strings.TrimSpace(cfg.Cache.RedisAddr); addr != "" {
		redisClient := cache.NewClient(addr)
		ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
		appVersionCache := cache.New(redisClient, ttl)
		if err := appVersionCache.Ping(rootCtx); err != nil {
			log.WithField("error", err.Error()).Warn("redis cache unreachable, continuing without it")
		} else {
			svc.AppVersions = cache.NewCachedApplicationVersions(svc.AppVersions, appVersionCache)
			health.RegisterCheck("cache", func() error { return appVersionCache.Ping(rootCtx) })
		}
	}

	if key := strings.TrimSpace(os.Getenv("POWERAUTH_MASTER_DB_ENCRYPTION_KEY")); key != "" {
		raw, err := decodeMasterKey(key)
		if err != nil {
			log.WithField("error", err.Error()).Fatal("invalid POWERAUTH_MASTER_DB_ENCRYPTION_KEY")
		}
		svc.MasterDBEncryptionKey = raw
	} else if cfg.Security.ServerPrivateKeyEncMode == config.AESHMACEncryption {
		log.Fatal("POWERAUTH_MASTER_DB_ENCRYPTION_KEY must be set when POWERAUTH_SERVER_PRIVATE_KEY_ENCRYPTION=AES_HMAC")
	}

	resolver := callback.URLResolverFunc(func(context.Context, string) ([]string, error) { return nil, nil })
	dispatcher := callback.NewDispatcher(resolver, log)
	dispatcher.OnDelivery(func(succeeded bool) { m.RecordCallbackDelivery(succeeded) })
	dispatcher.Start(rootCtx)
	defer dispatcher.Stop()
	svc.Notifier = dispatcher

	sweepInterval, err := time.ParseDuration(cfg.Sweep.Interval)
	if err != nil {
		sweepInterval = 60 * time.Second
	}
	sweeper := sweep.New(sweep.ExpirerFunc(svc.SweepExpired), sweepInterval, 200, log)
	sweeper.OnRun(func(removed int) { m.RecordSweep(removed) })
	sweeper.Start(rootCtx)
	defer sweeper.Stop()

	router := &httpapi.Router{
		Services:       svc,
		Logger:         log,
		Metrics:        m,
		Health:         health,
		RestrictAccess: cfg.Security.RestrictAccess,
		AdminAuth:      resolveAdminCredentials(*adminUser, *adminPass),
		DefaultLimiter: middleware.NewRateLimiter(50, 100, log),
		StrictLimiter:  middleware.NewRateLimiter(10, 20, log),
	}

	if paruntime.StrictIdentityMode() && !cfg.Security.RestrictAccess {
		log.Warn("strict identity mode is active but POWERAUTH_RESTRICT_ACCESS is false; the admin surface is unauthenticated")
	}

	listenAddr := determineAddr(*addr, cfg)
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      router.New(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", listenAddr).Info("powerauth server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err.Error()).Fatal("http server failed")
		}
	}()

	<-rootCtx.Done()
	stop()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Fatal("shutdown")
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	addr := strings.TrimSpace(flagAddr)
	if addr != "" {
		return addr
	}
	if cfg != nil {
		host := strings.TrimSpace(cfg.Server.Host)
		port := cfg.Server.Port
		if port != 0 {
			if host == "" {
				host = "0.0.0.0"
			}
			return fmt.Sprintf("%s:%d", host, port)
		}
	}
	return ":8080"
}

func configurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Database.DSN)
}

func resolveAdminCredentials(flagUser, flagPass string) []httpapi.AdminCredentials {
	user := strings.TrimSpace(flagUser)
	if user == "" {
		user = strings.TrimSpace(os.Getenv("POWERAUTH_ADMIN_USER"))
	}
	pass := strings.TrimSpace(flagPass)
	if pass == "" {
		pass = strings.TrimSpace(os.Getenv("POWERAUTH_ADMIN_PASS"))
	}
	if user == "" || pass == "" {
		return nil
	}
	return []httpapi.AdminCredentials{{Username: user, Password: pass}}
}

func decodeMasterKey(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil && validKeyLength(decoded) {
		return decoded, nil
	}
	raw := []byte(value)
	if validKeyLength(raw) {
		return raw, nil
	}
	return nil, fmt.Errorf("expected a 16, 24, or 32 byte key (hex or raw)")
}

func validKeyLength(key []byte) bool {
	switch len(key) {
	case 16, 24, 32:
		return true
	default:
		return false
	}
}
