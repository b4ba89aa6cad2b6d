package main

import (
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/authproviders/anonymous"
	"github.com/lightbasehq/corehub/internal/authproviders/digid"
	"github.com/lightbasehq/corehub/internal/authproviders/keycloak"
	"github.com/lightbasehq/corehub/internal/authproviders/password"
	"github.com/lightbasehq/corehub/internal/authproviders/totp"
	"github.com/lightbasehq/corehub/internal/cache"
	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/featureflag"
	"github.com/lightbasehq/corehub/internal/httpapi"
	"github.com/lightbasehq/corehub/internal/impersonation"
	"github.com/lightbasehq/corehub/internal/management"
	"github.com/lightbasehq/corehub/internal/observability/logger"
	"github.com/lightbasehq/corehub/internal/permission"
	"github.com/lightbasehq/corehub/internal/ratelimit"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/store/postgres"
	"github.com/lightbasehq/corehub/internal/store/postgres/mgmtstore"
	"github.com/lightbasehq/corehub/internal/tenant"
	"github.com/lightbasehq/corehub/internal/user"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// absence is normal in deployed environments; env is the source
		// of truth there and .env only matters for local development.
	}

	cfgPath := getenv("CONFIG_PATH", "configs/config.example.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic("config load: " + err.Error())
	}

	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "corehub"})
	log := logger.L()
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		log.Fatal("pgxpool", zap.Error(err))
	}
	defer pool.Close()

	cacheClient, err := cache.New(cache.Config{
		Kind:   cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		log.Fatal("cache init", zap.Error(err))
	}
	defer cacheClient.Close() //nolint:errcheck

	bus := buildEventBus(cfg)

	resolver, err := tenant.LoadResolver(cfg.App.Env, getenv("TENANTS_PATH", "configs/tenants.example.yaml"))
	if err != nil {
		log.Fatal("tenant resolver", zap.Error(err))
	}
	if err := tenant.Sync(ctx, pool, resolver); err != nil {
		log.Fatal("tenant sync", zap.Error(err))
	}
	tenantRepo := postgres.NewTenantRepo(pool)
	tenantCache := tenant.NewCache(cacheClient, tenantRepo)

	if err := permission.Sync(ctx, pool, cfg); err != nil {
		log.Fatal("permission sync", zap.Error(err))
	}
	perms := permission.New(postgres.NewPermissionRepo(pool))

	flagEngine := featureflag.New(postgres.NewFeatureFlagRepo(pool), cacheClient, cfg.FeatureFlags.Declared, cfg.FeatureFlagCacheTTL())
	tenantIDs := make([]string, 0, len(resolver.All()))
	for _, t := range resolver.All() {
		tenantIDs = append(tenantIDs, t.ID)
	}
	if err := flagEngine.Sync(ctx, tenantIDs); err != nil {
		log.Fatal("featureflag sync", zap.Error(err))
	}

	secrets, err := config.LoadSecrets(cfg.App.Env)
	if err != nil {
		log.Fatal("secrets", zap.Error(err))
	}
	issuer := session.NewIssuer(secrets.AppKeys, cfg.AccessTTL(), cfg.RefreshTTL())
	sessions := session.NewStore(issuer, postgres.NewSessionRepo(pool), mustEnv("SESSION_CHECKSUM_SECRET"))

	tail := authproviders.New(sessions, postgres.NewDeviceRepo(pool), authproviders.Config{
		RequireDeviceInfo: cfg.Auth.RequireDeviceInfo,
		MaxMobileSessions: cfg.Auth.MaxMobileSessions,
	})

	userRepo := postgres.NewUserRepo(pool)
	passRepo := postgres.NewPasswordRepo(pool)
	keycRepo := postgres.NewKeycloakRepo(pool)
	users := user.New(userRepo, passRepo, keycRepo, perms, bus)

	passwordProvider := password.New(passRepo, users, sessions, tail, bus, password.Config{
		ReduceErrorInfo:          cfg.Auth.ReduceErrorInfo,
		BlockAfterMaxAttempts:    cfg.Auth.BlockAfterMaxAttempts,
		RemoveCurrentSessionOnly: cfg.Auth.RemoveCurrentSessionOnly,
		ForcePasswordRotation:    cfg.Auth.ForcePasswordRotation,
		ForceRotationAfter:       6 * 30 * 24 * time.Hour,
	})
	anonymousProvider := anonymous.New(postgres.NewAnonymousRepo(pool), users, tail, bus)
	digidProvider := digid.New(postgres.NewDigidRepo(pool), users, tail, bus, buildDigidConfig(cfg, log))
	keycloakProvider := keycloak.New(keycRepo, users, tail, bus, keycloak.Config{
		Issuer:                cfg.Keycloak.Issuer,
		ClientID:              cfg.Keycloak.ClientID,
		ClientSecret:          cfg.Keycloak.ClientSecret,
		RedirectURI:           cfg.Keycloak.RedirectURI,
		ImplicitlyCreateUsers: cfg.Keycloak.ImplicitlyCreateUsers,
		SingleTenant:          cfg.Keycloak.SingleTenant,
		HTTPTimeout:           cfg.KeycloakHTTPTimeout(),
	})
	totpProvider := totp.New(postgres.NewTotpRepo(pool), getenv("TOTP_ISSUER", "corehub"))

	limiter := ratelimit.New(secrets.SSRIPVerificationKey, cfg.Rate.SSRIPVerifyEnabled)
	impersonationSvc := impersonation.New(tail, sessions)

	managementSvc := management.New(
		management.NewDevDirectory(strings.Split(cfg.Management.AllowedUserID, ",")...),
		mgmtstore.NewManagementRepo(pool),
		users, tail, sessions, bus, *cfg,
	)

	app := &httpapi.App{
		Cfg:           cfg,
		Tenants:       resolver,
		TenantCache:   tenantCache,
		Sessions:      sessions,
		Tail:          tail,
		Users:         users,
		Perms:         perms,
		Password:      passwordProvider,
		Anonymous:     anonymousProvider,
		Digid:         digidProvider,
		Keycloak:      keycloakProvider,
		Totp:          totpProvider,
		FeatureFlags:  flagEngine,
		RateLimiter:   limiter,
		Impersonation: impersonationSvc,
		Management:    managementSvc,
		Bus:           bus,
	}

	router := httpapi.NewRouter(app)
	router.Handle("/metrics", promhttp.Handler())

	go runCleanupLoop(ctx, managementSvc, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("corehub listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

// runCleanupLoop runs management.CleanupExpired once a day, the
// background job the magic-link flow needs to reap the transient users
// and chat threads it provisions (spec.md §4.8).
func runCleanupLoop(ctx context.Context, svc *management.Service, log *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := svc.CleanupExpired(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			log.Error("management cleanup", zap.Error(err))
		} else if n > 0 {
			log.Info("management cleanup", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildEventBus(cfg *config.Config) eventbus.Bus {
	if cfg.Cache.Kind != "redis" {
		return eventbus.NewMemoryBus()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
	return eventbus.NewRedisBus(client, getenv("EVENT_STREAM", "corehub:events"))
}

// buildDigidConfig loads the SAML federation material from disk per
// configs/config.example.yaml's digid section. Deployments that don't
// enable DigiD leave these paths empty; the resulting zero-value
// ServiceProvider makes Redirect/Login fail closed rather than panic.
func buildDigidConfig(cfg *config.Config, log *zap.Logger) digid.Config {
	out := digid.Config{
		Issuer:             cfg.Digid.Issuer,
		AcsURL:             cfg.Digid.AcsURL,
		ArtifactResolveURL: cfg.Digid.ArtifactResolveURL,
		HTTPTimeout:        cfg.DigidHTTPTimeout(),
	}

	if cfg.Digid.SPCertFile != "" && cfg.Digid.SPKeyFile != "" {
		spCert, err := tls.LoadX509KeyPair(cfg.Digid.SPCertFile, cfg.Digid.SPKeyFile)
		if err != nil {
			log.Warn("digid sp keypair", zap.Error(err))
		} else {
			if signer, ok := spCert.PrivateKey.(crypto.Signer); ok {
				out.ServiceProvider.Key = signer
			}
			if len(spCert.Certificate) > 0 {
				if leaf, err := x509.ParseCertificate(spCert.Certificate[0]); err == nil {
					out.ServiceProvider.Certificate = leaf
				}
			}
		}
	}

	if cfg.Digid.IDPCertFile != "" {
		raw, err := os.ReadFile(cfg.Digid.IDPCertFile)
		if err != nil {
			log.Warn("digid idp cert", zap.Error(err))
		} else if block, _ := pem.Decode(raw); block != nil {
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				out.IDPCertificate = cert
			} else {
				log.Warn("digid idp cert parse", zap.Error(err))
			}
		}
	}

	if cfg.Digid.MTLSCertFile != "" && cfg.Digid.MTLSKeyFile != "" {
		if mtlsCert, err := tls.LoadX509KeyPair(cfg.Digid.MTLSCertFile, cfg.Digid.MTLSKeyFile); err == nil {
			out.MutualTLSCertificate = mtlsCert
		} else {
			log.Warn("digid mtls keypair", zap.Error(err))
		}
	}

	if cfg.Digid.CAFile != "" {
		raw, err := os.ReadFile(cfg.Digid.CAFile)
		if err == nil {
			pool := x509.NewCertPool()
			if pool.AppendCertsFromPEM(raw) {
				out.CAPool = pool
			}
		}
	}

	return out
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func mustEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing required env var " + key)
	}
	return v
}
