// Command server starts the guild roster API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"guildgate/internal/auth"
	"guildgate/internal/auth/identity"
	"guildgate/internal/httpapi"
	"guildgate/internal/observability/logging"
	"guildgate/internal/observability/metrics"
	"guildgate/internal/server"
	"guildgate/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	credentialPath := flag.String("credentials", "", "path to the service credential file")
	credentialPoll := flag.Duration("credential-poll-interval", 0, "poll interval for credential file changes when watching is unavailable")
	idleWindow := flag.Duration("session-idle-window", 0, "inactivity window before a user session expires")
	identityClientID := flag.String("identity-client-id", "", "OAuth client ID for the identity provider")
	identityClientSecret := flag.String("identity-client-secret", "", "OAuth client secret for the identity provider")
	identityRedirectURL := flag.String("identity-redirect-url", "", "OAuth redirect URL registered with the identity provider")
	identityTokenURL := flag.String("identity-token-url", "", "override the identity provider token endpoint")
	identityProfileURL := flag.String("identity-profile-url", "", "override the identity provider profile endpoint")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	redisTLSCA := flag.String("rate-redis-tls-ca", "", "path to Redis TLS CA certificate")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("GUILDGATE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("GUILDGATE_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("GUILDGATE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("GUILDGATE_ADDR"))

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("GUILDGATE_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("GUILDGATE_DATA"))
		store, err = storage.NewJSONRepository(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.PostgresOption
		maxConns := resolveInt(*postgresMaxConns, "GUILDGATE_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "GUILDGATE_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPoolLimits(int32(minConns), int32(maxConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "GUILDGATE_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "GUILDGATE_POSTGRES_MAX_CONN_IDLE", 0)
		if maxLifetime > 0 || maxIdle > 0 {
			pgOptions = append(pgOptions, storage.WithConnLifetimes(maxLifetime, maxIdle))
		}
		if healthInterval := resolveDuration(*postgresHealthInterval, "GUILDGATE_POSTGRES_HEALTH_INTERVAL", 0); healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithHealthCheckInterval(healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "GUILDGATE_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("GUILDGATE_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	identityCfg := identity.Config{
		ClientID:     firstNonEmpty(*identityClientID, os.Getenv("GUILDGATE_IDENTITY_CLIENT_ID")),
		ClientSecret: firstNonEmpty(*identityClientSecret, os.Getenv("GUILDGATE_IDENTITY_CLIENT_SECRET")),
		RedirectURI:  firstNonEmpty(*identityRedirectURL, os.Getenv("GUILDGATE_IDENTITY_REDIRECT_URL")),
		TokenURL:     firstNonEmpty(*identityTokenURL, os.Getenv("GUILDGATE_IDENTITY_TOKEN_URL")),
		ProfileURL:   firstNonEmpty(*identityProfileURL, os.Getenv("GUILDGATE_IDENTITY_PROFILE_URL")),
	}
	var bridge auth.IdentityBridge
	if identityCfg.ClientID != "" {
		client, err := identity.NewClient(identityCfg)
		if err != nil {
			logger.Error("failed to configure identity provider", "error", err)
			os.Exit(1)
		}
		bridge = client
	} else {
		logger.Warn("no identity provider configured, user login disabled")
	}

	credFile := firstNonEmpty(*credentialPath, os.Getenv("GUILDGATE_CREDENTIALS"))
	authenticator, err := auth.New(auth.Config{
		CredentialPath: credFile,
		IdleWindow:     resolveDuration(*idleWindow, "GUILDGATE_SESSION_IDLE_WINDOW", 0),
	}, store, bridge, logging.WithComponent(logger, "auth"), auth.WithMetrics(recorder))
	if err != nil {
		logger.Error("failed to configure authenticator", "error", err)
		os.Exit(1)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if credFile != "" {
		go auth.WatchCredentials(workerCtx, auth.WatcherConfig{
			Path:         credFile,
			PollInterval: resolveDuration(*credentialPoll, "GUILDGATE_CREDENTIAL_POLL_INTERVAL", 0),
			Logger:       logging.WithComponent(logger, "credentials"),
		}, func() error {
			err := authenticator.ReloadCredentials()
			if err != nil {
				recorder.ObserveAuthEvent(metrics.AuthCredentialFailure)
				return err
			}
			recorder.ObserveAuthEvent(metrics.AuthCredentialReload)
			return nil
		})
	}

	gaugeStop := startSessionGaugeWorker(workerCtx, authenticator, recorder, 30*time.Second)
	defer gaugeStop()

	handler := httpapi.NewHandler(store, authenticator, logging.WithComponent(logger, "api"), recorder)

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("GUILDGATE_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("GUILDGATE_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "GUILDGATE_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "GUILDGATE_RATE_GLOBAL_BURST"),
			LoginLimit:    resolveInt(*loginLimit, "GUILDGATE_RATE_LOGIN_LIMIT"),
			LoginWindow:   resolveDuration(*loginWindow, "GUILDGATE_RATE_LOGIN_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("GUILDGATE_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("GUILDGATE_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "GUILDGATE_RATE_REDIS_TIMEOUT", 2*time.Second),
			RedisTLS: server.RedisTLSConfig{
				CAFile: firstNonEmpty(*redisTLSCA, os.Getenv("GUILDGATE_RATE_REDIS_TLS_CA")),
			},
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("GUILDGATE_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("guild roster API listening", "addr", listenAddr, "mode", serverMode)
	logger.Info("metrics endpoint available", "path", "/metrics")

	if err := srv.Run(runCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
	}

	workerCancel()
	gaugeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("server stopped")
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, postgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(postgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("GUILDGATE_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
