package storage

import "time"

// PostgresConfig describes how the repository initialises its Postgres
// connection pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	AcquireTimeout      time.Duration
	ApplicationName     string
}

// PostgresOption adjusts the PostgresConfig used by NewPostgresRepository.
type PostgresOption func(*PostgresConfig)

// WithPoolLimits bounds the connection pool size.
func WithPoolLimits(min, max int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		if min >= 0 {
			cfg.MinConnections = min
		}
		if max > 0 {
			cfg.MaxConnections = max
		}
	}
}

// WithConnLifetimes bounds how long pooled connections live and idle.
func WithConnLifetimes(lifetime, idle time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if lifetime > 0 {
			cfg.MaxConnLifetime = lifetime
		}
		if idle > 0 {
			cfg.MaxConnIdleTime = idle
		}
	}
}

// WithHealthCheckInterval sets the pool health check period.
func WithHealthCheckInterval(interval time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if interval > 0 {
			cfg.HealthCheckInterval = interval
		}
	}
}

// WithAcquireTimeout bounds how long connection establishment may take.
func WithAcquireTimeout(timeout time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	}
}

// WithApplicationName sets the application_name reported to Postgres.
func WithApplicationName(name string) PostgresOption {
	return func(cfg *PostgresConfig) {
		if name != "" {
			cfg.ApplicationName = name
		}
	}
}
