// Package config loads application configuration from environment
// variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable; tunables fall back to defaults chosen for a
// single mid-sized on-sale event.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret for validating Bearer tokens

	ReservationTimeout time.Duration // how long a seat hold lasts
	MaxSeatsPerBooking int           // upper bound on seats per reserve call

	LockTTL        time.Duration // distributed lock lifetime
	LockRetryDelay time.Duration // pause between lock acquisition attempts
	LockMaxRetries int           // retry budget after the first attempt

	QueueBlock         time.Duration // blocking-read window of queue workers
	ClaimIdle          time.Duration // pending age before a worker steals a message
	StatusTTL          time.Duration // retention of request status entries
	PerRequestEstimate time.Duration // assumed processing time for wait estimates

	ReclaimInterval time.Duration // sweep interval of the hold reclaimer

	RabbitURL string // AMQP broker URL; empty disables event publishing
}

// Load reads configuration from the environment.  Connection settings are
// required and missing values exit the process; behavioural tunables use
// defaults.
func Load() Config {
	return Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret: must("JWT_SECRET"),

		ReservationTimeout: time.Duration(envInt("RESERVATION_TIMEOUT_SECONDS", 600)) * time.Second,
		MaxSeatsPerBooking: envInt("MAX_SEATS_PER_BOOKING", 10),

		LockTTL:        time.Duration(envInt("LOCK_TIMEOUT_SECONDS", 30)) * time.Second,
		LockRetryDelay: time.Duration(envInt("LOCK_RETRY_DELAY_MS", 100)) * time.Millisecond,
		LockMaxRetries: envInt("LOCK_MAX_RETRIES", 50),

		QueueBlock:         time.Duration(envInt("QUEUE_BLOCK_MS", 5000)) * time.Millisecond,
		ClaimIdle:          time.Duration(envInt("QUEUE_CLAIM_IDLE_SECONDS", 30)) * time.Second,
		StatusTTL:          time.Duration(envInt("STATUS_TTL_HOURS", 24)) * time.Hour,
		PerRequestEstimate: envDur("QUEUE_PER_REQUEST_ESTIMATE", 500*time.Millisecond),

		ReclaimInterval: time.Duration(envInt("RECLAIM_INTERVAL_SECONDS", 30)) * time.Second,

		RabbitURL: os.Getenv("RABBITMQ_URL"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
