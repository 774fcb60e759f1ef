package config // package config loads application configuration from environment variables

import (
    "log" // log is used to report configuration errors and halt execution
    "os"  // os provides access to environment variables
    "strings"

    "github.com/joho/godotenv" // loads .env files into the process environment
)

// Store backends accepted by STORE_BACKEND.
const (
    BackendMySQL  = "mysql"
    BackendSQLite = "sqlite"
    BackendRedis  = "redis"
    BackendMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    LogLevel     string // zerolog level name
    JWTSecret    string // secret used to verify (and in dev, sign) JWTs
    AccessTTLMin int    // lifetime of tokens issued by the dev token helper
    Store        string // record store backend
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    SQLitePath   string // sqlite file, ":memory:" for a throwaway store
    RedisPrefix  string // key prefix for the redis store
    Currency     string // currency quoted on payment orders
}

// Load reads a .env file when one is present, then builds a Config from the
// environment.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.  Database
// credentials are only required for the mysql backend.
func Load() Config {
    _ = godotenv.Load() // a missing .env is fine; real env vars win anyway

    cfg := Config{
        Env:          must("APP_ENV"),
        Port:         must("APP_PORT"),
        LogLevel:     envStr("LOG_LEVEL", "info"),
        JWTSecret:    must("JWT_SECRET"),
        AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
        Store:        strings.ToLower(envStr("STORE_BACKEND", BackendMySQL)),
        SQLitePath:   envStr("SQLITE_PATH", "auction.db"),
        RedisPrefix:  envStr("REDIS_STORE_PREFIX", "auction"),
        Currency:     envStr("PAYMENT_CURRENCY", "INR"),
    }
    switch cfg.Store {
    case BackendMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    case BackendSQLite, BackendRedis, BackendMemory:
    default:
        log.Fatalf("invalid STORE_BACKEND: %q", cfg.Store)
    }
    return cfg
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
