package config // package config loads application configuration from environment variables

import (
    "fmt"
    "os"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Validation rules live in the struct tags and
// are checked once by Load.
type Config struct {
    Env          string `validate:"required,oneof=dev test prod"` // APP_ENV
    Port         string `validate:"required,numeric"`             // APP_PORT
    LogLevel     string `validate:"oneof=debug info warn error"`  // LOG_LEVEL
    Storage      string `validate:"oneof=mysql memory"`           // STORAGE
    DBUser       string `validate:"required_if=Storage mysql"`    // DB_USER
    DBPass       string // DB_PASS (empty allowed)
    DBHost       string `validate:"required_if=Storage mysql"` // DB_HOST
    DBPort       string `validate:"required_if=Storage mysql"` // DB_PORT
    DBName       string `validate:"required_if=Storage mysql"` // DB_NAME
    JWTSecret    string `validate:"required,min=16"`           // JWT_SECRET
    AccessTTLMin int    `validate:"gte=1"`                     // ACCESS_TOKEN_TTL_MIN
    AMQPURL      string // AMQP_URL, empty disables booking events
    AuditLogPath string `validate:"required"` // BOOKING_AUDIT_LOG

    Reservation ReservationConfig
}

// ReservationConfig is the server-side reservation policy.  TTLs are never
// taken from clients.
type ReservationConfig struct {
    SelectionTTL       time.Duration `validate:"gte=1s"`                      // SELECTION_TTL
    PaymentTTL         time.Duration `validate:"gte=1s,gtefield=SelectionTTL"` // PAYMENT_TTL
    MaxSeatsPerSession int           `validate:"gte=1,lte=50"`                // MAX_SEATS_PER_SESSION
    SweepInterval      time.Duration `validate:"gte=100ms"`                   // SWEEP_INTERVAL
    HoldStripes        int           `validate:"gte=1,lte=65536"`             // HOLD_STRIPES
    SessionRetention   time.Duration `validate:"gte=0"`                       // SESSION_RETENTION
}

// Load reads an optional .env file, then the process environment, and
// returns a validated Config.  Variables already set in the environment
// win over the .env file.
func Load() (Config, error) {
    if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
        return Config{}, fmt.Errorf("load .env: %w", err)
    }
    cfg := fromEnv()
    if err := validator.New().Struct(cfg); err != nil {
        return Config{}, fmt.Errorf("invalid configuration: %w", err)
    }
    return cfg, nil
}

// AccessTTL is the default lifetime of operator tokens.
func (c Config) AccessTTL() time.Duration {
    return time.Duration(c.AccessTTLMin) * time.Minute
}

func fromEnv() Config {
    return Config{
        Env:          envStr("APP_ENV", "dev"),
        Port:         envStr("APP_PORT", "8080"),
        LogLevel:     envStr("LOG_LEVEL", "info"),
        Storage:      envStr("STORAGE", "mysql"),
        DBUser:       os.Getenv("DB_USER"),
        DBPass:       os.Getenv("DB_PASS"),
        DBHost:       envStr("DB_HOST", "127.0.0.1"),
        DBPort:       envStr("DB_PORT", "3306"),
        DBName:       os.Getenv("DB_NAME"),
        JWTSecret:    os.Getenv("JWT_SECRET"),
        AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
        AMQPURL:      os.Getenv("AMQP_URL"),
        AuditLogPath: envStr("BOOKING_AUDIT_LOG", "logs/booking.log"),
        Reservation: ReservationConfig{
            SelectionTTL:       envDur("SELECTION_TTL", 5*time.Minute),
            PaymentTTL:         envDur("PAYMENT_TTL", 15*time.Minute),
            MaxSeatsPerSession: envInt("MAX_SEATS_PER_SESSION", 8),
            SweepInterval:      envDur("SWEEP_INTERVAL", 10*time.Second),
            HoldStripes:        envInt("HOLD_STRIPES", 256),
            SessionRetention:   envDur("SESSION_RETENTION", 30*time.Minute),
        },
    }
}
