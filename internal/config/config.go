package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// AuthSigningKey is the HS256 key used to verify bearer tokens issued
	// by the authentication collaborator. Required outside development.
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	// Clinic operating window, clinic-local. The offset is fixed so slot
	// generation does not depend on the server's timezone.
	ClinicUTCOffsetHours int `mapstructure:"CLINIC_UTC_OFFSET_HOURS"`
	ClinicOpenHour       int `mapstructure:"CLINIC_OPEN_HOUR"`
	ClinicCloseHour      int `mapstructure:"CLINIC_CLOSE_HOUR"`
	SlotMinutes          int `mapstructure:"SLOT_MINUTES"`

	// LockTTL bounds the redis critical section taken while confirming
	// an appointment into a slot.
	LockTTLSeconds int `mapstructure:"LOCK_TTL_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("CLINIC_UTC_OFFSET_HOURS", -6)
	v.SetDefault("CLINIC_OPEN_HOUR", 13)
	v.SetDefault("CLINIC_CLOSE_HOUR", 19)
	v.SetDefault("SLOT_MINUTES", 60)
	v.SetDefault("LOCK_TTL_SECONDS", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CLINIC_UTC_OFFSET_HOURS")
	v.BindEnv("CLINIC_OPEN_HOUR")
	v.BindEnv("CLINIC_CLOSE_HOUR")
	v.BindEnv("SLOT_MINUTES")
	v.BindEnv("LOCK_TTL_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get staff access.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// an AUTH_SIGNING_KEY must be set so bearer tokens are actually verified,
// and the operating window must be a non-empty range that fits whole slots.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.ClinicOpenHour < 0 || c.ClinicOpenHour > 23 {
		return fmt.Errorf("CLINIC_OPEN_HOUR must be in [0,23], got %d", c.ClinicOpenHour)
	}
	if c.ClinicCloseHour < 1 || c.ClinicCloseHour > 24 {
		return fmt.Errorf("CLINIC_CLOSE_HOUR must be in [1,24], got %d", c.ClinicCloseHour)
	}
	if c.ClinicCloseHour <= c.ClinicOpenHour {
		return fmt.Errorf("CLINIC_CLOSE_HOUR (%d) must be after CLINIC_OPEN_HOUR (%d)", c.ClinicCloseHour, c.ClinicOpenHour)
	}
	if c.ClinicUTCOffsetHours < -12 || c.ClinicUTCOffsetHours > 14 {
		return fmt.Errorf("CLINIC_UTC_OFFSET_HOURS must be in [-12,14], got %d", c.ClinicUTCOffsetHours)
	}
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("SLOT_MINUTES must be positive, got %d", c.SlotMinutes)
	}
	windowMinutes := (c.ClinicCloseHour - c.ClinicOpenHour) * 60
	if windowMinutes%c.SlotMinutes != 0 {
		return fmt.Errorf("operating window of %d minutes does not fit whole slots of %d minutes", windowMinutes, c.SlotMinutes)
	}
	return nil
}

// ClinicLocation returns the fixed clinic timezone used for slot generation.
func (c *Config) ClinicLocation() *time.Location {
	name := fmt.Sprintf("UTC%+d", c.ClinicUTCOffsetHours)
	return time.FixedZone(name, c.ClinicUTCOffsetHours*3600)
}

// SlotDuration returns the fixed bookable slot length. Manual appointment
// creation uses the same value so durations never diverge.
func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

// LockTTL returns the redis lock lifetime for confirm critical sections.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}
