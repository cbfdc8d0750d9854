package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// ErrGridMismatch reports a navigation slice or despawn distance that cannot
// work with the configured chunk footprint.
var ErrGridMismatch = eris.New("navigation grid inconsistent with chunk size")

// Config holds all configuration for the slimedodge server
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	World    WorldConfig
	Pathing  PathingConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host           string        `validate:"required"`
	Port           string        `validate:"required,numeric"`
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	IdleTimeout    time.Duration `validate:"gt=0"`
	Environment    string        `validate:"oneof=development test production"`
	TickRate       int           `validate:"min=1,max=240"`
	AllowedOrigins []string
}

// DatabaseConfig holds database connection configuration.
// The chunk journal is only started when Enabled is set.
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int `validate:"min=1,max=65535"`
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds observer authentication configuration
type AuthConfig struct {
	JWTSecret            string
	JWTExpiration        time.Duration `validate:"gt=0"`
	Issuer               string        `validate:"required"`
	ObserverPasswordHash string
	BCryptCost           int `validate:"min=4,max=31"`
}

// WorldConfig holds chunk streaming and generation configuration
type WorldConfig struct {
	Seed               string `validate:"required"`
	RetainRadius       int    `validate:"min=0,max=16"`
	TileDataPath       string `validate:"required"`
	TileStrategy       string `validate:"oneof=uniform random"`
	CharactersPerChunk int    `validate:"min=0"`
	PropsPerChunk      int    `validate:"min=0"`
	NavSliceCells      int    `validate:"min=0"`
	// DespawnDistance is in world units; zero derives it from the retain radius.
	DespawnDistance float64 `validate:"min=0"`
}

// PathingConfig holds agent movement configuration
type PathingConfig struct {
	Speed       float64       `validate:"gt=0"`
	CooldownMin time.Duration `validate:"gt=0"`
	CooldownMax time.Duration `validate:"gt=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `validate:"oneof=debug info warn error"`
	Format     string `validate:"oneof=json text"`
	OutputPath string
}

// Load reads configuration from environment variables and .env file
// It returns a Config struct with all settings populated
// The .env file is loaded from the current working directory
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg(".env file not found (this is OK if using environment variables)")
	}

	config := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:    getEnv("ENVIRONMENT", "development"),
			TickRate:       getIntEnv("TICK_RATE", 30),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Enabled:         getBoolEnv("DB_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getIntEnv("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "slimedodge_dev"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConnections:  getIntEnv("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("JWT_SECRET", ""),
			JWTExpiration:        getDurationEnv("JWT_EXPIRATION", time.Hour),
			Issuer:               getEnv("JWT_ISSUER", "slimedodge-server"),
			ObserverPasswordHash: getEnv("OBSERVER_PASSWORD_HASH", ""),
			BCryptCost:           getIntEnv("BCRYPT_COST", 10),
		},
		World: WorldConfig{
			Seed:               getEnv("WORLD_SEED", "slimedodge"),
			RetainRadius:       getIntEnv("WORLD_RETAIN_RADIUS", 2),
			TileDataPath:       getEnv("WORLD_TILE_DATA", "assets/tiles.yaml"),
			TileStrategy:       getEnv("WORLD_TILE_STRATEGY", "uniform"),
			CharactersPerChunk: getIntEnv("WORLD_CHARACTERS_PER_CHUNK", 4),
			PropsPerChunk:      getIntEnv("WORLD_PROPS_PER_CHUNK", 2),
			NavSliceCells:      getIntEnv("WORLD_NAV_SLICE_CELLS", 0),
			DespawnDistance:    getFloatEnv("WORLD_DESPAWN_DISTANCE", 0),
		},
		Pathing: PathingConfig{
			Speed:       getFloatEnv("PATHING_SPEED", 40),
			CooldownMin: getDurationEnv("PATHING_COOLDOWN_MIN", 500*time.Millisecond),
			CooldownMax: getDurationEnv("PATHING_COOLDOWN_MAX", time.Second),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT_PATH", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, eris.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

var validate = validator.New()

// Validate checks field ranges and the cross-field rules the simulation
// depends on.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return eris.Wrap(err, "invalid field")
	}
	if c.Auth.JWTSecret == "" {
		return eris.New("JWT_SECRET is required")
	}
	if c.Database.Enabled && c.Database.Password == "" {
		return eris.New("DB_PASSWORD is required when DB_ENABLED is set")
	}
	if c.Pathing.CooldownMin >= c.Pathing.CooldownMax {
		return eris.Errorf("PATHING_COOLDOWN_MIN (%v) must be below PATHING_COOLDOWN_MAX (%v)",
			c.Pathing.CooldownMin, c.Pathing.CooldownMax)
	}
	return nil
}

// CheckGrid validates the world settings against the chunk footprint that
// the tile data declares. It is called once the tile data has loaded.
func (w *WorldConfig) CheckGrid(chunkWidth, chunkHeight int) error {
	if chunkWidth <= 0 || chunkHeight <= 0 {
		return eris.Wrapf(ErrGridMismatch, "chunk footprint %dx%d", chunkWidth, chunkHeight)
	}
	cells := chunkWidth * chunkHeight * (2*w.RetainRadius + 1) * (2*w.RetainRadius + 1)
	if w.NavSliceCells > cells {
		return eris.Wrapf(ErrGridMismatch, "slice of %d cells exceeds grid of %d cells", w.NavSliceCells, cells)
	}
	if w.CharactersPerChunk+w.PropsPerChunk > chunkWidth*chunkHeight {
		return eris.Wrapf(ErrGridMismatch, "%d spawns do not fit %d tiles",
			w.CharactersPerChunk+w.PropsPerChunk, chunkWidth*chunkHeight)
	}
	return nil
}

// SliceCells returns the number of grid cells visited per tick.
// It defaults to one chunk block, so a sweep takes (2R+1)^2 ticks.
func (w *WorldConfig) SliceCells(chunkWidth, chunkHeight int) int {
	if w.NavSliceCells > 0 {
		return w.NavSliceCells
	}
	return chunkWidth * chunkHeight
}

// DatabaseURL returns a PostgreSQL connection string
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// Address returns the listen address
func (c *ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

// TickInterval returns the simulation step duration
func (c *ServerConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for environment variable access

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Int("default", defaultValue).Msg("invalid integer value, using default")
		return defaultValue
	}
	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Float64("default", defaultValue).Msg("invalid float value, using default")
		return defaultValue
	}
	return f
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Bool("default", defaultValue).Msg("invalid bool value, using default")
		return defaultValue
	}
	return b
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).Msg("invalid duration value, using default")
		return defaultValue
	}
	return duration
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
