package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         "8080",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
			Environment:  "test",
			TickRate:     30,
		},
		Database: DatabaseConfig{Port: 5432},
		Auth: AuthConfig{
			JWTSecret:     "test",
			JWTExpiration: time.Hour,
			Issuer:        "test",
			BCryptCost:    4,
		},
		World: WorldConfig{
			Seed:               "seed",
			RetainRadius:       2,
			TileDataPath:       "tiles.yaml",
			TileStrategy:       "uniform",
			CharactersPerChunk: 4,
			PropsPerChunk:      2,
		},
		Pathing: PathingConfig{
			Speed:       40,
			CooldownMin: 500 * time.Millisecond,
			CooldownMax: time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_jwt_secret")
	t.Setenv("WORLD_RETAIN_RADIUS", "3")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if config.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", config.Server.Port)
	}
	if config.World.RetainRadius != 3 {
		t.Errorf("Expected retain radius 3, got %d", config.World.RetainRadius)
	}
	if config.Pathing.CooldownMin != 500*time.Millisecond || config.Pathing.CooldownMax != time.Second {
		t.Errorf("Unexpected cooldown range %v-%v", config.Pathing.CooldownMin, config.Pathing.CooldownMax)
	}
	if config.Database.Enabled {
		t.Errorf("Expected database journal to be disabled by default")
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TICK_RATE", "fast")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if config.Server.TickRate != 30 {
		t.Errorf("Expected default tick rate 30, got %d", config.Server.TickRate)
	}
	if config.Server.TickInterval() != time.Second/30 {
		t.Errorf("Unexpected tick interval %v", config.Server.TickInterval())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "database enabled without password", mutate: func(c *Config) { c.Database.Enabled = true }, wantErr: true},
		{name: "inverted cooldown", mutate: func(c *Config) { c.Pathing.CooldownMin = 2 * time.Second }, wantErr: true},
		{name: "unknown strategy", mutate: func(c *Config) { c.World.TileStrategy = "perlin" }, wantErr: true},
		{name: "negative radius", mutate: func(c *Config) { c.World.RetainRadius = -1 }, wantErr: true},
		{name: "zero speed", mutate: func(c *Config) { c.Pathing.Speed = 0 }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckGrid(t *testing.T) {
	w := validConfig().World
	if err := w.CheckGrid(16, 16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.CheckGrid(0, 16); !errors.Is(err, ErrGridMismatch) {
		t.Fatalf("expected grid mismatch, got %v", err)
	}
	w.CharactersPerChunk = 5
	if err := w.CheckGrid(2, 2); !errors.Is(err, ErrGridMismatch) {
		t.Fatalf("expected grid mismatch for overfull chunk, got %v", err)
	}
	w.CharactersPerChunk = 0
	w.NavSliceCells = 1 << 20
	if err := w.CheckGrid(16, 16); !errors.Is(err, ErrGridMismatch) {
		t.Fatalf("expected grid mismatch for oversized slice, got %v", err)
	}
	if got := (&WorldConfig{}).SliceCells(16, 8); got != 128 {
		t.Fatalf("expected default slice of one chunk block, got %d", got)
	}
	if got := (&WorldConfig{NavSliceCells: 40}).SliceCells(16, 8); got != 40 {
		t.Fatalf("expected explicit slice to win, got %d", got)
	}
}
