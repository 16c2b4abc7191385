package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	RateLimitPerSecond int      `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// DatabaseConfig controls the SQL connection pool.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// EngineConfig holds the territory engine policy constants. Resolution and
// the speed ceiling are deliberately configuration rather than code.
type EngineConfig struct {
	GridResolutionDeg float64 `yaml:"grid_resolution_deg"`
	SpeedCeilingKmh   float64 `yaml:"speed_ceiling_kmh"`
	PointsNew         int     `yaml:"points_new"`
	PointsDefense     int     `yaml:"points_defense"`
	PointsRobbery     int     `yaml:"points_robbery"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			AllowedOrigins:     []string{"*"},
			RateLimitPerSecond: 10,
			RateLimitBurst:     20,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Engine: EngineConfig{
			GridResolutionDeg: 0.001,
			SpeedCeilingKmh:   30,
			PointsNew:         10,
			PointsDefense:     5,
			PointsRobbery:     15,
		},
	}
}

// Load reads configuration from CONFIG_PATH (default config/config.yaml),
// then applies environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GRID_RESOLUTION_DEG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.GridResolutionDeg = f
		}
	}
	if v := os.Getenv("SPEED_CEILING_KMH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.SpeedCeilingKmh = f
		}
	}
}

func (c *Config) validate() error {
	if c.Engine.GridResolutionDeg <= 0 {
		return fmt.Errorf("engine.grid_resolution_deg must be positive")
	}
	if c.Engine.SpeedCeilingKmh <= 0 {
		return fmt.Errorf("engine.speed_ceiling_kmh must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
