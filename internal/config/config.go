// Package config loads resistornet settings with priority
// environment > file > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/tabulate"
)

// MaxWorkers caps the number of parallel solvers per run
const MaxWorkers = 64

// SolverConfig describes the problem and the search
type SolverConfig struct {
	Values      int           `yaml:"values" json:"values"`
	GroupSize   int           `yaml:"group_size" json:"group_size"`
	Series      string        `yaml:"series" json:"series"`
	Target      float64       `yaml:"target" json:"target"`
	Seed        int64         `yaml:"seed" json:"seed"`
	Strategy    string        `yaml:"strategy" json:"strategy"`
	MaxRestarts int           `yaml:"max_restarts" json:"max_restarts"`
	TimeLimit   time.Duration `yaml:"time_limit" json:"time_limit"`
	Workers     int           `yaml:"workers" json:"workers"`
	Patience    int           `yaml:"patience" json:"patience"`
	Threshold   float64       `yaml:"threshold" json:"threshold"`
	Bound       string        `yaml:"bound" json:"bound"`
}

// MayflyConfig tunes the keyed strategy's optimizer
type MayflyConfig struct {
	Iterations int `yaml:"iterations" json:"iterations"`
	Population int `yaml:"population" json:"population"`
}

// ServerConfig configures the HTTP server and persistence
type ServerConfig struct {
	Addr    string `yaml:"addr" json:"addr"`
	DataDir string `yaml:"data_dir" json:"data_dir"`
	Store   string `yaml:"store" json:"store"`
}

// Config is the full configuration
type Config struct {
	Solver   SolverConfig `yaml:"solver" json:"solver"`
	Mayfly   MayflyConfig `yaml:"mayfly" json:"mayfly"`
	Server   ServerConfig `yaml:"server" json:"server"`
	LogLevel string       `yaml:"log_level" json:"log_level"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Solver: SolverConfig{
			Values:    10,
			GroupSize: 4,
			Series:    string(network.SeriesE12),
			Target:    1000,
			Seed:      42,
			Strategy:  "uniform",
			Workers:   1,
			Threshold: 0.001,
		},
		Mayfly: MayflyConfig{
			Iterations: 10,
			Population: 20,
		},
		Server: ServerConfig{
			Addr:    "localhost:8080",
			DataDir: "./data",
			Store:   "fs",
		},
		LogLevel: "info",
	}
}

// Load reads configPath (optional, YAML or JSON) over the defaults, then
// applies RESISTORNET_* environment overrides and validates the result.
// A missing file is not an error.
func Load(configPath string) (Config, error) {
	config := Default()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(config *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Solver
	setInt("RESISTORNET_VALUES", &config.Solver.Values)
	setInt("RESISTORNET_GROUP_SIZE", &config.Solver.GroupSize)
	setString("RESISTORNET_SERIES", &config.Solver.Series)
	setFloat("RESISTORNET_TARGET", &config.Solver.Target)
	if v := os.Getenv("RESISTORNET_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Solver.Seed = i
		}
	}
	setString("RESISTORNET_STRATEGY", &config.Solver.Strategy)
	setInt("RESISTORNET_MAX_RESTARTS", &config.Solver.MaxRestarts)
	if v := os.Getenv("RESISTORNET_TIME_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Solver.TimeLimit = d
		}
	}
	setInt("RESISTORNET_WORKERS", &config.Solver.Workers)
	setInt("RESISTORNET_PATIENCE", &config.Solver.Patience)
	setFloat("RESISTORNET_THRESHOLD", &config.Solver.Threshold)
	setString("RESISTORNET_BOUND", &config.Solver.Bound)

	// Mayfly
	setInt("RESISTORNET_MAYFLY_ITERATIONS", &config.Mayfly.Iterations)
	setInt("RESISTORNET_MAYFLY_POPULATION", &config.Mayfly.Population)

	// Server
	setString("RESISTORNET_ADDR", &config.Server.Addr)
	setString("RESISTORNET_DATA_DIR", &config.Server.DataDir)
	setString("RESISTORNET_STORE", &config.Server.Store)

	setString("RESISTORNET_LOG_LEVEL", &config.LogLevel)
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if c.Solver.Values < 1 || c.Solver.Values > tabulate.MaxBitCoderValues {
		return fmt.Errorf("values must be between 1 and %d", tabulate.MaxBitCoderValues)
	}
	if c.Solver.GroupSize < 1 || c.Solver.GroupSize > tabulate.GroupSizeLimit {
		return fmt.Errorf("group_size must be between 1 and %d", tabulate.GroupSizeLimit)
	}
	if _, err := network.ParseSeries(c.Solver.Series); err != nil {
		return fmt.Errorf("series: %w", err)
	}
	if c.Solver.Target <= 0 {
		return fmt.Errorf("target must be > 0")
	}
	switch c.Solver.Strategy {
	case "uniform", "mayfly":
	default:
		return fmt.Errorf("strategy must be uniform or mayfly, got %q", c.Solver.Strategy)
	}
	if c.Solver.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts must be >= 0")
	}
	if c.Solver.TimeLimit < 0 {
		return fmt.Errorf("time_limit must be >= 0")
	}
	if c.Solver.Workers < 1 || c.Solver.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d", MaxWorkers)
	}
	if c.Solver.Patience < 0 {
		return fmt.Errorf("patience must be >= 0")
	}
	if c.Solver.Threshold < 0 {
		return fmt.Errorf("threshold must be >= 0")
	}
	switch c.Solver.Bound {
	case "", "none", "range":
	default:
		return fmt.Errorf("bound must be none or range, got %q", c.Solver.Bound)
	}
	if c.Mayfly.Iterations < 1 || c.Mayfly.Population < 1 {
		return fmt.Errorf("mayfly iterations and population must be >= 1")
	}
	switch c.Server.Store {
	case "fs", "badger":
	default:
		return fmt.Errorf("store must be fs or badger, got %q", c.Server.Store)
	}
	return nil
}
