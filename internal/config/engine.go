package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/reservoir/internal/summary"
)

// DefaultConfigPath is the path to the canonical engine defaults file.
const DefaultConfigPath = "config/engine.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// EngineConfig holds settings for the CLI, HTTP and gRPC servers. Every field
// is optional; the Get* methods supply the defaults, so partial files are
// safe.
type EngineConfig struct {
	DBPath     *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen     *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`

	// Streaming and resampling
	ChunkSize        *int    `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	DefaultFrequency *string `json:"default_frequency,omitempty" yaml:"default_frequency,omitempty"`

	// Case loading
	OpenConcurrency *int     `json:"open_concurrency,omitempty" yaml:"open_concurrency,omitempty"`
	PreloadCases    []string `json:"preload_cases,omitempty" yaml:"preload_cases,omitempty"`

	// Server timeouts, duration strings like "15s"
	ReadTimeout     *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	ShutdownTimeout *string `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`

	// PNG plot size in centimetres
	PlotWidthCm  *float64 `json:"plot_width_cm,omitempty" yaml:"plot_width_cm,omitempty"`
	PlotHeightCm *float64 `json:"plot_height_cm,omitempty" yaml:"plot_height_cm,omitempty"`
}

// EmptyEngineConfig returns a config with every field unset.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// LoadEngineConfig loads a config from a .json, .yaml or .yml file.
// The file is validated to have a known extension and to be under 1MB.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEngineConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *EngineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadEngineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *EngineConfig) Validate() error {
	if c.ChunkSize != nil && *c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	if c.OpenConcurrency != nil && *c.OpenConcurrency <= 0 {
		return fmt.Errorf("open_concurrency must be positive, got %d", *c.OpenConcurrency)
	}
	if c.DefaultFrequency != nil {
		if _, err := summary.ParseFrequency(*c.DefaultFrequency); err != nil {
			return fmt.Errorf("default_frequency: %w", err)
		}
	}
	for name, d := range map[string]*string{"read_timeout": c.ReadTimeout, "shutdown_timeout": c.ShutdownTimeout} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
			}
		}
	}
	if c.PlotWidthCm != nil && *c.PlotWidthCm <= 0 {
		return fmt.Errorf("plot_width_cm must be positive, got %f", *c.PlotWidthCm)
	}
	if c.PlotHeightCm != nil && *c.PlotHeightCm <= 0 {
		return fmt.Errorf("plot_height_cm must be positive, got %f", *c.PlotHeightCm)
	}
	return nil
}

// GetDBPath returns the db_path value or the default.
func (c *EngineConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "reservoir.db"
	}
	return *c.DBPath
}

// GetListen returns the HTTP listen address or the default.
func (c *EngineConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC listen address or the default.
func (c *EngineConfig) GetGRPCListen() string {
	if c.GRPCListen == nil || *c.GRPCListen == "" {
		return ":9090"
	}
	return *c.GRPCListen
}

// GetChunkSize returns the streaming chunk size or the default.
func (c *EngineConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 4096
	}
	return *c.ChunkSize
}

// GetDefaultFrequency returns the resampling frequency used when a request
// names none.
func (c *EngineConfig) GetDefaultFrequency() summary.Frequency {
	if c.DefaultFrequency == nil {
		return summary.None
	}
	f, err := summary.ParseFrequency(*c.DefaultFrequency)
	if err != nil {
		return summary.None // default on parse error
	}
	return f
}

// GetOpenConcurrency returns how many cases may load at once.
func (c *EngineConfig) GetOpenConcurrency() int {
	if c.OpenConcurrency == nil {
		return 4
	}
	return *c.OpenConcurrency
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *EngineConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, 15*time.Second)
}

// GetShutdownTimeout parses and returns the ShutdownTimeout as a time.Duration.
func (c *EngineConfig) GetShutdownTimeout() time.Duration {
	return durationOr(c.ShutdownTimeout, 10*time.Second)
}

// GetPlotWidthCm returns the PNG plot width or the default.
func (c *EngineConfig) GetPlotWidthCm() float64 {
	if c.PlotWidthCm == nil {
		return 16
	}
	return *c.PlotWidthCm
}

// GetPlotHeightCm returns the PNG plot height or the default.
func (c *EngineConfig) GetPlotHeightCm() float64 {
	if c.PlotHeightCm == nil {
		return 10
	}
	return *c.PlotHeightCm
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
