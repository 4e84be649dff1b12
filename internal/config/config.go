package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for segment
type Config struct {
	Log       LogConfig
	Output    OutputConfig
	Collector CollectorConfig
	Convert   ConvertConfig
	Shutdown  ShutdownConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type OutputConfig struct {
	Path            string // "-" or "" writes to stdout
	Compression     string // none, gzip, zstd
	BufferSize      int64  // Flush when this many bytes of lines are buffered
	FlushIntervalMS int    // Flush at least this often (0 disables the timer)
}

type CollectorConfig struct {
	Schedule        string // Cron spec; descriptors such as "@every 10s" are accepted
	Measurement     string // Measurement name for runtime points
	Host            string // Value of the host tag (default: os.Hostname)
	IncludeMemStats bool   // Add heap and GC fields
	SelfStats       bool   // Emit segment_stats points alongside runtime points
}

type ConvertConfig struct {
	Workers            int    // Files converted in parallel
	DefaultMeasurement string // Used when a row has no 'm'
}

type ShutdownConfig struct {
	TimeoutSeconds int
}

var validCompression = map[string]bool{
	"none": true,
	"gzip": true,
	"zstd": true,
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SEGMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("segment")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/segment/")
	v.AddConfigPath("$HOME/.segment/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	bufferSize, err := ParseSize(v.GetString("output.buffer_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid output.buffer_size: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Output: OutputConfig{
			Path:            v.GetString("output.path"),
			Compression:     strings.ToLower(v.GetString("output.compression")),
			BufferSize:      bufferSize,
			FlushIntervalMS: v.GetInt("output.flush_interval_ms"),
		},
		Collector: CollectorConfig{
			Schedule:        v.GetString("collector.schedule"),
			Measurement:     v.GetString("collector.measurement"),
			Host:            v.GetString("collector.host"),
			IncludeMemStats: v.GetBool("collector.include_memstats"),
			SelfStats:       v.GetBool("collector.self_stats"),
		},
		Convert: ConvertConfig{
			Workers:            v.GetInt("convert.workers"),
			DefaultMeasurement: v.GetString("convert.default_measurement"),
		},
		Shutdown: ShutdownConfig{
			TimeoutSeconds: v.GetInt("shutdown.timeout_seconds"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Output defaults
	v.SetDefault("output.path", "-")
	v.SetDefault("output.compression", "none")
	v.SetDefault("output.buffer_size", "64KB")
	v.SetDefault("output.flush_interval_ms", 1000)

	// Collector defaults
	v.SetDefault("collector.schedule", "@every 10s")
	v.SetDefault("collector.measurement", "go_runtime")
	v.SetDefault("collector.host", "")
	v.SetDefault("collector.include_memstats", true)
	v.SetDefault("collector.self_stats", false)

	// Convert defaults
	v.SetDefault("convert.workers", 4)
	v.SetDefault("convert.default_measurement", "")

	// Shutdown defaults
	v.SetDefault("shutdown.timeout_seconds", 10)
}

// Validate checks values that would otherwise fail deep inside a component.
func (cfg *Config) Validate() error {
	if !validCompression[cfg.Output.Compression] {
		return fmt.Errorf("invalid output.compression %q (use none, gzip or zstd)", cfg.Output.Compression)
	}
	if cfg.Output.BufferSize <= 0 {
		return fmt.Errorf("output.buffer_size must be positive")
	}
	if cfg.Output.FlushIntervalMS < 0 {
		return fmt.Errorf("output.flush_interval_ms cannot be negative")
	}
	if cfg.Collector.Measurement == "" {
		return fmt.Errorf("collector.measurement cannot be empty")
	}
	if _, err := cron.ParseStandard(cfg.Collector.Schedule); err != nil {
		return fmt.Errorf("invalid collector.schedule %q: %w", cfg.Collector.Schedule, err)
	}
	if cfg.Convert.Workers < 1 {
		return fmt.Errorf("convert.workers must be at least 1")
	}
	if cfg.Shutdown.TimeoutSeconds < 1 {
		return fmt.Errorf("shutdown.timeout_seconds must be at least 1")
	}
	return nil
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
// Returns the size in bytes or an error if the format is invalid.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Define multipliers (order matters: check longer suffixes first)
	type unitInfo struct {
		suffix     string
		multiplier int64
	}
	units := []unitInfo{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

			// Ensure the remaining string is a valid number (no trailing non-numeric chars)
			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	// Try parsing as plain number (bytes)
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
