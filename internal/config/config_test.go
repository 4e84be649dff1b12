package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdirTemp moves the test into an empty directory so no config file is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	oldWd, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
	}
	if cfg.Output.Path != "-" {
		t.Errorf("Output.Path = %s, want -", cfg.Output.Path)
	}
	if cfg.Output.Compression != "none" {
		t.Errorf("Output.Compression = %s, want none", cfg.Output.Compression)
	}
	if cfg.Output.BufferSize != 64*1024 {
		t.Errorf("Output.BufferSize = %d, want %d", cfg.Output.BufferSize, 64*1024)
	}
	if cfg.Collector.Schedule != "@every 10s" {
		t.Errorf("Collector.Schedule = %s, want '@every 10s'", cfg.Collector.Schedule)
	}
	if cfg.Collector.Measurement != "go_runtime" {
		t.Errorf("Collector.Measurement = %s, want go_runtime", cfg.Collector.Measurement)
	}
	if !cfg.Collector.IncludeMemStats {
		t.Error("Collector.IncludeMemStats = false, want true")
	}
	if cfg.Convert.Workers != 4 {
		t.Errorf("Convert.Workers = %d, want 4", cfg.Convert.Workers)
	}
	if cfg.Shutdown.TimeoutSeconds != 10 {
		t.Errorf("Shutdown.TimeoutSeconds = %d, want 10", cfg.Shutdown.TimeoutSeconds)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SEGMENT_OUTPUT_COMPRESSION", "ZSTD")
	t.Setenv("SEGMENT_OUTPUT_BUFFER_SIZE", "1MB")
	t.Setenv("SEGMENT_COLLECTOR_SCHEDULE", "*/5 * * * *")
	t.Setenv("SEGMENT_CONVERT_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output.Compression != "zstd" {
		t.Errorf("Output.Compression = %s, want zstd (from env)", cfg.Output.Compression)
	}
	if cfg.Output.BufferSize != 1024*1024 {
		t.Errorf("Output.BufferSize = %d, want %d (from env)", cfg.Output.BufferSize, 1024*1024)
	}
	if cfg.Collector.Schedule != "*/5 * * * *" {
		t.Errorf("Collector.Schedule = %s, want '*/5 * * * *' (from env)", cfg.Collector.Schedule)
	}
	if cfg.Convert.Workers != 8 {
		t.Errorf("Convert.Workers = %d, want 8 (from env)", cfg.Convert.Workers)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)

	content := `
[output]
path = "/tmp/out.lp.gz"
compression = "gzip"

[collector]
measurement = "runtime"
self_stats = true
`
	if err := os.WriteFile(filepath.Join(dir, "segment.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output.Path != "/tmp/out.lp.gz" {
		t.Errorf("Output.Path = %s, want /tmp/out.lp.gz", cfg.Output.Path)
	}
	if cfg.Output.Compression != "gzip" {
		t.Errorf("Output.Compression = %s, want gzip", cfg.Output.Compression)
	}
	if cfg.Collector.Measurement != "runtime" {
		t.Errorf("Collector.Measurement = %s, want runtime", cfg.Collector.Measurement)
	}
	if !cfg.Collector.SelfStats {
		t.Error("Collector.SelfStats = false, want true")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		env     string
		value   string
		wantErr string
	}{
		{"SEGMENT_OUTPUT_COMPRESSION", "lz4", "output.compression"},
		{"SEGMENT_OUTPUT_BUFFER_SIZE", "1TB", "output.buffer_size"},
		{"SEGMENT_COLLECTOR_SCHEDULE", "every now and then", "collector.schedule"},
		{"SEGMENT_CONVERT_WORKERS", "0", "convert.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(tt.env, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"64KB", 64 * 1024, false},
		{"1mb", 1024 * 1024, false},
		{"1.5GB", 1536 * 1024 * 1024, false},
		{"512B", 512, false},
		{"4096", 4096, false},
		{"", 0, true},
		{"1TB", 0, true},
		{"-1KB", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
