package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pebblestore "ex-chatflow/internal/storage/pebble"
)

func writeConfigFile(t *testing.T, path string, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

// TestParseLogLevel verifies accepted level spellings.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "info", input: "info", want: slog.LevelInfo},
		{name: "warn", input: "warn", want: slog.LevelWarn},
		{name: "warning", input: "warning", want: slog.LevelWarn},
		{name: "error mixed case", input: " Error ", want: slog.LevelError},
		{name: "invalid", input: "trace", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseLogLevel(testCase.input)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("level = %v, want %v", got, testCase.want)
			}
		})
	}
}

// TestLoadConfig verifies file discovery, field parsing and validation.
func TestLoadConfig(t *testing.T) {
	t.Run("loads all supported fields from an explicit path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "chatflow.toml")
		writeConfigFile(t, configPath, `
log_level = "warn"
log_file = "logs/chatflow.log"
data_dir = "state/db"
fsync = "interval"
fsync_interval = "20ms"
page_size = 5
profile_cache_size = 16
chat_cache_size = 32
item_cache_size = 64

[log_rotation]
max_size_mb = 50
max_age_days = 2
max_backups = 9
compress = false

[kernel]
module_hook_timeout = "7s"
shutdown_timeout = "15s"
`)

		cfg, err := loadConfig(configPath)
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}

		if cfg.logLevel != slog.LevelWarn {
			t.Fatalf("log level = %v, want %v", cfg.logLevel, slog.LevelWarn)
		}
		if cfg.logFile != "logs/chatflow.log" {
			t.Fatalf("log file = %q, want logs/chatflow.log", cfg.logFile)
		}
		wantRotation := logRotation{maxSizeMB: 50, maxAgeDays: 2, maxBackups: 9, compress: false}
		if cfg.rotation != wantRotation {
			t.Fatalf("rotation = %+v, want %+v", cfg.rotation, wantRotation)
		}
		if cfg.dataDir != "state/db" {
			t.Fatalf("data dir = %q, want state/db", cfg.dataDir)
		}
		if cfg.fsync != pebblestore.FsyncModeInterval {
			t.Fatalf("fsync = %v, want %v", cfg.fsync, pebblestore.FsyncModeInterval)
		}
		if cfg.fsyncInterval != 20*time.Millisecond {
			t.Fatalf("fsync interval = %s, want 20ms", cfg.fsyncInterval)
		}
		if cfg.pageSize != 5 {
			t.Fatalf("page size = %d, want 5", cfg.pageSize)
		}
		if cfg.profileCacheSize != 16 || cfg.chatCacheSize != 32 || cfg.itemCacheSize != 64 {
			t.Fatalf("cache sizes = %d/%d/%d, want 16/32/64",
				cfg.profileCacheSize, cfg.chatCacheSize, cfg.itemCacheSize)
		}
		if cfg.moduleHookTimeout != 7*time.Second {
			t.Fatalf("module hook timeout = %s, want 7s", cfg.moduleHookTimeout)
		}
		if cfg.shutdownTimeout != 15*time.Second {
			t.Fatalf("shutdown timeout = %s, want 15s", cfg.shutdownTimeout)
		}
	})

	t.Run("environment path is used when no explicit path is given", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "env.toml")
		writeConfigFile(t, configPath, `page_size = 3`)
		t.Setenv(envConfigFile, configPath)

		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}
		if cfg.pageSize != 3 {
			t.Fatalf("page size = %d, want 3", cfg.pageSize)
		}
	})

	t.Run("loads fallback path bin/config/chatflow.toml", func(t *testing.T) {
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, "bin", "config", "chatflow.toml"), `data_dir = "fallback"`)
		t.Chdir(workDir)
		t.Setenv(envConfigFile, "")

		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}
		if cfg.dataDir != "fallback" {
			t.Fatalf("data dir = %q, want fallback", cfg.dataDir)
		}
	})

	t.Run("missing config file yields defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv(envConfigFile, "")

		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}
		if cfg != defaultAppConfig() {
			t.Fatalf("config = %+v, want defaults %+v", cfg, defaultAppConfig())
		}
	})

	t.Run("config path that is a directory fails", func(t *testing.T) {
		workDir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(workDir, defaultConfigFilePath), 0o700); err != nil {
			t.Fatalf("create directory: %v", err)
		}
		t.Chdir(workDir)
		t.Setenv(envConfigFile, "")

		_, err := loadConfig("")
		if err == nil || !strings.Contains(err.Error(), "is a directory") {
			t.Fatalf("load config error = %v, want directory error", err)
		}
	})

	t.Run("invalid config values fail", func(t *testing.T) {
		tests := []struct {
			name       string
			fileTOML   string
			wantErrSub string
		}{
			{name: "invalid log level", fileTOML: `log_level = "trace"`, wantErrSub: "parse log_level"},
			{name: "invalid fsync", fileTOML: `fsync = "sometimes"`, wantErrSub: "parse fsync"},
			{name: "invalid fsync interval", fileTOML: `fsync_interval = "soon"`, wantErrSub: "parse fsync_interval"},
			{name: "non-positive page size", fileTOML: `page_size = 0`, wantErrSub: "parse page_size"},
			{name: "negative cache size", fileTOML: `chat_cache_size = -1`, wantErrSub: "parse chat_cache_size"},
			{
				name:       "invalid kernel timeout",
				fileTOML:   "[kernel]\nmodule_hook_timeout = \"bad\"",
				wantErrSub: "parse kernel.module_hook_timeout",
			},
			{
				name:       "non-positive shutdown timeout",
				fileTOML:   "[kernel]\nshutdown_timeout = \"0s\"",
				wantErrSub: "parse kernel.shutdown_timeout",
			},
			{
				name:       "negative rotation backups",
				fileTOML:   "[log_rotation]\nmax_backups = -2",
				wantErrSub: "parse log_rotation.max_backups",
			},
			{name: "unknown key", fileTOML: `page_sise = 4`, wantErrSub: "unknown keys page_sise"},
			{name: "malformed toml", fileTOML: `page_size = `, wantErrSub: "parse config file"},
		}

		for _, testCase := range tests {
			testCase := testCase
			t.Run(testCase.name, func(t *testing.T) {
				t.Parallel()

				configPath := filepath.Join(t.TempDir(), "chatflow.toml")
				writeConfigFile(t, configPath, testCase.fileTOML)

				_, err := loadConfig(configPath)
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), testCase.wantErrSub) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSub)
				}
			})
		}
	})
}

// TestNewLogger verifies log output goes to stderr by default and to the
// rotating file when one is configured.
func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("stderr", func(t *testing.T) {
		t.Parallel()

		var stderr bytes.Buffer
		logger, closer, err := newLogger(defaultAppConfig(), &stderr)
		if err != nil {
			t.Fatalf("new logger: %v", err)
		}
		if closer != nil {
			t.Fatalf("closer = %v, want nil for stderr", closer)
		}
		logger.Info("hello")
		if !strings.Contains(stderr.String(), `"msg":"hello"`) {
			t.Fatalf("stderr = %q, want hello record", stderr.String())
		}
	})

	t.Run("rotating file", func(t *testing.T) {
		t.Parallel()

		cfg := defaultAppConfig()
		cfg.logFile = filepath.Join(t.TempDir(), "logs", "chatflow.log")
		var stderr bytes.Buffer
		logger, closer, err := newLogger(cfg, &stderr)
		if err != nil {
			t.Fatalf("new logger: %v", err)
		}
		logger.Info("to file")
		if err := closer.Close(); err != nil {
			t.Fatalf("close log file: %v", err)
		}

		data, err := os.ReadFile(cfg.logFile)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"to file"`) {
			t.Fatalf("log file = %q, want record", data)
		}
		if stderr.Len() != 0 {
			t.Fatalf("stderr = %q, want empty", stderr.String())
		}
	})
}
