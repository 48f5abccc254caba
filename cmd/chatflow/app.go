package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/natefinch/lumberjack.v2"

	"ex-chatflow/internal/kernel"
	pebblestore "ex-chatflow/internal/storage/pebble"
	"ex-chatflow/modules/chats"
	"ex-chatflow/modules/profiles"
	"ex-chatflow/modules/settings"
	"ex-chatflow/pkg/chatflow"
)

const (
	envConfigFile            = "CHATFLOW_CONFIG_FILE"
	defaultConfigFilePath    = "config/chatflow.toml"
	alternateConfigFilePath  = "bin/config/chatflow.toml"
	defaultDataDir           = "data/chatflow"
	defaultModuleHookTimeout = 3 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultPageSize          = 20
	defaultProfileCacheSize  = 256
	defaultChatCacheSize     = 1024
	defaultItemCacheSize     = 4096
	defaultLogMaxSizeMB      = 10
	defaultLogMaxAgeDays     = 7
	defaultLogMaxBackups     = 3
)

type appConfig struct {
	logLevel slog.Level
	logFile  string
	rotation logRotation

	dataDir       string
	fsync         pebblestore.FsyncMode
	fsyncInterval time.Duration

	pageSize         int
	profileCacheSize int
	chatCacheSize    int
	itemCacheSize    int

	moduleHookTimeout time.Duration
	shutdownTimeout   time.Duration
}

type logRotation struct {
	maxSizeMB  int
	maxAgeDays int
	maxBackups int
	compress   bool
}

type fileConfig struct {
	LogLevel         string                `toml:"log_level"`
	LogFile          string                `toml:"log_file"`
	LogRotation      fileLogRotationConfig `toml:"log_rotation"`
	DataDir          string                `toml:"data_dir"`
	Fsync            string                `toml:"fsync"`
	FsyncInterval    string                `toml:"fsync_interval"`
	PageSize         *int                  `toml:"page_size"`
	ProfileCacheSize *int                  `toml:"profile_cache_size"`
	ChatCacheSize    *int                  `toml:"chat_cache_size"`
	ItemCacheSize    *int                  `toml:"item_cache_size"`
	Kernel           fileKernelConfig      `toml:"kernel"`
}

type fileKernelConfig struct {
	ModuleHookTimeout string `toml:"module_hook_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

type fileLogRotationConfig struct {
	MaxSizeMB  *int  `toml:"max_size_mb"`
	MaxAgeDays *int  `toml:"max_age_days"`
	MaxBackups *int  `toml:"max_backups"`
	Compress   *bool `toml:"compress"`
}

// loadConfig builds the runtime configuration. explicitPath wins over the
// environment and the default locations; with no file at all the defaults apply.
func loadConfig(explicitPath string) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, found, err := resolveConfigFilePath(explicitPath)
	if err != nil {
		return appConfig{}, err
	}
	if !found {
		return cfg, nil
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}

	return cfg, nil
}

func resolveConfigFilePath(explicitPath string) (string, bool, error) {
	if configFile := strings.TrimSpace(explicitPath); configFile != "" {
		return configFile, true, nil
	}
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, true, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", false, nil
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,
		rotation: logRotation{
			maxSizeMB:  defaultLogMaxSizeMB,
			maxAgeDays: defaultLogMaxAgeDays,
			maxBackups: defaultLogMaxBackups,
			compress:   true,
		},

		dataDir: defaultDataDir,

		pageSize:         defaultPageSize,
		profileCacheSize: defaultProfileCacheSize,
		chatCacheSize:    defaultChatCacheSize,
		itemCacheSize:    defaultItemCacheSize,

		moduleHookTimeout: defaultModuleHookTimeout,
		shutdownTimeout:   defaultShutdownTimeout,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	var parsed fileConfig
	meta, err := toml.DecodeFile(path, &parsed)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("parse config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}
	if logFile := strings.TrimSpace(parsed.LogFile); logFile != "" {
		cfg.logFile = logFile
	}
	if err := applyLogRotation(&cfg.rotation, parsed.LogRotation); err != nil {
		return err
	}

	if dataDir := strings.TrimSpace(parsed.DataDir); dataDir != "" {
		cfg.dataDir = dataDir
	}
	mode, err := pebblestore.ParseFsyncMode(parsed.Fsync)
	if err != nil {
		return fmt.Errorf("parse fsync: %w", err)
	}
	cfg.fsync = mode
	if rawInterval := strings.TrimSpace(parsed.FsyncInterval); rawInterval != "" {
		interval, err := parsePositiveDuration(rawInterval, "fsync_interval")
		if err != nil {
			return err
		}
		cfg.fsyncInterval = interval
	}

	sizes := []struct {
		key    string
		raw    *int
		target *int
	}{
		{key: "page_size", raw: parsed.PageSize, target: &cfg.pageSize},
		{key: "profile_cache_size", raw: parsed.ProfileCacheSize, target: &cfg.profileCacheSize},
		{key: "chat_cache_size", raw: parsed.ChatCacheSize, target: &cfg.chatCacheSize},
		{key: "item_cache_size", raw: parsed.ItemCacheSize, target: &cfg.itemCacheSize},
	}
	for _, size := range sizes {
		if size.raw == nil {
			continue
		}
		if *size.raw <= 0 {
			return fmt.Errorf("parse %s: must be > 0", size.key)
		}
		*size.target = *size.raw
	}

	if rawTimeout := strings.TrimSpace(parsed.Kernel.ModuleHookTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout, "kernel.module_hook_timeout")
		if err != nil {
			return err
		}
		cfg.moduleHookTimeout = timeout
	}
	if rawTimeout := strings.TrimSpace(parsed.Kernel.ShutdownTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout, "kernel.shutdown_timeout")
		if err != nil {
			return err
		}
		cfg.shutdownTimeout = timeout
	}

	return nil
}

func applyLogRotation(rotation *logRotation, parsed fileLogRotationConfig) error {
	counts := []struct {
		key    string
		raw    *int
		target *int
	}{
		{key: "log_rotation.max_size_mb", raw: parsed.MaxSizeMB, target: &rotation.maxSizeMB},
		{key: "log_rotation.max_age_days", raw: parsed.MaxAgeDays, target: &rotation.maxAgeDays},
		{key: "log_rotation.max_backups", raw: parsed.MaxBackups, target: &rotation.maxBackups},
	}
	for _, count := range counts {
		if count.raw == nil {
			continue
		}
		if *count.raw < 0 {
			return fmt.Errorf("parse %s: must be >= 0", count.key)
		}
		*count.target = *count.raw
	}
	if parsed.Compress != nil {
		rotation.compress = *parsed.Compress
	}

	return nil
}

func parsePositiveDuration(raw string, key string) (time.Duration, error) {
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", key)
	}

	return value, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", raw)
	}
}

// newLogger writes JSON records to stderr, or to a rotating file when one is
// configured. Standard output is reserved for command results.
func newLogger(cfg appConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var (
		out    = stderr
		closer io.Closer
	)
	if cfg.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.logFile), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotating := &lumberjack.Logger{
			LocalTime:  true,
			Filename:   cfg.logFile,
			MaxSize:    cfg.rotation.maxSizeMB,
			MaxAge:     cfg.rotation.maxAgeDays,
			MaxBackups: cfg.rotation.maxBackups,
			Compress:   cfg.rotation.compress,
		}
		out = rotating
		closer = rotating
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.logLevel}))

	return logger, closer, nil
}

// app is one started kernel with the chatflow modules wired over a Pebble store.
type app struct {
	cfg    appConfig
	logger *slog.Logger
	logOut io.Closer

	kernel   *kernel.Kernel
	profiles *profiles.Module
	chats    *chats.Module
	settings *settings.Module
}

func openApp(ctx context.Context, cfg appConfig, stderr io.Writer) (*app, error) {
	logger, logOut, err := newLogger(cfg, stderr)
	if err != nil {
		return nil, err
	}

	application := &app{
		cfg:    cfg,
		logger: logger,
		logOut: logOut,
		kernel: buildKernelRuntime(logger, cfg),
		profiles: profiles.New(
			profiles.WithLogger(logger.With("module", "profiles")),
			profiles.WithCacheSize(cfg.profileCacheSize),
		),
		chats: chats.New(
			chats.WithLogger(logger.With("module", "chats")),
			chats.WithCacheSize(cfg.chatCacheSize),
			chats.WithPageSize(cfg.pageSize),
		),
		settings: settings.New(settings.WithLogger(logger.With("module", "settings"))),
	}

	if err := application.start(ctx); err != nil {
		return nil, errors.Join(err, application.Close(ctx))
	}

	return application, nil
}

func (a *app) start(ctx context.Context) error {
	if err := registerRuntimeStore(a.kernel, a.logger, a.cfg); err != nil {
		return err
	}
	if err := registerRuntimeModules(ctx, a.kernel, a.profiles, a.chats, a.settings); err != nil {
		return err
	}
	if err := a.kernel.Start(ctx); err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}

	return nil
}

// Close shuts the kernel down, which closes the store, then releases the log file.
func (a *app) Close(ctx context.Context) error {
	err := a.kernel.Shutdown(ctx)
	if a.logOut != nil {
		err = errors.Join(err, a.logOut.Close())
	}

	return err
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
	)
}

func registerRuntimeStore(kernelRuntime *kernel.Kernel, logger *slog.Logger, cfg appConfig) error {
	store, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.dataDir,
		Fsync:         cfg.fsync,
		FsyncInterval: cfg.fsyncInterval,
		ItemCacheSize: cfg.itemCacheSize,
		Logger:        logger.With("component", "pebble"),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	for _, name := range []string{
		chatflow.ServiceInteractionStore,
		chatflow.ServiceProfileStore,
		chatflow.ServiceSettingStore,
	} {
		if err := kernelRuntime.RegisterService(name, store); err != nil {
			return errors.Join(err, store.Close())
		}
	}

	return nil
}

func registerRuntimeModules(ctx context.Context, kernelRuntime *kernel.Kernel, modules ...chatflow.Module) error {
	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register module %s: %w", module.Name(), err)
		}
	}

	return nil
}
