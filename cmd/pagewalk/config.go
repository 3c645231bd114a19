package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// Config holds the settings of a browsing session.
// Values are read from a JSONC file, then overridden by flags.
type Config struct {
	PageSize     int     `json:"page_size"`
	Policy       string  `json:"policy"`
	PageLimit    int     `json:"page_limit"`
	RemovalCount int     `json:"removal_count"`
	Capacity     int     `json:"capacity"`
	Preloading   bool    `json:"preloading"`
	Async        bool    `json:"async"`
	Workers      int64   `json:"workers"`
	FetchRate    float64 `json:"fetches_per_second"`
	Window       int     `json:"window"`
	Stride       int     `json:"stride"`
	History      string  `json:"history"`
	LogLevel     string  `json:"log_level"`
	MetricsAddr  string  `json:"metrics_addr"`
}

const (
	policyHoarding = "hoarding"
	policyLRU      = "lru"
	policyClockPro = "clockpro"
	policyARC      = "arc"

	configName = "pagewalk.jsonc"
)

var (
	errConfigRead    = errors.New("cannot read config file")
	errConfigInvalid = errors.New("invalid config")
)

func defaultConfig() Config {
	return Config{
		PageSize:     256,
		Policy:       policyLRU,
		PageLimit:    16,
		RemovalCount: 4,
		Capacity:     16,
		Workers:      4,
		Window:       20,
		Stride:       64,
		History:      defaultHistory(),
		LogLevel:     "warn",
	}
}

func defaultHistory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pagewalk_history")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pagewalk", configName)
}

// loadConfig overlays the file at path onto cfg.
// A missing file is only an error if mustExist is set.
func loadConfig(cfg *Config, path string, mustExist bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", errConfigRead, path, err)
	}
	if err := parseConfig(cfg, data); err != nil {
		return fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return nil
}

func parseConfig(cfg *Config, data []byte) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (cfg *Config) validate() error {
	switch cfg.Policy {
	case policyHoarding, policyLRU, policyClockPro, policyARC:
	default:
		return fmt.Errorf("%w: unknown policy %q", errConfigInvalid, cfg.Policy)
	}
	if cfg.Window < 1 {
		return fmt.Errorf("%w: window must be >=1", errConfigInvalid)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("%w: %w", errConfigInvalid, err)
	}
	return nil
}

func (cfg *Config) level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	return level
}

// parseArgs builds the session config and returns the file to browse.
func parseArgs(args []string) (Config, string, error) {
	flags := pflag.NewFlagSet("pagewalk", pflag.ContinueOnError)
	flags.SortFlags = false
	var (
		cfg        = defaultConfig()
		configPath = flags.StringP("config", "c", defaultConfigPath(), "JSONC config `file`")
		pageSize   = flags.IntP("page-size", "p", cfg.PageSize, "lines per page")
		policy     = flags.String("policy", cfg.Policy, "removal policy: hoarding, lru, clockpro or arc")
		pageLimit  = flags.Int("page-limit", cfg.PageLimit, "lru: pages kept before removal")
		removal    = flags.Int("removal-count", cfg.RemovalCount, "lru: pages removed at once")
		capacity   = flags.Int("capacity", cfg.Capacity, "clockpro/arc: resident pages")
		preloading = flags.Bool("preload", cfg.Preloading, "fetch neighbors of every page")
		async      = flags.Bool("async", cfg.Async, "fetch in the background and show placeholders")
		workers    = flags.Int64("workers", cfg.Workers, "async: concurrent fetches")
		fetchRate  = flags.Float64("fetch-rate", cfg.FetchRate, "async: fetches per second, 0 for unlimited")
		window     = flags.IntP("window", "w", cfg.Window, "lines in view")
		stride     = flags.Int("stride", cfg.Stride, "lines between index marks")
		history    = flags.String("history", cfg.History, "REPL history `file`")
		logLevel   = flags.String("log-level", cfg.LogLevel, "debug, info, warn or error")
		metrics    = flags.String("metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on `address`")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pagewalk [flags] <file>\n\n%s", flags.FlagUsages())
	}
	if err := flags.Parse(args); err != nil {
		return Config{}, "", err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return Config{}, "", fmt.Errorf("expected one file argument, got %d", flags.NArg())
	}
	if err := loadConfig(&cfg, *configPath, flags.Changed("config")); err != nil {
		return Config{}, "", err
	}
	// Flags given explicitly take precedence over the file.
	overrides := map[string]func(){
		"page-size":     func() { cfg.PageSize = *pageSize },
		"policy":        func() { cfg.Policy = *policy },
		"page-limit":    func() { cfg.PageLimit = *pageLimit },
		"removal-count": func() { cfg.RemovalCount = *removal },
		"capacity":      func() { cfg.Capacity = *capacity },
		"preload":       func() { cfg.Preloading = *preloading },
		"async":         func() { cfg.Async = *async },
		"workers":       func() { cfg.Workers = *workers },
		"fetch-rate":    func() { cfg.FetchRate = *fetchRate },
		"window":        func() { cfg.Window = *window },
		"stride":        func() { cfg.Stride = *stride },
		"history":       func() { cfg.History = *history },
		"log-level":     func() { cfg.LogLevel = *logLevel },
		"metrics-addr":  func() { cfg.MetricsAddr = *metrics },
	}
	flags.Visit(func(flag *pflag.Flag) {
		if apply, ok := overrides[flag.Name]; ok {
			apply()
		}
	})
	if err := cfg.validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, flags.Arg(0), nil
}
