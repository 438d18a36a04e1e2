// Package config binds the toolkit's configuration surface (§6 of the
// specification) to a typed struct via viper, following the teacher's
// layered-config convention: a file is loaded once, optionally watched for
// hot-reload, and exposed through a single process-wide accessor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ncobase/modulith/logging"
)

// Async controls asynchronous listener dispatch termination behavior.
type Async struct {
	DefaultAsyncTermination bool          `yaml:"default-async-termination" json:"default_async_termination"`
	TerminationTimeout      time.Duration `yaml:"termination-timeout" json:"termination_timeout"`
}

// Republish controls the Supervisor's restart-resubmission loop.
type Republish struct {
	OnRestart   bool          `yaml:"on-restart" json:"on_restart"`
	LockTimeout time.Duration `yaml:"lock-timeout" json:"lock_timeout"`
}

// Externalization controls the Externalization Router.
type Externalization struct {
	Enabled                  bool   `yaml:"enabled" json:"enabled"`
	Mode                     string `yaml:"mode" json:"mode"` // "broker" (default) or "outbox"
	SerializeExternalization bool   `yaml:"serialize-externalization" json:"serialize_externalization"`
}

// Staleness controls the periodic staleness scan.
type Staleness struct {
	Monitor       bool          `yaml:"monitor" json:"monitor"`
	CheckInterval time.Duration `yaml:"check-interval" json:"check_interval"`
	Threshold     time.Duration `yaml:"threshold" json:"threshold"`
}

// Store describes which Store driver to open and with what DSN.
type Store struct {
	Driver string `yaml:"driver" json:"driver"` // "postgres", "mongodb", "neo4j"
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Broker describes which broker Sender to construct and with what DSN.
type Broker struct {
	Driver string `yaml:"driver" json:"driver"` // "rabbitmq", "kafka"
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Redis backs the distributed lock used by the Supervisor's restart path.
type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// Config is the toolkit's full configuration surface.
type Config struct {
	AppName         string               `yaml:"app_name" json:"app_name"`
	Environment     string               `yaml:"environment" json:"environment"`
	DetectionStrategy string             `yaml:"detection-strategy" json:"detection_strategy"`
	Async           Async                `yaml:"async" json:"async"`
	Republish       Republish            `yaml:"republish" json:"republish"`
	Externalization Externalization      `yaml:"externalization" json:"externalization"`
	Staleness       Staleness            `yaml:"staleness" json:"staleness"`
	Store           Store                `yaml:"store" json:"store"`
	Broker          Broker               `yaml:"broker" json:"broker"`
	Redis           Redis                `yaml:"redis" json:"redis"`
	Logger          logging.Config       `yaml:"logger" json:"logger"`
	Viper           *viper.Viper         `yaml:"-" json:"-"`
}

// Default returns the configuration's built-in defaults, matching §6's
// documented effects for an option left unset.
func Default() *Config {
	return &Config{
		AppName:           "modulith",
		Environment:       "dev",
		DetectionStrategy: "direct-sub-packages",
		Async: Async{
			DefaultAsyncTermination: false,
			TerminationTimeout:      2 * time.Second,
		},
		Republish: Republish{
			OnRestart:   false,
			LockTimeout: 1 * time.Second,
		},
		Externalization: Externalization{
			Enabled:                  false,
			Mode:                     "broker",
			SerializeExternalization: false,
		},
		Staleness: Staleness{
			Monitor:       false,
			CheckInterval: time.Minute,
			Threshold:     10 * time.Minute,
		},
		Logger: logging.Config{Level: "info", Format: "json", Output: "stdout"},
	}
}

var (
	mu      sync.Mutex
	current *Config
	v       *viper.Viper
)

// Load reads configuration from configPath (or the conventional search
// path when empty) and returns a Config seeded with Default()'s values.
func Load(configPath string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	v = viper.New()
	cfg := Default()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("modulith")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/modulith")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".modulith"))
		}
	}
	v.SetEnvPrefix("MODULITH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
		// No config file is not fatal: fall back to defaults + env.
	}

	bind(v, cfg)
	cfg.Viper = v
	current = cfg
	return cfg, nil
}

// bind overlays any values viper found onto cfg's defaults.
func bind(v *viper.Viper, cfg *Config) {
	if s := v.GetString("app_name"); s != "" {
		cfg.AppName = s
	}
	if s := v.GetString("environment"); s != "" {
		cfg.Environment = s
	}
	if s := v.GetString("detection-strategy"); s != "" {
		cfg.DetectionStrategy = s
	}
	if v.IsSet("default-async-termination") {
		cfg.Async.DefaultAsyncTermination = v.GetBool("default-async-termination")
	}
	if v.IsSet("republish-on-restart") {
		cfg.Republish.OnRestart = v.GetBool("republish-on-restart")
	}
	if v.IsSet("externalization.enabled") {
		cfg.Externalization.Enabled = v.GetBool("externalization.enabled")
	}
	if s := v.GetString("externalization.mode"); s != "" {
		cfg.Externalization.Mode = s
	}
	if v.IsSet("externalization.serialize-externalization") {
		cfg.Externalization.SerializeExternalization = v.GetBool("externalization.serialize-externalization")
	}
	if v.IsSet("monitor-staleness") {
		cfg.Staleness.Monitor = v.GetBool("monitor-staleness")
	}
	if d := v.GetDuration("staleness-check-interval"); d > 0 {
		cfg.Staleness.CheckInterval = d
	}
	if d := v.GetDuration("staleness-threshold"); d > 0 {
		cfg.Staleness.Threshold = d
	}
	if s := v.GetString("store.driver"); s != "" {
		cfg.Store.Driver = s
	}
	if s := v.GetString("store.dsn"); s != "" {
		cfg.Store.DSN = s
	}
	if s := v.GetString("broker.driver"); s != "" {
		cfg.Broker.Driver = s
	}
	if s := v.GetString("broker.dsn"); s != "" {
		cfg.Broker.DSN = s
	}
	if s := v.GetString("redis.addr"); s != "" {
		cfg.Redis.Addr = s
	}
	if s := v.GetString("logger.level"); s != "" {
		cfg.Logger.Level = s
	}
	if s := v.GetString("logger.format"); s != "" {
		cfg.Logger.Format = s
	}
	if s := v.GetString("logger.output"); s != "" {
		cfg.Logger.Output = s
	}
}

// Current returns the last Config loaded by Load, or nil.
func Current() *Config {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Watch re-reads configuration on file change and invokes callback with
// the reloaded Config. Intended for live-tuning the staleness threshold
// without a restart.
func Watch(callback func(*Config)) {
	mu.Lock()
	watcher := v
	mu.Unlock()
	if watcher == nil {
		return
	}
	watcher.WatchConfig()
	watcher.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(watcher.ConfigFileUsed())
		if err != nil {
			logging.Std().WithError(err).Warn("config: reload failed")
			return
		}
		callback(cfg)
	})
}

// IsProd reports whether Environment matches one of the given names
// (case-insensitive), defaulting to the conventional production aliases.
func (c *Config) IsProd(envs ...string) bool {
	if len(envs) == 0 {
		envs = []string{"prod", "production", "release"}
	}
	current := strings.ToLower(c.Environment)
	for _, e := range envs {
		if current == strings.ToLower(e) {
			return true
		}
	}
	return false
}
