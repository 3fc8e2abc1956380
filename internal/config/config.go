package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the orchestrator.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detection DetectionConfig `yaml:"detection"`
	Healing   HealingConfig   `yaml:"healing"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Cache     CacheConfig     `yaml:"cache"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DetectionConfig controls the detection loop and threshold table.
type DetectionConfig struct {
	Interval       time.Duration `yaml:"interval"`
	CooldownWindow time.Duration `yaml:"cooldownWindow"`

	CPUWarning       float64 `yaml:"cpuWarning"`
	CPUCritical      float64 `yaml:"cpuCritical"`
	MemoryWarning    float64 `yaml:"memoryWarning"`
	MemoryCritical   float64 `yaml:"memoryCritical"`
	DiskWarning      float64 `yaml:"diskWarning"`
	DiskCritical     float64 `yaml:"diskCritical"`
	RestartsWarning  float64 `yaml:"restartsWarning"`
	RestartsCritical float64 `yaml:"restartsCritical"`
}

// HealingConfig controls the healing evaluation loop.
type HealingConfig struct {
	Interval     time.Duration `yaml:"interval"`
	EventLogSize int           `yaml:"eventLogSize"`
	RulePackPath string        `yaml:"rulePackPath"`
	SeedDefaults bool          `yaml:"seedDefaults"`
}

// FleetConfig configures access to the metrics backend supplying snapshots.
type FleetConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	SnapshotPath string        `yaml:"snapshotPath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CacheConfig controls Valkey-backed caching of fleet snapshot fetches.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
}

// NotifyConfig controls the outbound webhook sink.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("OCTRIX_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Detection: DetectionConfig{
			Interval:         30 * time.Second,
			CooldownWindow:   300 * time.Second,
			CPUWarning:       80,
			CPUCritical:      92,
			MemoryWarning:    80,
			MemoryCritical:   90,
			DiskWarning:      80,
			DiskCritical:     90,
			RestartsWarning:  3,
			RestartsCritical: 5,
		},
		Healing: HealingConfig{
			Interval:     15 * time.Second,
			EventLogSize: 1000,
			SeedDefaults: true,
		},
		Fleet: FleetConfig{
			SnapshotPath: "/api/v1/fleet/snapshot",
			Timeout:      5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:      false,
			SnapshotTTL:  15 * time.Second,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Notify: NotifyConfig{Timeout: 5 * time.Second},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OCTRIX_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("OCTRIX_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("OCTRIX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OCTRIX_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("OCTRIX_DETECTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.Interval = d
		}
	}
	if v := os.Getenv("OCTRIX_COOLDOWN_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.CooldownWindow = d
		}
	}
	if v := os.Getenv("OCTRIX_HEALING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Healing.Interval = d
		}
	}
	if v := os.Getenv("OCTRIX_RULE_PACK"); v != "" {
		cfg.Healing.RulePackPath = v
	}
	if v := os.Getenv("OCTRIX_FLEET_BASE_URL"); v != "" {
		cfg.Fleet.BaseURL = v
	}
	if v := os.Getenv("OCTRIX_FLEET_SNAPSHOT_PATH"); v != "" {
		cfg.Fleet.SnapshotPath = v
	}
	if v := os.Getenv("OCTRIX_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("OCTRIX_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("OCTRIX_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("OCTRIX_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("OCTRIX_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("OCTRIX_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("OCTRIX_CACHE_SNAPSHOT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SnapshotTTL = d
		}
	}
	if v := os.Getenv("OCTRIX_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
}
