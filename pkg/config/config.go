package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Backend struct {
		BaseURL   string  `yaml:"base_url"`
		Token     string  `yaml:"token"`
		RateRPS   float64 `yaml:"rate_rps"`
		RateBurst int     `yaml:"rate_burst"`
	} `yaml:"backend"`
	Sync struct {
		Cron    string `yaml:"cron"`
		OnStart bool   `yaml:"on_start"`
	} `yaml:"sync"`
	Undo struct {
		WindowMS int `yaml:"window_ms"`
	} `yaml:"undo"`
	Retention struct {
		Enabled    bool   `yaml:"enabled"`
		Cron       string `yaml:"cron"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"retention"`
	Session struct {
		Scope    string `yaml:"scope"`
		Identity string `yaml:"identity"`
	} `yaml:"session"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
}

// Addr returns host:port for the ops HTTP listener.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "ops HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	if v := os.Getenv("MARKETSYNC_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("MARKETSYNC_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("MARKETSYNC_BACKEND_URL"); v != "" {
		envUsed = true
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("MARKETSYNC_BACKEND_TOKEN"); v != "" {
		envUsed = true
		cfg.Backend.Token = v
	}
	if v := os.Getenv("MARKETSYNC_BACKEND_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Backend.RateRPS = f
		}
	}
	if v := os.Getenv("MARKETSYNC_BACKEND_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Backend.RateBurst = n
		}
	}
	if v := os.Getenv("MARKETSYNC_SYNC_CRON"); v != "" {
		envUsed = true
		cfg.Sync.Cron = v
	}
	if v := os.Getenv("MARKETSYNC_SYNC_ON_START"); v != "" {
		envUsed = true
		vl := strings.ToLower(strings.TrimSpace(v))
		cfg.Sync.OnStart = vl == "1" || vl == "true" || vl == "yes"
	}
	if v := os.Getenv("MARKETSYNC_UNDO_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Undo.WindowMS = n
		}
	}
	if v := os.Getenv("MARKETSYNC_RETENTION_ENABLED"); v != "" {
		envUsed = true
		vl := strings.ToLower(strings.TrimSpace(v))
		cfg.Retention.Enabled = vl == "1" || vl == "true" || vl == "yes"
	}
	if v := os.Getenv("MARKETSYNC_RETENTION_MAX_AGE_DAYS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Retention.MaxAgeDays = n
		}
	}
	if v := os.Getenv("MARKETSYNC_SCOPE"); v != "" {
		envUsed = true
		cfg.Session.Scope = v
	}
	if v := os.Getenv("MARKETSYNC_IDENTITY"); v != "" {
		envUsed = true
		cfg.Session.Identity = v
	}
	return envUsed
}

// LoadEffective loads config from the given path and applies environment
// overrides. A missing file is not fatal; env and defaults still apply.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the environment variable `MARKETSYNC_CONFIG` when the flag was
// not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("MARKETSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
