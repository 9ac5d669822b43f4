package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config models projectkart.yml. Every field can be overridden through the
// environment so deployments do not need the file at all.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	DB struct {
		Workspace string `yaml:"workspace"`
	} `yaml:"db"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Gateway struct {
		KeyID     string `yaml:"key_id"`
		KeySecret string `yaml:"key_secret"`
		APIURL    string `yaml:"api_url"`
	} `yaml:"gateway"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	Assets struct {
		Dir string `yaml:"dir"`
	} `yaml:"assets"`
}

// Default returns a config suitable for local development.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/api"
	cfg.DB.Workspace = "."
	cfg.Auth.TokenTTLHours = 24
	cfg.Gateway.APIURL = "https://api.razorpay.com/v1"
	cfg.SMTP.Host = "smtp.gmail.com"
	cfg.SMTP.Port = 587
	cfg.Assets.Dir = "uploads"
	return &cfg
}

// Load reads the config file (CONFIG_PATH or projectkart.yml), applies
// defaults and env overrides, and validates. A missing file is fine; env-only
// deployments are supported.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "projectkart.yml"
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Auth.TokenTTLHours <= 0 {
		cfg.Auth.TokenTTLHours = 24
	}
	if cfg.Assets.Dir == "" {
		return nil, errors.New("assets.dir is required")
	}
	return cfg, nil
}

// GatewayConfigured reports whether live payment credentials are present.
// Without them the storefront runs in demo mode.
func (c *Config) GatewayConfigured() bool {
	return c.Gateway.KeyID != "" && c.Gateway.KeySecret != ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SERVER_BASE_PATH"); v != "" {
		cfg.Server.BasePath = v
	}
	if v := os.Getenv("DB_WORKSPACE"); v != "" {
		cfg.DB.Workspace = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL_HOURS"); v != "" {
		cfg.Auth.TokenTTLHours = atoiOr(cfg.Auth.TokenTTLHours, v)
	}
	if v := os.Getenv("GATEWAY_KEY_ID"); v != "" {
		cfg.Gateway.KeyID = v
	}
	if v := os.Getenv("GATEWAY_KEY_SECRET"); v != "" {
		cfg.Gateway.KeySecret = v
	}
	if v := os.Getenv("GATEWAY_API_URL"); v != "" {
		cfg.Gateway.APIURL = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		cfg.SMTP.Port = atoiOr(cfg.SMTP.Port, v)
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTP.From = v
	}
	if v := os.Getenv("ASSETS_DIR"); v != "" {
		cfg.Assets.Dir = v
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
