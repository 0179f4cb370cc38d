package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Certificate struct {
		Prefix string `yaml:"prefix"`
	} `yaml:"certificate"`
}

// Load reads YAML config from path. Environment variables override the
// secrets and connection strings so they can live in .env instead.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Postgres.URL, "DATABASE_URL")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.Log.Level, "LOG_LEVEL")
}

func override(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
