package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/latticedb/lattice-backend/internal/platform/envutil"
)

const configPathEnv = "LATTICE_CONFIG_YAML"

type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type Redis struct {
	Addr        string `yaml:"addr"`
	AclCacheTTL int    `yaml:"aclCacheTTLSeconds"`
}

type Config struct {
	LogMode  string   `yaml:"logMode"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
}

// Load reads the optional yaml config file named by LATTICE_CONFIG_YAML and then
// applies environment overrides on top. A missing file is not an error; env vars
// alone are enough to run.
func Load() (*Config, error) {
	cfg := &Config{
		LogMode: "development",
		Postgres: Postgres{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "lattice",
			SSLMode: "disable",
		},
		Redis: Redis{AclCacheTTL: 30},
	}

	if path := strings.TrimSpace(os.Getenv(configPathEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Postgres.Host = envutil.String("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = envutil.String("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = envutil.String("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = envutil.String("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Name = envutil.String("POSTGRES_NAME", cfg.Postgres.Name)
	cfg.Postgres.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.Postgres.SSLMode)
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.AclCacheTTL = envutil.Int("REDIS_ACL_CACHE_TTL", cfg.Redis.AclCacheTTL)

	return cfg, nil
}

func (p Postgres) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode,
	)
}
