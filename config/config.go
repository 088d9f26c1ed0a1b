// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var (
	ErrConfiguration = errors.New("configuration error")
)

const (
	CheckpointFile     = "file"
	CheckpointDatabase = "database"
	CheckpointRedis    = "redis"
)

type Config struct {
	DB           Database     `mapstructure:"db" toml:"db"`
	Polygon      Polygon      `mapstructure:"polygon" toml:"polygon"`
	Fred         Fred         `mapstructure:"fred" toml:"fred"`
	Extract      Extract      `mapstructure:"extract" toml:"extract"`
	Checkpoint   Checkpoint   `mapstructure:"checkpoint" toml:"checkpoint"`
	Redis        Redis        `mapstructure:"redis" toml:"redis"`
	Server       Server       `mapstructure:"server" toml:"server"`
	Healthchecks Healthchecks `mapstructure:"healthchecks" toml:"healthchecks"`
}

type Database struct {
	URL string `mapstructure:"url" toml:"url"`
}

type Polygon struct {
	APIKey    string `mapstructure:"api_key" toml:"api_key"`
	RateLimit int    `mapstructure:"rate_limit" toml:"rate_limit"`
	BaseURL   string `mapstructure:"base_url" toml:"base_url"`
}

type Fred struct {
	APIKey    string   `mapstructure:"api_key" toml:"api_key"`
	RateLimit int      `mapstructure:"rate_limit" toml:"rate_limit"`
	BaseURL   string   `mapstructure:"base_url" toml:"base_url"`
	Series    []string `mapstructure:"series" toml:"series"`
}

type Extract struct {
	BatchSize  int           `mapstructure:"batch_size" toml:"batch_size"`
	Pacing     time.Duration `mapstructure:"pacing" toml:"pacing"`
	MaxRetries uint64        `mapstructure:"max_retries" toml:"max_retries"`
	RetryBase  time.Duration `mapstructure:"retry_base" toml:"retry_base"`
	PageSize   int           `mapstructure:"page_size" toml:"page_size"`
}

type Checkpoint struct {
	Backend string `mapstructure:"backend" toml:"backend"`
	Dir     string `mapstructure:"dir" toml:"dir"`
}

type Redis struct {
	Addr     string `mapstructure:"addr" toml:"addr"`
	Password string `mapstructure:"password" toml:"password,omitempty"`
	DB       int    `mapstructure:"db" toml:"db"`
}

type Server struct {
	Addr string `mapstructure:"addr" toml:"addr"`
}

type Healthchecks struct {
	CheckID string `mapstructure:"check_id" toml:"check_id"`
	BaseURL string `mapstructure:"base_url" toml:"base_url"`
}

// Requirement names a group of settings a command depends on
type Requirement int

const (
	NeedDatabase Requirement = iota
	NeedPolygon
	NeedFred
	NeedCheckpoint
)

// SetDefaults registers default values and environment bindings on v
func SetDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("polygon.rate_limit", 5)
	v.SetDefault("polygon.base_url", "https://api.polygon.io")
	v.SetDefault("fred.rate_limit", 120)
	v.SetDefault("fred.base_url", "https://api.stlouisfed.org")
	v.SetDefault("fred.series", []string{"DGS1MO", "DGS3MO", "DGS6MO", "DGS1", "DGS2", "DGS5", "DGS10", "DGS30"})
	v.SetDefault("extract.batch_size", 0)
	v.SetDefault("extract.pacing", time.Minute)
	v.SetDefault("extract.max_retries", 3)
	v.SetDefault("extract.retry_base", 2*time.Second)
	v.SetDefault("extract.page_size", 5000)
	v.SetDefault("checkpoint.backend", CheckpointFile)
	v.SetDefault("checkpoint.dir", filepath.Join(home, ".finelt", "checkpoints"))
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("healthchecks.base_url", "https://hc-ping.com")

	v.SetEnvPrefix("finelt")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// names used by the secret/.env files of earlier deployments
	bind(v, "db.url", "FINELT_DB_URL", "DATABASE_URL")
	bind(v, "polygon.api_key", "FINELT_POLYGON_API_KEY", "POLYGON_API_KEY", "API_KEY")
	bind(v, "fred.api_key", "FINELT_FRED_API_KEY", "FRED_KEY")
	bind(v, "redis.password", "FINELT_REDIS_PASSWORD")
	bind(v, "healthchecks.check_id", "FINELT_HEALTHCHECKS_CHECK_ID")
}

func bind(v *viper.Viper, key string, envs ...string) {
	args := append([]string{key}, envs...)
	if err := v.BindEnv(args...); err != nil {
		panic(err)
	}
}

// LoadDotenv reads environment files if they exist. Variables already set in
// the environment are left untouched.
func LoadDotenv(paths ...string) []string {
	if len(paths) == 0 {
		paths = []string{filepath.Join("secret", ".env"), ".env"}
	}

	loaded := make([]string, 0, len(paths))
	for _, fn := range paths {
		if _, err := os.Stat(fn); err != nil {
			continue
		}

		if err := godotenv.Load(fn); err == nil {
			loaded = append(loaded, fn)
		}
	}

	return loaded
}

// Load builds a typed configuration from v
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if cfg.Extract.BatchSize <= 0 {
		cfg.Extract.BatchSize = cfg.Polygon.RateLimit
	}

	if cfg.Extract.BatchSize <= 0 {
		cfg.Extract.BatchSize = 1
	}

	return cfg, nil
}

// Validate checks that every setting required by needs is present
func (cfg *Config) Validate(needs ...Requirement) error {
	missing := make([]string, 0)

	for _, need := range needs {
		switch need {
		case NeedDatabase:
			if cfg.DB.URL == "" {
				missing = append(missing, "db.url")
			}
		case NeedPolygon:
			if cfg.Polygon.APIKey == "" {
				missing = append(missing, "polygon.api_key")
			}
		case NeedFred:
			if cfg.Fred.APIKey == "" {
				missing = append(missing, "fred.api_key")
			}
		case NeedCheckpoint:
			switch cfg.Checkpoint.Backend {
			case CheckpointFile:
				if cfg.Checkpoint.Dir == "" {
					missing = append(missing, "checkpoint.dir")
				}
			case CheckpointDatabase:
				if cfg.DB.URL == "" {
					missing = append(missing, "db.url")
				}
			case CheckpointRedis:
				if cfg.Redis.Addr == "" {
					missing = append(missing, "redis.addr")
				}
			default:
				return fmt.Errorf("%w: unknown checkpoint.backend %q", ErrConfiguration, cfg.Checkpoint.Backend)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	return nil
}

// Env carries the configuration and logging sink handed to every component
type Env struct {
	Config *Config
	Logger zerolog.Logger
}

func NewEnv(cfg *Config, logger zerolog.Logger) *Env {
	return &Env{
		Config: cfg,
		Logger: logger,
	}
}

// WithContext attaches the environment's logger to ctx
func (env *Env) WithContext(ctx context.Context) context.Context {
	return env.Logger.WithContext(ctx)
}
