// Package config loads the actiongate configuration file: autonomy level,
// classifier tuning, boundaries, usage backend, audit log and alerts.
package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/actiongate/internal/alert"
	"github.com/ppiankov/actiongate/internal/boundary"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/pipeline"
	"github.com/ppiankov/actiongate/internal/risk"
	"github.com/ppiankov/actiongate/internal/router"
	"github.com/ppiankov/actiongate/internal/usage"
)

// ErrInvalidConfig marks a configuration file that cannot be applied.
var ErrInvalidConfig = errors.New("invalid config")

// Usage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Usage selects and configures the usage store.
type Usage struct {
	Backend       string `yaml:"backend" json:"backend"`
	Path          string `yaml:"path" json:"path"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix" json:"key_prefix"`
}

// Config is the whole configuration file.
type Config struct {
	AutonomyLevel model.AutonomyLevel `yaml:"autonomy_level" json:"autonomy_level"`
	Risk          risk.Config         `yaml:"risk" json:"risk"`
	Boundaries    boundary.Boundaries `yaml:"boundaries" json:"boundaries"`
	Pipeline      pipeline.Config     `yaml:"pipeline" json:"pipeline"`
	Usage         Usage               `yaml:"usage" json:"usage"`
	AuditLog      string              `yaml:"audit_log" json:"audit_log"`
	ApprovalsDir  string              `yaml:"approvals_dir" json:"approvals_dir"`
	Alerts        []alert.Config      `yaml:"alerts" json:"alerts"`
}

// Dir returns ~/.actiongate, or .actiongate when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".actiongate"
	}
	return filepath.Join(home, ".actiongate")
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AutonomyLevel: model.AutonomyBounded,
		Risk:          risk.DefaultConfig(),
		Boundaries:    boundary.DefaultBoundaries(),
		Pipeline:      pipeline.DefaultConfig(),
		Usage: Usage{
			Backend:   BackendMemory,
			Path:      filepath.Join(Dir(), "usage.db"),
			RedisAddr: "localhost:6379",
			KeyPrefix: "actiongate:usage",
		},
		AuditLog:     filepath.Join(Dir(), "decisions.jsonl"),
		ApprovalsDir: filepath.Join(Dir(), "pending"),
	}
}

// Load reads the config at path. Empty path uses DefaultPath.
// A missing file returns defaults; anything present overlays them.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash is Load plus the SHA-256 of the raw file bytes. When no
// file exists the hash is that of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), Hash(nil), nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, Hash(data), nil
}

// Parse overlays YAML onto the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidConfig, err)
	}
	cfg.Usage.Path = expandHome(cfg.Usage.Path)
	cfg.AuditLog = expandHome(cfg.AuditLog)
	cfg.ApprovalsDir = expandHome(cfg.ApprovalsDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}

// Hash returns the "sha256:<hex>" digest of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Validate checks every section. The first failure wins.
func (c *Config) Validate() error {
	if !c.AutonomyLevel.Valid() {
		return fmt.Errorf("%w: autonomy_level %d outside 1..4", ErrInvalidConfig, c.AutonomyLevel)
	}
	sections := []struct {
		name string
		err  error
	}{
		{"risk", c.Risk.Validate()},
		{"boundaries", c.Boundaries.Validate()},
		{"pipeline", c.Pipeline.Validate()},
	}
	for _, s := range sections {
		if s.err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, s.name, s.err)
		}
	}
	switch c.Usage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Usage.Path == "" {
			return fmt.Errorf("%w: usage.path is required for sqlite", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.Usage.RedisAddr == "" {
			return fmt.Errorf("%w: usage.redis_addr is required for redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown usage backend %q", ErrInvalidConfig, c.Usage.Backend)
	}
	for i, a := range c.Alerts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: alerts[%d]: %w", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

// Router returns the router section of the config.
func (c *Config) Router() router.Config {
	return router.Config{
		AutonomyLevel: c.AutonomyLevel,
		Boundaries:    c.Boundaries,
		Risk:          c.Risk,
		Pipeline:      c.Pipeline,
	}
}

// OpenStore opens the configured usage backend.
func (c *Config) OpenStore(ctx context.Context) (usage.Store, error) {
	switch c.Usage.Backend {
	case BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(c.Usage.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create usage dir: %w", err)
		}
		return usage.OpenSQLite(c.Usage.Path)
	case BackendRedis:
		return usage.OpenRedis(ctx, usage.RedisOptions{
			Addr:      c.Usage.RedisAddr,
			Password:  c.Usage.RedisPassword,
			DB:        c.Usage.RedisDB,
			KeyPrefix: c.Usage.KeyPrefix,
		})
	default:
		return usage.NewMemoryStore(), nil
	}
}

// Describe is a one-line summary of the effective config.
func (c *Config) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "level %d (%s), usage %s", c.AutonomyLevel, c.AutonomyLevel, c.Usage.Backend)
	if len(c.Alerts) > 0 {
		fmt.Fprintf(&b, ", %d alert destinations", len(c.Alerts))
	}
	return b.String()
}
