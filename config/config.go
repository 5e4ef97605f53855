// Package config loads the runtime configuration: YAML file plus
// environment variable overrides.
//
// Precedence: defaults, then the YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	// Service configures the model execution service client.
	Service ServiceConfig `yaml:"service" env:"SERVICE"`

	// Cache configures the Redis response cache.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Project configures persistence.
	Project ProjectConfig `yaml:"project" env:"PROJECT"`

	// Recipes configures manifest loading.
	Recipes RecipesConfig `yaml:"recipes" env:"RECIPES"`

	// Engine configures execution behavior.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Log configures logging output.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServiceConfig configures the model execution service client.
type ServiceConfig struct {
	// BaseURL is the service endpoint.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey authenticates against the service.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Timeout is the per-call HTTP timeout.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RequestsPerSecond throttles outgoing calls. Zero disables.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// CacheConfig configures the Redis response cache.
type CacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr is the Redis address.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password is the Redis password.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB is the Redis database number.
	DB int `yaml:"db" env:"DB"`
	// TTL is the entry lifetime. Zero means no expiry.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// ProjectConfig configures persistence.
type ProjectConfig struct {
	// Root is the project directory.
	Root string `yaml:"root" env:"ROOT"`
	// UseSQLite stores assets and history in SQLite alongside the
	// JSON document.
	UseSQLite bool `yaml:"use_sqlite" env:"USE_SQLITE"`
}

// RecipesConfig configures manifest loading.
type RecipesConfig struct {
	// Dir is scanned for recipe manifests.
	Dir string `yaml:"dir" env:"DIR"`
}

// EngineConfig configures execution behavior.
type EngineConfig struct {
	// DisplayDelay is how long a node shows success before settling
	// back to idle.
	DisplayDelay time.Duration `yaml:"display_delay" env:"DISPLAY_DELAY"`
	// BatchLimit bounds concurrent runs in a batch. Zero means
	// unbounded.
	BatchLimit int `yaml:"batch_limit" env:"BATCH_LIMIT"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Timeout:           120 * time.Second,
			RequestsPerSecond: 0,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Project: ProjectConfig{
			Root: ".",
		},
		Recipes: RecipesConfig{
			Dir: "recipes",
		},
		Engine: EngineConfig{
			DisplayDelay: 2 * time.Second,
			BatchLimit:   4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Loader loads configuration with the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "LOOM"}
}

// WithConfigPath sets the YAML file to load. Empty skips the file layer.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, err
	}

	for _, validate := range l.validators {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}
	return cfg, nil
}

// applyEnv walks the config struct and overrides fields from environment
// variables named PREFIX_SECTION_FIELD per the env tags.
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		name := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, name); err != nil {
				return err
			}
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// MustLoad loads from path and panics on failure. Intended for main
// functions only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}
