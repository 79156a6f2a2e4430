// Package config holds the tunables of a pool and of the stream adapters
// built on it, and loads them from a file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable, e.g.
// UNBLOCK_MAX_WORKERS=64 or UNBLOCK_IDLE_TIMEOUT=2s.
const EnvPrefix = "UNBLOCK"

const (
	DefaultMaxWorkers  = 500
	DefaultIdleTimeout = 500 * time.Millisecond
	DefaultMinWorkers  = 0
	DefaultBufferSize  = 8 * 1024
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete set of tunables.
type Config struct {
	// MaxWorkers caps the number of worker threads. Submissions beyond it
	// queue until a worker frees up.
	MaxWorkers int `mapstructure:"max_workers" validate:"gte=1" yaml:"max_workers"`

	// IdleTimeout is how long a worker waits for work before exiting.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gt=0" yaml:"idle_timeout"`

	// MinWorkers is the number of workers that never time out once started.
	MinWorkers int `mapstructure:"min_workers" validate:"gte=0,ltefield=MaxWorkers" yaml:"min_workers"`

	// BufferSize is the capacity of a stream adapter's internal buffer.
	BufferSize int `mapstructure:"buffer_size" validate:"gte=1" yaml:"buffer_size"`

	// ThreadAffinity pins every worker thread to a CPU core.
	ThreadAffinity bool `mapstructure:"thread_affinity" yaml:"thread_affinity"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxWorkers:  DefaultMaxWorkers,
		IdleTimeout: DefaultIdleTimeout,
		MinWorkers:  DefaultMinWorkers,
		BufferSize:  DefaultBufferSize,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first field out of range, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s=%v fails %q", ErrInvalidConfig, fe.Field(), fe.Value(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads the configuration with the following precedence:
//  1. environment variables (UNBLOCK_*)
//  2. the file at path, when path is non-empty and the file exists
//  3. Default()
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return decode(v)
}

// FromEnv is Load without a file. It is what the process-wide default pool
// is configured from.
func FromEnv() (Config, error) {
	return decode(newViper())
}

// Bind exposes the viper instance Load would use so that command-line flags
// can be layered on top with BindPFlag. The caller reads the result with
// Decode.
func Bind(path string) (*viper.Viper, error) {
	v := newViper()
	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates whatever v currently holds.
func Decode(v *viper.Viper) (Config, error) {
	return decode(v)
}

// Save writes c as YAML, creating parent directories as needed.
func Save(c Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(struct {
		MaxWorkers     int    `yaml:"max_workers"`
		IdleTimeout    string `yaml:"idle_timeout"`
		MinWorkers     int    `yaml:"min_workers"`
		BufferSize     int    `yaml:"buffer_size"`
		ThreadAffinity bool   `yaml:"thread_affinity"`
	}{c.MaxWorkers, c.IdleTimeout.String(), c.MinWorkers, c.BufferSize, c.ThreadAffinity})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("max_workers", d.MaxWorkers)
	v.SetDefault("idle_timeout", d.IdleTimeout)
	v.SetDefault("min_workers", d.MinWorkers)
	v.SetDefault("buffer_size", d.BufferSize)
	v.SetDefault("thread_affinity", d.ThreadAffinity)
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
