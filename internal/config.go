package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName = "collector"
	envPrefix  = "FEEDCOLLECTOR"
)

// StorageConfig selects the durable backend
type StorageConfig struct {
	Backend string `mapstructure:"backend" toml:"backend"`
	Path    string `mapstructure:"path" toml:"path"`
}

// ExportConfig controls artifact output
type ExportConfig struct {
	Format string `mapstructure:"format" toml:"format"`
	Dir    string `mapstructure:"dir" toml:"dir"`
}

// NATSConfig configures the optional control bus
type NATSConfig struct {
	URL    string `mapstructure:"url" toml:"url"`
	Prefix string `mapstructure:"prefix" toml:"prefix"`
}

// Config is the collector configuration
type Config struct {
	URL               string        `mapstructure:"url" toml:"url"`
	DebuggerURL       string        `mapstructure:"debugger_url" toml:"debugger_url"`
	Headless          bool          `mapstructure:"headless" toml:"headless"`
	BrowserBin        string        `mapstructure:"browser_bin" toml:"browser_bin"`
	UserDataDir       string        `mapstructure:"user_data_dir" toml:"user_data_dir"`
	Limit             int           `mapstructure:"limit" toml:"limit"`
	TargetAuthors     []string      `mapstructure:"target_authors" toml:"target_authors"`
	PrivilegedAuthors []string      `mapstructure:"privileged_authors" toml:"privileged_authors"`
	Selectors         SelectorSet   `mapstructure:"selectors" toml:"selectors"`
	Pacing            Pacing        `mapstructure:"pacing" toml:"pacing"`
	Storage           StorageConfig `mapstructure:"storage" toml:"storage"`
	Export            ExportConfig  `mapstructure:"export" toml:"export"`
	NATS              NATSConfig    `mapstructure:"nats" toml:"nats"`
}

// DefaultConfigDir returns ~/.feed-collector
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".feed-collector"
	}
	return filepath.Join(home, ".feed-collector")
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	dir := DefaultConfigDir()
	return Config{
		Headless:          false,
		UserDataDir:       filepath.Join(dir, "browser"),
		Limit:             DefaultLimit,
		TargetAuthors:     []string{},
		PrivilegedAuthors: []string{},
		Selectors:         DefaultSelectorSet(),
		Pacing:            DefaultPacing(),
		Storage:           StorageConfig{Backend: "sqlite", Path: filepath.Join(dir, "collector.db")},
		Export:            ExportConfig{Format: "json", Dir: "."},
		NATS:              NATSConfig{Prefix: "feedcollector"},
	}
}

// LoadConfig reads configuration from path (or the default search path),
// a .env file and FEEDCOLLECTOR_* environment variables.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		LogWarn("Failed to load .env: %v", err)
	}

	setDefaults(v, "", reflect.ValueOf(DefaultConfig()))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		LogDebug("Using config file %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings a collection run depends on
func (c *Config) Validate() error {
	if c.Limit <= 0 {
		return ErrInvalidLimit
	}
	p := c.Pacing
	ranges := []struct {
		name   string
		lo, hi time.Duration
	}{
		{"start_delay", p.StartDelayMin, p.StartDelayMax},
		{"tick", p.TickMin, p.TickMax},
		{"top_wait", p.TopWaitMin, p.TopWaitMax},
		{"settle", p.SettleMin, p.SettleMax},
		{"cooldown", p.CooldownMin, p.CooldownMax},
	}
	for _, r := range ranges {
		if r.lo < 0 || r.hi < r.lo {
			return fmt.Errorf("invalid pacing range %s: [%v, %v]", r.name, r.lo, r.hi)
		}
	}
	if p.TickMax <= 0 {
		return errors.New("pacing tick_max must be positive")
	}
	if p.StepMin < 0 || p.StepMax < p.StepMin {
		return fmt.Errorf("invalid pacing range step: [%d, %d]", p.StepMin, p.StepMax)
	}
	return nil
}

// EncodeTOML renders c as TOML with durations as strings
func (c Config) EncodeTOML() ([]byte, error) {
	data, err := toml.Marshal(toMap(reflect.ValueOf(c)))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// WriteConfig writes c to path, refusing to overwrite unless force is set
func WriteConfig(path string, c Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := c.EncodeTOML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var durationType = reflect.TypeOf(time.Duration(0))

// setDefaults registers every leaf of a config struct so env overrides
// reach Unmarshal.
func setDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

func toMap(rv reflect.Value) map[string]interface{} {
	out := make(map[string]interface{})
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("toml")
		if key == "" {
			continue
		}
		fv := rv.Field(i)
		switch {
		case fv.Type() == durationType:
			out[key] = time.Duration(fv.Int()).String()
		case fv.Kind() == reflect.Struct:
			out[key] = toMap(fv)
		default:
			out[key] = fv.Interface()
		}
	}
	return out
}
