// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smileynet/vcfsend/internal/sendsim"
)

// Config holds all vcfsend configuration.
type Config struct {
	Store Store `yaml:"store"`
	Send  Send  `yaml:"send"`
	Phone Phone `yaml:"phone"`
	Log   Log   `yaml:"log"`
}

// Store holds contact store settings.
type Store struct {
	Dir string `yaml:"dir"`
}

// Send holds pacing for the simulated send run.
type Send struct {
	Interval         time.Duration `yaml:"interval"`
	ProgressDuration time.Duration `yaml:"progress_duration"`
	Increment        int           `yaml:"increment"`
	Cap              int           `yaml:"cap"` // 0 means the number of imported contacts
	Antiban          bool          `yaml:"antiban"`
	PauseChance      float64       `yaml:"pause_chance"`
	MinPause         time.Duration `yaml:"min_pause"`
	MaxPause         time.Duration `yaml:"max_pause"`
}

// Phone holds number checking settings.
type Phone struct {
	Region string `yaml:"region"` // Default region for numbers without a leading '+'
}

// Log holds debug log file settings.
type Log struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns a Config with sensible defaults.
// Send pacing comes from sendsim.DefaultConfig with Cap left at 0.
func DefaultConfig() Config {
	pacing := sendsim.DefaultConfig(0)
	return Config{
		Store: Store{
			Dir: ".vcfsend",
		},
		Send: Send{
			Interval:         pacing.Interval,
			ProgressDuration: pacing.ProgressDuration,
			Increment:        pacing.Increment,
			Cap:              pacing.Cap,
			Antiban:          pacing.Antiban,
			PauseChance:      pacing.PauseChance,
			MinPause:         pacing.MinPause,
			MaxPause:         pacing.MaxPause,
		},
		Phone: Phone{
			Region: "US",
		},
		Log: Log{
			File:       ".vcfsend/vcfsend.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return errors.New("config: store.dir cannot be empty")
	}
	if c.Send.Interval < 0 {
		return fmt.Errorf("config: send.interval must be non-negative, got %v", c.Send.Interval)
	}
	if c.Send.ProgressDuration <= 0 {
		return fmt.Errorf("config: send.progress_duration must be positive, got %v", c.Send.ProgressDuration)
	}
	if c.Send.Increment <= 0 {
		return fmt.Errorf("config: send.increment must be positive, got %d", c.Send.Increment)
	}
	if c.Send.Cap < 0 {
		return fmt.Errorf("config: send.cap must be non-negative, got %d", c.Send.Cap)
	}
	if c.Send.PauseChance < 0 || c.Send.PauseChance > 1 {
		return fmt.Errorf("config: send.pause_chance must be within [0, 1], got %v", c.Send.PauseChance)
	}
	if c.Send.MinPause < 0 || c.Send.MaxPause < c.Send.MinPause {
		return fmt.Errorf("config: send.min_pause (%v) must be non-negative and not exceed send.max_pause (%v)", c.Send.MinPause, c.Send.MaxPause)
	}
	if len(c.Phone.Region) != 2 {
		return fmt.Errorf("config: phone.region must be a two-letter region code, got %q", c.Phone.Region)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return errors.New("config: log.max_size_mb and log.max_backups must be non-negative")
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: VCFSEND_STORE_DIR, VCFSEND_INTERVAL, VCFSEND_ANTIBAN,
// VCFSEND_REGION, VCFSEND_LOG_FILE.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("VCFSEND_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("VCFSEND_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid VCFSEND_INTERVAL %q: %w", v, err)
		}
		c.Send.Interval = d
	}
	if v := os.Getenv("VCFSEND_ANTIBAN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid VCFSEND_ANTIBAN %q: %w", v, err)
		}
		c.Send.Antiban = b
	}
	if v := os.Getenv("VCFSEND_REGION"); v != "" {
		c.Phone.Region = v
	}
	if v := os.Getenv("VCFSEND_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Store *rawStore `yaml:"store"`
	Send  *rawSend  `yaml:"send"`
	Phone *rawPhone `yaml:"phone"`
	Log   *rawLog   `yaml:"log"`
}

type rawStore struct {
	Dir *string `yaml:"dir"`
}

type rawSend struct {
	Interval         *time.Duration `yaml:"interval"`
	ProgressDuration *time.Duration `yaml:"progress_duration"`
	Increment        *int           `yaml:"increment"`
	Cap              *int           `yaml:"cap"`
	Antiban          *bool          `yaml:"antiban"`
	PauseChance      *float64       `yaml:"pause_chance"`
	MinPause         *time.Duration `yaml:"min_pause"`
	MaxPause         *time.Duration `yaml:"max_pause"`
}

type rawPhone struct {
	Region *string `yaml:"region"`
}

type rawLog struct {
	File       *string `yaml:"file"`
	MaxSizeMB  *int    `yaml:"max_size_mb"`
	MaxBackups *int    `yaml:"max_backups"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if layer.Store != nil {
		setIf(&c.Store.Dir, layer.Store.Dir)
	}
	if s := layer.Send; s != nil {
		setIf(&c.Send.Interval, s.Interval)
		setIf(&c.Send.ProgressDuration, s.ProgressDuration)
		setIf(&c.Send.Increment, s.Increment)
		setIf(&c.Send.Cap, s.Cap)
		setIf(&c.Send.Antiban, s.Antiban)
		setIf(&c.Send.PauseChance, s.PauseChance)
		setIf(&c.Send.MinPause, s.MinPause)
		setIf(&c.Send.MaxPause, s.MaxPause)
	}
	if layer.Phone != nil {
		setIf(&c.Phone.Region, layer.Phone.Region)
	}
	if l := layer.Log; l != nil {
		setIf(&c.Log.File, l.File)
		setIf(&c.Log.MaxSizeMB, l.MaxSizeMB)
		setIf(&c.Log.MaxBackups, l.MaxBackups)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
