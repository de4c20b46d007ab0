package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the gateway binary
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Timer struct {
		WorkDurationSec  int `yaml:"work_duration_sec"`
		BreakDurationSec int `yaml:"break_duration_sec"`
		TickIntervalMS   int `yaml:"tick_interval_ms"`
	} `yaml:"timer"`

	NATS struct {
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in settings
func Default() Config {
	var c Config
	c.Server.Port = "3001"
	c.Server.AllowedOrigins = []string{"*"}
	c.Timer.WorkDurationSec = 25 * 60
	c.Timer.BreakDurationSec = 5 * 60
	c.Timer.TickIntervalMS = 1000
	c.NATS.Stream = "FOCUS_EVENTS"
	c.NATS.SubjectPrefix = "focus.events"
	c.Log.Level = "info"
	c.Log.Format = "console"
	return c
}

// Load starts from Default, overlays the YAML file at path (if path is not
// empty), then overlays environment variables. The result is validated.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		if err := c.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Timer.WorkDurationSec = getEnvAsInt("WORK_DURATION_SEC", c.Timer.WorkDurationSec)
	c.Timer.BreakDurationSec = getEnvAsInt("BREAK_DURATION_SEC", c.Timer.BreakDurationSec)
	c.Timer.TickIntervalMS = getEnvAsInt("TICK_INTERVAL_MS", c.Timer.TickIntervalMS)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Stream = getEnv("NATS_STREAM", c.NATS.Stream)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects settings the engine cannot run with
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server port must not be empty"))
	}
	if c.Timer.WorkDurationSec <= 0 {
		errs = append(errs, fmt.Errorf("work duration must be positive, got %d", c.Timer.WorkDurationSec))
	}
	if c.Timer.BreakDurationSec <= 0 {
		errs = append(errs, fmt.Errorf("break duration must be positive, got %d", c.Timer.BreakDurationSec))
	}
	if c.Timer.TickIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %d", c.Timer.TickIntervalMS))
	}
	if c.NATS.URL != "" && (c.NATS.Stream == "" || c.NATS.SubjectPrefix == "") {
		errs = append(errs, errors.New("nats stream and subject prefix are required when nats url is set"))
	}
	return errors.Join(errs...)
}

// TickInterval returns the clock cadence
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalMS) * time.Millisecond
}

// MirrorEnabled reports whether broadcasts should be mirrored to NATS
func (c Config) MirrorEnabled() bool {
	return c.NATS.URL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
