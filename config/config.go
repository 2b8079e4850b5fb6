// Package config loads insulink settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath   = "insulink.yaml"
	EnvConfigPath = "INSULINK_CONFIG"
)

type Config struct {
	Backend struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"backend"`
	Transcription struct {
		Provider string `yaml:"provider"`
		Stream   bool   `yaml:"stream"`
		Language string `yaml:"language"`
		Format   string `yaml:"format"`
	} `yaml:"transcription"`
	Silence struct {
		Threshold float64 `yaml:"threshold"`
		Window    string  `yaml:"window"`
	} `yaml:"silence"`
	Presentation struct {
		Typewriter string `yaml:"typewriter"`
		Voice      *bool  `yaml:"voice"`
		Beeps      *bool  `yaml:"beeps"`
	} `yaml:"presentation"`
	Cache struct {
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		TTL           string `yaml:"ttl"`
	} `yaml:"cache"`
	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Profile struct {
		Name string `yaml:"name"`
	} `yaml:"profile"`
}

// Default returns the built-in settings.
func Default() Config {
	var cfg Config
	cfg.Backend.URL = "http://127.0.0.1:8000"
	cfg.Backend.Timeout = "30s"
	cfg.Transcription.Provider = "backend"
	cfg.Transcription.Language = "en"
	cfg.Transcription.Format = "flac"
	cfg.Silence.Threshold = 0.01
	cfg.Silence.Window = "1400ms"
	cfg.Presentation.Typewriter = "18ms"
	cfg.Cache.TTL = "10m"
	return cfg
}

// ResolvePath picks the config file: flag, then INSULINK_CONFIG, then DefaultPath.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads YAML config from path on top of Default. A missing file at
// DefaultPath is not an error; any other missing path is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Transcription.Provider {
	case "backend", "groq", "deepgram", "fake":
	default:
		return fmt.Errorf("unknown transcription provider %q", c.Transcription.Provider)
	}
	if c.Transcription.Stream && c.Transcription.Provider != "deepgram" && c.Transcription.Provider != "fake" {
		return fmt.Errorf("streaming is only available with the deepgram provider")
	}
	if c.Silence.Threshold < 0 || c.Silence.Threshold > 1 {
		return fmt.Errorf("silence threshold %v outside [0,1]", c.Silence.Threshold)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is required")
	}
	return nil
}

func (c Config) BackendTimeout() time.Duration {
	return Duration(c.Backend.Timeout, 30*time.Second)
}

func (c Config) SilenceWindow() time.Duration {
	return Duration(c.Silence.Window, 1400*time.Millisecond)
}

func (c Config) TypewriterInterval() time.Duration {
	return Duration(c.Presentation.Typewriter, 18*time.Millisecond)
}

func (c Config) CacheTTL() time.Duration {
	return Duration(c.Cache.TTL, 10*time.Minute)
}

func (c Config) VoiceEnabled() bool {
	return c.Presentation.Voice == nil || *c.Presentation.Voice
}

func (c Config) BeepsEnabled() bool {
	return c.Presentation.Beeps == nil || *c.Presentation.Beeps
}

// Duration parses a duration string, or a bare number of milliseconds, and
// returns fallback when raw is empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// LoadEnv loads KEY=value pairs from .env files without overriding variables
// already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// RequireEnv returns the value of key or an error naming the missing variable.
func RequireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is required but not set", key)
	}
	return v, nil
}
