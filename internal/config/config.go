package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the MediWagon companion.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	LogLevel                 string
	LogFormat                string

	AllowAnyOrigin bool

	AuthBaseURL  string
	AgentBaseURL string
	VoiceBaseURL string
	// AudioOrigin qualifies relative audio file references from the voice backend.
	AudioOrigin string
	// BackendTimeout bounds each gateway call made by the orchestrator. Zero means no deadline.
	BackendTimeout time.Duration

	DatabaseURL  string
	IdentityPath string

	DefaultLat float64
	DefaultLon float64

	AudioAutoPlay bool
}

// fileConfig mirrors the optional YAML overlay named by MEDIWAGON_CONFIG.
type fileConfig struct {
	BindAddr       string   `yaml:"bind_addr"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	AuthBaseURL    string   `yaml:"auth_url"`
	AgentBaseURL   string   `yaml:"agent_url"`
	VoiceBaseURL   string   `yaml:"voice_url"`
	AudioOrigin    string   `yaml:"audio_origin"`
	BackendTimeout string   `yaml:"backend_timeout"`
	IdentityPath   string   `yaml:"identity_path"`
	DefaultLat     *float64 `yaml:"default_lat"`
	DefaultLon     *float64 `yaml:"default_lon"`
	AudioAutoPlay  *bool    `yaml:"audio_autoplay"`
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 ":8080",
		MetricsNamespace:         "mediwagon",
		LogLevel:                 "info",
		LogFormat:                "json",
		AuthBaseURL:              "https://doc-backend-hsf5.onrender.com",
		AgentBaseURL:             "http://localhost:8000",
		VoiceBaseURL:             "http://localhost:5000",
		IdentityPath:             defaultIdentityPath(),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		AudioAutoPlay:            true,
	}

	if path := stringsTrimSpace("MEDIWAGON_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = strings.ToLower(envOrDefault("APP_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("APP_LOG_FORMAT", cfg.LogFormat))
	cfg.AuthBaseURL = strings.TrimRight(envOrDefault("MEDIWAGON_AUTH_URL", cfg.AuthBaseURL), "/")
	cfg.AgentBaseURL = strings.TrimRight(envOrDefault("MEDIWAGON_AGENT_URL", cfg.AgentBaseURL), "/")
	cfg.VoiceBaseURL = strings.TrimRight(envOrDefault("MEDIWAGON_VOICE_URL", cfg.VoiceBaseURL), "/")
	cfg.AudioOrigin = strings.TrimRight(envOrDefault("MEDIWAGON_AUDIO_ORIGIN", cfg.AudioOrigin), "/")
	if cfg.AudioOrigin == "" {
		cfg.AudioOrigin = cfg.VoiceBaseURL
	}
	cfg.DatabaseURL = stringsTrimSpace("DATABASE_URL")
	cfg.IdentityPath = envOrDefault("MEDIWAGON_IDENTITY_PATH", cfg.IdentityPath)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BackendTimeout, err = durationFromEnv("MEDIWAGON_BACKEND_TIMEOUT", cfg.BackendTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioAutoPlay, err = boolFromEnv("MEDIWAGON_AUDIO_AUTOPLAY", cfg.AudioAutoPlay)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultLat, err = floatFromEnv("MEDIWAGON_DEFAULT_LAT", cfg.DefaultLat)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultLon, err = floatFromEnv("MEDIWAGON_DEFAULT_LON", cfg.DefaultLon)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.BackendTimeout < 0 {
		return fmt.Errorf("MEDIWAGON_BACKEND_TIMEOUT must be >= 0")
	}
	for key, v := range map[string]string{
		"MEDIWAGON_AUTH_URL":  c.AuthBaseURL,
		"MEDIWAGON_AGENT_URL": c.AgentBaseURL,
		"MEDIWAGON_VOICE_URL": c.VoiceBaseURL,
	} {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			return fmt.Errorf("%s must be an http(s) URL, got %q", key, v)
		}
	}
	if c.DefaultLat < -90 || c.DefaultLat > 90 {
		return fmt.Errorf("MEDIWAGON_DEFAULT_LAT out of range")
	}
	if c.DefaultLon < -180 || c.DefaultLon > 180 {
		return fmt.Errorf("MEDIWAGON_DEFAULT_LON out of range")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("APP_LOG_FORMAT must be json or text")
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setIf := func(dst *string, v string) {
		if v = trimSpace(v); v != "" {
			*dst = v
		}
	}
	setIf(&cfg.BindAddr, fc.BindAddr)
	setIf(&cfg.LogLevel, fc.LogLevel)
	setIf(&cfg.LogFormat, fc.LogFormat)
	setIf(&cfg.AuthBaseURL, fc.AuthBaseURL)
	setIf(&cfg.AgentBaseURL, fc.AgentBaseURL)
	setIf(&cfg.VoiceBaseURL, fc.VoiceBaseURL)
	setIf(&cfg.AudioOrigin, fc.AudioOrigin)
	setIf(&cfg.IdentityPath, fc.IdentityPath)
	if v := trimSpace(fc.BackendTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("backend_timeout parse error: %w", err)
		}
		cfg.BackendTimeout = d
	}
	if fc.DefaultLat != nil {
		cfg.DefaultLat = *fc.DefaultLat
	}
	if fc.DefaultLon != nil {
		cfg.DefaultLon = *fc.DefaultLon
	}
	if fc.AudioAutoPlay != nil {
		cfg.AudioAutoPlay = *fc.AudioAutoPlay
	}
	return nil
}

func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".mediwagon", "identity.sqlite")
	}
	return filepath.Join(dir, "mediwagon", "identity.sqlite")
}

func envOrDefault(key, fallback string) string {
	v := trimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
