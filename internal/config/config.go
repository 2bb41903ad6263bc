package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Models     ModelsConfig     `mapstructure:"models"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	StaticDir    string        `mapstructure:"static_dir"`
}

// OpenRouterConfig holds everything the completion forwarder needs.
// APIKey may be empty; the forwarder reports that per request.
type OpenRouterConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	PublicURL         string        `mapstructure:"public_url"`
	AppTitle          string        `mapstructure:"app_title"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`
}

type ModelsConfig struct {
	Available []string `mapstructure:"available"`
	Default   string   `mapstructure:"default"`
	// Strict rejects chat requests naming a model outside Available.
	Strict bool `mapstructure:"strict"`
}

type SecurityConfig struct {
	APIKey         string   `mapstructure:"api_key"`
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Output        string `mapstructure:"output"`
	ConsoleOutput bool   `mapstructure:"console_output"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"`
	Compress      bool   `mapstructure:"compress"`
}

// DefaultFreeModels is the OpenRouter free tier offered when no model list is configured.
var DefaultFreeModels = []string{
	"nvidia/nemotron-3-nano-30b-a3b:free",
	"google/gemma-3n-e2b-it:free",
	"arcee-ai/trinity-large-preview:free",
	"liquid/lfm-2.5-1.2b-instruct:free",
}

const (
	DefaultModel     = "nvidia/nemotron-3-nano-30b-a3b:free"
	DefaultBaseURL   = "https://openrouter.ai/api/v1"
	DefaultPublicURL = "http://localhost:3000"
)

// BindEnv wires the environment variable names used by deployments of the
// chat app onto config keys. Keys present in the config file can also be
// overridden through AutomaticEnv, e.g. SERVER_HOST for server.host.
func BindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("openrouter.public_url", "PUBLIC_APP_URL", "NEXT_PUBLIC_APP_URL", "VITE_API_URL")
	v.BindEnv("openrouter.base_url", "OPENROUTER_BASE_URL")
	v.BindEnv("server.port", "PORT", "SERVER_PORT")
	v.BindEnv("security.api_key", "CHAT_API_KEY")
	v.BindEnv("logging.level", "LOG_LEVEL")
}

// Load loads the configuration from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetDefault("security.enable_cors", true)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	cfg := &Config{Security: SecurityConfig{EnableCORS: true}}
	setDefaults(cfg)
	return cfg
}

// WriteDefault writes a default configuration file to path. The OpenRouter
// credential is left empty so it is never persisted from the environment.
func WriteDefault(path string) error {
	cfg := Default()

	v := viper.New()
	v.Set("server", map[string]interface{}{
		"host":          cfg.Server.Host,
		"port":          cfg.Server.Port,
		"mode":          cfg.Server.Mode,
		"read_timeout":  cfg.Server.ReadTimeout.String(),
		"write_timeout": cfg.Server.WriteTimeout.String(),
		"static_dir":    cfg.Server.StaticDir,
	})
	v.Set("openrouter", map[string]interface{}{
		"api_key":             "",
		"base_url":            cfg.OpenRouter.BaseURL,
		"public_url":          cfg.OpenRouter.PublicURL,
		"app_title":           cfg.OpenRouter.AppTitle,
		"temperature":         cfg.OpenRouter.Temperature,
		"max_tokens":          cfg.OpenRouter.MaxTokens,
		"request_timeout":     cfg.OpenRouter.RequestTimeout.String(),
		"stream_idle_timeout": cfg.OpenRouter.StreamIdleTimeout.String(),
	})
	v.Set("models", map[string]interface{}{
		"available": cfg.Models.Available,
		"default":   cfg.Models.Default,
		"strict":    cfg.Models.Strict,
	})
	v.Set("security", map[string]interface{}{
		"api_key":         "",
		"enable_cors":     cfg.Security.EnableCORS,
		"allowed_origins": cfg.Security.AllowedOrigins,
	})
	v.Set("logging", map[string]interface{}{
		"level":       cfg.Logging.Level,
		"format":      cfg.Logging.Format,
		"output":      cfg.Logging.Output,
		"max_size":    cfg.Logging.MaxSize,
		"max_backups": cfg.Logging.MaxBackups,
		"max_age":     cfg.Logging.MaxAge,
		"compress":    cfg.Logging.Compress,
	})

	return v.WriteConfigAs(path)
}

func setDefaults(cfg *Config) {
	// server
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	// zero means no write deadline; streamed replies can outlive any fixed value
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = "./dist/client"
	}

	// upstream
	if cfg.OpenRouter.BaseURL == "" {
		cfg.OpenRouter.BaseURL = DefaultBaseURL
	}
	cfg.OpenRouter.BaseURL = strings.TrimRight(cfg.OpenRouter.BaseURL, "/")
	if cfg.OpenRouter.PublicURL == "" {
		cfg.OpenRouter.PublicURL = DefaultPublicURL
	}
	if cfg.OpenRouter.AppTitle == "" {
		cfg.OpenRouter.AppTitle = "Chatbot App"
	}
	if cfg.OpenRouter.Temperature == 0 {
		cfg.OpenRouter.Temperature = 0.7
	}
	if cfg.OpenRouter.MaxTokens == 0 {
		cfg.OpenRouter.MaxTokens = 1024
	}
	if cfg.OpenRouter.RequestTimeout == 0 {
		cfg.OpenRouter.RequestTimeout = 120 * time.Second
	}
	if cfg.OpenRouter.StreamIdleTimeout == 0 {
		cfg.OpenRouter.StreamIdleTimeout = 60 * time.Second
	}

	// models
	if len(cfg.Models.Available) == 0 {
		cfg.Models.Available = append([]string(nil), DefaultFreeModels...)
	}
	if cfg.Models.Default == "" {
		cfg.Models.Default = DefaultModel
		if !contains(cfg.Models.Available, DefaultModel) {
			cfg.Models.Default = cfg.Models.Available[0]
		}
	}

	// security
	if len(cfg.Security.AllowedOrigins) == 0 {
		cfg.Security.AllowedOrigins = []string{"*"}
	}

	// logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "logs/llm-wrapper.log"
	}
	// Console output enabled by default
	cfg.Logging.ConsoleOutput = true
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 10
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if !contains(cfg.Models.Available, cfg.Models.Default) {
		return fmt.Errorf("default model %q is not in the available models", cfg.Models.Default)
	}
	if cfg.OpenRouter.MaxTokens < 0 {
		return fmt.Errorf("invalid max_tokens: %d", cfg.OpenRouter.MaxTokens)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
