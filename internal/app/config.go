package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/opengaia-backend/internal/data/cache"
	"github.com/yungbote/opengaia-backend/internal/modules/voice"
	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/elevenlabs"
	"github.com/yungbote/opengaia-backend/internal/platform/llm"
	"github.com/yungbote/opengaia-backend/internal/platform/objectstore"
	"github.com/yungbote/opengaia-backend/internal/platform/redisx"
)

// ConfigPathEnv names the optional YAML file layered between defaults and the environment.
const ConfigPathEnv = "OPENGAIA_CONFIG_PATH"

type Config struct {
	LogMode     string `yaml:"log_mode" env:"LOG_MODE"`
	PromptsPath string `yaml:"prompts_path" env:"PROMPTS_PATH"`

	HTTP       HTTPConfig       `yaml:"http"`
	LLM        LLMConfig        `yaml:"llm"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Portrait   PortraitConfig   `yaml:"portrait"`
	Otel       OtelConfig       `yaml:"otel"`

	// Voices extends the built-in voice registry. Keys are npc voice keys.
	Voices map[string]voice.Voice `yaml:"voices"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

type LLMConfig struct {
	BaseURL       string        `yaml:"base_url" env:"LLM_BASE_URL"`
	APIKey        string        `yaml:"api_key" env:"LLM_API_KEY"`
	WorldModel    string        `yaml:"world_model" env:"LLM_WORLD_MODEL"`
	DialogueModel string        `yaml:"dialogue_model" env:"LLM_DIALOGUE_MODEL"`
	BranchModel   string        `yaml:"branch_model" env:"LLM_BRANCH_MODEL"`
	ImageModel    string        `yaml:"image_model" env:"LLM_IMAGE_MODEL"`
	Timeout       time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
	MaxRetries    int           `yaml:"max_retries" env:"LLM_MAX_RETRIES"`
	// GenerateTimeout bounds one full world generation run.
	GenerateTimeout time.Duration `yaml:"generate_timeout" env:"WORLD_GENERATE_TIMEOUT"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	BibleTTL time.Duration `yaml:"bible_ttl" env:"BIBLE_CACHE_TTL"`
}

type DatabaseConfig struct {
	// URL is "postgres://..." or "sqlite:<path>". Empty disables persistence.
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type ElevenLabsConfig struct {
	BaseURL string        `yaml:"base_url" env:"ELEVENLABS_BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"ELEVENLABS_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"ELEVENLABS_TIMEOUT"`
}

type PortraitConfig struct {
	Bucket        string `yaml:"bucket" env:"PORTRAIT_BUCKET"`
	PublicBaseURL string `yaml:"public_base_url" env:"PORTRAIT_PUBLIC_BASE_URL"`
	EmulatorHost  string `yaml:"emulator_host" env:"STORAGE_EMULATOR_HOST"`
	Credentials   string `yaml:"credentials" env:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`
	MaxConcurrent int    `yaml:"max_concurrent" env:"PORTRAIT_MAX_CONCURRENT"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled" env:"OTEL_ENABLED"`
	ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Environment string  `yaml:"environment" env:"OTEL_ENVIRONMENT"`
	Version     string  `yaml:"version" env:"OTEL_SERVICE_VERSION"`
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Headers     string  `yaml:"headers" env:"OTEL_EXPORTER_OTLP_HEADERS"`
	Insecure    bool    `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_TRACES_SAMPLER_ARG"`
}

func DefaultConfig() Config {
	return Config{
		LogMode: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:         "https://api.mistral.ai",
			WorldModel:      "mistral-large-latest",
			DialogueModel:   "mistral-small-latest",
			BranchModel:     "magistral-medium-2506",
			ImageModel:      "flux-pro",
			Timeout:         120 * time.Second,
			MaxRetries:      2,
			GenerateTimeout: 4 * time.Minute,
		},
		Redis: RedisConfig{
			BibleTTL: cache.DefaultBibleTTL,
		},
		ElevenLabs: ElevenLabsConfig{
			BaseURL: "https://api.elevenlabs.io",
			Timeout: 30 * time.Second,
		},
		Portrait: PortraitConfig{
			MaxConcurrent: 4,
		},
		Otel: OtelConfig{
			ServiceName: "opengaia",
			SampleRatio: 1,
		},
	}
}

// LoadConfig reads the process environment.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(env.ToMap(os.Environ()))
}

// LoadConfigFrom layers the YAML file named by ConfigPathEnv (if any) and then the given
// environment over DefaultConfig.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	cfg := DefaultConfig()

	if path := strings.TrimSpace(environ[ConfigPathEnv]); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogMode = strings.TrimSpace(c.LogMode)
	c.HTTP.Addr = strings.TrimSpace(c.HTTP.Addr)
	origins := make([]string, 0, len(c.HTTP.CORSOrigins))
	for _, o := range c.HTTP.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.HTTP.CORSOrigins = origins
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	c.ElevenLabs.APIKey = strings.TrimSpace(c.ElevenLabs.APIKey)
	c.Portrait.Bucket = strings.TrimSpace(c.Portrait.Bucket)
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http addr required"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http shutdown timeout must be positive"))
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm base url required"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("llm max retries must not be negative"))
	}
	if c.Redis.BibleTTL <= 0 {
		errs = append(errs, errors.New("bible cache ttl must be positive"))
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("otel sample ratio %v outside [0,1]", c.Otel.SampleRatio))
	}
	for key, v := range c.Voices {
		if strings.TrimSpace(v.VoiceID) == "" {
			errs = append(errs, fmt.Errorf("voice %q: voice_id required", key))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) llmClientConfig() llm.Config {
	return llm.Config{
		BaseURL:    c.LLM.BaseURL,
		APIKey:     c.LLM.APIKey,
		Timeout:    c.LLM.Timeout,
		MaxRetries: c.LLM.MaxRetries,
	}
}

func (c Config) redisConfig() redisx.Config {
	return redisx.Config{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB}
}

func (c Config) objectStoreConfig() objectstore.Config {
	return objectstore.Config{
		Bucket:        c.Portrait.Bucket,
		PublicBaseURL: c.Portrait.PublicBaseURL,
		EmulatorHost:  c.Portrait.EmulatorHost,
		Credentials:   c.Portrait.Credentials,
	}
}

func (c Config) elevenLabsConfig() elevenlabs.Config {
	return elevenlabs.Config{
		BaseURL: c.ElevenLabs.BaseURL,
		APIKey:  c.ElevenLabs.APIKey,
		Timeout: c.ElevenLabs.Timeout,
	}
}

func (c Config) otelConfig() observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Otel.Enabled,
		ServiceName: c.Otel.ServiceName,
		Environment: c.Otel.Environment,
		Version:     c.Otel.Version,
		Endpoint:    c.Otel.Endpoint,
		Headers:     c.Otel.Headers,
		Insecure:    c.Otel.Insecure,
		SampleRatio: c.Otel.SampleRatio,
	}
}

func (c Config) voiceRegistry() map[string]voice.Voice {
	if len(c.Voices) == 0 {
		return nil
	}
	out := make(map[string]voice.Voice, len(c.Voices))
	for k, v := range c.Voices {
		out[strings.TrimSpace(k)] = voice.Voice{VoiceID: strings.TrimSpace(v.VoiceID), Model: strings.TrimSpace(v.Model)}
	}
	return out
}
