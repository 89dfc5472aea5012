package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     int `env:"PORT" env-default:"5000"`
	GRPCPort int `env:"GRPC_PORT" env-default:"0"`

	Database    DatabaseConfig    `env-prefix:"DB_"`
	Soniox      SonioxConfig      `env-prefix:"SONIOX_"`
	OpenAI      OpenAIConfig      `env-prefix:"OPENAI_"`
	Translation TranslationConfig `env-prefix:"TRANSLATION_"`

	VTTWordsPerCue int           `env:"VTT_WORDS_PER_CUE" env-default:"6"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" env-default:"1s"`
	WatchJobs      bool          `env:"WATCH_JOBS" env-default:"false"`
	WatchTimeout   time.Duration `env:"WATCH_TIMEOUT" env-default:"30m"`

	CORSOrigins []string `env:"CORS_ORIGINS" env-default:"*" env-separator:","`
	LogLevel    string   `env:"LOG_LEVEL" env-default:"debug"`
	LogJSON     bool     `env:"LOG_JSON" env-default:"false"`
}

type DatabaseConfig struct {
	Driver string `env:"DRIVER" env-default:"sqlite"`
	DSN    string `env:"DSN" env-default:"transcriptions.db"`
}

type SonioxConfig struct {
	APIKey  string `env:"API_KEY" env-required:"true"`
	BaseURL string `env:"BASE_URL" env-default:"https://api.soniox.com"`
	Model   string `env:"MODEL" env-default:"stt-async-preview"`
}

// OpenAIConfig is optional. Without an API key automatic translation is
// disabled and manual translations still work.
type OpenAIConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL"`
	Model   string `env:"MODEL" env-default:"gpt-4o-mini"`
}

type TranslationConfig struct {
	BatchSize   int `env:"BATCH_SIZE" env-default:"40"`
	Concurrency int `env:"CONCURRENCY" env-default:"1"`
	RatePerMin  int `env:"RATE_PER_MIN" env-default:"60"`
	ChunkChars  int `env:"CHUNK_CHARS" env-default:"6000"`
}

// Load reads an optional .env file from the working directory, then the
// process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func (c *Config) TranslationEnabled() bool {
	return c.OpenAI.APIKey != ""
}
