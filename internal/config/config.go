package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string
	DBDSN    string

	// Auth is enabled only when both are set.
	JWTSecret         string
	AdminPasswordHash string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	// AI providers
	DefaultProvider string
	OllamaBaseURL   string
	OllamaModel     string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	OpenAIModel     string
	ReviewerModel   string
	GeminiAPIKey    string
	GeminiModel     string
	TurnTimeout     time.Duration

	// storage directories
	ProfilesDir    string
	DocsDir        string
	TranscriptsDir string
	UsageDir       string

	LogLevel string
	LogDev   bool

	User UserConfig
}

// UserConfig describes the human player when a session does not say otherwise.
type UserConfig struct {
	Name          string   `yaml:"name"`
	Nicknames     []string `yaml:"nicknames"`
	DefaultPlayer string   `yaml:"default_player"`
}

// fileConfig is the optional YAML overlay. Environment variables win over it.
type fileConfig struct {
	User UserConfig `yaml:"user"`
	Dirs struct {
		Profiles    string `yaml:"profiles"`
		Docs        string `yaml:"docs"`
		Transcripts string `yaml:"transcripts"`
		Usage       string `yaml:"usage"`
	} `yaml:"dirs"`
	Provider string `yaml:"provider"`
}

func Load() (Config, error) {
	// optional .env in the working directory
	_ = godotenv.Load()

	fc, err := readFile(getEnv("RPG_CONFIG", "config.yaml"))
	if err != nil {
		return Config{}, err
	}

	turnTimeout := 90 * time.Second
	if v := os.Getenv("TURN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			turnTimeout = d
		}
	}

	provider := getEnv("AI_PROVIDER", fc.Provider)
	if provider == "" {
		provider = "mock"
	}

	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":4000"),
		DBDSN:    getEnv("DB_DSN", "rpg.sqlite"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       getEnv("RABBIT_QUEUE", "turn_jobs"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),

		DefaultProvider: provider,
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.1:8b-instruct-q4_K_M"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ReviewerModel:   getEnv("REVIEWER_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		TurnTimeout:     turnTimeout,

		ProfilesDir:    getEnv("PROFILES_DIR", or(fc.Dirs.Profiles, "profiles")),
		DocsDir:        getEnv("DOCS_DIR", or(fc.Dirs.Docs, "docs")),
		TranscriptsDir: getEnv("TRANSCRIPTS_DIR", or(fc.Dirs.Transcripts, "transcripts")),
		UsageDir:       getEnv("USAGE_DIR", or(fc.Dirs.Usage, "usage")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDev:   getEnvBool("LOG_DEV", false),

		User: fc.User,
	}, nil
}

// AuthEnabled reports whether routes should require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fc, nil
		}
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
