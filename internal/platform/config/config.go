package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	QueueRedis  = "redis"
	QueueMemory = "memory"

	EngineNone       = "none"
	EngineOpenAI     = "openai"
	EngineWhisperCLI = "whisper-cli"
	EngineGemini     = "gemini"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string
	SQLitePath string

	QueueBackend      string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	JobQueueName      string
	JobLockPrefix     string
	JobLockTTLSeconds int
	WorkerConcurrency int
	StaleJobTimeout   time.Duration // Zero disables the reaper

	MediaRoot           string
	MaxUploadBytes      int64
	AllowedAudioFormats []string
	AllowedVideoFormats []string

	STTEngine             string
	WhisperModel          string
	WhisperDevice         string
	WhisperBinary         string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModelTranscribe string
	OpenAIModelSummary    string

	TextGenEngine string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	LogLevel  string
	LogFormat string
}

var AppConfig *Config

// Load reads the environment (and an optional .env file) into AppConfig.
func Load() error {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, relying on environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// FromEnv builds a Config from the current process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		JWTKey:                []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:                time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBDriver:              strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "user"),
		DBPassword:            getEnv("DB_PASSWORD", "password"),
		DBName:                getEnv("DB_NAME", "noteflow_db"),
		DBSslMode:             getEnv("DB_SSLMODE", "disable"),
		SQLitePath:            getEnv("SQLITE_PATH", "noteflow.db"),
		QueueBackend:          strings.ToLower(getEnv("QUEUE_BACKEND", QueueRedis)),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		JobQueueName:          getEnv("JOB_QUEUE_NAME", "noteflow_jobs_queue"),
		JobLockPrefix:         getEnv("JOB_LOCK_PREFIX", "noteflow_job_lock"),
		JobLockTTLSeconds:     getEnvAsInt("JOB_LOCK_TTL_SECONDS", 3600),
		WorkerConcurrency:     getEnvAsInt("WORKER_CONCURRENCY", 2),
		StaleJobTimeout:       time.Duration(getEnvAsInt("STALE_JOB_TIMEOUT_SECONDS", 0)) * time.Second,
		MediaRoot:             getEnv("MEDIA_ROOT", "media"),
		AllowedAudioFormats:   getEnvAsList("ALLOWED_AUDIO_FORMATS", []string{"mp3", "wav", "m4a", "flac", "ogg"}),
		AllowedVideoFormats:   getEnvAsList("ALLOWED_VIDEO_FORMATS", []string{"mp4", "avi", "mov", "mkv", "webm"}),
		STTEngine:             strings.ToLower(getEnv("STT_ENGINE", EngineOpenAI)),
		WhisperModel:          getEnv("WHISPER_MODEL", "base"),
		WhisperDevice:         getEnv("WHISPER_DEVICE", "cpu"),
		WhisperBinary:         getEnv("WHISPER_BINARY", "whisper"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModelTranscribe: getEnv("OPENAI_MODEL_TRANSCRIBE", "whisper-1"),
		OpenAIModelSummary:    getEnv("OPENAI_MODEL_SUMMARY", "gpt-4o-mini"),
		TextGenEngine:         strings.ToLower(getEnv("TEXTGEN_ENGINE", EngineGemini)),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:         getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	maxUpload, err := humanize.ParseBytes(getEnv("MAX_UPLOAD_SIZE", "100MB"))
	if err != nil {
		return nil, fmt.Errorf("parse MAX_UPLOAD_SIZE: %w", err)
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if !lo.Contains([]string{DriverPostgres, DriverSQLite}, cfg.DBDriver) {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if !lo.Contains([]string{QueueRedis, QueueMemory}, cfg.QueueBackend) {
		return nil, fmt.Errorf("unsupported QUEUE_BACKEND %q", cfg.QueueBackend)
	}
	if !lo.Contains([]string{EngineOpenAI, EngineWhisperCLI, EngineNone}, cfg.STTEngine) {
		return nil, fmt.Errorf("unsupported STT_ENGINE %q", cfg.STTEngine)
	}
	if !lo.Contains([]string{EngineGemini, EngineOpenAI, EngineNone}, cfg.TextGenEngine) {
		return nil, fmt.Errorf("unsupported TEXTGEN_ENGINE %q", cfg.TextGenEngine)
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	cfg.DBConnStr = "host=" + cfg.DBHost +
		" port=" + cfg.DBPort +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPassword +
		" dbname=" + cfg.DBName +
		" sslmode=" + cfg.DBSslMode

	return cfg, nil
}

// AllowedExtensions returns every accepted upload extension with a leading dot.
func (c *Config) AllowedExtensions() []string {
	all := append(append([]string{}, c.AllowedAudioFormats...), c.AllowedVideoFormats...)
	return lo.Map(all, func(ext string, _ int) string {
		return "." + strings.TrimPrefix(strings.ToLower(ext), ".")
	})
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	values := lo.Compact(lo.Map(strings.Split(raw, ","), func(part string, _ int) string {
		return strings.TrimSpace(part)
	}))
	if len(values) == 0 {
		return fallback
	}
	return values
}
