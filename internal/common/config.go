package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Matcher     MatcherConfig   `toml:"matcher"`
	Upload      UploadConfig    `toml:"upload"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Email       EmailConfig     `toml:"email"`
	Janitor     JanitorConfig   `toml:"janitor"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// QueueConfig controls the job scheduler.
type QueueConfig struct {
	MaxConcurrent int    `toml:"max_concurrent" validate:"gte=1"` // Worker parallelism
	PollInterval  string `toml:"poll_interval"`                   // e.g. "1s" - delay between empty claims
	MaxAttempts   int    `toml:"max_attempts" validate:"gte=1"`   // Attempt budget per job
	JobTimeout    string `toml:"job_timeout"`                     // Hard per-job timeout; "" = unbounded
}

// PipelineConfig controls the extraction cascade.
type PipelineConfig struct {
	MinConfidenceLocal  float64 `toml:"min_confidence_local" validate:"gte=0,lte=1"`
	MinConfidenceCloud  float64 `toml:"min_confidence_cloud" validate:"gte=0,lte=1"`
	EnablePreprocessing bool    `toml:"enable_preprocessing"`
	EnableCloudOCR      bool    `toml:"enable_cloud_ocr"`
	EnableVision        bool    `toml:"enable_vision"`
	CloudOCREndpoint    string  `toml:"cloud_ocr_endpoint"`
	CloudOCRTimeout     string  `toml:"cloud_ocr_timeout"` // Per-call timeout
	LocalOCRCommand     string  `toml:"local_ocr_command"` // Primary local recognizer binary
	LocalOCRFallback    string  `toml:"local_ocr_fallback"`
	TempDir             string  `toml:"temp_dir"`
}

// MatcherConfig controls the requirement-to-attestation matcher.
type MatcherConfig struct {
	MinSimilarity       float64 `toml:"min_similarity" validate:"gte=0,lte=1"`
	MinCommonWords      int     `toml:"min_common_words" validate:"gte=1"`
	MinCommonWordsShort int     `toml:"min_common_words_short" validate:"gte=1"`
}

// UploadConfig controls the upload boundary.
type UploadConfig struct {
	MaxUploadBytes int64  `toml:"max_upload_bytes" validate:"gt=0"`
	UploadDir      string `toml:"upload_dir" validate:"required"`
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs
	MinEventLevel string   `toml:"min_event_level"` // Minimum level to publish as UI events
}

// WebSocketConfig contains configuration for WebSocket progress streaming
type WebSocketConfig struct {
	// ThrottleIntervals maps event type to a duration string; progress events
	// arriving faster are coalesced, newest superseding.
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
	AllowedEvents     []string          `toml:"allowed_events"` // Whitelist; empty allows all
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default: "gemini-3-flash-preview"
	Timeout     string  `toml:"timeout"`     // Operation timeout (default: "2m")
	Temperature float32 `toml:"temperature"` // default: 0.1 for extraction
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"` // default: "claude-haiku-3-5-20241022"
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// LLMConfig selects the structured-extraction provider.
type LLMConfig struct {
	Provider string `toml:"provider" validate:"omitempty,oneof=gemini claude"` // default: "gemini"
}

// EmailConfig configures the IMAP attachment intake connector.
type EmailConfig struct {
	Enabled      bool   `toml:"enabled"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	Mailbox      string `toml:"mailbox"`       // default: "INBOX"
	PollInterval string `toml:"poll_interval"` // default: "5m"
	IntakeUserID string `toml:"intake_user_id"`
}

// JanitorConfig configures scheduled maintenance.
type JanitorConfig struct {
	Enabled bool `toml:"enabled"`
	// Schedule is a cron expression; default re-queues stale processing jobs
	// and sweeps the temp dir every 10 minutes.
	Schedule       string `toml:"schedule"`
	StaleThreshold string `toml:"stale_threshold"` // default: "30m"
}

// NewDefaultConfig returns the built-in defaults; config files and env
// overrides layer on top.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Port: 8085, Host: "localhost"},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/attesto"},
		},
		Queue: QueueConfig{
			MaxConcurrent: 3,
			PollInterval:  "1s",
			MaxAttempts:   3,
		},
		Pipeline: PipelineConfig{
			MinConfidenceLocal:  0.70,
			MinConfidenceCloud:  0.85,
			EnablePreprocessing: true,
			EnableCloudOCR:      true,
			EnableVision:        true,
			CloudOCRTimeout:     "30s",
			LocalOCRCommand:     "tesseract",
			TempDir:             os.TempDir(),
		},
		Matcher: MatcherConfig{
			MinSimilarity:       0.35,
			MinCommonWords:      2,
			MinCommonWordsShort: 1,
		},
		Upload: UploadConfig{
			MaxUploadBytes: 10 * 1024 * 1024,
			UploadDir:      "./data/uploads",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout"},
			TimeFormat:    "15:04:05",
			MinEventLevel: "info",
		},
		Gemini: GeminiConfig{Model: "gemini-3-flash-preview", Timeout: "2m", Temperature: 0.1},
		Claude: ClaudeConfig{Model: "claude-haiku-3-5-20241022", MaxTokens: 8192, Timeout: "2m", Temperature: 0.1},
		LLM:    LLMConfig{Provider: "gemini"},
		Email:  EmailConfig{Port: 993, Mailbox: "INBOX", PollInterval: "5m"},
		Janitor: JanitorConfig{
			Enabled:        true,
			Schedule:       "*/10 * * * *",
			StaleThreshold: "30m",
		},
	}
}

// LoadFromFiles loads configuration from default values, then applies each
// TOML file in order (later files override earlier ones), then environment
// overrides, then validates.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ATTESTO_ENV"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("ATTESTO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ATTESTO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("ATTESTO_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("ATTESTO_UPLOAD_DIR"); dir != "" {
		config.Upload.UploadDir = dir
	}
	if v := os.Getenv("ATTESTO_QUEUE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.MaxConcurrent = n
		}
	}
	if v := os.Getenv("ATTESTO_QUEUE_POLL_INTERVAL"); v != "" {
		config.Queue.PollInterval = v
	}
	if v := os.Getenv("ATTESTO_QUEUE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.MaxAttempts = n
		}
	}
	if level := os.Getenv("ATTESTO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if provider := os.Getenv("ATTESTO_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
}

// PollIntervalDuration parses the queue poll interval with a 1s fallback.
func (q *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(q.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// JobTimeoutDuration parses the hard per-job timeout; zero means unbounded.
func (q *QueueConfig) JobTimeoutDuration() time.Duration {
	if q.JobTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(q.JobTimeout)
	if err != nil {
		return 0
	}
	return d
}
