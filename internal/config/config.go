package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported language backends
const (
	BackendOpenAI       = "openai"
	BackendOrchestrator = "orchestrator"
)

// Supported speech providers
const (
	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderPolly      = "polly"
)

// Config holds all configuration for the reply gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Language backend selection: openai or orchestrator
	Backend        string `envconfig:"BACKEND" default:"openai"`
	BackendTimeout int    `envconfig:"BACKEND_TIMEOUT" default:"30"` // seconds

	// OpenAI chat completions backend
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel        string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL" default:""` // Empty uses the public API
	OpenAISystemPrompt string `envconfig:"OPENAI_SYSTEM_PROMPT" default:"You are a helpful company assistant. Answer concisely."`

	// Cognitive Orchestrator gRPC endpoint
	OrchestratorURL        string `envconfig:"ORCHESTRATOR_URL" default:"localhost:50051"`
	OrchestratorTLSEnabled bool   `envconfig:"ORCHESTRATOR_TLS_ENABLED" default:"false"`
	OrchestratorTimeout    int    `envconfig:"ORCHESTRATOR_TIMEOUT" default:"30"` // seconds

	// Speech provider selection: elevenlabs or polly
	TTSProvider       string `envconfig:"TTS_PROVIDER" default:"elevenlabs"`
	TTSTimeoutMs      int    `envconfig:"TTS_TIMEOUT_MS" default:"10000"`
	TTSMaxChars       int    `envconfig:"TTS_MAX_CHARS" default:"2500"`
	TTSMinChars       int    `envconfig:"TTS_MIN_CHARS" default:"5"`
	TTSDefaultEnabled bool   `envconfig:"TTS_DEFAULT_ENABLED" default:"true"`

	// ElevenLabs TTS API configuration
	ElevenLabsAPIKey  string `envconfig:"ELEVENLABS_API_KEY" default:""`
	ElevenLabsBaseURL string `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io/v1/text-to-speech"`
	ElevenLabsModelID string `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_turbo_v2"`

	// Amazon Polly configuration (credentials come from the default AWS chain)
	PollyRegion string `envconfig:"POLLY_REGION" default:"us-east-1"`
	PollyVoice  string `envconfig:"POLLY_VOICE" default:"Joanna"`
	PollyEngine string `envconfig:"POLLY_ENGINE" default:"neural"`

	// Voice defaults
	DefaultVoiceID   string `envconfig:"DEFAULT_VOICE_ID" default:"EXAVITQu4vr4xnSDxMaL"`
	DefaultVoiceName string `envconfig:"DEFAULT_VOICE_NAME" default:"Rachel"`
	VoiceCatalogPath string `envconfig:"VOICE_CATALOG_PATH" default:""` // Optional YAML voice list

	// Response composition
	SummaryThreshold int `envconfig:"SUMMARY_THRESHOLD" default:"400"` // Characters before spoken summary kicks in

	// Stream encoding
	StreamChunkSize int    `envconfig:"STREAM_CHUNK_SIZE" default:"100"`
	BlockMarkupTags string `envconfig:"BLOCK_MARKUP_TAGS" default:"div,button,table,ul,ol,section,article,form,p,h1,h2,h3,h4,h5,h6,iframe"`

	// Conversation log
	ConversationLogEnabled bool   `envconfig:"CONVERSATION_LOG_ENABLED" default:"true"`
	ConversationDBPath     string `envconfig:"CONVERSATION_DB_PATH" default:"data/conversations.db"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Conversation log write attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the provider-specific required fields and value ranges
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when BACKEND=%s", BackendOpenAI)
		}
	case BackendOrchestrator:
		if c.OrchestratorURL == "" {
			return fmt.Errorf("ORCHESTRATOR_URL is required when BACKEND=%s", BackendOrchestrator)
		}
	default:
		return fmt.Errorf("unsupported BACKEND %q", c.Backend)
	}

	switch c.TTSProvider {
	case TTSProviderElevenLabs:
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=%s", TTSProviderElevenLabs)
		}
	case TTSProviderPolly:
	default:
		return fmt.Errorf("unsupported TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.SummaryThreshold < 300 || c.SummaryThreshold > 500 {
		return fmt.Errorf("SUMMARY_THRESHOLD must be between 300 and 500, got %d", c.SummaryThreshold)
	}
	if c.StreamChunkSize <= 0 {
		return fmt.Errorf("STREAM_CHUNK_SIZE must be positive, got %d", c.StreamChunkSize)
	}
	if c.TTSMaxChars <= 0 {
		return fmt.Errorf("TTS_MAX_CHARS must be positive, got %d", c.TTSMaxChars)
	}

	return nil
}

// BackendTimeoutDuration returns the language backend deadline
func (c *Config) BackendTimeoutDuration() time.Duration {
	return time.Duration(c.BackendTimeout) * time.Second
}

// TTSTimeout returns the bounded wait for one synthesis call
func (c *Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTSTimeoutMs) * time.Millisecond
}

// BlockTags returns the configured block-level tag names, lower-cased
func (c *Config) BlockTags() []string {
	var tags []string
	for _, tag := range strings.Split(c.BlockMarkupTags, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
