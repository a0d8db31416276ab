package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel          OTelConfig
	Redis         RedisConfig
	Realtime      RealtimeConfig
	ExtractionLLM LLMConfig
	Relay         RelayConfig
	Owner         OwnerConfig
	Mail          MailConfig
	Daily         DailyConfig
	DB            DBConfig
	Env           string
	Port          string
	PublicHost    string
	TimeZone      string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
}

type RedisConfig struct {
	URL                string
	ConversationPrefix string        // key prefix for persisted transcripts, e.g. "conversation:"
	TranscriptTTL      time.Duration // retention of a persisted transcript
	NotificationStream string
	NotificationGroup  string
	NotificationDLQ    string
	Consumer           string
}

// RealtimeConfig configures the conversational speech backend session.
type RealtimeConfig struct {
	APIKey       string
	URL          string
	Model        string
	Voice        string
	Instructions string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string // Optional: for custom endpoints
	Model   string
}

type RelayConfig struct {
	ReadTimeout         time.Duration // watchdog on both legs
	WriteTimeout        time.Duration
	PingInterval        time.Duration
	OutboundQueueSize   int
	BackpressureTimeout time.Duration // how long outbound audio may block before the call is degraded
	MaxFrameBytes       int64
	FinalizeTimeout     time.Duration
	NotifyTimeout       time.Duration
	DetectTimeout       time.Duration // conflict scan budget inside finalization
	HandshakeTimeout    time.Duration
}

// OwnerConfig describes the person the agent answers calls for.
type OwnerConfig struct {
	Name string
	Info string
}

type MailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       string
}

type DailyConfig struct {
	Hour   int
	Minute int
}

type DBConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the HTTP/media server
//   - .env.worker for the notification worker
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("BRIDGE_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	ownerName := getEnv("YOUR_NAME", "AI Assistant")

	cfg := Config{
		Env:        getEnv("BRIDGE_ENV", "development"),
		Port:       getEnv("PORT", "8000"),
		PublicHost: getEnv("PUBLIC_HOST", ""),
		TimeZone:   getEnv("TZ", "Local"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "callbridge-"+string(serviceType)),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
		},
		Redis: RedisConfig{
			URL:                getEnv("REDIS_URL", "redis://localhost:6379/0"),
			ConversationPrefix: getEnv("REDIS_CONVERSATION_PREFIX", "conversation:"),
			TranscriptTTL:      getEnvDuration("TRANSCRIPT_TTL", 24*time.Hour),
			NotificationStream: getEnv("REDIS_NOTIFICATION_STREAM", "call_notifications"),
			NotificationGroup:  getEnv("REDIS_NOTIFICATION_GROUP", "notifiers"),
			NotificationDLQ:    getEnv("REDIS_NOTIFICATION_DLQ", "call_notifications_dlq"),
			Consumer:           getEnv("REDIS_CONSUMER_NAME", string(serviceType)),
		},
		Realtime: RealtimeConfig{
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			URL:          getEnv("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
			Model:        getEnv("REALTIME_MODEL", "gpt-4o-realtime-preview"),
			Voice:        getEnv("REALTIME_VOICE", "alloy"),
			Instructions: getEnv("REALTIME_INSTRUCTIONS", ""),
		},
		ExtractionLLM: LLMConfig{
			APIKey:  getEnv("EXTRACTION_LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL: getEnv("EXTRACTION_LLM_BASE_URL", ""),
			Model:   getEnv("EXTRACTION_LLM_MODEL", "gpt-4o-mini"),
		},
		Relay: RelayConfig{
			ReadTimeout:         getEnvDuration("RELAY_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:        getEnvDuration("RELAY_WRITE_TIMEOUT", 5*time.Second),
			PingInterval:        getEnvDuration("RELAY_PING_INTERVAL", 20*time.Second),
			OutboundQueueSize:   getEnvInt("RELAY_OUTBOUND_QUEUE_SIZE", 256),
			BackpressureTimeout: getEnvDuration("RELAY_BACKPRESSURE_TIMEOUT", 2*time.Second),
			MaxFrameBytes:       int64(getEnvInt("RELAY_MAX_FRAME_BYTES", 1<<20)),
			FinalizeTimeout:     getEnvDuration("RELAY_FINALIZE_TIMEOUT", 60*time.Second),
			NotifyTimeout:       getEnvDuration("RELAY_NOTIFY_TIMEOUT", 5*time.Second),
			DetectTimeout:       getEnvDuration("RELAY_DETECT_TIMEOUT", 20*time.Second),
			HandshakeTimeout:    getEnvDuration("RELAY_HANDSHAKE_TIMEOUT", 10*time.Second),
		},
		Owner: OwnerConfig{
			Name: ownerName,
			Info: getEnv("USER_INFO", "No user info provided"),
		},
		Mail: MailConfig{
			SMTPHost: getEnv("SMTP_HOST", ""),
			SMTPPort: getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "noreply@callbridge.app"),
			To:       getEnv("NOTIFICATION_EMAIL", ""),
		},
		Daily: DailyConfig{
			Hour:   getEnvInt("DAILY_RESET_HOUR", 23),
			Minute: getEnvInt("DAILY_RESET_MINUTE", 59),
		},
		DB: DBConfig{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
	}

	if cfg.Daily.Hour < 0 || cfg.Daily.Hour > 23 || cfg.Daily.Minute < 0 || cfg.Daily.Minute > 59 {
		return Config{}, fmt.Errorf("DAILY_RESET_HOUR/DAILY_RESET_MINUTE out of range: %02d:%02d", cfg.Daily.Hour, cfg.Daily.Minute)
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	if serviceType == ServiceTypeServer && cfg.Realtime.APIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Location resolves TZ, the zone that defines "today" for conflict checks.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("loading TZ %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c MailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.To != ""
}

func (c DBConfig) Enabled() bool {
	return c.DSN != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
