// Package config loads runtime settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Role selects which variables are mandatory.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
	RoleDev    Role = "dev"
)

const (
	AIBackendTemplate = "template"
	AIBackendOpenAI   = "openai"

	ChannelModeMock = "mock"
	ChannelModeLive = "live"
)

type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type WhatsApp struct {
	AccessToken string
	PhoneID     string
	BaseURL     string
}

type Twilio struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type LinkedIn struct {
	AccessToken string
	BaseURL     string
}

type Ads struct {
	WebhookURL string
	APIKey     string
}

type AI struct {
	Backend       string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	// RateLimit is the number of backend calls allowed per RateWindow across all workers.
	RateLimit  int
	RateWindow time.Duration
}

type Queue struct {
	RetryLimit          int
	RetryDelay          time.Duration
	RetryBackoff        bool
	ExpireAfter         time.Duration
	RetainCompleted     time.Duration
	ActiveTimeout       time.Duration
	PollInterval        time.Duration
	MaintenanceInterval time.Duration

	SendTeamSize        int
	SendTeamConcurrency int
	AITeamSize          int
	AITeamConcurrency   int
}

type Config struct {
	Env      string
	LogLevel string
	Port     string
	// HTTPRateLimit is requests per minute per client on the lead API; 0 disables it.
	HTTPRateLimit int

	DatabaseURL   string
	RabbitMQURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChannelMode string
	SMTP        SMTP
	WhatsApp    WhatsApp
	Twilio      Twilio
	LinkedIn    LinkedIn
	Ads         Ads

	AI    AI
	Queue Queue
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// A missing .env is fine: production injects real environment variables.
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Env:      p.str("APP_ENV", "development"),
		LogLevel: p.str("LOG_LEVEL", "info"),
		Port:     p.str("PORT", "3000"),

		HTTPRateLimit: p.int("HTTP_RATE_LIMIT", 120),

		DatabaseURL:   p.str("DATABASE_URL", ""),
		RabbitMQURL:   p.str("RABBITMQ_URL", ""),
		RedisAddr:     p.str("REDIS_ADDR", ""),
		RedisPassword: p.str("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),

		ChannelMode: strings.ToLower(p.str("CHANNEL_MODE", ChannelModeMock)),
		SMTP: SMTP{
			Host:     p.str("MAIL_HOST", ""),
			Port:     p.int("MAIL_PORT", 587),
			User:     p.str("MAIL_USER", ""),
			Password: p.str("MAIL_PASS", ""),
			From:     p.str("MAIL_FROM", "no-reply@conduit.local"),
		},
		WhatsApp: WhatsApp{
			AccessToken: p.str("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneID:     p.str("WHATSAPP_PHONE_ID", ""),
			BaseURL:     p.str("WHATSAPP_BASE_URL", "https://graph.facebook.com/v18.0"),
		},
		Twilio: Twilio{
			AccountSID: p.str("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  p.str("TWILIO_AUTH_TOKEN", ""),
			FromNumber: p.str("TWILIO_PHONE_NUMBER", ""),
		},
		LinkedIn: LinkedIn{
			AccessToken: p.str("LINKEDIN_ACCESS_TOKEN", ""),
			BaseURL:     p.str("LINKEDIN_BASE_URL", "https://api.linkedin.com/v2"),
		},
		Ads: Ads{
			WebhookURL: p.str("ADS_WEBHOOK_URL", ""),
			APIKey:     p.str("ADS_API_KEY", ""),
		},

		AI: AI{
			OpenAIAPIKey:  p.str("OPENAI_API_KEY", ""),
			OpenAIModel:   p.str("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: p.str("OPENAI_BASE_URL", ""),
			RateLimit:     p.int("AI_RATE_LIMIT", 60),
			RateWindow:    p.duration("AI_RATE_WINDOW", time.Minute),
		},

		Queue: Queue{
			RetryLimit:          p.int("QUEUE_RETRY_LIMIT", 3),
			RetryDelay:          p.duration("QUEUE_RETRY_DELAY", time.Second),
			RetryBackoff:        p.bool("QUEUE_RETRY_BACKOFF", true),
			ExpireAfter:         p.duration("QUEUE_EXPIRE_AFTER", 24*time.Hour),
			RetainCompleted:     p.duration("QUEUE_RETAIN_COMPLETED", 7*24*time.Hour),
			ActiveTimeout:       p.duration("QUEUE_ACTIVE_TIMEOUT", 15*time.Minute),
			PollInterval:        p.duration("QUEUE_POLL_INTERVAL", time.Second),
			MaintenanceInterval: p.duration("QUEUE_MAINTENANCE_INTERVAL", time.Minute),

			SendTeamSize:        p.int("SEND_MESSAGE_TEAM_SIZE", 5),
			SendTeamConcurrency: p.int("SEND_MESSAGE_TEAM_CONCURRENCY", 1),
			AITeamSize:          p.int("AI_REPLY_TEAM_SIZE", 3),
			AITeamConcurrency:   p.int("AI_REPLY_TEAM_CONCURRENCY", 1),
		},
	}

	// The real backend is picked whenever a key is present, as before.
	defaultBackend := AIBackendTemplate
	if cfg.AI.OpenAIAPIKey != "" {
		defaultBackend = AIBackendOpenAI
	}
	cfg.AI.Backend = strings.ToLower(p.str("AI_BACKEND", defaultBackend))

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// Validate checks the variables a given process role cannot run without.
func (c *Config) Validate(role Role) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if role != RoleDev {
		require("DATABASE_URL", c.DatabaseURL)
	}
	if role == RoleWorker && c.AI.Backend == AIBackendOpenAI {
		require("OPENAI_API_KEY", c.AI.OpenAIAPIKey)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if c.AI.Backend != AIBackendTemplate && c.AI.Backend != AIBackendOpenAI {
		errs = append(errs, fmt.Errorf("AI_BACKEND must be %q or %q, got %q", AIBackendTemplate, AIBackendOpenAI, c.AI.Backend))
	}
	if c.ChannelMode != ChannelModeMock && c.ChannelMode != ChannelModeLive {
		errs = append(errs, fmt.Errorf("CHANNEL_MODE must be %q or %q, got %q", ChannelModeMock, ChannelModeLive, c.ChannelMode))
	}
	if c.Queue.RetryLimit < 1 {
		errs = append(errs, errors.New("QUEUE_RETRY_LIMIT must be at least 1"))
	}
	return errors.Join(errs...)
}

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
