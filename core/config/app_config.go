package config

import (
	"time"

	"go.uber.org/fx"
)

// AppConfig holds the application configuration, built once at startup and
// threaded through fx as a singleton.
type AppConfig struct {
	Port        string
	ServiceID   string
	SentryDSN   string
	Environment string
	ServiceName string
	BaseURL     string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBDriver   string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	BusConnection string

	LLMAPIKey  string
	LLMBaseURL string

	ImageModelAPIKey  string
	ImageModelBaseURL string

	ImageHostClientID     string
	ImageHostClientSecret string
	ImageHostBaseURL      string

	SocialBaseURL      string
	SocialClientID     string
	SocialClientSecret string
	SocialUserAgent    string
	SocialUsername     string
	SocialPassword     string

	AffiliateID             string
	AffiliateProductBaseURL string

	PaymentSecretKey      string
	PaymentPublishableKey string
	PaymentWebhookSecret  string
	PaymentBaseURL        string

	WorkerConcurrency int
	LeaseTTL          time.Duration
	AgentPeriod       time.Duration
	AgentDryRun       bool

	AgentDedupWindow            time.Duration
	AgentRateLimitPerHour       int
	AgentRateLimitBurst         int
	AgentScoreThreshold         int
	AgentMaxConsecutiveFailures int

	MaxTaskAttempts int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration

	PromptVersion string
}

// NewAppConfig creates and returns a new AppConfig instance.
func NewAppConfig() *AppConfig {
	// Load environment variables from .env file
	LoadEnvVars()

	return &AppConfig{
		Port:        EnvPort(),
		ServiceID:   EnvServiceID(),
		SentryDSN:   EnvSentryDSN(),
		Environment: EnvironmentConfig(),
		ServiceName: EnvServiceName(),
		BaseURL:     EnvBaseURL(),

		DBHost:     EnvDBHost(),
		DBPort:     EnvDBPort(),
		DBUser:     EnvDBUser(),
		DBPassword: EnvDBPassword(),
		DBName:     EnvDBName(),
		DBDriver:   EnvDBDriver(),

		RedisHost:     EnvRedisHost(),
		RedisPort:     EnvRedisPort(),
		RedisPassword: EnvRedisPassword(),
		RedisDB:       EnvRedisDB(),

		BusConnection: EnvBusConnection(),

		LLMAPIKey:  EnvLLMAPIKey(),
		LLMBaseURL: EnvLLMBaseURL(),

		ImageModelAPIKey:  EnvImageModelAPIKey(),
		ImageModelBaseURL: EnvImageModelBaseURL(),

		ImageHostClientID:     EnvImageHostClientID(),
		ImageHostClientSecret: EnvImageHostClientSecret(),
		ImageHostBaseURL:      EnvImageHostBaseURL(),

		SocialBaseURL:      EnvSocialBaseURL(),
		SocialClientID:     EnvSocialClientID(),
		SocialClientSecret: EnvSocialClientSecret(),
		SocialUserAgent:    EnvSocialUserAgent(),
		SocialUsername:     EnvSocialUsername(),
		SocialPassword:     EnvSocialPassword(),

		AffiliateID:             EnvAffiliateID(),
		AffiliateProductBaseURL: EnvAffiliateProductBaseURL(),

		PaymentSecretKey:      EnvPaymentSecretKey(),
		PaymentPublishableKey: EnvPaymentPublishableKey(),
		PaymentWebhookSecret:  EnvPaymentWebhookSecret(),
		PaymentBaseURL:        EnvPaymentBaseURL(),

		WorkerConcurrency: EnvWorkerConcurrency(),
		LeaseTTL:          EnvLeaseTTL(),
		AgentPeriod:       EnvAgentPeriod(),
		AgentDryRun:       EnvAgentDryRun(),

		AgentDedupWindow:            EnvAgentDedupWindow(),
		AgentRateLimitPerHour:       EnvAgentRateLimitPerHour(),
		AgentRateLimitBurst:         EnvAgentRateLimitBurst(),
		AgentScoreThreshold:         EnvAgentScoreThreshold(),
		AgentMaxConsecutiveFailures: EnvAgentMaxConsecutiveFailures(),

		MaxTaskAttempts: EnvMaxTaskAttempts(),
		RetryBaseDelay:  EnvRetryBaseDelay(),
		RetryMaxDelay:   EnvRetryMaxDelay(),

		PromptVersion: EnvPromptVersion(),
	}
}

// Module provides the fx module for AppConfig.
var Module = fx.Module("config", fx.Provide(NewAppConfig))
