package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redditcraft/commission-pipeline/core/entities"

	"github.com/joho/godotenv"
)

// GetEnv retrieves the value of the specified environment variable.
func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)

	if value != "" {
		return value
	}

	return defaultValue
}

func envInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func envBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

// EnvPort returns the HTTP port from environment variables.
func EnvPort() string {
	return GetEnv("PORT", "8000")
}

// EnvServiceID retrieves the service ID from the environment variables.
func EnvServiceID() string {
	return GetEnv("SERVICE_ID", "")
}

// EnvSentryDSN returns the Sentry DSN from environment variables.
func EnvSentryDSN() string {
	return GetEnv("SENTRY_DSN", "")
}

// EnvDBHost returns the database host from environment variables.
func EnvDBHost() string {
	return GetEnv("DB_HOST", "localhost")
}

// EnvDBPort returns the database port from environment variables.
func EnvDBPort() string {
	return GetEnv("DB_PORT", "5432")
}

// EnvDBUser returns the database user from environment variables.
func EnvDBUser() string {
	return GetEnv("DB_USER", "user")
}

// EnvDBPassword returns the database password from environment variables.
func EnvDBPassword() string {
	return GetEnv("DB_SECRET", "password")
}

// EnvDBName returns the database name from environment variables.
func EnvDBName() string {
	return GetEnv("DB_NAME", "commission_pipeline")
}

// EnvDBDriver returns the database driver from environment variables.
func EnvDBDriver() string {
	return GetEnv("DB_DRIVER", "postgres")
}

// EnvRedisHost returns the Redis host from environment variables.
func EnvRedisHost() string {
	return GetEnv("REDIS_HOST", "localhost")
}

// EnvRedisPort returns the Redis port from environment variables.
func EnvRedisPort() string {
	return GetEnv("REDIS_PORT", "6379")
}

// EnvRedisPassword returns the Redis password from environment variables.
func EnvRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

// EnvRedisDB returns the Redis database number from environment variables.
func EnvRedisDB() int {
	return envInt("REDIS_DB", 0)
}

// EnvironmentConfig returns the environment configuration.
func EnvironmentConfig() string {
	return GetEnv("ENV", "development")
}

// EnvServiceName returns the service name from environment variables.
func EnvServiceName() string {
	return GetEnv("SERVICE_NAME", "commission-pipeline")
}

func envBusUser() string {
	return GetEnv("BUS_USER", "guest")
}

func envBusPassword() string {
	return GetEnv("BUS_PASSWORD", "guest")
}

func envBusHost() string {
	return GetEnv("BUS_HOST", "localhost:5672")
}

// EnvBusConnection returns the AMQP connection string backing the Bus (spec §4.B).
func EnvBusConnection() string {
	return fmt.Sprintf("amqp://%s:%s@%s/", envBusUser(), envBusPassword(), envBusHost())
}

// EnvBaseURL returns the externally reachable base URL of this service,
// used as the Swagger docs host outside development.
func EnvBaseURL() string {
	return GetEnv("BASE_URL", "http://localhost:8000")
}

// EnvLLMAPIKey returns the credential for the text-generation model (ProductInfo design, ratings).
func EnvLLMAPIKey() string {
	return GetEnv("LLM_API_KEY", "")
}

// EnvLLMBaseURL returns the LLM upstream base URL.
func EnvLLMBaseURL() string {
	return GetEnv("LLM_BASE_URL", "")
}

// EnvImageModelAPIKey returns the credential for the image-generation model.
func EnvImageModelAPIKey() string {
	return GetEnv("IMAGE_MODEL_API_KEY", "")
}

// EnvImageModelBaseURL returns the image-generation model upstream base URL.
func EnvImageModelBaseURL() string {
	return GetEnv("IMAGE_MODEL_BASE_URL", "")
}

// EnvImageHostClientID returns the image-hosting provider client id (spec §4.F stamping/upload stage).
func EnvImageHostClientID() string {
	return GetEnv("IMAGE_HOST_CLIENT_ID", "")
}

// EnvImageHostClientSecret returns the image-hosting provider client secret.
func EnvImageHostClientSecret() string {
	return GetEnv("IMAGE_HOST_CLIENT_SECRET", "")
}

// EnvImageHostBaseURL returns the image-hosting provider API base URL.
func EnvImageHostBaseURL() string {
	return GetEnv("IMAGE_HOST_BASE_URL", "https://api.imgur.com/3")
}

// EnvSocialBaseURL returns the social platform's public read API base URL.
func EnvSocialBaseURL() string {
	return GetEnv("SOCIAL_BASE_URL", "https://www.reddit.com")
}

// EnvSocialClientID returns the social platform (Reddit) OAuth client id for the agent identity.
func EnvSocialClientID() string {
	return GetEnv("SOCIAL_CLIENT_ID", "")
}

// EnvSocialClientSecret returns the social platform OAuth client secret.
func EnvSocialClientSecret() string {
	return GetEnv("SOCIAL_CLIENT_SECRET", "")
}

// EnvSocialUserAgent returns the User-Agent string required by the Reddit API.
func EnvSocialUserAgent() string {
	return GetEnv("SOCIAL_USER_AGENT", "commission-pipeline/1.0")
}

// EnvSocialUsername returns the agent account username.
func EnvSocialUsername() string {
	return GetEnv("SOCIAL_USERNAME", "")
}

// EnvSocialPassword returns the agent account password.
func EnvSocialPassword() string {
	return GetEnv("SOCIAL_PASSWORD", "")
}

// EnvAffiliateID returns the affiliate/referral id embedded in the product
// links the commission pipeline's final stage builds.
func EnvAffiliateID() string {
	return GetEnv("AFFILIATE_ID", "")
}

// EnvAffiliateProductBaseURL returns the storefront base URL the commission
// pipeline's final stage builds product links against.
func EnvAffiliateProductBaseURL() string {
	return GetEnv("AFFILIATE_PRODUCT_BASE_URL", "https://store.example.com")
}

// EnvPaymentSecretKey returns the payment gateway secret API key.
func EnvPaymentSecretKey() string {
	return GetEnv("PAYMENT_SECRET_KEY", "")
}

// EnvPaymentPublishableKey returns the payment gateway publishable/client key.
func EnvPaymentPublishableKey() string {
	return GetEnv("PAYMENT_PUBLISHABLE_KEY", "")
}

// EnvPaymentWebhookSecret returns the HMAC secret used to verify payment webhook signatures.
func EnvPaymentWebhookSecret() string {
	return GetEnv("PAYMENT_WEBHOOK_SECRET", "")
}

// EnvPaymentBaseURL returns the payment gateway API base URL.
func EnvPaymentBaseURL() string {
	return GetEnv("PAYMENT_BASE_URL", "https://api.stripe.com/v1")
}

// EnvWorkerConcurrency returns the WORKER_CONCURRENCY setting (spec §6). No
// run mode reads it: the pipeline mode runs a single task in-process.
func EnvWorkerConcurrency() int {
	return envInt("WORKER_CONCURRENCY", 4)
}

// EnvLeaseTTL returns the TaskQueue lease duration (spec §4.E).
func EnvLeaseTTL() time.Duration {
	return envDuration("LEASE_TTL_SECONDS", 2*time.Minute)
}

// EnvAgentPeriod returns the polling period for CommunityAgent/PromoterAgent loops (spec §4.I).
func EnvAgentPeriod() time.Duration {
	return time.Duration(envInt("AGENT_PERIOD_MINUTES", 15)) * time.Minute
}

// EnvAgentDryRun reports whether agents should log intended actions without executing them.
func EnvAgentDryRun() bool {
	return envBool("AGENT_DRY_RUN", false)
}

// EnvAgentDedupWindow returns the recency window CommunityAgent/PromoterAgent
// use to skip a target they already acted on (spec §4.I).
func EnvAgentDedupWindow() time.Duration {
	return envDuration("AGENT_DEDUP_WINDOW_SECONDS", 7*24*time.Hour)
}

// EnvAgentRateLimitPerHour returns the token-bucket refill rate gating
// agent write actions (spec §4.I: "6/hour" example).
func EnvAgentRateLimitPerHour() int {
	return envInt("AGENT_RATE_LIMIT_PER_HOUR", 6)
}

// EnvAgentRateLimitBurst returns the token-bucket capacity.
func EnvAgentRateLimitBurst() int {
	return envInt("AGENT_RATE_LIMIT_BURST", 6)
}

// EnvAgentScoreThreshold returns the hard LLM-score cutoff an agent applies
// before acting on a candidate (spec §4.I).
func EnvAgentScoreThreshold() int {
	return envInt("AGENT_SCORE_THRESHOLD", 70)
}

// EnvAgentMaxConsecutiveFailures returns how many failed cycles in a row an
// agent tolerates before exiting non-zero (spec §4.I).
func EnvAgentMaxConsecutiveFailures() int {
	return envInt("AGENT_MAX_CONSECUTIVE_FAILURES", 5)
}

// EnvMaxTaskAttempts returns the retry cap for TaskQueue (Open Question #3).
func EnvMaxTaskAttempts() int {
	return envInt("TASK_MAX_ATTEMPTS", 5)
}

// EnvRetryBaseDelay returns the exponential-backoff base delay for TaskQueue retries.
func EnvRetryBaseDelay() time.Duration {
	return envDuration("TASK_RETRY_BASE_SECONDS", 1*time.Second)
}

// EnvRetryMaxDelay returns the exponential-backoff ceiling for TaskQueue retries.
func EnvRetryMaxDelay() time.Duration {
	return envDuration("TASK_RETRY_MAX_SECONDS", 5*time.Minute)
}

// EnvPromptVersion returns the pinned prompt/model version stamped onto ProductInfo (spec supplement §5).
func EnvPromptVersion() string {
	return GetEnv("PROMPT_VERSION", "v1")
}

// LoadEnvVars loads all environment variables required by the application.
func LoadEnvVars() {
	env := EnvironmentConfig()
	if env == entities.Environment.Production || env == entities.Environment.Staging {
		fmt.Printf("Not using .env file in production or staging")
		return
	}

	filename := fmt.Sprintf(".env.%s", env)

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		filename = ".env"
	}

	err := godotenv.Load(filename)

	if err != nil {
		fmt.Printf(".env file not loaded")
		os.Exit(1)
	}
}
