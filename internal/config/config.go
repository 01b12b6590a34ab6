package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Public     PublicConfig
	Classifier ClassifierConfig
	Workflow   WorkflowConfig
	Routing    RoutingConfig
	SMTP       SMTPConfig
	SMS        SMSConfig
	LDAP       LDAPConfig
	Scheduler  SchedulerConfig
	Events     EventsConfig
	Seed       SeedConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
	ConnectAttempts int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// PublicConfig holds the externally reachable base URLs used in links.
type PublicConfig struct {
	WebURL string
	APIURL string
}

// ClassifierConfig points at the text classification service.
type ClassifierConfig struct {
	URL             string
	TimeoutMillis   int
	CacheTTLSeconds int
}

// WorkflowConfig bounds workflow step execution.
type WorkflowConfig struct {
	APICallTimeoutSeconds    int
	MaxAPICallTimeoutSeconds int
	MaxDelaySeconds          int
	MaxStepVisits            int
}

// RoutingConfig tunes the routing engine.
type RoutingConfig struct {
	ConfidenceThreshold float64
	WorkloadCeiling     int
	UrgencyKeywords     []string
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether outbound mail is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// SMSConfig selects and configures the SMS provider.
type SMSConfig struct {
	Provider         string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	CustomAPIURL     string
	CustomAPIKey     string
	MaxLength        int
}

// LDAPConfig configures the directory used by ldap_query workflow steps.
type LDAPConfig struct {
	Enabled         bool
	URL             string
	BindDN          string
	BindPassword    string
	BaseDN          string
	UserFilter      string
	ResetAttribute  string
	UnlockAttribute string
	TimeoutSeconds  int
}

// SchedulerConfig controls background sweeps.
type SchedulerConfig struct {
	Enabled            bool
	ApprovalExpirySpec string
	SLABreachSpec      string
}

// EventsConfig controls the Redis relay of ticket events.
type EventsConfig struct {
	RedisChannel string
}

// SeedConfig points at an optional YAML rule seed file.
type SeedConfig struct {
	File string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-orchestrator"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
			ConnectAttempts: getEnvAsInt("POSTGRES_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Public: PublicConfig{
			WebURL: strings.TrimRight(getEnv("PUBLIC_WEB_URL", "http://localhost:5173"), "/"),
			APIURL: strings.TrimRight(getEnv("PUBLIC_API_URL", "http://localhost:8080"), "/"),
		},
		Classifier: ClassifierConfig{
			URL:             os.Getenv("AI_CLASSIFIER_URL"),
			TimeoutMillis:   getEnvAsInt("AI_CLASSIFIER_TIMEOUT_MS", 2000),
			CacheTTLSeconds: getEnvAsInt("AI_CLASSIFIER_CACHE_TTL_SECONDS", 600),
		},
		Workflow: WorkflowConfig{
			APICallTimeoutSeconds:    getEnvAsInt("WORKFLOW_API_CALL_TIMEOUT_SECONDS", 10),
			MaxAPICallTimeoutSeconds: getEnvAsInt("WORKFLOW_API_CALL_MAX_TIMEOUT_SECONDS", 30),
			MaxDelaySeconds:          getEnvAsInt("WORKFLOW_MAX_DELAY_SECONDS", 300),
			MaxStepVisits:            getEnvAsInt("WORKFLOW_MAX_STEP_VISITS", 100),
		},
		Routing: RoutingConfig{
			ConfidenceThreshold: getEnvAsFloat("ROUTING_CONFIDENCE_THRESHOLD", 0.6),
			WorkloadCeiling:     getEnvAsInt("ROUTING_WORKLOAD_CEILING", 20),
			UrgencyKeywords:     getEnvAsList("ROUTING_URGENCY_KEYWORDS", nil),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "helpdesk@example.com"),
		},
		SMS: SMSConfig{
			Provider:         strings.ToLower(getEnv("SMS_PROVIDER", "twilio")),
			TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
			CustomAPIURL:     os.Getenv("SMS_CUSTOM_API_URL"),
			CustomAPIKey:     os.Getenv("SMS_CUSTOM_API_KEY"),
			MaxLength:        getEnvAsInt("SMS_MAX_LENGTH", 1600),
		},
		LDAP: LDAPConfig{
			Enabled:         getEnvAsBool("LDAP_ENABLED", false),
			URL:             getEnv("LDAP_URL", "ldap://localhost:389"),
			BindDN:          os.Getenv("LDAP_BIND_DN"),
			BindPassword:    os.Getenv("LDAP_BIND_PASSWORD"),
			BaseDN:          os.Getenv("LDAP_BASE_DN"),
			UserFilter:      getEnv("LDAP_USER_FILTER", "(|(mail=%[1]s)(uid=%[1]s))"),
			ResetAttribute:  getEnv("LDAP_RESET_ATTRIBUTE", "pwdReset"),
			UnlockAttribute: getEnv("LDAP_UNLOCK_ATTRIBUTE", "pwdAccountLockedTime"),
			TimeoutSeconds:  getEnvAsInt("LDAP_TIMEOUT_SECONDS", 5),
		},
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SCHEDULER_ENABLED", true),
			ApprovalExpirySpec: getEnv("SCHEDULER_APPROVAL_EXPIRY_SPEC", "@every 5m"),
			SLABreachSpec:      getEnv("SCHEDULER_SLA_BREACH_SPEC", "@every 1m"),
		},
		Events: EventsConfig{
			RedisChannel: getEnv("EVENTS_REDIS_CHANNEL", "helpdesk:ticket-events"),
		},
		Seed: SeedConfig{
			File: os.Getenv("SEED_FILE"),
		},
	}

	if cfg.Routing.ConfidenceThreshold < 0 || cfg.Routing.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("invalid ROUTING_CONFIDENCE_THRESHOLD: %v", cfg.Routing.ConfidenceThreshold)
	}
	switch cfg.SMS.Provider {
	case "twilio", "custom":
	default:
		return nil, fmt.Errorf("invalid SMS_PROVIDER: %s", cfg.SMS.Provider)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the classifier request timeout, capped at two seconds.
func (c ClassifierConfig) Timeout() time.Duration {
	timeout := time.Duration(c.TimeoutMillis) * time.Millisecond
	if timeout <= 0 || timeout > 2*time.Second {
		return 2 * time.Second
	}
	return timeout
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
