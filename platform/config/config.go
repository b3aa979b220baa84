// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// StoreConfig selects the workflow persistence backend.
type StoreConfig interface {
	GetStoreDriver() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis/asynq settings and the sweep cadence.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSweepInterval() time.Duration
	GetSweepLeadTimeout() time.Duration
	GetSweepConcurrency() int
	GetSweepLockTTL() time.Duration
	IsRedisEnabled() bool
}

// EscalationConfig provides the escalation cadence thresholds.
type EscalationConfig interface {
	GetEscalationThresholds() EscalationThresholds
}

// EmailConfig provides settings for outbound workflow emails.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetEmailIdentityDomain() string
	GetAppBaseURL() string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketCommunicationAttachments() string
	IsMinIOEnabled() bool
}

// ClassifierConfig provides settings for the AI reply classifier.
type ClassifierConfig interface {
	GetGeminiAPIKey() string
	GetClassifierModel() string
	IsClassifierEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                                 string
	HTTPAddr                            string
	StoreDriver                         string
	DatabaseURL                         string
	RunMigrations                       bool
	JWTAccessSecret                     string
	CORSAllowAll                        bool
	CORSOrigins                         []string
	CORSAllowCreds                      bool
	AppBaseURL                          string
	RedisURL                            string
	RedisTLSInsecure                    bool
	AsynqQueueName                      string
	AsynqConcurrency                    int
	SweepInterval                       time.Duration
	SweepLeadTimeout                    time.Duration
	SweepConcurrency                    int
	SweepLockTTL                        time.Duration
	EscalationPolicyFile                string
	Escalation                          EscalationThresholds
	EmailEnabled                        bool
	SMTPHost                            string
	SMTPPort                            int
	SMTPUsername                        string
	SMTPPassword                        string
	EmailFromName                       string
	EmailFromAddress                    string
	EmailIdentityDomain                 string
	MinIOEndpoint                       string
	MinIOAccessKey                      string
	MinIOSecretKey                      string
	MinIOUseSSL                         bool
	MinIOMaxFileSize                    int64
	MinioBucketCommunicationAttachments string
	GeminiAPIKey                        string
	ClassifierModel                     string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// StoreConfig implementation
func (c *Config) GetStoreDriver() string { return c.StoreDriver }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string               { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool         { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string         { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int          { return c.AsynqConcurrency }
func (c *Config) GetSweepInterval() time.Duration   { return c.SweepInterval }
func (c *Config) GetSweepLeadTimeout() time.Duration { return c.SweepLeadTimeout }
func (c *Config) GetSweepConcurrency() int          { return c.SweepConcurrency }
func (c *Config) GetSweepLockTTL() time.Duration    { return c.SweepLockTTL }
func (c *Config) IsRedisEnabled() bool              { return c.RedisURL != "" }

// EscalationConfig implementation
func (c *Config) GetEscalationThresholds() EscalationThresholds { return c.Escalation }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool          { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string            { return c.SMTPHost }
func (c *Config) GetSMTPPort() int               { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string        { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string        { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string       { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string    { return c.EmailFromAddress }
func (c *Config) GetEmailIdentityDomain() string { return c.EmailIdentityDomain }
func (c *Config) GetAppBaseURL() string          { return c.AppBaseURL }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketCommunicationAttachments() string {
	return c.MinioBucketCommunicationAttachments
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// ClassifierConfig implementation
func (c *Config) GetGeminiAPIKey() string    { return c.GeminiAPIKey }
func (c *Config) GetClassifierModel() string { return c.ClassifierModel }
func (c *Config) IsClassifierEnabled() bool  { return c.GeminiAPIKey != "" }

// Load reads configuration from environment variables, optionally overlaying
// the escalation policy from ESCALATION_POLICY_FILE. Environment variables win
// over the file so operators can retune a single threshold in place.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                                 getEnv("APP_ENV", "development"),
		HTTPAddr:                            getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:                         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:                         getEnv("DATABASE_URL", ""),
		RunMigrations:                       strings.EqualFold(getEnv("RUN_MIGRATIONS", "true"), "true"),
		JWTAccessSecret:                     getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                        corsAllowAll,
		CORSOrigins:                         corsOrigins,
		CORSAllowCreds:                      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:                          getEnv("APP_BASE_URL", "http://localhost:4200"),
		RedisURL:                            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:                    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:                      getEnv("ASYNQ_QUEUE", "leadflow"),
		AsynqConcurrency:                    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		SweepLeadTimeout:                    mustDuration(getEnv("SWEEP_LEAD_TIMEOUT", "30s")),
		SweepConcurrency:                    mustInt(getEnv("SWEEP_CONCURRENCY", "4")),
		SweepLockTTL:                        mustDuration(getEnv("SWEEP_LOCK_TTL", "30m")),
		EscalationPolicyFile:                getEnv("ESCALATION_POLICY_FILE", ""),
		Escalation:                          DefaultEscalationThresholds(),
		EmailEnabled:                        emailEnabled && smtpHost != "",
		SMTPHost:                            smtpHost,
		SMTPPort:                            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:                       getEnv("EMAIL_FROM_NAME", "Lead Desk"),
		EmailFromAddress:                    getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailIdentityDomain:                 getEnv("EMAIL_IDENTITY_DOMAIN", ""),
		MinIOEndpoint:                       getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:                      getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:                      getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                         strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:                    mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "26214400")),
		MinioBucketCommunicationAttachments: getEnv("MINIO_BUCKET_COMMUNICATION_ATTACHMENTS", "communication-attachments"),
		GeminiAPIKey:                        getEnv("GEMINI_API_KEY", ""),
		ClassifierModel:                     getEnv("CLASSIFIER_MODEL", "gemini-2.0-flash"),
	}

	sweepInterval := DefaultSweepInterval
	if cfg.EscalationPolicyFile != "" {
		file, err := LoadPolicyFile(cfg.EscalationPolicyFile)
		if err != nil {
			return nil, err
		}
		file.Escalation.overlay(&cfg.Escalation)
		if file.Sweep.Interval != "" {
			d, err := time.ParseDuration(file.Sweep.Interval)
			if err != nil {
				return nil, fmt.Errorf("policy file sweep.interval: %w", err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("policy file sweep.interval must be positive, got %s", d)
			}
			sweepInterval = d
		}
	}
	applyEscalationEnv(&cfg.Escalation)
	cfg.SweepInterval = durationOr(getEnv("SWEEP_INTERVAL", ""), sweepInterval)

	if err := cfg.Escalation.Validate(); err != nil {
		return nil, err
	}
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory)
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if emailEnabled && smtpHost != "" && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

// RequireAPISecrets checks the settings only the HTTP API needs.
func (c *Config) RequireAPISecrets() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	return nil
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	DefaultSweepInterval = 24 * time.Hour
)

func applyEscalationEnv(t *EscalationThresholds) {
	t.InitialFollowUpDays = intOr(getEnv("ESCALATION_INITIAL_FOLLOW_UP_DAYS", ""), t.InitialFollowUpDays)
	t.ReplyFollowUpDays = intOr(getEnv("ESCALATION_REPLY_FOLLOW_UP_DAYS", ""), t.ReplyFollowUpDays)
	t.ReminderStartDays = intOr(getEnv("ESCALATION_REMINDER_START_DAYS", ""), t.ReminderStartDays)
	t.ReminderEndDays = intOr(getEnv("ESCALATION_REMINDER_END_DAYS", ""), t.ReminderEndDays)
	t.ReminderAdvanceDays = intOr(getEnv("ESCALATION_REMINDER_ADVANCE_DAYS", ""), t.ReminderAdvanceDays)
	t.Level1Days = intOr(getEnv("ESCALATION_LEVEL1_DAYS", ""), t.Level1Days)
	t.Level2Days = intOr(getEnv("ESCALATION_LEVEL2_DAYS", ""), t.Level2Days)
	t.Level3Days = intOr(getEnv("ESCALATION_LEVEL3_DAYS", ""), t.Level3Days)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func intOr(value string, fallback int) int {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
