package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	LogLevel       string
	APIPrefix      string
	FrontendURL    string   // origin used to build verification links
	AllowedOrigins []string // CORS allowed origins
	TrustProxy     bool     // take the client IP from X-Forwarded-For / X-Real-IP

	StoreDriver    string // "dynamo" | "memory"
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	SNSTopicARN    string // empty disables event publication

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SendTimeout  time.Duration

	RedisAddr     string // empty keeps the resend limiter in-process
	RedisPassword string

	Verification Verification
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users              string
	VerificationTokens string
}

// Verification holds the token and resend policy.
type Verification struct {
	TokenTTL     time.Duration
	OTPLength    int
	ResendMax    int
	ResendWindow time.Duration
}

// SMTPConfigured reports whether real SMTP delivery is possible.
// Without credentials the mailer falls back to logging messages.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads all configuration from environment variables.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		AppPort:        v.GetString("APP_PORT"),
		AppEnv:         v.GetString("APP_ENV"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		APIPrefix:      v.GetString("API_PREFIX"),
		FrontendURL:    strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		TrustProxy:     v.GetBool("TRUST_PROXY"),
		StoreDriver:    v.GetString("STORE_DRIVER"),
		AWSRegion:      v.GetString("AWS_REGION"),
		AWSEndpointURL: v.GetString("AWS_ENDPOINT_URL"),
		AWSAccessKeyID: v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:   v.GetString("AWS_SECRET_ACCESS_KEY"),
		DynamoTables: DynamoTables{
			Users:              v.GetString("DYNAMO_TABLE_USERS"),
			VerificationTokens: v.GetString("DYNAMO_TABLE_VERIFICATION_TOKENS"),
		},
		SNSTopicARN:   v.GetString("SNS_TOPIC_ARN"),
		SMTPHost:      v.GetString("SMTP_HOST"),
		SMTPPort:      v.GetInt("SMTP_PORT"),
		SMTPFrom:      v.GetString("SMTP_FROM"),
		SMTPUsername:  v.GetString("SMTP_USERNAME"),
		SMTPPassword:  v.GetString("SMTP_PASSWORD"),
		SendTimeout:   v.GetDuration("SEND_TIMEOUT"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		Verification: Verification{
			TokenTTL:     v.GetDuration("TOKEN_TTL"),
			OTPLength:    v.GetInt("OTP_LENGTH"),
			ResendMax:    v.GetInt("RESEND_MAX"),
			ResendWindow: v.GetDuration("RESEND_WINDOW"),
		},
	}
	// The server renders the link landing page itself.
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:" + cfg.AppPort
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_PREFIX", "/api/auth")
	v.SetDefault("FRONTEND_URL", "")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("STORE_DRIVER", "dynamo")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ENDPOINT_URL", "")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("DYNAMO_TABLE_USERS", "users")
	v.SetDefault("DYNAMO_TABLE_VERIFICATION_TOKENS", "verification_tokens")
	v.SetDefault("SNS_TOPIC_ARN", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "noreply@example.com")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SEND_TIMEOUT", 10*time.Second)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("TOKEN_TTL", 45*time.Minute)
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("RESEND_MAX", 3)
	v.SetDefault("RESEND_WINDOW", time.Hour)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
