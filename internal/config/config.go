package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch binaries
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Quota       QuotaConfig       `yaml:"quota"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Transport   TransportConfig   `yaml:"transport"`
	OAuth       OAuthConfig       `yaml:"oauth"`
	Lock        LockConfig        `yaml:"lock"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact returns whether recipient addresses are masked in logs (default true)
func (c LogConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// DispatchConfig holds the engine's tuning parameters. Chunk size and batch
// widths are not derived from measured provider limits; they are knobs.
type DispatchConfig struct {
	DirectMaxRecipients     int    `yaml:"direct_max_recipients"`
	BatchedMaxRecipients    int    `yaml:"batched_max_recipients"`
	BatchWidth              int    `yaml:"batch_width"`
	AttachmentBatchWidth    int    `yaml:"attachment_batch_width"`
	ChunkSize               int    `yaml:"chunk_size"`
	DirectDelayMS           int    `yaml:"direct_delay_ms"`
	BatchDelayMS            int    `yaml:"batch_delay_ms"`
	AttachmentBatchDelayMS  int    `yaml:"attachment_batch_delay_ms"`
	ChunkDelayMS            int    `yaml:"chunk_delay_ms"`
	MaxAttempts             int    `yaml:"max_attempts"`
	RetryDelayMS            int    `yaml:"retry_delay_ms"`
	TokenCheckInterval      int    `yaml:"token_check_interval"`
	TokenRefreshMinutes     int    `yaml:"token_refresh_minutes"`
	MaxMessageBytes         int64  `yaml:"max_message_bytes"`
	AttachmentFetchParallel int    `yaml:"attachment_fetch_parallel"`
	SessionID               string `yaml:"session_id"`
}

// Millis converts a millisecond config value to a duration
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// QuotaConfig holds the provider daily quota estimate
type QuotaConfig struct {
	DailyLimit int    `yaml:"daily_limit"`
	Timezone   string `yaml:"timezone"`
}

// Location returns the timezone used for calendar-day rollover
func (c QuotaConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CheckpointConfig selects and configures the checkpoint/quota backing store
type CheckpointConfig struct {
	Driver        string `yaml:"driver"` // "memory", "file", "redis", "postgres", "dynamodb"
	Path          string `yaml:"path"`
	RedisURL      string `yaml:"redis_url"`
	DatabaseURL   string `yaml:"database_url"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c CheckpointConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// AttachmentsConfig holds attachment source settings
type AttachmentsConfig struct {
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3PathStyle    bool   `yaml:"s3_path_style"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	MaxBytes       int64  `yaml:"max_bytes"`
}

// Timeout returns the configured HTTP timeout as a duration
func (c AttachmentsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TransportConfig selects the mail provider adapter
type TransportConfig struct {
	Provider  string      `yaml:"provider"` // "gmail" or "ses"
	FromName  string      `yaml:"from_name"`
	FromEmail string      `yaml:"from_email"`
	Gmail     GmailConfig `yaml:"gmail"`
	SES       SESConfig   `yaml:"ses"`
}

// GmailConfig holds Gmail API settings
type GmailConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c GmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// OAuthConfig holds the credentials used to mint send tokens
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RefreshToken string   `yaml:"refresh_token"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// LockConfig enables the cross-process session lock
type LockConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLMinutes int  `yaml:"ttl_minutes"`
}

// TTL returns the lock TTL as a duration
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	d := &cfg.Dispatch
	if d.DirectMaxRecipients == 0 {
		d.DirectMaxRecipients = 5
	}
	if d.BatchedMaxRecipients == 0 {
		d.BatchedMaxRecipients = 100
	}
	if d.BatchWidth == 0 {
		d.BatchWidth = 6
	}
	if d.AttachmentBatchWidth == 0 {
		d.AttachmentBatchWidth = 3
	}
	if d.ChunkSize == 0 {
		d.ChunkSize = 50
	}
	if d.DirectDelayMS == 0 {
		d.DirectDelayMS = 1000
	}
	if d.BatchDelayMS == 0 {
		d.BatchDelayMS = 1000
	}
	if d.AttachmentBatchDelayMS == 0 {
		d.AttachmentBatchDelayMS = 4000
	}
	if d.ChunkDelayMS == 0 {
		d.ChunkDelayMS = 2000
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = 3
	}
	if d.RetryDelayMS == 0 {
		d.RetryDelayMS = 2000
	}
	if d.TokenCheckInterval == 0 {
		d.TokenCheckInterval = 10
	}
	if d.TokenRefreshMinutes == 0 {
		d.TokenRefreshMinutes = 5
	}
	if d.MaxMessageBytes == 0 {
		d.MaxMessageBytes = 25 << 20
	}
	if d.AttachmentFetchParallel == 0 {
		d.AttachmentFetchParallel = 4
	}
	if d.SessionID == "" {
		d.SessionID = "default"
	}

	if cfg.Quota.DailyLimit == 0 {
		cfg.Quota.DailyLimit = 2000
	}

	if cfg.Checkpoint.Driver == "" {
		cfg.Checkpoint.Driver = "file"
	}
	if cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = "./data/dispatch"
	}
	if cfg.Checkpoint.AWSRegion == "" {
		cfg.Checkpoint.AWSRegion = "us-west-2"
	}

	if cfg.Attachments.TimeoutSeconds == 0 {
		cfg.Attachments.TimeoutSeconds = 30
	}
	if cfg.Attachments.MaxRetries == 0 {
		cfg.Attachments.MaxRetries = 3
	}
	if cfg.Attachments.MaxBytes == 0 {
		cfg.Attachments.MaxBytes = 20 << 20
	}
	if cfg.Attachments.S3Region == "" {
		cfg.Attachments.S3Region = "us-west-2"
	}

	if cfg.Transport.Provider == "" {
		cfg.Transport.Provider = "gmail"
	}
	if cfg.Transport.Gmail.BaseURL == "" {
		cfg.Transport.Gmail.BaseURL = "https://gmail.googleapis.com"
	}
	if cfg.Transport.Gmail.TimeoutSeconds == 0 {
		cfg.Transport.Gmail.TimeoutSeconds = 30
	}
	if cfg.Transport.SES.Region == "" {
		cfg.Transport.SES.Region = "us-west-2"
	}

	if cfg.OAuth.TokenURL == "" {
		cfg.OAuth.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = []string{"https://www.googleapis.com/auth/gmail.send"}
	}

	if cfg.Lock.TTLMinutes == 0 {
		cfg.Lock.TTLMinutes = 30
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// An empty path skips the YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Backing store overrides (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("CHECKPOINT_DRIVER"); v != "" {
		cfg.Checkpoint.Driver = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Checkpoint.RedisURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Checkpoint.DatabaseURL = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Checkpoint.DynamoDBTable = v
	}

	if v := os.Getenv("DISPATCH_DAILY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Quota.DailyLimit = n
		}
	}
	if v := os.Getenv("DISPATCH_SESSION_ID"); v != "" {
		cfg.Dispatch.SessionID = v
	}

	// OAuth overrides
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REFRESH_TOKEN"); v != "" {
		cfg.OAuth.RefreshToken = v
	}

	// Transport overrides
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Transport.Provider = v
	}
	if v := os.Getenv("MAIL_FROM_EMAIL"); v != "" {
		cfg.Transport.FromEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Transport.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Transport.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Transport.SES.Region = v
	}

	// Attachment store overrides
	if v := os.Getenv("ATTACHMENTS_S3_BUCKET"); v != "" {
		cfg.Attachments.S3Bucket = v
	}
	if v := os.Getenv("ATTACHMENTS_S3_REGION"); v != "" {
		cfg.Attachments.S3Region = v
	}
	if v := os.Getenv("ATTACHMENTS_S3_ENDPOINT"); v != "" {
		cfg.Attachments.S3Endpoint = v
	}

	return cfg, nil
}
