package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
)

type AWSConfig struct {
	Region          string `yaml:"region"` // default us-east-1
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

type S3Config struct {
	Bucket           string `yaml:"bucket"`
	Prefix           string `yaml:"prefix"`
	Endpoint         string `yaml:"endpoint"`       // S3-compatible stores; enables path-style
	ListPageSize     int    `yaml:"list_page_size"` // keys listed per sync, default 20
	MaxObjects       int    `yaml:"max_objects"`    // newest objects fetched per sync, default 10
	FetchConcurrency int    `yaml:"fetch_concurrency"`
	MaxRetries       int    `yaml:"max_retries"` // listing retries on transport errors
}

type SNSConfig struct {
	TopicArn string `yaml:"topic_arn"`
}

type PollConfig struct {
	Interval             time.Duration `yaml:"interval"`
	HighPriorityInterval time.Duration `yaml:"high_priority_interval"`
	Limit                int           `yaml:"limit"` // records kept per sync, default 50
}

type RegionsConfig struct {
	Shapefile string  `yaml:"shapefile"` // empty disables enrichment
	MaxMiles  float64 `yaml:"max_miles"`
}

type Config struct {
	AWS      AWSConfig     `yaml:"aws"`
	S3       S3Config      `yaml:"s3"`
	SNS      SNSConfig     `yaml:"sns"`
	Poll     PollConfig    `yaml:"poll"`
	Regions  RegionsConfig `yaml:"regions"`
	DBPath   string        `yaml:"db_path"`
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
}

// Default returns a config with every optional value filled in
func Default() *Config {
	return &Config{
		AWS: AWSConfig{Region: "us-east-1"},
		S3: S3Config{
			ListPageSize:     20,
			MaxObjects:       10,
			FetchConcurrency: 5,
			MaxRetries:       2,
		},
		Poll: PollConfig{
			Interval:             30 * time.Second,
			HighPriorityInterval: 15 * time.Second,
			Limit:                50,
		},
		Regions:  RegionsConfig{MaxMiles: 50},
		DBPath:   "data/disaster-terminal.db",
		LogLevel: "info",
		LogFile:  "data/disaster-terminal.log",
	}
}

// LoadEnv loads environment variables from .env files, later files winning
func LoadEnv(logger logging.Logger) {
	files := []string{".env", ".env.local"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger != nil && len(loaded) > 0 {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// Load reads the optional YAML file at path and applies environment
// overrides on top of it.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	c.applyEnv()
	c.normalize()
	return c, nil
}

func (c *Config) applyEnv() {
	c.AWS.Region = GetEnv(c.AWS.Region, "AWS_REGION", "VITE_AWS_REGION")
	c.AWS.AccessKeyID = GetEnv(c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID", "VITE_AWS_ACCESS_KEY_ID")
	c.AWS.SecretAccessKey = GetEnv(c.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY", "VITE_AWS_SECRET_ACCESS_KEY")
	c.AWS.SessionToken = GetEnv(c.AWS.SessionToken, "AWS_SESSION_TOKEN", "VITE_AWS_SESSION_TOKEN")

	c.S3.Bucket = GetEnv(c.S3.Bucket, "S3_BUCKET_NAME", "VITE_S3_BUCKET_NAME")
	c.S3.Prefix = GetEnv(c.S3.Prefix, "S3_PREFIX", "VITE_S3_PREFIX")
	c.S3.Endpoint = GetEnv(c.S3.Endpoint, "S3_ENDPOINT", "VITE_S3_ENDPOINT")
	c.S3.FetchConcurrency = GetEnvInt(c.S3.FetchConcurrency, "FETCH_CONCURRENCY")
	c.S3.MaxObjects = GetEnvInt(c.S3.MaxObjects, "MAX_OBJECTS")

	c.SNS.TopicArn = GetEnv(c.SNS.TopicArn, "SNS_TOPIC_ARN", "VITE_SNS_TOPIC_ARN")

	if ms := GetEnvInt(0, "POLL_INTERVAL_MS"); ms > 0 {
		c.Poll.Interval = time.Duration(ms) * time.Millisecond
	}
	if ms := GetEnvInt(0, "HIGH_PRIORITY_POLL_INTERVAL_MS"); ms > 0 {
		c.Poll.HighPriorityInterval = time.Duration(ms) * time.Millisecond
	}

	c.Regions.Shapefile = GetEnv(c.Regions.Shapefile, "REGIONS_SHAPEFILE")
	c.DBPath = GetEnv(c.DBPath, "DB_PATH")
	c.LogLevel = GetEnv(c.LogLevel, "LOG_LEVEL")
	c.LogFile = GetEnv(c.LogFile, "LOG_FILE")
}

// normalize replaces non-positive values with defaults
func (c *Config) normalize() {
	d := Default()
	if c.AWS.Region == "" {
		c.AWS.Region = d.AWS.Region
	}
	if c.S3.ListPageSize <= 0 {
		c.S3.ListPageSize = d.S3.ListPageSize
	}
	if c.S3.MaxObjects <= 0 {
		c.S3.MaxObjects = d.S3.MaxObjects
	}
	if c.S3.FetchConcurrency <= 0 {
		c.S3.FetchConcurrency = d.S3.FetchConcurrency
	}
	if c.S3.MaxRetries < 0 {
		c.S3.MaxRetries = 0
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = d.Poll.Interval
	}
	if c.Poll.HighPriorityInterval <= 0 {
		c.Poll.HighPriorityInterval = d.Poll.HighPriorityInterval
	}
	if c.Poll.Limit <= 0 {
		c.Poll.Limit = d.Poll.Limit
	}
	if c.Regions.MaxMiles <= 0 {
		c.Regions.MaxMiles = d.Regions.MaxMiles
	}
}

// HasCredentials reports whether both static keys are set
func (c *Config) HasCredentials() bool {
	return c.AWS.AccessKeyID != "" && c.AWS.SecretAccessKey != ""
}

// MissingCredentials names the unset credential variables
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.AWS.AccessKeyID == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if c.AWS.SecretAccessKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	return missing
}

// ValidateStorage checks what the object store client needs
func (c *Config) ValidateStorage() error {
	missing := c.MissingCredentials()
	if c.S3.Bucket == "" {
		missing = append(missing, "S3_BUCKET_NAME")
	}
	if len(missing) > 0 {
		return awserr.Configuration(awserr.ServiceS3, "storage not configured", missing...)
	}
	return nil
}

// ValidateNotifications checks what the notification client needs
func (c *Config) ValidateNotifications() error {
	missing := c.MissingCredentials()
	if c.SNS.TopicArn == "" {
		missing = append(missing, "SNS_TOPIC_ARN")
	}
	if len(missing) > 0 {
		return awserr.Configuration(awserr.ServiceSNS, "notifications not configured", missing...)
	}
	return nil
}

// Validate checks storage settings; notifications are optional
func (c *Config) Validate() error {
	return c.ValidateStorage()
}

// GetEnv returns the first non-empty variable among keys, or def
func GetEnv(def string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return def
}

// GetEnvInt returns the first parseable integer variable among keys, or def
func GetEnvInt(def int, keys ...string) int {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				return parsed
			}
		}
	}
	return def
}
