package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
)

var envKeys = []string{
	"AWS_REGION", "VITE_AWS_REGION", "AWS_ACCESS_KEY_ID", "VITE_AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY", "VITE_AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
	"S3_BUCKET_NAME", "VITE_S3_BUCKET_NAME", "S3_PREFIX", "S3_ENDPOINT",
	"SNS_TOPIC_ARN", "VITE_SNS_TOPIC_ARN", "POLL_INTERVAL_MS",
	"HIGH_PRIORITY_POLL_INTERVAL_MS", "FETCH_CONCURRENCY", "MAX_OBJECTS",
	"REGIONS_SHAPEFILE", "DB_PATH", "LOG_LEVEL", "LOG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.AWS.Region != "us-east-1" {
		t.Errorf("Region = %s, want us-east-1", c.AWS.Region)
	}
	if c.Poll.Interval != 30*time.Second {
		t.Errorf("Poll.Interval = %v, want 30s", c.Poll.Interval)
	}
	if c.Poll.HighPriorityInterval != 15*time.Second {
		t.Errorf("Poll.HighPriorityInterval = %v, want 15s", c.Poll.HighPriorityInterval)
	}
	if c.Poll.Limit != 50 || c.S3.ListPageSize != 20 || c.S3.MaxObjects != 10 || c.S3.FetchConcurrency != 5 {
		t.Errorf("unexpected defaults: %+v %+v", c.Poll, c.S3)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "ap-southeast-1")
	t.Setenv("VITE_AWS_ACCESS_KEY_ID", "AKIAVITE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_BUCKET_NAME", "disaster-alerts")
	t.Setenv("POLL_INTERVAL_MS", "5000")
	t.Setenv("FETCH_CONCURRENCY", "not-a-number")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.AWS.Region != "ap-southeast-1" {
		t.Errorf("Region = %s", c.AWS.Region)
	}
	if c.AWS.AccessKeyID != "AKIAVITE" {
		t.Errorf("AccessKeyID = %s, want VITE_ fallback", c.AWS.AccessKeyID)
	}
	if c.Poll.Interval != 5*time.Second {
		t.Errorf("Poll.Interval = %v, want 5s", c.Poll.Interval)
	}
	if c.S3.FetchConcurrency != 5 {
		t.Errorf("FetchConcurrency = %d, want default on parse error", c.S3.FetchConcurrency)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET_NAME", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
aws:
  region: eu-west-1
s3:
  bucket: from-yaml
  prefix: processed/
  max_objects: 4
poll:
  interval: 45s
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.AWS.Region != "eu-west-1" || c.S3.Prefix != "processed/" || c.S3.MaxObjects != 4 {
		t.Errorf("yaml values not applied: %+v %+v", c.AWS, c.S3)
	}
	if c.S3.Bucket != "from-env" {
		t.Errorf("Bucket = %s, env should override yaml", c.S3.Bucket)
	}
	if c.Poll.Interval != 45*time.Second {
		t.Errorf("Poll.Interval = %v, want 45s", c.Poll.Interval)
	}
	if c.S3.ListPageSize != 20 {
		t.Errorf("ListPageSize = %d, default should survive partial yaml", c.S3.ListPageSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestValidate_NamesMissingKeys(t *testing.T) {
	c := Default()

	err := c.ValidateStorage()
	if !errors.Is(err, awserr.ErrConfiguration) {
		t.Fatalf("ValidateStorage() error = %v, want configuration error", err)
	}
	for _, key := range []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "S3_BUCKET_NAME"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q should name %s", err, key)
		}
	}

	c.AWS.AccessKeyID, c.AWS.SecretAccessKey = "a", "b"
	err = c.ValidateNotifications()
	if err == nil || !strings.Contains(err.Error(), "SNS_TOPIC_ARN") {
		t.Errorf("ValidateNotifications() error = %v, want SNS_TOPIC_ARN named", err)
	}
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	os.WriteFile(".env", []byte("S3_BUCKET_NAME=base\nAWS_REGION=us-west-2\n"), 0644)
	os.WriteFile(".env.local", []byte("S3_BUCKET_NAME=local\n"), 0644)

	LoadEnv(nil)

	if got := os.Getenv("S3_BUCKET_NAME"); got != "local" {
		t.Errorf("S3_BUCKET_NAME = %s, .env.local should win", got)
	}
	if got := os.Getenv("AWS_REGION"); got != "us-west-2" {
		t.Errorf("AWS_REGION = %s", got)
	}
}
