package s3archive

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mkarst/CertForge/internal/pkg/env"
)

// Config holds S3 archive configuration. The archive job exports processed
// billing events past the retention window and prunes them locally.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // optional, for S3-compatible services
	Enabled         bool
	RetentionDays   int
}

// LoadConfig loads S3 archive configuration from environment variables.
func LoadConfig() (*Config, error) {
	retentionDays := 90
	if v, err := strconv.Atoi(env.GetEnv("S3_ARCHIVE_RETENTION_DAYS", "90")); err == nil && v > 0 {
		retentionDays = v
	}

	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("S3_ARCHIVE_ENABLED", "false") == "true",
		RetentionDays:   retentionDays,
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 archive is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the S3 archive is enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// RetentionCutoff returns the timestamp before which processed events are
// eligible for export.
func (c *Config) RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.RetentionDays)
}

// GetObjectKey generates the S3 object key for one export batch.
// Format: billing-events/YYYY/MM/<batch>.json
func (c *Config) GetObjectKey(batchID string, year, month int) string {
	return fmt.Sprintf("billing-events/%04d/%02d/%s.json", year, month, batchID)
}

// GetAppEnv returns the current application environment.
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}

// GetBucketName returns the bucket name as configured.
func (c *Config) GetBucketName() string {
	return c.BucketName
}
