package auditarchive

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// Config holds the S3 settings for the webhook audit archive
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads the archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "ap-northeast-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("S3_WEBHOOK_PREFIX", "webhooks"),
		Enabled:         env.GetBool("WEBHOOK_ARCHIVE_S3_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the webhook archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the webhook archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when the webhook archive is enabled")
		}
	}

	return config, nil
}

// GetObjectKey builds the object key for one webhook event.
// Format: {prefix}/YYYY/MM/DD/{provider}-{eventID}.json
func (c *Config) GetObjectKey(provider string, eventID uint, receivedAt time.Time) string {
	t := receivedAt.UTC()
	prefix := c.Prefix
	if prefix == "" {
		prefix = "webhooks"
	}
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s-%d.json", prefix, t.Year(), int(t.Month()), t.Day(), provider, eventID)
}
