// Package auditarchive copies every received webhook event to S3-compatible
// object storage, next to the webhook_events table.
package auditarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes webhook events to a bucket
type Archiver struct {
	s3Client objectPutter
	config   *Config
}

// NewArchiver creates an S3 archiver. It fails when the archive is disabled.
func NewArchiver(ctx context.Context, cfg *Config) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("webhook archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[AuditArchive] Archiving webhooks to bucket %s", cfg.BucketName)
	return &Archiver{s3Client: s3Client, config: cfg}, nil
}

type archivedEvent struct {
	ID         uint            `json:"id"`
	Provider   string          `json:"provider"`
	EventType  *string         `json:"event_type"`
	ReceivedAt string          `json:"received_at"`
	Headers    json.RawMessage `json:"headers,omitempty"`
	Payload    string          `json:"payload"`
}

// ArchiveWebhook uploads one stored webhook event as a JSON document.
func (a *Archiver) ArchiveWebhook(ctx context.Context, evt *models.WebhookEvent) error {
	doc := archivedEvent{
		ID:         evt.ID,
		Provider:   evt.Provider,
		EventType:  evt.EventType,
		ReceivedAt: evt.ReceivedAt.UTC().Format(time.RFC3339),
		Payload:    evt.Payload,
	}
	if json.Valid([]byte(evt.Headers)) {
		doc.Headers = json.RawMessage(evt.Headers)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode webhook %d: %w", evt.ID, err)
	}

	key := a.config.GetObjectKey(evt.Provider, evt.ID, evt.ReceivedAt)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.config.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"webhook-event-id": strconv.FormatUint(uint64(evt.ID), 10),
			"upload-source":    "payfox-webhook-archive",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload webhook %d to S3: %w", evt.ID, err)
	}

	log.Debugf("[AuditArchive] Stored s3://%s/%s", a.config.BucketName, key)
	return nil
}
