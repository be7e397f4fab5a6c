package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Vuuar/rescall/internal/messaging"
	"github.com/Vuuar/rescall/pkg/logging"
)

// S3API is the subset of the S3 client used by Archive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive stores inbound voice notes in S3. With no bucket configured every
// call is a no-op.
type Archive struct {
	bucket string
	client S3API
	logger *logging.Logger
	newID  func() uuid.UUID
}

func NewArchive(client S3API, bucket string, logger *logging.Logger) *Archive {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archive{bucket: strings.TrimSpace(bucket), client: client, logger: logger, newID: uuid.New}
}

// Enabled returns true if archival is configured.
func (a *Archive) Enabled() bool {
	return a != nil && a.bucket != "" && a.client != nil
}

// Store uploads the media and returns its s3:// reference. It returns ""
// without error when archival is disabled.
func (a *Archive) Store(ctx context.Context, professionalID, conversationID uuid.UUID, m *messaging.Media, at time.Time) (string, error) {
	if !a.Enabled() || m == nil || len(m.Data) == 0 {
		return "", nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	key := fmt.Sprintf("voice/%s/%s/%d/%02d/%02d/%s%s",
		professionalID, conversationID, at.Year(), at.Month(), at.Day(), a.newID(), extensionFor(m.ContentType))

	contentType := m.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(m.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("media: s3 put %s: %w", key, err)
	}
	a.logger.Info("archived voice note", "professional_id", professionalID, "s3_key", key, "bytes", len(m.Data))
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

var extensions = map[string]string{
	"audio/ogg":  ".ogg",
	"audio/opus": ".opus",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/aac":  ".aac",
	"audio/amr":  ".amr",
	"audio/wav":  ".wav",
	"audio/webm": ".webm",
}

func extensionFor(contentType string) string {
	if ext, ok := extensions[strings.ToLower(contentType)]; ok {
		return ext
	}
	return ".bin"
}
