package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("archive: not configured")

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ManifestEntry is one line of the monthly manifest.
type ManifestEntry struct {
	Kind        string `json:"kind"`
	Key         string `json:"key"`
	GeneratedAt string `json:"generated_at"`
	ArchivedAt  string `json:"archived_at"`
	Bytes       int    `json:"bytes"`
}

// Store writes report snapshots to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, Enabled reports false.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveReport writes payload as JSON under reports/<kind>/v1/by-date/ and
// appends it to the monthly manifest. It returns the object key.
func (s *Store) ArchiveReport(ctx context.Context, kind string, generatedAt time.Time, payload any) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "", fmt.Errorf("archive: kind required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("archive: marshal %s: %w", kind, err)
	}

	g := generatedAt.UTC()
	key := fmt.Sprintf("reports/%s/v1/by-date/%d/%02d/%02d/%s.json",
		kind, g.Year(), g.Month(), g.Day(), g.Format("20060102T150405Z"))

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived report to S3", "kind", kind, "s3_key", key, "bytes", len(data))

	entry := ManifestEntry{
		Kind:        kind,
		Key:         key,
		GeneratedAt: g.Format(time.RFC3339),
		ArchivedAt:  s.now().UTC().Format(time.RFC3339),
		Bytes:       len(data),
	}
	if err := s.AppendManifest(ctx, kind, entry); err != nil {
		// the report itself is stored
		s.logger.Warn("failed to append manifest", "error", err, "s3_key", key)
	}
	return key, nil
}

// AppendManifest appends a JSONL line to the kind's monthly manifest.
// S3 has no append, so this is a read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, kind string, entry ManifestEntry) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now().UTC()
	manifestKey := fmt.Sprintf("reports/%s/v1/manifests/%d-%02d.jsonl", kind, now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
