package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

type manifestDownloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

type manifestUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// AvailabilityManifest is the object stored at <prefix>/<table>.json.
type AvailabilityManifest struct {
	Table     string   `json:"table"`
	Intervals []string `json:"intervals"`
}

// S3MetadataService reads availability manifests from a bucket.
type S3MetadataService struct {
	downloader manifestDownloader
	uploader   manifestUploader
	bucket     string
	prefix     string
}

// NewS3MetadataService creates a service backed by client.
func NewS3MetadataService(client *s3.Client, bucket, prefix string) *S3MetadataService {
	return &S3MetadataService{
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
		bucket:     bucket,
		prefix:     prefix,
	}
}

func (s *S3MetadataService) manifestKey(table string) string {
	return path.Join(s.prefix, table+".json")
}

func isMissingObject(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// Availability downloads and parses the manifest of table. A missing
// manifest means the table has no data yet.
func (s *S3MetadataService) Availability(ctx context.Context, table string) (strata.IntervalList, error) {
	key := s.manifestKey(table)
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isMissingObject(err) {
			zap.S().Debugw("availability manifest not found", "bucket", s.bucket, "key", key)
			EmitAvailabilityLookup(ctx, "s3", "miss")
			return nil, nil
		}
		EmitAvailabilityLookup(ctx, "s3", "error")
		return nil, fmt.Errorf("download manifest %s: %w", key, err)
	}

	var manifest AvailabilityManifest
	if err := json.Unmarshal(buf.Bytes(), &manifest); err != nil {
		EmitAvailabilityLookup(ctx, "s3", "error")
		return nil, fmt.Errorf("decode manifest %s: %w", key, err)
	}
	if manifest.Table != "" && manifest.Table != table {
		EmitAvailabilityLookup(ctx, "s3", "error")
		return nil, fmt.Errorf("manifest %s describes table %s", key, manifest.Table)
	}

	intervals := make(strata.IntervalList, 0, len(manifest.Intervals))
	for _, raw := range manifest.Intervals {
		iv, err := strata.ParseInterval(raw)
		if err != nil {
			EmitAvailabilityLookup(ctx, "s3", "error")
			return nil, fmt.Errorf("manifest %s: %w", key, err)
		}
		intervals = append(intervals, iv)
	}
	EmitAvailabilityLookup(ctx, "s3", "hit")
	return intervals.Simplify(), nil
}

// PublishManifest writes the availability of table to the bucket.
func (s *S3MetadataService) PublishManifest(ctx context.Context, table string, intervals strata.IntervalList) error {
	manifest := AvailabilityManifest{Table: table, Intervals: make([]string, 0, len(intervals))}
	for _, iv := range intervals.Simplify() {
		manifest.Intervals = append(manifest.Intervals, iv.String())
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	key := s.manifestKey(table)
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	zap.S().Infow("published availability manifest", "bucket", s.bucket, "key", key, "intervals", len(manifest.Intervals))
	return nil
}
