package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/strata"
)

type bucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// ValidateS3Config performs basic sanity checks on S3 manifest settings.
func ValidateS3Config(cfg strata.S3Config) error {
	if cfg.Bucket == "" {
		return fmt.Errorf("s3.bucket is required")
	}
	if cfg.AccessKey != "" && cfg.SecretKey == "" {
		return fmt.Errorf("s3.accessKey provided without s3.secretKey")
	}
	if cfg.SecretKey != "" && cfg.AccessKey == "" {
		return fmt.Errorf("s3.secretKey provided without s3.accessKey")
	}
	return nil
}

// S3HealthCheck confirms the manifest bucket exists and is reachable.
// timeout may be 0 to use a sensible default (5s).
func S3HealthCheck(ctx context.Context, client bucketHeader, bucket string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NotFound", "NoSuchBucket":
				return fmt.Errorf("s3 bucket %s does not exist", bucket)
			case "Forbidden", "AccessDenied":
				return fmt.Errorf("s3 bucket %s reachable but returned auth error: %s", bucket, apiErr.ErrorCode())
			}
		}
		return fmt.Errorf("s3 health request failed: %w", err)
	}
	return nil
}
