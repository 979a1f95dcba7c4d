package internal

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

// LoadAWSConfig builds an SDK config for region. Static keys and a custom
// endpoint (MinIO, LocalStack) are applied when set.
func LoadAWSConfig(ctx context.Context, region, endpoint, accessKey, secretKey string) (aws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	if endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewS3Client creates an S3 client for the availability manifest bucket.
func NewS3Client(ctx context.Context, cfg strata.S3Config) (*s3.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// PostgresPassword returns the password to connect with: an Aurora DSQL IAM
// token when UseIAMAuth is set, otherwise the configured password.
func PostgresPassword(ctx context.Context, cfg strata.DatabaseConfig) (string, error) {
	if !cfg.UseIAMAuth {
		return cfg.Password, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg.Region, "", "", "")
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("generate dsql auth token: %w", err)
	}
	zap.S().Infow("generated IAM auth token for Postgres connection (dsql)", "host", cfg.Host)
	return token, nil
}
