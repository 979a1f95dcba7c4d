package main

import (
	"context"
	"fmt"

	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newPublishManifestCmd() *cobra.Command {
	var s3cfg strata.S3Config

	cmd := &cobra.Command{
		Use:   "publish-manifest <table> <start/end>...",
		Short: "Upload an availability manifest for a table to S3",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			intervals, err := parseIntervals(args[1:])
			if err != nil {
				return err
			}
			if err := internal.ValidateS3Config(s3cfg); err != nil {
				return err
			}
			client, err := internal.NewS3Client(ctx, s3cfg)
			if err != nil {
				return err
			}
			published, err := publishManifest(ctx, internal.NewS3MetadataService(client, s3cfg.Bucket, s3cfg.Prefix), args[0], intervals)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "published %d intervals for %s\n", published, args[0])
			return nil
		},
	}

	addS3Flags(cmd.Flags(), &s3cfg)

	return cmd
}

type manifestPublisher interface {
	PublishManifest(ctx context.Context, table string, intervals strata.IntervalList) error
}

func parseIntervals(raw []string) (strata.IntervalList, error) {
	intervals := make(strata.IntervalList, 0, len(raw))
	for _, r := range raw {
		iv, err := strata.ParseInterval(r)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// publishManifest uploads the simplified intervals and returns how many were written.
func publishManifest(ctx context.Context, publisher manifestPublisher, table string, intervals strata.IntervalList) (int, error) {
	simplified := intervals.Simplify()
	if err := publisher.PublishManifest(ctx, table, simplified); err != nil {
		return 0, fmt.Errorf("publish manifest for %s: %w", table, err)
	}
	return len(simplified), nil
}

func addS3Flags(flags *pflag.FlagSet, s3cfg *strata.S3Config) {
	flags.StringVar(&s3cfg.Bucket, "bucket", getenvDefault("S3_BUCKET", ""), "manifest bucket")
	flags.StringVar(&s3cfg.Prefix, "prefix", getenvDefault("S3_PREFIX", "availability"), "manifest key prefix")
	flags.StringVar(&s3cfg.Region, "region", getenvDefault("AWS_REGION", "us-east-1"), "bucket region")
	flags.StringVar(&s3cfg.Endpoint, "endpoint", getenvDefault("S3_ENDPOINT", ""), "custom endpoint (MinIO, LocalStack)")
	flags.StringVar(&s3cfg.AccessKey, "access-key", getenvDefault("AWS_ACCESS_KEY_ID", ""), "static access key")
	flags.StringVar(&s3cfg.SecretKey, "secret-key", getenvDefault("AWS_SECRET_ACCESS_KEY", ""), "static secret key")
	flags.BoolVar(&s3cfg.UsePathStyle, "path-style", false, "use path-style addressing")
}
