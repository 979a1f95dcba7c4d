package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := newRootCmd().Execute(); err != nil {
		zap.S().Errorw("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "strata-tools",
		Short:         "Inspect and prepare Strata catalogs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newValidateConfigCmd())
	cmd.AddCommand(newExplainCmd())
	cmd.AddCommand(newInitDBCmd())
	cmd.AddCommand(newPublishManifestCmd())
	cmd.AddCommand(newExportSegmentsCmd())

	return cmd
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
