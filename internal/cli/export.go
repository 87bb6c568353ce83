package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raphaelgruber/triggerexport/internal/catalog"
	"github.com/raphaelgruber/triggerexport/internal/config"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/query"
	"github.com/raphaelgruber/triggerexport/internal/service"
	"github.com/raphaelgruber/triggerexport/internal/storage"
	"github.com/spf13/cobra"
)

var (
	jobFile  string
	jobFlags = config.DefaultJobOptions()
)

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Export every trigger in a window",
	Long: `Query all policy triggers inside a recency window or a calendar day range
and write them as one CSV export.

Examples:
  triggerexport full --database dns --table shepherd_dns \
    --policies sb-phishing-page-1 --max-hours-ago 24 --output-bucket exports
  triggerexport full --config job.yaml --day-range 20210201-20210207`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, models.RunModeFull)
	},
}

var incrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Update the newest previous export",
	Long: `Keep the still-valid rows of the newest previous export under
--input-bucket/--input-prefix, query only the hours it does not cover and
write the merged result as a new export.

Examples:
  triggerexport incremental --config job.yaml
  triggerexport incremental --config job.yaml --hourly --non-strict`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, models.RunModeIncremental)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{fullCmd, incrementalCmd} {
		cmd.Flags().StringVarP(&jobFile, "config", "c", "", "YAML job file; flags override its keys")
		bindJobFlags(cmd.Flags(), &jobFlags)
	}
}

func runExport(cmd *cobra.Command, mode models.RunMode) error {
	opts, err := resolveJobOptions(cmd.Flags(), jobFile)
	if err != nil {
		return err
	}
	if err := opts.Validate(mode); err != nil {
		return err
	}
	if opts.Verbose && !verbose {
		useDebugLogger()
	}
	logger.Debug("job options", "options", opts.String())

	// The remote query keeps running after an interrupt; its result is never read.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := loadAWSConfig(ctx, opts.Region)
	if err != nil {
		return err
	}

	ledgerClient, err := connectLedger(ctx, false)
	if err != nil {
		logger.Warn("run ledger unavailable, continuing without it", "error", err)
	}
	defer closeLedger(ledgerClient)

	deps := service.Deps{
		Catalog:         catalog.NewGlue(glue.NewFromConfig(awsCfg), logger),
		Engine:          query.NewAthenaEngine(athena.NewFromConfig(awsCfg), cfg.AthenaWorkGroup, logger),
		Store:           storage.NewS3(s3.NewFromConfig(awsCfg), logger),
		ResultsLocation: resultsLocation(opts),
		Logger:          logger,
	}
	if ledgerClient != nil {
		deps.Ledger = ledgerClient
	}
	exporter := service.NewExporter(deps)

	var report *service.Report
	if mode == models.RunModeIncremental {
		report, err = exporter.Incremental(ctx, opts)
	} else {
		report, err = exporter.Full(ctx, opts)
	}
	if report != nil {
		printSummary(cmd.OutOrStdout(), report, err)
	}
	return err
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region == "" {
		region = cfg.AWSRegion
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

// resultsLocation is the engine staging prefix; without
// TRIGGEREXPORT_ATHENA_RESULTS it lives in the output bucket.
func resultsLocation(opts config.JobOptions) string {
	if cfg.AthenaResults != "" {
		return cfg.AthenaResults
	}
	return "s3://" + opts.ResolvedOutputBucket() + "/athena-results/"
}

func useDebugLogger() {
	if logCleanup != nil {
		_ = logCleanup()
	}
	logger, logCleanup = config.SetupLogger(cfg.LogFile, slog.LevelDebug)
	slog.SetDefault(logger)
}
