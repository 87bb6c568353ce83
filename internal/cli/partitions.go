package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/config"
	"github.com/raphaelgruber/triggerexport/internal/partition"
	"github.com/raphaelgruber/triggerexport/internal/query"
	"github.com/raphaelgruber/triggerexport/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var (
	partitionFile  string
	partitionFlags = config.DefaultPartitionOptions()
)

var loadPartitionsCmd = &cobra.Command{
	Use:   "load-partitions",
	Short: "Register new hourly partitions with the catalog",
	Long: `Compare the table's partitions with the subscriber=/year=/month=/day=/hour=
directories of the data bucket and register the missing ones with
ALTER TABLE ... ADD IF NOT EXISTS PARTITION. Raw DDL results are removed
from --results-location afterwards.

Examples:
  triggerexport load-partitions --database dns --table shepherd_dns \
    --data-bucket shepherd-data --results-location s3://athena-results/partitions/
  triggerexport load-partitions --config partitions.yaml --data-type proxy --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := resolvePartitionOptions(cmd.Flags(), partitionFile)
		if err != nil {
			return err
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		if opts.Verbose && !verbose {
			useDebugLogger()
		}
		logger.Debug("partition options", "options", opts.String())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		awsCfg, err := loadAWSConfig(ctx, opts.Region)
		if err != nil {
			return err
		}
		loader := partition.NewLoader(partition.Deps{
			Engine: query.NewAthenaEngine(athena.NewFromConfig(awsCfg), cfg.AthenaWorkGroup, logger),
			Store:  storage.NewS3(s3.NewFromConfig(awsCfg), logger),
			Logger: logger,
		})

		report, err := loader.Load(ctx, opts)
		if report != nil {
			printPartitionSummary(cmd.OutOrStdout(), report, err)
		}
		return err
	},
}

func init() {
	loadPartitionsCmd.Flags().StringVarP(&partitionFile, "config", "c", "", "YAML options file; flags override its keys")
	bindPartitionFlags(loadPartitionsCmd.Flags(), &partitionFlags)
}

// bindPartitionFlags registers one flag per partition option on fs.
func bindPartitionFlags(fs *pflag.FlagSet, opts *config.PartitionOptions) {
	fs.StringVar(&opts.Region, "region", opts.Region, "AWS region (default from AWS_REGION)")
	fs.StringVar(&opts.Database, "database", opts.Database, "Athena database")
	fs.StringVar(&opts.Table, "table", opts.Table, "Athena table")
	fs.StringVar(&opts.DataBucket, "data-bucket", opts.DataBucket, "bucket holding the partitioned data")
	fs.StringVar(&opts.DataPrefix, "data-prefix", opts.DataPrefix, "key prefix in front of the subscriber= directories")
	fs.StringVar(&opts.DataType, "data-type", opts.DataType, "dns or proxy")
	fs.StringVar(&opts.ResultsLocation, "results-location", opts.ResultsLocation,
		"dedicated s3:// folder for DDL results, emptied after the run (default <TRIGGEREXPORT_ATHENA_RESULTS>/load-partitions/)")
	fs.IntVar(&opts.TimeoutSeconds, "timeout", opts.TimeoutSeconds, "per-statement timeout in seconds")
	fs.IntVar(&opts.Concurrency, "concurrency", opts.Concurrency, "subscribers listed in parallel")
	fs.BoolVar(&opts.DryRun, "dry-run", opts.DryRun, "report missing partitions without registering them")
}

// resolvePartitionOptions applies defaults, then the options file, then every
// flag set explicitly on the command line.
func resolvePartitionOptions(flags *pflag.FlagSet, file string) (config.PartitionOptions, error) {
	opts := config.DefaultPartitionOptions()
	if file != "" {
		if err := config.LoadPartitionFile(file, &opts); err != nil {
			return opts, err
		}
	}

	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	bindPartitionFlags(overlay, &opts)

	var setErr error
	flags.Visit(func(f *pflag.Flag) {
		if setErr != nil || overlay.Lookup(f.Name) == nil {
			return
		}
		setErr = overlay.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return opts, setErr
	}

	if opts.ResultsLocation == "" && cfg.AthenaResults != "" {
		opts.ResultsLocation = strings.TrimSuffix(cfg.AthenaResults, "/") + "/load-partitions/"
	}
	opts.Verbose = opts.Verbose || verbose
	return opts, nil
}

func printPartitionSummary(w io.Writer, report *partition.Report, runErr error) {
	styles := plainStyles()
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		styles = defaultTheme.styles()
	}
	fmt.Fprint(w, renderPartitionSummary(report, runErr, styles))
}

func renderPartitionSummary(r *partition.Report, runErr error, s summaryStyles) string {
	var b strings.Builder

	header := s.status.Render(fmt.Sprintf("[load-partitions %s]", r.RunID))
	if runErr != nil {
		fmt.Fprintf(&b, "%s %s\n", header, s.failed.Render(fmt.Sprintf("✗ %s error", apperr.KindOf(runErr))))
		fmt.Fprintf(&b, "  %s\n", runErr)
	} else {
		fmt.Fprintf(&b, "%s %s\n", header, s.completed.Render("✓ Completed"))
	}

	fmt.Fprintf(&b, "  Table:           %s.%s (%s)\n", r.Database, r.Table, r.DataType)
	fmt.Fprintf(&b, "  Partitions:      %d registered, %d found in %d subscribers\n", r.Registered, r.Found, r.Subscribers)
	verb := "added"
	if r.DryRun {
		verb = "missing (dry run)"
	}
	fmt.Fprintf(&b, "  New:             %d %s\n", len(r.Missing), verb)
	for _, q := range r.Queries {
		fmt.Fprintf(&b, "  %s\n", s.hint.Render(fmt.Sprintf("query %s (%s)", q.ID, q.State)))
	}
	if r.Cleaned > 0 {
		fmt.Fprintf(&b, "  Cleaned:         %d result objects\n", r.Cleaned)
	}

	if len(r.Warnings) > 0 {
		b.WriteString(s.failed.Render(fmt.Sprintf("\nWarnings (%d):", len(r.Warnings))) + "\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  • %s\n", w)
		}
	}
	return b.String()
}
