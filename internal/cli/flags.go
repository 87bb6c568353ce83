package cli

import (
	"strconv"

	"github.com/raphaelgruber/triggerexport/internal/config"
	"github.com/spf13/pflag"
)

// optionalInt is an int flag that stays nil until set.
type optionalInt struct {
	target **int
}

func (o optionalInt) String() string {
	if *o.target == nil {
		return ""
	}
	return strconv.Itoa(**o.target)
}

func (o optionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*o.target = &v
	return nil
}

func (optionalInt) Type() string { return "int" }

// bindJobFlags registers one flag per job option on fs, writing into opts.
// Flag names match the YAML job file keys with dashes.
func bindJobFlags(fs *pflag.FlagSet, opts *config.JobOptions) {
	fs.StringVar(&opts.Region, "region", opts.Region, "AWS region (default from AWS_REGION)")
	fs.StringVar(&opts.Database, "database", opts.Database, "Athena database")
	fs.StringVar(&opts.Table, "table", opts.Table, "Athena table")

	fs.Var(optionalInt{&opts.MaxHoursAgo}, "max-hours-ago", "export the last N hours")
	fs.StringVar(&opts.DayRange, "day-range", opts.DayRange, "export whole UTC days, YYYYMMDD-YYYYMMDD")
	fs.BoolVar(&opts.FullDays, "full-days", opts.FullDays, "align the recency window to whole days")
	fs.BoolVar(&opts.Hourly, "hourly", opts.Hourly, "incremental job runs hourly (default daily)")
	fs.BoolVar(&opts.NonStrict, "non-strict", opts.NonStrict, "re-query from the newest row of the previous export")

	fs.StringVar(&opts.Policies, "policies", opts.Policies, "policy names to export")
	fs.StringVar(&opts.ParentPolicies, "parent-policies", opts.ParentPolicies, "parent policy names to export")
	fs.StringVar(&opts.Delimiter, "delimiter", opts.Delimiter, "separator of the policy list")

	fs.IntVar(&opts.TimeoutSeconds, "timeout", opts.TimeoutSeconds, "query timeout in seconds")
	fs.StringVar(&opts.TimeColumn, "time-column", opts.TimeColumn, "event time column in epoch microseconds")
	fs.StringVar(&opts.PartitionColumn, "partition-column", opts.PartitionColumn, "hourly partition column in epoch seconds")

	fs.StringVar(&opts.InputBucket, "input-bucket", opts.InputBucket, "bucket holding previous exports")
	fs.StringVar(&opts.InputPrefix, "input-prefix", opts.InputPrefix, "key prefix of previous exports")
	fs.StringVar(&opts.OutputBucket, "output-bucket", opts.OutputBucket, "bucket to write to (default input bucket)")
	fs.StringVar(&opts.OutputDir, "output-dir", opts.OutputDir, "output directory (default PolicyTriggerCSV-<epoch>-<id>)")
	fs.StringVar(&opts.OutputFilename, "output-filename", opts.OutputFilename, "rename the export to this file name")
	fs.BoolVar(&opts.KeepOrigOnRename, "keep-orig-on-rename", opts.KeepOrigOnRename, "keep the original object after renaming")
	fs.BoolVar(&opts.DontPreserveOutputDir, "dont-preserve-output-dir", opts.DontPreserveOutputDir, "rename into the bucket root")
	fs.BoolVar(&opts.DeleteMetadataFile, "delete-metadata-file", opts.DeleteMetadataFile, "delete the engine's .metadata file")

	fs.StringVar(&opts.Salt, "salt", opts.Salt, "salt of the subscriber path hash")
	fs.IntVar(&opts.Ordinal, "ordinal", opts.Ordinal, "ordinal of the subscriber path hash")
	fs.StringVar(&opts.Subscriber, "subscriber", opts.Subscriber, "subscriber name")
	fs.StringVar(&opts.Receiver, "receiver", opts.Receiver, "receiver name")

	fs.BoolVar(&opts.Preflight, "validate", opts.Preflight, "check database, table and buckets before exporting")
}

// resolveJobOptions builds the options of one run: defaults, then the job
// file, then every flag set explicitly on the command line.
func resolveJobOptions(flags *pflag.FlagSet, jobFile string) (config.JobOptions, error) {
	opts := config.DefaultJobOptions()
	if jobFile != "" {
		if err := config.LoadJobFile(jobFile, &opts); err != nil {
			return opts, err
		}
	}

	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	bindJobFlags(overlay, &opts)

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

	opts.Verbose = opts.Verbose || verbose
	return opts, nil
}
