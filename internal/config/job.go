package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/query"
	"github.com/raphaelgruber/triggerexport/internal/schema"
	"github.com/raphaelgruber/triggerexport/internal/window"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Defaults applied by DefaultJobOptions.
const (
	DefaultDelimiter      = ","
	DefaultTimeoutSeconds = 300
)

// JobOptions are the per-run export settings.
type JobOptions struct {
	Region   string `yaml:"region"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`

	// Window: exactly one of MaxHoursAgo and DayRange.
	MaxHoursAgo *int   `yaml:"max_hours_ago"`
	DayRange    string `yaml:"day_range"`
	FullDays    bool   `yaml:"full_days"`
	Hourly      bool   `yaml:"hourly"`
	NonStrict   bool   `yaml:"non_strict"`

	// Targets: exactly one of Policies and ParentPolicies.
	Policies       string `yaml:"policies"`
	ParentPolicies string `yaml:"parent_policies"`
	Delimiter      string `yaml:"delimiter"`

	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	TimeColumn      string `yaml:"time_column"`
	PartitionColumn string `yaml:"partition_column"`

	InputBucket           string `yaml:"input_bucket"`
	InputPrefix           string `yaml:"input_prefix"`
	OutputBucket          string `yaml:"output_bucket"`
	OutputDir             string `yaml:"output_dir"`
	OutputFilename        string `yaml:"output_filename"`
	KeepOrigOnRename      bool   `yaml:"keep_orig_on_rename"`
	DontPreserveOutputDir bool   `yaml:"dont_preserve_output_dir"`
	DeleteMetadataFile    bool   `yaml:"delete_metadata_file"`

	// Subscriber identity for the hashed output path segment.
	Salt       string `yaml:"salt"`
	Ordinal    int    `yaml:"ordinal"`
	Subscriber string `yaml:"subscriber"`
	Receiver   string `yaml:"receiver"`

	// Preflight runs catalog and bucket existence checks before the export.
	Preflight bool `yaml:"validate"`
	Verbose   bool `yaml:"verbose"`
}

// DefaultJobOptions returns options with every default filled in.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		Delimiter:       DefaultDelimiter,
		TimeoutSeconds:  DefaultTimeoutSeconds,
		TimeColumn:      models.DefaultTimeColumn,
		PartitionColumn: query.DefaultPartitionColumn,
	}
}

// LoadJobFile overlays the YAML job file at path onto opts.
// Keys absent from the file leave opts unchanged.
func LoadJobFile(path string, opts *JobOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.Configuration("load job file", "read %s: %v", path, err)
	}
	return DecodeJob(bytes.NewReader(data), opts)
}

// DecodeJob overlays a YAML document onto opts, rejecting unknown keys.
func DecodeJob(r io.Reader, opts *JobOptions) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Configuration("load job file", "%v", err)
	}
	return nil
}

// Validate checks the options for the given mode. It never contacts AWS.
func (o *JobOptions) Validate(mode models.RunMode) error {
	const op = "validate options"

	if o.Database == "" || o.Table == "" {
		return apperr.Configuration(op, "database and table are required")
	}

	switch {
	case o.MaxHoursAgo != nil && o.DayRange != "":
		return apperr.Configuration(op, "max_hours_ago and day_range cannot both be set")
	case o.MaxHoursAgo == nil && o.DayRange == "":
		return apperr.Configuration(op, "either max_hours_ago or day_range must be set")
	case o.MaxHoursAgo != nil && *o.MaxHoursAgo < 0:
		return apperr.Configuration(op, "max_hours_ago cannot be under 0, got %d", *o.MaxHoursAgo)
	case o.DayRange != "":
		if _, err := window.ParseDayRange(o.DayRange); err != nil {
			return err
		}
	}

	switch {
	case o.Policies != "" && o.ParentPolicies != "":
		return apperr.Configuration(op, "policies and parent_policies cannot both be set")
	case o.Policies == "" && o.ParentPolicies == "":
		return apperr.Configuration(op, "either policies or parent_policies must be set")
	}
	if o.Delimiter == "" {
		return apperr.Configuration(op, "delimiter cannot be empty")
	}
	if len(o.TargetPolicies()) == 0 {
		return apperr.Configuration(op, "no policy names in %q", o.policyString())
	}

	if o.TimeoutSeconds <= 0 {
		return apperr.Configuration(op, "timeout_seconds must be > 0, got %d", o.TimeoutSeconds)
	}
	if o.TimeColumn == "" || o.PartitionColumn == "" {
		return apperr.Configuration(op, "time_column and partition_column are required")
	}

	if err := checkBucketName("input_bucket", o.InputBucket); err != nil {
		return err
	}
	if err := checkBucketName("output_bucket", o.OutputBucket); err != nil {
		return err
	}
	if o.ResolvedOutputBucket() == "" {
		return apperr.Configuration(op, "output_bucket (or input_bucket) is required")
	}
	if (o.KeepOrigOnRename || o.DontPreserveOutputDir) && o.OutputFilename == "" {
		return apperr.Configuration(op, "keep_orig_on_rename and dont_preserve_output_dir require output_filename")
	}

	if mode == models.RunModeIncremental {
		if o.DayRange != "" {
			return apperr.Configuration(op, "incremental runs require max_hours_ago, day_range is not supported")
		}
		if o.InputBucket == "" {
			return apperr.Configuration(op, "incremental runs require input_bucket")
		}
		if o.Salt == "" || o.Subscriber == "" || o.Receiver == "" {
			return apperr.Configuration(op, "incremental runs require salt, subscriber and receiver")
		}
	}
	return nil
}

func checkBucketName(name, bucket string) error {
	switch {
	case strings.HasPrefix(strings.ToLower(bucket), "s3://"):
		return apperr.Configuration("validate options", "%s must be a bucket name only, not start with s3://", name)
	case strings.HasSuffix(bucket, "/"):
		return apperr.Configuration("validate options", "%s must not end with a trailing slash", name)
	}
	return nil
}

// TriggerColumn returns the catalog column the target names are matched on.
func (o *JobOptions) TriggerColumn() string {
	if o.ParentPolicies != "" {
		return schema.ParentPoliciesColumn
	}
	return schema.PoliciesColumn
}

func (o *JobOptions) policyString() string {
	if o.ParentPolicies != "" {
		return o.ParentPolicies
	}
	return o.Policies
}

// TargetPolicies splits the policy list on Delimiter, dropping blanks and
// repeats while keeping first-seen order.
func (o *JobOptions) TargetPolicies() []string {
	if o.Delimiter == "" {
		return nil
	}
	parts := lo.Map(strings.Split(o.policyString(), o.Delimiter), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Uniq(lo.Compact(parts))
}

// ResolvedOutputBucket returns OutputBucket, falling back to InputBucket.
func (o *JobOptions) ResolvedOutputBucket() string {
	if o.OutputBucket != "" {
		return o.OutputBucket
	}
	return o.InputBucket
}

// Timeout returns the query deadline.
func (o *JobOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// WindowSpec converts the window options for window.Plan.
func (o *JobOptions) WindowSpec() (window.Spec, error) {
	spec := window.Spec{MaxHoursAgo: o.MaxHoursAgo, FullDays: o.FullDays}
	if o.DayRange != "" {
		r, err := window.ParseDayRange(o.DayRange)
		if err != nil {
			return window.Spec{}, err
		}
		spec.DayRange = &r
	}
	return spec, nil
}

// HasIdentity reports whether a subscriber identity was configured.
func (o *JobOptions) HasIdentity() bool {
	return o.Salt != "" && o.Subscriber != "" && o.Receiver != ""
}

func (o *JobOptions) String() string {
	return fmt.Sprintf("%s.%s window=%s triggers=%s(%d)", o.Database, o.Table, o.windowString(), o.TriggerColumn(), len(o.TargetPolicies()))
}

func (o *JobOptions) windowString() string {
	if o.MaxHoursAgo != nil {
		return fmt.Sprintf("%dh", *o.MaxHoursAgo)
	}
	return o.DayRange
}
