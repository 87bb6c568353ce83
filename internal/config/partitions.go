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
	"github.com/raphaelgruber/triggerexport/internal/storage"
	"gopkg.in/yaml.v3"
)

// Data types a partition load can cover. Proxy subscribers are stored under
// a ".proxy" suffixed subscriber directory next to the DNS ones.
const (
	DataTypeDNS   = "dns"
	DataTypeProxy = "proxy"
)

// DefaultPartitionTimeoutSeconds bounds each DDL statement.
const DefaultPartitionTimeoutSeconds = 30

// PartitionOptions are the settings of a load-partitions run.
type PartitionOptions struct {
	Region   string `yaml:"region"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`

	// DataBucket holds the Hive-style subscriber=/year=/month=/day=/hour=
	// directories; DataPrefix is an optional key prefix in front of them.
	DataBucket string `yaml:"data_bucket"`
	DataPrefix string `yaml:"data_prefix"`
	DataType   string `yaml:"data_type"`

	// ResultsLocation is a dedicated s3:// prefix for DDL results. Everything
	// below it is deleted once the partitions are registered.
	ResultsLocation string `yaml:"results_location"`

	TimeoutSeconds int  `yaml:"timeout_seconds"`
	Concurrency    int  `yaml:"concurrency"`
	DryRun         bool `yaml:"dry_run"`
	Verbose        bool `yaml:"verbose"`
}

// DefaultPartitionOptions returns options with every default filled in.
func DefaultPartitionOptions() PartitionOptions {
	return PartitionOptions{
		DataType:       DataTypeDNS,
		TimeoutSeconds: DefaultPartitionTimeoutSeconds,
		Concurrency:    8,
	}
}

// LoadPartitionFile overlays the YAML file at path onto opts.
func LoadPartitionFile(path string, opts *PartitionOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.Configuration("load partition file", "read %s: %v", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Configuration("load partition file", "%v", err)
	}
	return nil
}

// Validate checks the options. It never contacts AWS.
func (o *PartitionOptions) Validate() error {
	const op = "validate partition options"

	if o.Database == "" || o.Table == "" {
		return apperr.Configuration(op, "database and table are required")
	}
	if o.DataBucket == "" {
		return apperr.Configuration(op, "data_bucket is required")
	}
	if err := checkBucketName("data_bucket", o.DataBucket); err != nil {
		return err
	}
	if o.DataPrefix != "" && !strings.HasSuffix(o.DataPrefix, "/") {
		return apperr.Configuration(op, "data_prefix must end with a slash, got %q", o.DataPrefix)
	}
	switch strings.ToLower(o.DataType) {
	case DataTypeDNS, DataTypeProxy:
	default:
		return apperr.Configuration(op, "invalid data_type %q, valid: %s, %s", o.DataType, DataTypeDNS, DataTypeProxy)
	}

	loc, err := storage.ParseLocation(o.ResolvedResults())
	if err != nil {
		return apperr.Configuration(op, "results_location: %v", err)
	}
	if strings.Trim(loc.Key, "/") == "" {
		return apperr.Configuration(op, "results_location must name a folder, not the root of bucket %s", loc.Bucket)
	}
	if o.TimeoutSeconds <= 0 {
		return apperr.Configuration(op, "timeout_seconds must be > 0, got %d", o.TimeoutSeconds)
	}
	if o.Concurrency <= 0 {
		return apperr.Configuration(op, "concurrency must be > 0, got %d", o.Concurrency)
	}
	return nil
}

// ResolvedResults returns ResultsLocation with a trailing slash.
func (o *PartitionOptions) ResolvedResults() string {
	if o.ResultsLocation == "" || strings.HasSuffix(o.ResultsLocation, "/") {
		return o.ResultsLocation
	}
	return o.ResultsLocation + "/"
}

// Proxy reports whether the run covers proxy subscribers.
func (o *PartitionOptions) Proxy() bool {
	return strings.EqualFold(o.DataType, DataTypeProxy)
}

// Timeout returns the per-statement deadline.
func (o *PartitionOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

func (o *PartitionOptions) String() string {
	return fmt.Sprintf("%s.%s data=s3://%s/%s type=%s", o.Database, o.Table, o.DataBucket, o.DataPrefix, strings.ToLower(o.DataType))
}
