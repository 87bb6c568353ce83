// Package storage abstracts the object store holding engine results and
// exports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Sentinel errors for object lookups.
var (
	// ErrNotFound indicates the bucket or object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates the caller may not access the bucket.
	ErrAccessDenied = errors.New("object access denied")
)

const scheme = "s3://"

// Location addresses one object.
type Location struct {
	Bucket string
	Key    string
}

// ParseLocation parses "s3://bucket/key".
func ParseLocation(raw string) (Location, error) {
	rest, ok := strings.CutPrefix(raw, scheme)
	if !ok {
		return Location{}, fmt.Errorf("location %q: missing %s scheme", raw, scheme)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("location %q: empty bucket", raw)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

func (l Location) String() string {
	return scheme + l.Bucket + "/" + l.Key
}

// Dir returns the key's directory without a trailing slash.
func (l Location) Dir() string {
	dir := path.Dir(l.Key)
	if dir == "." {
		return ""
	}
	return dir
}

// Base returns the last element of the key.
func (l Location) Base() string {
	return path.Base(l.Key)
}

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the object store used by the exporter.
type Store interface {
	// List returns every object in bucket whose key starts with prefix.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	// Dirs returns the "directories" directly below prefix: the distinct
	// key prefixes ending at the next "/", sorted.
	Dirs(ctx context.Context, bucket, prefix string) ([]string, error)
	Get(ctx context.Context, loc Location) (io.ReadCloser, error)
	Put(ctx context.Context, loc Location, body []byte, contentType string) error
	Copy(ctx context.Context, src, dst Location) error
	Delete(ctx context.Context, loc Location) error
	// CheckBucket verifies the bucket exists and is reachable.
	CheckBucket(ctx context.Context, bucket string) error
}

// Latest returns the most recently modified object under prefix whose key
// ends with suffix. Keys under any of the exclude prefixes are skipped.
func Latest(ctx context.Context, store Store, bucket, prefix, suffix string, exclude ...string) (Object, error) {
	objects, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return Object{}, err
	}

	var (
		newest Object
		found  bool
	)
	for _, o := range objects {
		if !strings.HasSuffix(o.Key, suffix) || hasAnyPrefix(o.Key, exclude) {
			continue
		}
		if !found || o.LastModified.After(newest.LastModified) {
			newest = o
			found = true
		}
	}
	if !found {
		return Object{}, fmt.Errorf("no %s object under %s%s/%s: %w", suffix, scheme, bucket, prefix, ErrNotFound)
	}
	return newest, nil
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

var (
	_ Store = (*S3)(nil)
	_ Store = (*Memory)(nil)
)
