package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Location
		wantErr bool
	}{
		{"bucket and key", "s3://results/athena/abc.csv", Location{"results", "athena/abc.csv"}, false},
		{"bucket only", "s3://results", Location{"results", ""}, false},
		{"trailing slash", "s3://results/", Location{"results", ""}, false},
		{"no scheme", "results/abc.csv", Location{}, true},
		{"empty bucket", "s3:///abc.csv", Location{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationParts(t *testing.T) {
	loc := Location{Bucket: "out", Key: "PolicyTriggerCSV-1/abcd/q.csv"}
	assert.Equal(t, "s3://out/PolicyTriggerCSV-1/abcd/q.csv", loc.String())
	assert.Equal(t, "PolicyTriggerCSV-1/abcd", loc.Dir())
	assert.Equal(t, "q.csv", loc.Base())
	assert.Equal(t, "", Location{Bucket: "out", Key: "q.csv"}.Dir())
}

func TestLatest(t *testing.T) {
	base := time.Date(2021, 2, 9, 0, 0, 0, 0, time.UTC)
	store := NewMemory(nil)
	store.PutAt(Location{"in", "exports/a.csv"}, []byte("a"), base)
	store.PutAt(Location{"in", "exports/b.csv"}, []byte("b"), base.Add(2*time.Hour))
	store.PutAt(Location{"in", "exports/b.csv.metadata"}, []byte("m"), base.Add(3*time.Hour))
	store.PutAt(Location{"in", "other/c.csv"}, []byte("c"), base.Add(4*time.Hour))

	got, err := Latest(context.Background(), store, "in", "exports/", ".csv")
	require.NoError(t, err)
	assert.Equal(t, "exports/b.csv", got.Key)
	assert.Equal(t, base.Add(2*time.Hour), got.LastModified)
}

func TestLatestSkipsExcludedPrefixes(t *testing.T) {
	base := time.Date(2021, 2, 9, 0, 0, 0, 0, time.UTC)
	store := NewMemory(nil)
	store.PutAt(Location{"in", "PolicyTriggerCSV-1/x/q1.csv"}, []byte("a"), base)
	store.PutAt(Location{"in", "athena-results/q2.csv"}, []byte("b"), base.Add(time.Hour))

	got, err := Latest(context.Background(), store, "in", "", ".csv", "athena-results/")
	require.NoError(t, err)
	assert.Equal(t, "PolicyTriggerCSV-1/x/q1.csv", got.Key)

	_, err = Latest(context.Background(), store, "in", "athena-results/", ".csv", "athena-results/")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestNotFound(t *testing.T) {
	store := NewMemory(nil)
	store.AddBucket("in")

	_, err := Latest(context.Background(), store, "in", "exports/", ".csv")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Latest(context.Background(), store, "missing", "", ".csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 2, 9, 12, 20, 0, 0, time.UTC)
	store := NewMemory(func() time.Time { return now })
	store.AddBucket("out")

	src := Location{"out", "dir/q.csv"}
	require.NoError(t, store.Put(ctx, src, []byte("body"), "text/csv"))

	dst := Location{"out", "renamed.csv"}
	require.NoError(t, store.Copy(ctx, src, dst))
	require.NoError(t, store.Delete(ctx, src))
	assert.Equal(t, []string{"renamed.csv"}, store.Keys("out"))

	rc, err := store.Get(ctx, dst)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))

	_, err = store.Get(ctx, src)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.CheckBucket(ctx, "out"))
	assert.ErrorIs(t, store.CheckBucket(ctx, "nope"), ErrNotFound)
}

func TestMemoryFailHook(t *testing.T) {
	store := NewMemory(nil)
	store.AddBucket("out")
	boom := errors.New("boom")
	store.Fail = func(op string, _ Location) error {
		if op == "delete" {
			return boom
		}
		return nil
	}

	assert.NoError(t, store.Put(context.Background(), Location{"out", "k"}, []byte("x"), ""))
	assert.ErrorIs(t, store.Delete(context.Background(), Location{"out", "k"}), boom)
}

func TestMemoryDirs(t *testing.T) {
	store := NewMemory(nil)
	for _, k := range []string{
		"subscriber=acme/year=2021/month=02/day=09/hour=11/a.gz",
		"subscriber=acme/year=2021/month=02/day=09/hour=12/b.gz",
		"subscriber=acme.proxy/year=2021/month=02/day=09/hour=11/c.gz",
		"README",
	} {
		store.PutAt(Location{"data", k}, []byte("x"), time.Time{})
	}
	ctx := context.Background()

	root, err := store.Dirs(ctx, "data", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"subscriber=acme.proxy/", "subscriber=acme/"}, root)

	hours, err := store.Dirs(ctx, "data", "subscriber=acme/year=2021/month=02/day=09/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"subscriber=acme/year=2021/month=02/day=09/hour=11/",
		"subscriber=acme/year=2021/month=02/day=09/hour=12/",
	}, hours)

	leaf, err := store.Dirs(ctx, "data", "subscriber=acme/year=2021/month=02/day=09/hour=11/")
	require.NoError(t, err)
	assert.Empty(t, leaf)

	_, err = store.Dirs(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}
