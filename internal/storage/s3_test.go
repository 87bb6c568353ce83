package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	pages    [][]types.Object
	dirPages [][]types.CommonPrefix
	listed   []string
	listIn   *s3.ListObjectsV2Input
	getErr   error
	put      *s3.PutObjectInput
	copied   *s3.CopyObjectInput
	deleted  *s3.DeleteObjectInput
	headErr  error
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listed = append(f.listed, aws.ToString(in.ContinuationToken))
	f.listIn = in
	page := 0
	if in.ContinuationToken != nil {
		page = len(aws.ToString(in.ContinuationToken))
	}
	total := len(f.pages)
	out := &s3.ListObjectsV2Output{}
	if in.Delimiter != nil {
		total = len(f.dirPages)
		out.CommonPrefixes = f.dirPages[page]
	} else {
		out.Contents = f.pages[page]
	}
	if page+1 < total {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strings.Repeat("x", page+1))
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("key=" + aws.ToString(in.Key)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copied = in
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = in
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3ListFollowsPages(t *testing.T) {
	ts := time.Date(2021, 2, 9, 0, 0, 0, 0, time.UTC)
	api := &fakeS3{pages: [][]types.Object{
		{{Key: aws.String("p/a.csv"), Size: aws.Int64(3), LastModified: aws.Time(ts)}},
		{{Key: aws.String("p/b.csv"), Size: aws.Int64(5), LastModified: aws.Time(ts.Add(time.Hour))}},
	}}
	store := NewS3(api, nil)

	objects, err := store.List(context.Background(), "in", "p/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "p/b.csv", objects[1].Key)
	assert.Equal(t, int64(5), objects[1].Size)
	assert.Equal(t, []string{"", "x"}, api.listed)

	latest, err := Latest(context.Background(), store, "in", "p/", ".csv")
	require.NoError(t, err)
	assert.Equal(t, "p/b.csv", latest.Key)
}

func TestS3DirsUsesDelimiter(t *testing.T) {
	api := &fakeS3{dirPages: [][]types.CommonPrefix{
		{{Prefix: aws.String("subscriber=b/")}},
		{{Prefix: aws.String("subscriber=a.proxy/")}, {Prefix: aws.String("subscriber=a/")}},
	}}
	store := NewS3(api, nil)

	dirs, err := store.Dirs(context.Background(), "data", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"subscriber=a.proxy/", "subscriber=a/", "subscriber=b/"}, dirs)
	assert.Equal(t, "/", aws.ToString(api.listIn.Delimiter))
	assert.Equal(t, types.RequestPayerRequester, api.listIn.RequestPayer)
	assert.Equal(t, []string{"", "x"}, api.listed)
}

func TestS3PutCopyDelete(t *testing.T) {
	api := &fakeS3{}
	store := NewS3(api, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Location{"out", "d/q.csv"}, []byte("abc"), "text/csv"))
	assert.Equal(t, "out", aws.ToString(api.put.Bucket))
	assert.Equal(t, int64(3), aws.ToInt64(api.put.ContentLength))
	assert.Equal(t, "text/csv", aws.ToString(api.put.ContentType))

	require.NoError(t, store.Copy(ctx, Location{"out", "d/my file.csv"}, Location{"out", "final.csv"}))
	assert.Equal(t, "out/d/my%20file.csv", aws.ToString(api.copied.CopySource))
	assert.Equal(t, "final.csv", aws.ToString(api.copied.Key))

	require.NoError(t, store.Delete(ctx, Location{"out", "d/q.csv.metadata"}))
	assert.Equal(t, "d/q.csv.metadata", aws.ToString(api.deleted.Key))
}

func TestS3Get(t *testing.T) {
	store := NewS3(&fakeS3{}, nil)
	rc, err := store.Get(context.Background(), Location{"in", "a.csv"})
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "key=a.csv", string(body))

	store = NewS3(&fakeS3{getErr: &types.NoSuchKey{Message: aws.String("gone")}}, nil)
	_, err = store.Get(context.Background(), Location{"in", "a.csv"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWrapS3Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such bucket", &types.NoSuchBucket{}, ErrNotFound},
		{"head not found", &types.NotFound{}, ErrNotFound},
		{"forbidden", &smithy.GenericAPIError{Code: "Forbidden"}, ErrAccessDenied},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, wrapS3Error(tt.err), tt.want)
		})
	}

	other := errors.New("throttled")
	assert.Equal(t, other, wrapS3Error(other))
}

func TestS3CheckBucket(t *testing.T) {
	store := NewS3(&fakeS3{headErr: &smithy.GenericAPIError{Code: "Forbidden"}}, nil)
	assert.ErrorIs(t, store.CheckBucket(context.Background(), "b"), ErrAccessDenied)
	assert.NoError(t, NewS3(&fakeS3{}, nil).CheckBucket(context.Background(), "b"))
}
