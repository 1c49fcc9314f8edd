package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// fakeS3 is an in-memory bucket speaking the client API.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string][]byte
	pageSize int
	err      error
	sources  []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{bucket: "lake", objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	source := aws.ToString(in.CopySource)
	f.sources = append(f.sources, source)
	src, err := url.PathUnescape(strings.TrimPrefix(source, f.bucket+"/"))
	if err != nil {
		return nil, err
	}
	data, ok := f.objects[src]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	f.objects[aws.ToString(in.Key)] = append([]byte(nil), data...)
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

var _ API = (*fakeS3)(nil)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), domain.BlobStoreConfig{Driver: "s3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestStore_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	s := NewWithClient(fake, "lake")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "raw/orders 1.json", []byte(`[{"id":"1"}]`)))
	require.NoError(t, s.Copy(ctx, "raw/orders 1.json", "staging/orders 1.json"))
	require.NoError(t, s.Delete(ctx, "raw/orders 1.json"))

	assert.Equal(t, []string{"lake/raw/orders%201.json"}, fake.sources)

	data, err := s.Get(ctx, "staging/orders 1.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(data))

	ok, err := s.Exists(ctx, "staging/orders 1.json")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "raw/orders 1.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_NotFound(t *testing.T) {
	s := NewWithClient(newFakeS3(), "lake")
	ctx := context.Background()

	_, err := s.Get(ctx, "raw/missing.json")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.Copy(ctx, "raw/missing.json", "staging/missing.json")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_ListPaginates(t *testing.T) {
	fake := newFakeS3()
	s := NewWithClient(fake, "lake")
	ctx := context.Background()
	for _, k := range []string{"raw/e", "raw/a", "raw/c", "raw/b", "raw/d", "staging/x"} {
		require.NoError(t, s.Put(ctx, k, nil))
	}

	keys, err := s.List(ctx, "raw/")
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/a", "raw/b", "raw/c", "raw/d", "raw/e"}, keys)
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &types.NoSuchKey{}, domain.ErrNotFound},
		{"head not found", &types.NotFound{}, domain.ErrNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, domain.ErrAccessDenied},
		{"bad key id", &smithy.GenericAPIError{Code: "InvalidAccessKeyId"}, domain.ErrAccessDenied},
		{"throttled", &smithy.GenericAPIError{Code: "SlowDown"}, domain.ErrTransient},
		{"network", errors.New("connection reset"), domain.ErrTransient},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapErr("op", tt.err)
			assert.True(t, errors.Is(err, tt.want), err)
			assert.True(t, domain.IsInfrastructure(err))
		})
	}
	assert.NoError(t, mapErr("op", nil))
}

func TestStore_ErrorsAreMapped(t *testing.T) {
	fake := newFakeS3()
	fake.err = &smithy.GenericAPIError{Code: "AccessDenied"}
	s := NewWithClient(fake, "lake")

	_, err := s.List(context.Background(), "raw/")
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))

	_, err = s.Exists(context.Background(), "raw/a")
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))
}
