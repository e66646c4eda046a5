package s3blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	data     []byte
	etag     string
	modified time.Time
}

// memBucket emulates the conditional write semantics of S3
type memBucket struct {
	objects map[string]*object
	puts    int
	// ignoreConditions drops If-Match and If-None-Match like some S3
	// compatible stores do
	ignoreConditions bool
	mu               sync.Mutex
}

func newMemBucket() *memBucket {
	return &memBucket{objects: make(map[string]*object)}
}

func statusError(code int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New(http.StatusText(code)),
		},
	}
}

func (b *memBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		obj := b.objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			ETag:         aws.String(obj.etag),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func (b *memBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		ETag:         aws.String(obj.etag),
		LastModified: aws.Time(obj.modified),
	}, nil
}

func (b *memBucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, statusError(http.StatusNotFound)
	}
	return &s3.HeadObjectOutput{ETag: aws.String(obj.etag), LastModified: aws.Time(obj.modified)}, nil
}

func (b *memBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := aws.ToString(in.Key)
	existing, exists := b.objects[key]
	if b.ignoreConditions {
		in.IfNoneMatch, in.IfMatch = nil, nil
	}
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, statusError(http.StatusPreconditionFailed)
	}
	if in.IfMatch != nil && (!exists || existing.etag != aws.ToString(in.IfMatch)) {
		if !exists {
			return nil, statusError(http.StatusNotFound)
		}
		return nil, statusError(http.StatusPreconditionFailed)
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(data)
	etag := "\"" + hex.EncodeToString(sum[:]) + "\""
	b.objects[key] = &object{data: data, etag: etag, modified: time.Now()}
	b.puts++
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (b *memBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func files(t *testing.T, name, main string) cloudsync.Text {
	t.Helper()
	encoded, err := cloudsync.EncodeHeader(&cloudsync.Header{ID: "h", Name: name})
	require.NoError(t, err)
	return cloudsync.Text{cloudsync.HeaderKey: encoded, "main.ts": main}
}

func TestProvider_RoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	p := NewWithAPI(bucket, &Config{Bucket: "projects", Prefix: "/alice/"})

	created, err := p.Upload(ctx, "", "", files(t, "blinky", "one"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.Version)
	assert.NotContains(t, created.Version, "\"")
	assert.Contains(t, bucket.objects, "alice/"+created.ID+".json")

	list, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, created.Version, list[0].Version)

	got, err := p.Download(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "blinky", got.Name)
	assert.Equal(t, "one", got.Content["main.ts"])
	assert.Equal(t, created.Version, got.Version)

	updated, err := p.Upload(ctx, created.ID, created.Version, files(t, "blinky", "two"))
	require.NoError(t, err)
	assert.NotEqual(t, created.Version, updated.Version)

	require.NoError(t, p.Delete(ctx, created.ID))
	_, err = p.Download(ctx, created.ID)
	assert.ErrorIs(t, err, cloudsync.ErrNotFound)
}

func TestProvider_StaleBaseVersionConflicts(t *testing.T) {
	ctx := context.Background()
	p := NewWithAPI(newMemBucket(), &Config{Bucket: "projects"})

	created, err := p.Upload(ctx, "", "", files(t, "a", "one"))
	require.NoError(t, err)
	_, err = p.Upload(ctx, created.ID, created.Version, files(t, "a", "two"))
	require.NoError(t, err)

	_, err = p.Upload(ctx, created.ID, created.Version, files(t, "a", "three"))
	require.Error(t, err)
	assert.True(t, cloudsync.IsConflict(err))
	var conflict *cloudsync.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, created.ID, conflict.ID)
}

func TestProvider_HeadObjectGuardsUnconditionalStores(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	bucket.ignoreConditions = true
	p := NewWithAPI(bucket, &Config{Bucket: "projects"})

	created, err := p.Upload(ctx, "", "", files(t, "a", "one"))
	require.NoError(t, err)
	second, err := p.Upload(ctx, created.ID, created.Version, files(t, "a", "two"))
	require.NoError(t, err)

	_, err = p.Upload(ctx, created.ID, created.Version, files(t, "a", "three"))
	var conflict *cloudsync.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, second.Version, conflict.CurrentVersion)
	assert.Equal(t, 2, bucket.puts)

	_, err = p.Upload(ctx, "missing", "v1", files(t, "a", "four"))
	assert.ErrorIs(t, err, cloudsync.ErrNotFound)
}

func TestProvider_ListIgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	bucket.objects["team/notes.txt"] = &object{etag: "\"x\""}
	bucket.objects["team/nested/a.json"] = &object{etag: "\"y\""}
	bucket.objects["other/b.json"] = &object{etag: "\"z\""}
	bucket.objects["team/c.json"] = &object{etag: "\"w\""}

	p := NewWithAPI(bucket, &Config{Bucket: "projects", Prefix: "team"})
	list, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "w", list[0].Version)
}

func TestProvider_Login(t *testing.T) {
	p := NewWithAPI(newMemBucket(), &Config{})
	sess := cloudsync.NewSession(cloudsync.NewRegistry(p), nil, nil, nil)

	p.LoginCheck(context.Background(), sess)
	assert.Nil(t, sess.Provider())
	assert.Error(t, p.Login(context.Background(), sess))

	p.config.Bucket = "projects"
	require.NoError(t, p.Login(context.Background(), sess))
	assert.Equal(t, p, sess.Provider())
}

func TestProvider_SyncPassConflict(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	p := NewWithAPI(bucket, &Config{Bucket: "projects"})

	created, err := p.Upload(ctx, "", "", files(t, "a", "base"))
	require.NoError(t, err)
	_, err = p.Upload(ctx, created.ID, created.Version, files(t, "a", "elsewhere"))
	require.NoError(t, err)

	// local copy still at the first version with unsaved edits
	_, err = p.Upload(ctx, created.ID, created.Version, files(t, "a", "local"))
	assert.True(t, cloudsync.IsConflict(err))
	assert.Equal(t, 2, bucket.puts)
}
