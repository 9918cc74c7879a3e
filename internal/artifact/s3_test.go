package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(
	_ context.Context,
	in *s3.PutObjectInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(
	_ context.Context,
	in *s3.GetObjectInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(
	_ context.Context,
	in *s3.DeleteObjectInput,
	_ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StorePutOpen(t *testing.T) {
	t.Parallel()
	fake := newFakeS3()
	s, err := NewS3Store(S3StoreOptions{Client: fake, Bucket: "dataport", Prefix: "/artifacts/"})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := s.Put(ctx, "exports/job-1.csv", strings.NewReader("id\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://dataport/artifacts/exports/job-1.csv", uri)
	assert.Contains(t, fake.objects, "dataport/artifacts/exports/job-1.csv")

	rc, err := s.Open(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", readAll(t, rc))

	rc, err = s.Open(ctx, "exports/job-1.csv")
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", readAll(t, rc))
}

func TestS3StoreDelete(t *testing.T) {
	t.Parallel()
	fake := newFakeS3()
	s, err := NewS3Store(S3StoreOptions{Client: fake, Bucket: "dataport", Prefix: "artifacts"})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := s.Put(ctx, "exports/job-1.csv", strings.NewReader("id\n1\n"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, uri))
	assert.NotContains(t, fake.objects, "dataport/artifacts/exports/job-1.csv")

	require.ErrorIs(t, s.Delete(ctx, "s3://other/exports/job-1.csv"), ErrForeignURI)
}

func TestS3StoreWriteOnce(t *testing.T) {
	t.Parallel()
	s, err := NewS3Store(S3StoreOptions{Client: newFakeS3(), Bucket: "dataport"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "a.csv", strings.NewReader("1"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "a.csv", strings.NewReader("2"))
	require.ErrorIs(t, err, ErrExists)
}

func TestS3StoreErrors(t *testing.T) {
	t.Parallel()
	fake := newFakeS3()
	s, err := NewS3Store(S3StoreOptions{Client: fake, Bucket: "dataport"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Open(ctx, "s3://other/a.csv")
	require.ErrorIs(t, err, ErrForeignURI)

	_, err = s.Open(ctx, "file:///tmp/a.csv")
	require.ErrorIs(t, err, ErrForeignURI)

	_, err = s.Open(ctx, "s3://dataport/missing.csv")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put(ctx, "../a.csv", strings.NewReader("1"))
	require.ErrorIs(t, err, ErrInvalidKey)

	fake.putErr = errors.New("network down")
	_, err = s.Put(ctx, "b.csv", strings.NewReader("1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExists)
}

func TestNewS3StoreValidation(t *testing.T) {
	t.Parallel()
	_, err := NewS3Store(S3StoreOptions{Bucket: "b"})
	require.Error(t, err)
	_, err = NewS3Store(S3StoreOptions{Client: newFakeS3()})
	require.Error(t, err)
}
