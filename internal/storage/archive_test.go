package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "skipped/u1/abc.csv", ArchiveKey("u1", "abc"))
	assert.Equal(t, "skipped/__etc_passwd/_.csv", ArchiveKey("../etc/passwd", ""))
}

func TestSkippedRowsArchive(t *testing.T) {
	client := newFakeS3()
	a := NewSkippedRowsArchive(client, "exports")
	ctx := context.Background()

	key, err := a.Upload(ctx, "u1", "sess-1", []byte("rowNumber\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "skipped/u1/sess-1.csv", key)
	assert.Contains(t, client.objects, "exports/skipped/u1/sess-1.csv")

	data, err := a.Download(ctx, "u1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "rowNumber\r\n", string(data))

	_, err = a.Download(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	client.putErr = errors.New("AccessDenied")
	_, err = a.Upload(ctx, "u1", "sess-2", nil)
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestLocalArchive(t *testing.T) {
	a := NewLocalArchive(t.TempDir())
	ctx := context.Background()

	key, err := a.Upload(ctx, "u1", "sess-1", []byte("a,b\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "skipped/u1/sess-1.csv", key)

	data, err := a.Download(ctx, "u1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "a,b\r\n", string(data))

	_, err = a.Download(ctx, "u2", "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadAWSConfig_StaticCredentials(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), AWSOptions{
		Region: "us-west-2", AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
}
