// Package storage keeps skipped-row exports after an import so they can be
// downloaded later.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned when no export exists under a key.
var ErrNotFound = errors.New("storage: export not found")

// ArchiveKey is the object key of one export.
func ArchiveKey(userID, id string) string {
	return fmt.Sprintf("skipped/%s/%s.csv", safeSegment(userID), safeSegment(id))
}

func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}

// =============================================================================
// S3
// =============================================================================

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SkippedRowsArchive stores exports in an S3 bucket.
type SkippedRowsArchive struct {
	client S3API
	bucket string
}

func NewSkippedRowsArchive(client S3API, bucket string) *SkippedRowsArchive {
	return &SkippedRowsArchive{client: client, bucket: bucket}
}

// NewSkippedRowsArchiveFromConfig builds the S3 client from cfg.
func NewSkippedRowsArchiveFromConfig(cfg aws.Config, bucket string) *SkippedRowsArchive {
	return NewSkippedRowsArchive(s3.NewFromConfig(cfg), bucket)
}

// Upload writes data and returns its key.
func (a *SkippedRowsArchive) Upload(ctx context.Context, userID, id string, data []byte) (string, error) {
	key := ArchiveKey(userID, id)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("putting object to S3: %w", err)
	}
	return key, nil
}

// Download returns the export stored for userID and id.
func (a *SkippedRowsArchive) Download(ctx context.Context, userID, id string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(ArchiveKey(userID, id)),
	})
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	return data, nil
}

// =============================================================================
// LOCAL
// =============================================================================

// LocalArchive stores exports under a directory. Used when no bucket is configured.
type LocalArchive struct {
	root string
}

func NewLocalArchive(root string) *LocalArchive { return &LocalArchive{root: root} }

func (a *LocalArchive) Upload(_ context.Context, userID, id string, data []byte) (string, error) {
	key := ArchiveKey(userID, id)
	path := filepath.Join(a.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return key, nil
}

func (a *LocalArchive) Download(_ context.Context, userID, id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(ArchiveKey(userID, id))))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return data, nil
}
