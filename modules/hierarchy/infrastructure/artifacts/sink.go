// Package artifacts stores exports, pre-import backups and import manifests.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// DirSink writes artifacts below a local directory.
type DirSink struct {
	Root string
}

func NewDirSink(root string) (*DirSink, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("artifact dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create artifact dir")
	}
	return &DirSink{Root: root}, nil
}

func (s *DirSink) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "create artifact dir")
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write artifact %s", rel)
	}
	return full, nil
}

// MinioSink writes artifacts to an S3-compatible bucket.
type MinioSink struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

func NewMinioSink(ctx context.Context, cfg MinioConfig) (*MinioSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "minio bucket exists")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "minio make bucket")
		}
	}
	return &MinioSink{Client: client, Bucket: cfg.Bucket, Prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *MinioSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	objectPath := rel
	if s.Prefix != "" {
		objectPath = path.Join(s.Prefix, rel)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.Client.PutObject(ctx, s.Bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", errors.Wrapf(err, "put object %s", objectPath)
	}
	return fmt.Sprintf("s3://%s/%s", s.Bucket, objectPath), nil
}

// cleanName keeps artifact names relative and inside the sink root.
func cleanName(name string) (string, error) {
	rel := path.Clean("/" + strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." {
		return "", fmt.Errorf("invalid artifact name: %q", name)
	}
	return rel, nil
}
