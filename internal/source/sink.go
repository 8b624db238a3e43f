package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/storage"
)

// Sink stores an exported document and returns where it went.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// NewSink picks a sink for dest: s3://bucket/prefix or a local directory.
func NewSink(ctx context.Context, dest string) (Sink, error) {
	if strings.HasPrefix(dest, "s3://") {
		bucket, prefix, err := storage.ParseURL(dest)
		if err != nil {
			return nil, err
		}
		cli, err := storage.NewS3Client(ctx, bucket)
		if err != nil {
			return nil, err
		}
		return &S3Sink{Store: cli, Bucket: bucket, Prefix: prefix}, nil
	}
	if dest == "" {
		dest = "."
	}
	return &DirSink{Dir: dest}, nil
}

// DirSink writes exports into a local directory, creating it on first use.
type DirSink struct {
	Dir string
}

func (s *DirSink) Write(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	p := filepath.Join(s.Dir, filepath.Base(name))
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	log.Info().Str("path", p).Int("size", len(data)).Msg("export written")
	return p, nil
}

// S3Sink uploads exports under a key prefix.
type S3Sink struct {
	Store  ObjectStore
	Bucket string
	Prefix string
}

func (s *S3Sink) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.Prefix, path.Base(name))
	err := s.Store.UploadFile(ctx, key, data, &storage.FileMetadata{
		OriginalName: name,
		ContentType:  "application/pdf",
	})
	if err != nil {
		return "", err
	}
	return "s3://" + s.Bucket + "/" + key, nil
}
