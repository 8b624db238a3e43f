// Package source reads input documents from local paths, HTTP and S3, and writes
// exports to a directory or an S3 prefix.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/storage"
)

// Input is a fetched document.
type Input struct {
	Name string
	Data []byte
}

// ObjectStore is the part of the S3 client sources and sinks use.
type ObjectStore interface {
	DownloadFile(ctx context.Context, key string) ([]byte, *storage.FileMetadata, error)
	UploadFile(ctx context.Context, key string, data []byte, metadata *storage.FileMetadata) error
}

// Fetcher resolves references to bytes.
type Fetcher struct {
	HTTP *http.Client

	// S3 opens a client for a bucket; storage.NewS3Client when nil.
	S3 func(ctx context.Context, bucket string) (ObjectStore, error)

	// MaxBytes caps the size of a fetched document; zero means no cap.
	MaxBytes int64
}

// NewFetcher returns a Fetcher with an HTTP timeout.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: timeout}, MaxBytes: maxBytes}
}

// Fetch supports:
// - file://path or absolute/relative filesystem paths
// - http(s):// URLs
// - s3://bucket/key
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Input, error) {
	var (
		in  *Input
		err error
	)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		in, err = f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		in, err = f.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		in, err = f.fetchFile(strings.TrimPrefix(ref, "file://"))
	default:
		in, err = f.fetchFile(ref)
	}
	if err != nil {
		return nil, fault.Unreadable(ref, err)
	}
	log.Debug().Str("ref", ref).Str("file", in.Name).Int("size", len(in.Data)).Msg("fetched input")
	return in, nil
}

func (f *Fetcher) fetchFile(p string) (*Input, error) {
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	data, err := f.readAll(fh)
	if err != nil {
		return nil, err
	}
	return &Input{Name: filepath.Base(p), Data: data}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) (*Input, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	data, err := f.readAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Input{Name: nameFromURL(ref), Data: data}, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) (*Input, error) {
	bucket, key, err := storage.ParseURL(ref)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("invalid s3 url: %s: missing key", ref)
	}
	cli, err := f.s3(ctx, bucket)
	if err != nil {
		return nil, err
	}
	data, meta, err := cli.DownloadFile(ctx, key)
	if err != nil {
		return nil, err
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("object is larger than %d bytes", f.MaxBytes)
	}
	name := path.Base(key)
	if meta != nil && meta.OriginalName != "" {
		name = meta.OriginalName
	}
	return &Input{Name: name, Data: data}, nil
}

func (f *Fetcher) s3(ctx context.Context, bucket string) (ObjectStore, error) {
	if f.S3 != nil {
		return f.S3(ctx, bucket)
	}
	return storage.NewS3Client(ctx, bucket)
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	if f.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("input is larger than %d bytes", f.MaxBytes)
	}
	return data, nil
}

func nameFromURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return "document.pdf"
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "document.pdf"
	}
	if un, err := url.PathUnescape(name); err == nil {
		name = un
	}
	return name
}
