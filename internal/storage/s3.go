package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Client wraps the AWS S3 client for one bucket
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
}

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	Metadata     map[string]string `json:"metadata"`
}

// NewS3Client creates a new S3 client using the default credential chain
func NewS3Client(ctx context.Context, bucketName string) (*S3Client, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("s3: empty bucket name")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)

	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: bucketName,
	}, nil
}

// DownloadFile downloads an object and its metadata
func (s *S3Client) DownloadFile(ctx context.Context, key string) ([]byte, *FileMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	metadata := &FileMetadata{
		Metadata: make(map[string]string),
		Size:     int64(len(data)),
	}
	if result.ContentType != nil {
		metadata.ContentType = *result.ContentType
	}
	for k, v := range result.Metadata {
		metadata.Metadata[strings.ToLower(k)] = v
	}
	if name, ok := metadata.Metadata["name"]; ok {
		metadata.OriginalName = name
	}

	log.Info().
		Str("bucket", s.bucketName).
		Str("key", key).
		Str("original_name", metadata.OriginalName).
		Int("size", len(data)).
		Msg("downloaded file from S3")

	return data, metadata, nil
}

// UploadFile stores data under key with the s3 upload manager
func (s *S3Client) UploadFile(ctx context.Context, key string, data []byte, metadata *FileMetadata) error {
	s3Metadata := make(map[string]string)
	contentType := "application/octet-stream"
	if metadata != nil {
		if metadata.OriginalName != "" {
			s3Metadata["name"] = metadata.OriginalName
		}
		if metadata.ContentType != "" {
			contentType = metadata.ContentType
		}
		for k, v := range metadata.Metadata {
			s3Metadata[k] = v
		}
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    s3Metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("UploadFile: upload failed")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().Str("key", key).Str("location", out.Location).Int("size", len(data)).Msg("uploaded file to S3")
	return nil
}

// ParseURL splits s3://bucket/key. The key may be empty.
func ParseURL(u string) (bucket, key string, err error) {
	path, ok := strings.CutPrefix(u, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 url: %s", u)
	}
	bucket, key, _ = strings.Cut(path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 url: %s", u)
	}
	return bucket, key, nil
}
