// Package blob stores uploaded objects (bug report screenshots, generated
// images, avatars) in S3 and hands back public URLs.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Config selects the bucket and credentials.
type Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// BaseURL overrides the public URL prefix; empty derives the standard
	// S3 URL from bucket and region.
	BaseURL string
}

// Uploader puts objects into one bucket.
type Uploader struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// New builds an uploader with static credentials.
func New(cfg Config) *Uploader {
	client := s3.New(s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	})
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &Uploader{client: client, bucket: cfg.Bucket, baseURL: baseURL}
}

// Upload writes data under the prefix with a random name and returns the
// public URL. ext includes the dot (".jpg").
func (u *Uploader) Upload(ctx context.Context, prefix, ext, contentType string, data []byte) (string, error) {
	key := path.Join(prefix, uuid.NewString()+ext)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("blob: upload %s: %w", key, err)
	}
	return u.baseURL + "/" + key, nil
}
