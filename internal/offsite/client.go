// Package offsite pushes snapshot exports to an S3-compatible bucket
// and hands out presigned links for sharing individual photos.
package offsite

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client wraps an S3-compatible object storage client
type Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewClient creates an offsite client. When endpoint or credentials are
// missing the client is created disabled rather than erroring, so the
// application runs without offsite storage configured.
func NewClient(endpoint, bucket, accessKeyID, accessKeySecret string) (*Client, error) {
	c := &Client{bucket: bucket}
	if endpoint == "" || accessKeyID == "" || accessKeySecret == "" {
		return c, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			accessKeySecret,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load offsite storage config: %w", err)
	}

	c.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	c.presign = s3.NewPresignClient(c.client)
	return c, nil
}

// IsConfigured returns true when the client can reach a bucket
func (c *Client) IsConfigured() bool {
	return c.client != nil
}

// Upload writes an object to the snapshot bucket
func (c *Client) Upload(ctx context.Context, objectKey, contentType string, body []byte) error {
	if c.client == nil {
		return fmt.Errorf("offsite storage is not configured")
	}
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}
	return nil
}

// PresignDownload generates a time-limited download URL for an object
func (c *Client) PresignDownload(ctx context.Context, objectKey string, expiresIn time.Duration) (string, error) {
	if c.presign == nil {
		return "", fmt.Errorf("offsite storage is not configured")
	}
	request, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("failed to presign GetObject: %w", err)
	}
	return request.URL, nil
}

// Delete removes an object from the snapshot bucket
func (c *Client) Delete(ctx context.Context, objectKey string) error {
	if c.client == nil {
		return fmt.Errorf("offsite storage is not configured")
	}
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
	})
	return err
}
