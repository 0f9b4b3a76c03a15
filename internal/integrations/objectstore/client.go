// Package objectstore mirrors exported reports to an S3 bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by Download when the object does not exist. It
// matches fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("objectstore: object not found: %w", fs.ErrNotExist)

const maxObjectSize = 64 << 20

// s3API is the minimal S3 interface required by Client.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client reads and writes objects under an optional key prefix in one bucket.
type Client struct {
	api    s3API
	bucket string
	prefix string
}

// New creates a Client for bucket. prefix may be empty.
func New(api s3API, bucket, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("objectstore: api must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("objectstore: bucket must not be empty")
	}
	return &Client{api: api, bucket: bucket, prefix: strings.Trim(strings.TrimSpace(prefix), "/")}, nil
}

// Key returns the full object key for name.
func (c *Client) Key(name string) string {
	name = strings.TrimLeft(name, "/")
	if c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}

// Upload stores data under name and returns the object key.
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("objectstore: object name is required")
	}
	key := c.Key(name)
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put %s/%s: %w", c.bucket, key, err)
	}
	return key, nil
}

// Download returns the content stored under name. A missing object yields an
// error wrapping ErrNotFound.
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("objectstore: object name is required")
	}
	key := c.Key(name)
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, c.bucket, key)
		}
		return nil, fmt.Errorf("objectstore: get %s/%s: %w", c.bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s/%s: %w", c.bucket, key, err)
	}
	return data, nil
}
