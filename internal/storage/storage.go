package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrS3Unconfigured is returned for s3:// URIs on a store built without an S3 client.
var ErrS3Unconfigured = errors.New("s3 client not configured")

// ObjectStore defines the minimal methods export publishing needs.
type ObjectStore interface {
	// Get returns a reader for the given URI (s3://bucket/key or file://path).
	Get(ctx context.Context, uri string) (io.ReadCloser, int64, error)
	// Put writes content to the given URI; returns final URI.
	Put(ctx context.Context, uri string, body io.Reader) (string, error)
}

// s3API is the subset of the s3 client we use; allows test fakes.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store serves file:// URIs from the local filesystem and s3:// URIs from S3.
type Store struct {
	s3 s3API
}

// NewLocal returns a store that only handles file:// URIs.
func NewLocal() *Store { return &Store{} }

// NewS3 creates a store with an S3 client honoring env configuration for MinIO.
// Env support: AWS_REGION, AWS_ENDPOINT_URL_S3, AWS_S3_FORCE_PATH_STYLE.
func NewS3(ctx context.Context) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("AWS_ENDPOINT_URL_S3"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		if strings.EqualFold(os.Getenv("AWS_S3_FORCE_PATH_STYLE"), "true") {
			o.UsePathStyle = true
		}
	})
	return &Store{s3: client}, nil
}

func parseS3(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.New("invalid s3 uri")
	}
	return
}

func isLocal(uri string) bool {
	return strings.HasPrefix(uri, "file://") || !strings.Contains(uri, "://")
}

func (s *Store) Get(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if isLocal(uri) {
		f, err := os.Open(strings.TrimPrefix(uri, "file://"))
		if err != nil {
			return nil, 0, err
		}
		var size int64
		if info, _ := f.Stat(); info != nil {
			size = info.Size()
		}
		return f, size, nil
	}
	if s.s3 == nil {
		return nil, 0, ErrS3Unconfigured
	}
	b, k, err := parseS3(uri)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: &b, Key: &k})
	if err != nil {
		return nil, 0, err
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (s *Store) Put(ctx context.Context, uri string, body io.Reader) (string, error) {
	if isLocal(uri) {
		p := strings.TrimPrefix(uri, "file://")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", err
		}
		f, err := os.Create(p)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(f, body); err != nil {
			_ = f.Close()
			return "", err
		}
		return uri, f.Close()
	}
	if s.s3 == nil {
		return "", ErrS3Unconfigured
	}
	b, k, err := parseS3(uri)
	if err != nil {
		return "", err
	}
	// SigV4 needs a seekable payload; buffer anything else.
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		rs = bytes.NewReader(data)
	}
	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{Bucket: &b, Key: &k, Body: rs})
	if err != nil {
		return "", err
	}
	return uri, nil
}
