package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible gateway.
type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKey       string
	SecretKey       string
	SessionToken    string
	UseSSL          bool
	ForcePathStyle  bool
	TLSInsecureSkip bool
}

type S3 struct {
	Client *minio.Client
	bucket string
}

// NewS3 authenticates once; the returned gateway is shared by every component.
func NewS3(opts S3Options) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLSInsecureSkip {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "https://"), "http://")
	client, err := minio.New(strings.TrimSuffix(endpoint, "/"), &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
		BucketLookup: func() minio.BucketLookupType {
			if opts.ForcePathStyle {
				return minio.BucketLookupPath
			}
			return minio.BucketLookupAuto
		}(),
	})
	if err != nil {
		return nil, transportErr("connect", "", err)
	}
	return &S3{Client: client, bucket: opts.Bucket}, nil
}

func (s *S3) Bucket() string { return s.bucket }

func (s *S3) Info(ctx context.Context, key string) (ObjectInfo, bool, error) {
	stat, err := s.Client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, false, nil
		}
		return ObjectInfo{}, false, transportErr("info", key, err)
	}
	return ObjectInfo{Key: key, Size: stat.Size, Modified: stat.LastModified, ETag: stat.ETag}, true, nil
}

func (s *S3) Fetch(ctx context.Context, key, dest string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return false, err
	}
	if err := s.Client.FGetObject(ctx, s.bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, transportErr("fetch", key, err)
	}
	return true, nil
}

func (s *S3) Put(ctx context.Context, key, src string) error {
	if src == "" {
		_, err := s.Client.PutObject(ctx, s.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
		return transportErr("put", key, err)
	}
	_, err := s.Client.FPutObject(ctx, s.bucket, key, src, minio.PutObjectOptions{ContentType: "application/zip"})
	return transportErr("put", key, err)
}

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ch := s.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	infos := []ObjectInfo{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, transportErr("list", prefix, obj.Err)
		}
		if obj.Key == prefix || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		infos = append(infos, ObjectInfo{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified, ETag: obj.ETag})
	}
	return infos, nil
}

func (s *S3) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.Client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", transportErr("sign", key, err)
	}
	return u.String(), nil
}

func (s *S3) Buckets(ctx context.Context) ([]string, error) {
	buckets, err := s.Client.ListBuckets(ctx)
	if err != nil {
		return nil, transportErr("list buckets", "", err)
	}
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
}

var _ Gateway = (*S3)(nil)
