// Package descriptorstore implements external.DescriptorStore against
// S3-compatible object storage, the same connection/timeout shape as
// squat-collective-rat's storage adapter: a dedicated transport, and
// separate timeouts for metadata versus data-transfer calls.
package descriptorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultMetadataTimeout = 10 * time.Second
	defaultDataTimeout     = 60 * time.Second
)

// Config holds connection settings for the descriptor bucket
// (PKGSTORE_BUCKET, spec.md §6 environment variables).
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: defaultMetadataTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &Store{client: client, bucket: cfg.Bucket}

	metaCtx, cancel := context.WithTimeout(ctx, defaultMetadataTimeout)
	defer cancel()
	exists, err := client.BucketExists(metaCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(metaCtx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return s, nil
}

// GetDescriptor reads "<flow_id>/datapackage.json" from the bucket
// (spec.md §4.D step 7, GLOSSARY "Descriptor"). A missing object is not
// an error — it just means the runner hasn't written one (yet).
func (s *Store) GetDescriptor(ctx context.Context, flowID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDataTimeout)
	defer cancel()

	path := flowID + "/datapackage.json"
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get descriptor %s: %w", path, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("stat descriptor %s: %w", path, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read descriptor %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return doc, nil
}
