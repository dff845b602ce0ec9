// Package portrait stores character portrait images in an S3-compatible
// bucket and hands back the public URI that becomes a document's photoUri.
package portrait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const MaxBytes = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported portrait type")
	ErrTooLarge        = errors.New("portrait too large")
	ErrEmpty           = errors.New("portrait is empty")
)

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ObjectStore is the subset of the minio client the service uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type Service struct {
	objects   ObjectStore
	bucket    string
	publicURL string
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("portrait: client: %w", err)
	}
	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}
	svc := NewService(client, cfg.Bucket, publicURL)
	if err := svc.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func NewService(objects ObjectStore, bucket, publicURL string) *Service {
	return &Service{
		objects:   objects,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.objects.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("portrait: bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.objects.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("portrait: make bucket %s: %w", s.bucket, err)
	}
	log.Printf("portrait: created bucket %s", s.bucket)
	return nil
}

// Upload stores one image for the given character and returns its public
// URI. Each upload gets a fresh object name so cached URIs never go stale.
func (s *Service) Upload(ctx context.Context, ownerID, documentID, contentType string, body io.Reader, size int64) (string, error) {
	ext, ok := extensions[normalizeType(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if size <= 0 {
		return "", ErrEmpty
	}
	if size > MaxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	key := ObjectKey(ownerID, documentID, ext)
	if _, err := s.objects.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: normalizeType(contentType),
	}); err != nil {
		return "", fmt.Errorf("portrait: put %s: %w", key, err)
	}
	return s.URL(key), nil
}

// Remove deletes the object behind a URI produced by Upload. URIs that
// point elsewhere are ignored.
func (s *Service) Remove(ctx context.Context, uri string) error {
	prefix := s.publicURL + "/" + s.bucket + "/"
	if !strings.HasPrefix(uri, prefix) {
		return nil
	}
	key := strings.TrimPrefix(uri, prefix)
	if err := s.objects.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("portrait: remove %s: %w", key, err)
	}
	return nil
}

func (s *Service) URL(key string) string {
	return s.publicURL + "/" + s.bucket + "/" + key
}

func ObjectKey(ownerID, documentID, ext string) string {
	return path.Join(ownerID, documentID, uuid.NewString()+"."+ext)
}

func normalizeType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}
