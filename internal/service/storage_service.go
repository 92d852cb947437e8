package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mediagallery/gallery-api/internal/config"
	"github.com/mediagallery/gallery-api/internal/observability"
)

const (
	defaultMaxMediaSize = 5 * 1024 * 1024
	defaultPresignTTL   = time.Hour
	mediaPathPrefix     = "media"
)

var (
	ErrFileTooBig      = newError(KindValidation, "File size too large. Maximum size is 5MB.")
	ErrInvalidFileType = newError(KindValidation, "Invalid file type. Only JPG, PNG, GIF, and WebP files are allowed.")

	ErrBucketCreationFailed = errors.New("failed to create storage bucket")
	ErrUploadFailed         = errors.New("failed to upload file")
	ErrDeleteFailed         = errors.New("failed to delete file")
	ErrURLGenerationFailed  = errors.New("failed to generate presigned URL")
	ErrForeignObjectKey     = errors.New("object key does not belong to user")

	allowedMediaTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}
)

// StoredObject describes an uploaded asset. ContentType is sniffed, never taken from the client.
type StoredObject struct {
	Key         string
	ContentType string
	Size        int64
}

// MediaStore holds the binary assets behind media records.
type MediaStore interface {
	UploadMedia(ctx context.Context, userID uint, file io.Reader, size int64) (StoredObject, error)
	DeleteMedia(ctx context.Context, userID uint, objectKey string) error
	MediaURL(ctx context.Context, objectKey string) (string, error)
	Ping(ctx context.Context) error
}

type MinIOMediaStore struct {
	client     *minio.Client
	bucketName string
	maxSize    int64
	presignTTL time.Duration
	initOnce   sync.Once
	initErr    error
}

// NewMinIOMediaStore defers bucket creation to the first operation so startup
// does not block on object storage.
func NewMinIOMediaStore(cfg *config.Config) (*MinIOMediaStore, error) {
	client, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	maxSize := cfg.MediaMaxUploadBytes
	if maxSize <= 0 {
		maxSize = defaultMaxMediaSize
	}
	presignTTL := cfg.StoragePresignTTL
	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}
	return &MinIOMediaStore{
		client:     client,
		bucketName: cfg.StorageBucket,
		maxSize:    maxSize,
		presignTTL: presignTTL,
	}, nil
}

func (s *MinIOMediaStore) lazyInit(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.ensureBucketExists(ctx)
	})
	return s.initErr
}

func (s *MinIOMediaStore) ensureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("%w: check bucket existence: %v", ErrBucketCreationFailed, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("%w: create bucket: %v", ErrBucketCreationFailed, err)
		}
	}
	return nil
}

// Ping reports whether the bucket is reachable. Used by readiness.
func (s *MinIOMediaStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

func (s *MinIOMediaStore) UploadMedia(ctx context.Context, userID uint, file io.Reader, size int64) (obj StoredObject, err error) {
	defer func() { observability.RecordStorageOperation(ctx, "put", storageOutcome(err)) }()

	contentType, head, err := sniffMedia(file, size, s.maxSize)
	if err != nil {
		return StoredObject{}, err
	}
	if err := s.lazyInit(ctx); err != nil {
		return StoredObject{}, err
	}

	objectKey := fmt.Sprintf("%s/user-%d/%s%s", mediaPathPrefix, userID, uuid.New().String(), allowedMediaTypes[contentType])
	_, err = s.client.PutObject(ctx, s.bucketName, objectKey, io.MultiReader(bytes.NewReader(head), file), size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"User-ID":     fmt.Sprintf("%d", userID),
			"Uploaded-At": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return StoredObject{Key: objectKey, ContentType: contentType, Size: size}, nil
}

// DeleteMedia only removes keys under the user's own prefix. Admin deletes pass the owner's id.
func (s *MinIOMediaStore) DeleteMedia(ctx context.Context, userID uint, objectKey string) (err error) {
	defer func() { observability.RecordStorageOperation(ctx, "delete", storageOutcome(err)) }()

	if strings.TrimSpace(objectKey) == "" {
		return nil
	}
	if err := checkObjectOwner(userID, objectKey); err != nil {
		return err
	}
	if err := s.lazyInit(ctx); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

func (s *MinIOMediaStore) MediaURL(ctx context.Context, objectKey string) (_ string, err error) {
	defer func() { observability.RecordStorageOperation(ctx, "presign", storageOutcome(err)) }()

	if strings.TrimSpace(objectKey) == "" {
		return "", fmt.Errorf("%w: empty object key", ErrURLGenerationFailed)
	}
	if err := s.lazyInit(ctx); err != nil {
		return "", err
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucketName, objectKey, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLGenerationFailed, err)
	}
	return presigned.String(), nil
}

// sniffMedia reads the first 512 bytes and classifies them. The returned head
// must be replayed in front of the remaining reader.
func sniffMedia(file io.Reader, size, maxSize int64) (string, []byte, error) {
	if size > maxSize {
		return "", nil, ErrFileTooBig
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("%w: read file for content detection: %v", ErrUploadFailed, err)
	}
	head = head[:n]
	contentType := strings.ToLower(strings.TrimSpace(http.DetectContentType(head)))
	if _, ok := allowedMediaTypes[contentType]; !ok {
		return "", nil, ErrInvalidFileType
	}
	return contentType, head, nil
}

func checkObjectOwner(userID uint, objectKey string) error {
	if strings.Contains(objectKey, "..") {
		return ErrForeignObjectKey
	}
	if !strings.HasPrefix(objectKey, fmt.Sprintf("%s/user-%d/", mediaPathPrefix, userID)) {
		return ErrForeignObjectKey
	}
	return nil
}

func storageOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case KindOf(err) == KindValidation:
		return "rejected"
	default:
		return "error"
	}
}
