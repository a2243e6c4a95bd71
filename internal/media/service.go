package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"go.uber.org/zap"

	"github.com/cerberodev/sapo/internal/identity"
)

const (
	uploadKeyPrefix      = "messages"
	defaultUploadExpiry  = 5 * time.Minute
	maxUploadBytes int64 = 10 << 20
)

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var (
	// ErrUnsupportedContentType reports an upload content type outside the image allowlist.
	ErrUnsupportedContentType = errors.New("media: unsupported content type")

	// ErrInvalidServiceConfig reports unusable media service configuration.
	ErrInvalidServiceConfig = errors.New("media: invalid service config")

	errMissingBucket        = errors.New("bucket required")
	errMissingPublicBaseURL = errors.New("public base url required")
	errMissingPresigner     = errors.New("presign client required")
	errMissingIDProvider    = errors.New("id provider required")
)

// Presigner abstracts the S3 presign client for upload URL generation.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ServiceConfig bundles the dependencies of the media service.
type ServiceConfig struct {
	Bucket        string
	PublicBaseURL string
	Presigner     Presigner
	IDProvider    identity.IDProvider
	UploadExpiry  time.Duration
	Logger        *zap.Logger
	Clock         func() time.Time
}

// Upload describes a presigned image upload slot.
type Upload struct {
	UploadURL string
	PublicURL string
	Key       string
	ExpiresIn time.Duration
	MaxBytes  int64
}

// Service issues presigned S3 upload URLs for message images.
type Service struct {
	bucket        string
	publicBaseURL string
	presigner     Presigner
	idProvider    identity.IDProvider
	uploadExpiry  time.Duration
	logger        *zap.Logger
	clock         func() time.Time
}

// NewService constructs a media service with validated configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, errMissingBucket)
	}
	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, errMissingPublicBaseURL)
	}
	if cfg.Presigner == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, errMissingPresigner)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, errMissingIDProvider)
	}

	uploadExpiry := cfg.UploadExpiry
	if uploadExpiry <= 0 {
		uploadExpiry = defaultUploadExpiry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		bucket:        strings.TrimSpace(cfg.Bucket),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		presigner:     cfg.Presigner,
		idProvider:    cfg.IDProvider,
		uploadExpiry:  uploadExpiry,
		logger:        logger,
		clock:         clock,
	}, nil
}

// NewS3Presigner builds a real S3 presign client from the ambient AWS config.
func NewS3Presigner(ctx context.Context, region string) (Presigner, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewPresignClient(s3.NewFromConfig(awsCfg)), nil
}

// PresignUpload mints a presigned PUT URL for an image upload. The caller
// uploads directly to S3 and then posts the returned public URL with the
// message content.
func (s *Service) PresignUpload(ctx context.Context, visitorID identity.VisitorID, contentType string) (Upload, error) {
	normalizedType := strings.ToLower(strings.TrimSpace(contentType))
	extension, ok := allowedContentTypes[normalizedType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	objectID, err := s.idProvider.NewID()
	if err != nil {
		return Upload{}, fmt.Errorf("mint object id: %w", err)
	}
	key := path.Join(
		uploadKeyPrefix,
		s.clock().UTC().Format("20060102"),
		objectID+extension,
	)

	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(normalizedType),
	}, s3.WithPresignExpires(s.uploadExpiry))
	if err != nil {
		return Upload{}, fmt.Errorf("presign upload: %w", err)
	}

	s.logger.Debug("presigned upload",
		zap.String("visitor_id", visitorID.String()),
		zap.String("key", key),
	)

	return Upload{
		UploadURL: request.URL,
		PublicURL: s.publicBaseURL + "/" + key,
		Key:       key,
		ExpiresIn: s.uploadExpiry,
		MaxBytes:  maxUploadBytes,
	}, nil
}
