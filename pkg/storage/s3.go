package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// FolderSignatures is the S3 prefix for archived signature images.
const FolderSignatures = "signatures"

// extensionFor maps accepted signature image types to an object suffix.
var extensionFor = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	SignaturesBucket string
}

// S3 archives signature images.
type S3 struct {
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("signatures_bucket", cfg.SignaturesBucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	uploader := manager.NewUploader(s3.NewFromConfig(awsCfg))
	return &S3{
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// SignatureKey returns the object key: signatures/{contract_id}/{signature_id}.png|.jpg.
func SignatureKey(contractID, signatureID, contentType string) string {
	ext, ok := extensionFor[contentType]
	if !ok {
		ext = ".bin"
	}
	return path.Join(FolderSignatures, contractID, signatureID+ext)
}

// SignaturesBucket returns the bucket signature images are archived to.
func (s *S3) SignaturesBucket() string { return s.cfg.SignaturesBucket }

// PutSignature uploads an image to the signatures bucket. Objects are private and
// written with server-side encryption.
// It returns the s3:// location of the object.
func (s *S3) PutSignature(ctx context.Context, key, contentType string, image []byte) (string, error) {
	return s.upload(ctx, s.cfg.SignaturesBucket, key, contentType, bytes.NewReader(image), int64(len(image)))
}

func (s *S3) upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ContentType:          aws.String(contentType),
		ContentLength:        contentLengthPtr,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}
