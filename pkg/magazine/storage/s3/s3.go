package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// User metadata keys. S3 lower-cases them on the way back.
const (
	metaFileName   = "file-name"
	metaCollection = "collection"
)

// Config selects the bucket and credentials. Empty credentials fall back to
// the default AWS chain; Endpoint and UsePathStyle target MinIO and other
// S3-compatible servers.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string // images land under <Prefix>/<blob id>
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool

	// EnableSSE requests server-side encryption with SSEAlgorithm, either
	// AES256 or aws:kms. SSEKMSKeyID only applies to aws:kms.
	EnableSSE    bool
	SSEAlgorithm string
	SSEKMSKeyID  string

	CreateBucketIfNotExist bool
}

// Backend is an S3-compatible implementation of the magazine.BlobStore interface
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	config   Config
}

// New connects to the bucket, creating it first when configured to.
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	config.Prefix = strings.Trim(config.Prefix, "/")
	switch config.SSEAlgorithm {
	case "", "AES256", "aws:kms":
	default:
		return nil, fmt.Errorf("invalid SSE algorithm %q", config.SSEAlgorithm)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		config:   config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare bucket %s: %w", config.Bucket, err)
		}
	}

	return backend, nil
}

// objectKey applies the configured prefix.
func (b *Backend) objectKey(key string) string {
	if b.config.Prefix == "" {
		return key
	}
	return path.Join(b.config.Prefix, key)
}

// isNotFound reports whether err is one of the absence errors S3 and MinIO
// return for a missing key.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// createBucketIfNotExists creates the bucket when HeadBucket reports it missing.
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	code := errorCode(err)
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		code != "NotFound" && code != "NoSuchBucket" && code != "BadRequest" {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	if _, err := b.client.CreateBucket(ctx, createInput); err != nil {
		switch errorCode(err) {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// GetObjectMeta reads content type and user metadata with HeadObject
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*magazine.ObjectMeta, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(objectKey)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, magazine.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to head object %s: %w", objectKey, err)
	}

	contentType := aws.ToString(result.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata := make(map[string]string, len(result.Metadata)+1)
	for k, v := range result.Metadata {
		metadata[strings.ToLower(k)] = v
	}
	metadata["content_type"] = contentType

	return &magazine.ObjectMeta{
		Key:         objectKey,
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: contentType,
		FileName:    metadata[metaFileName],
		Collection:  metadata[metaCollection],
		UpdatedAt:   aws.ToTime(result.LastModified),
		Metadata:    metadata,
	}, nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// UploadWithParams uploads content with its content type, filename and
// owning collection
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params magazine.UploadParams) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(params.ObjectKey)),
		Body:   reader,
		Metadata: map[string]string{
			metaFileName:   params.FileName,
			metaCollection: params.Collection,
		},
	}
	if params.MimeType != "" {
		input.ContentType = aws.String(params.MimeType)
	}
	b.applySSE(input)

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", params.ObjectKey, err)
	}
	return nil
}

// Download streams the object body
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(objectKey)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, magazine.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object %s: %w", objectKey, err)
	}
	return result.Body, nil
}

// Delete deletes content from S3. DeleteObject succeeds for missing keys, so
// the object is checked first to report absence.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if _, err := b.GetObjectMeta(ctx, objectKey); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(objectKey)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectKey, err)
	}
	return nil
}
