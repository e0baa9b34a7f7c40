package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"pv-go/internal/pv"
)

// DefaultMultipartThreshold is the object size above which uploads switch to
// the multipart upload manager (16MB).
const DefaultMultipartThreshold int64 = 16 * 1024 * 1024

// S3Store implements the ObjectStore interface against an S3 bucket
// (or an S3-compatible endpoint). All keys are stored under an optional
// bucket prefix so multiple deployments can share a bucket.
type S3Store struct {
	client             *s3.Client
	uploader           *manager.Uploader
	bucket             string
	prefix             string
	multipartThreshold int64
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket             string
	Prefix             string
	Region             string
	Endpoint           string // optional, for S3-compatible stores
	AccessKeyID        string // optional; default credential chain when empty
	SecretAccessKey    string
	MultipartThreshold int64 // defaults to DefaultMultipartThreshold
}

// NewS3Store creates an S3-backed object store. Credentials come from the
// default AWS credential chain unless static keys are provided.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, opts), nil
}

// NewS3StoreFromClient wraps an existing S3 client. Used by tests and by
// callers that need custom credential handling.
func NewS3StoreFromClient(client *s3.Client, opts S3Options) *S3Store {
	return newS3Store(client, opts)
}

func newS3Store(client *s3.Client, opts S3Options) *S3Store {
	threshold := opts.MultipartThreshold
	if threshold <= 0 {
		threshold = DefaultMultipartThreshold
	}

	return &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = threshold
		}),
		bucket:             opts.Bucket,
		prefix:             opts.Prefix,
		multipartThreshold: threshold,
	}
}

// fullKey prepends the configured bucket prefix.
func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Get retrieves the object at key.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("get %s: %w", key, pv.ErrNotFound)
		}
		var invalidState *types.InvalidObjectState
		if errors.As(err, &invalidState) {
			// Object is in an archive storage class and not yet restored.
			return nil, fmt.Errorf("get %s: %w", key, pv.ErrNotYetAvailable)
		}
		return nil, &pv.TransientNetworkError{Op: "get " + key, Err: err}
	}
	return out.Body, nil
}

// Put stores an object at key. Objects at or above the multipart threshold
// go through the upload manager, which splits them into concurrent parts.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if size >= s.multipartThreshold {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.fullKey(key)),
			Body:   r,
		})
		if err != nil {
			return &pv.TransientNetworkError{Op: "put " + key, Err: err}
		}
		return nil
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return &pv.TransientNetworkError{Op: "put " + key, Err: err}
	}
	return nil
}

// PutIfAbsent atomically creates the object at key only if absent, using a
// conditional write (If-None-Match: *). S3 answers 412 PreconditionFailed
// when the object already exists.
func (s *S3Store) PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return false, nil
		}
		return false, &pv.TransientNetworkError{Op: "putIfAbsent " + key, Err: err}
	}
	return true, nil
}

// Head checks for an object without fetching its content.
func (s *S3Store) Head(ctx context.Context, key string) (*pv.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("head %s: %w", key, pv.ErrNotFound)
		}
		return nil, &pv.TransientNetworkError{Op: "head " + key, Err: err}
	}

	info := &pv.ObjectInfo{Key: key}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModifiedAt = *out.LastModified
	}

	// Archive storage classes answer Head normally; the Restore header says
	// whether a fetchable copy exists or a restore is still running.
	switch out.StorageClass {
	case types.StorageClassGlacier, types.StorageClassDeepArchive:
		restore := aws.ToString(out.Restore)
		switch {
		case strings.Contains(restore, `ongoing-request="true"`):
			info.Archived = true
			info.Restoring = true
		case strings.Contains(restore, `ongoing-request="false"`):
			// A restored copy is available until its expiry.
		default:
			info.Archived = true
		}
	}
	return info, nil
}

// List returns info for all objects whose key starts with prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]pv.ObjectInfo, error) {
	var infos []pv.ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &pv.TransientNetworkError{Op: "list " + prefix, Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = key[len(s.prefix)+1:]
			}
			info := pv.ObjectInfo{Key: key}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.ModifiedAt = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}

// Delete removes the object at key. S3 deletes are idempotent.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return &pv.TransientNetworkError{Op: "delete " + key, Err: err}
	}
	return nil
}

// Compile-time check that S3Store implements pv.ObjectStore interface
var _ pv.ObjectStore = (*S3Store)(nil)
