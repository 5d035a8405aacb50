// Package awss3 implements storage.ObjectStore on the AWS SDK v2 S3 client.
package awss3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/athenakit/athenakit/internal/storage"
)

// DeleteObjects accepts at most this many keys per request.
const deleteBatchSize = 1000

type Config struct {
	// Endpoint overrides the S3 endpoint, e.g. for S3-compatible stores.
	Endpoint     string
	UsePathStyle bool
}

type api interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Store struct {
	api api
}

var _ storage.ObjectStore = (*Store)(nil)

func NewFromConfig(awsCfg aws.Config, cfg Config) *Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Store{api: client}
}

func NewWithAPI(client api) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	return &Store{api: client}, nil
}

func (s *Store) List(ctx context.Context, prefix storage.Location) ([]storage.ObjectInfo, error) {
	if prefix.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(prefix.Bucket),
		Prefix: aws.String(prefix.ListPrefix()),
	})

	objects := make([]storage.ObjectInfo, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix.String(), err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, storage.ObjectInfo{
				Bucket:       prefix.Bucket,
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func (s *Store) Get(ctx context.Context, object storage.Location) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(object.Bucket),
		Key:    aws.String(object.Key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object %q: %w", object.String(), err)
	}
	return out.Body, nil
}

func (s *Store) Delete(ctx context.Context, prefix storage.Location) error {
	if prefix.Key == "" {
		return fmt.Errorf("refusing to delete bucket root %q", prefix.String())
	}
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}

	for start := 0; start < len(objects); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(objects))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(obj.Key)})
		}
		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(prefix.Bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects under %q: %w", prefix.String(), err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete objects under %q: %d failed, first %q: %s",
				prefix.String(), len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}
