package shard

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// GetObjectAPI is the slice of the S3 client the fetcher needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads shards stored as objects under bucket/prefix.
type S3Fetcher struct {
	api    GetObjectAPI
	bucket string
	prefix string
}

func NewS3Fetcher(api GetObjectAPI, bucket, prefix string) *S3Fetcher {
	return &S3Fetcher{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3FetcherFromEnv builds the S3 client from the default AWS credential chain.
func NewS3FetcherFromEnv(ctx context.Context, region, bucket, prefix string) (*S3Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Fetcher(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	key := path.Join(f.prefix, strings.TrimLeft(ref.Path, "/"))
	out, err := f.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &StatusError{Code: 404, URL: "s3://" + f.bucket + "/" + key}
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return ioReadAllLimit(out.Body, maxShardBytes)
}
