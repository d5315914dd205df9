package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aquaflora/stockscan/internal/model"
)

// S3Source reads the catalog document from an S3-compatible bucket.
type S3Source struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Source creates an S3 catalog source. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Source(ctx context.Context, bucket, key, region, endpoint string) (*S3Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Source{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

// Fetch downloads and decodes the catalog object. A document without
// updated_at takes the object's LastModified time.
func (s *S3Source) Fetch(ctx context.Context) (*model.Catalog, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	return DecodeCatalog(out.Body, aws.ToTime(out.LastModified).UTC())
}
