package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
)

// S3Source reads documents from an S3-compatible bucket (MinIO, RustFS,
// AWS). Keys keep their bucket-relative form as document IDs.
type S3Source struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

func NewS3Source(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*S3Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})
	return &S3Source{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Load fetches every supported object under prefix. Unsupported key
// types are skipped with a log line, not an error.
func (s *S3Source) Load(ctx context.Context, prefix string) ([]domain.RawDocument, error) {
	var docs []domain.RawDocument

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			ext := strings.ToLower(path.Ext(key))
			if ext != ".pdf" && !textExtensions[ext] {
				s.logger.Debug("skipping unsupported object", zap.String("key", key))
				continue
			}
			doc, err := s.loadObject(ctx, key, ext)
			if err != nil {
				return nil, fmt.Errorf("failed to load s3://%s/%s: %w", s.bucket, key, err)
			}
			docs = append(docs, doc)
		}
	}
	if docs == nil {
		docs = []domain.RawDocument{}
	}
	return docs, nil
}

func (s *S3Source) loadObject(ctx context.Context, key, ext string) (domain.RawDocument, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return domain.RawDocument{}, err
	}
	defer out.Body.Close()

	if ext == ".pdf" {
		// The PDF reader needs random access; spool to a temp file.
		tmp, err := os.CreateTemp("", "quarry-*.pdf")
		if err != nil {
			return domain.RawDocument{}, err
		}
		defer os.Remove(tmp.Name())
		if _, err := io.Copy(tmp, out.Body); err != nil {
			tmp.Close()
			return domain.RawDocument{}, err
		}
		tmp.Close()

		doc, err := LoadPDF(tmp.Name())
		if err != nil {
			return domain.RawDocument{}, err
		}
		doc.ID = key
		doc.Title = docTitle(key)
		doc.Path = key
		return doc, nil
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return domain.RawDocument{}, err
	}
	return domain.RawDocument{
		ID:       key,
		Title:    docTitle(key),
		Path:     key,
		FullText: string(data),
	}, nil
}
