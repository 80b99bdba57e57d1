package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/archivoor/pkg/config"
)

const s3Scheme = "s3://"

// Compile-time interface check.
var _ Reader = (*s3Reader)(nil)

type s3Reader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Reader creates a Reader backed by S3-compatible storage. The prefix
// plays the role of the root directory; campaigns are the common prefixes
// directly below it.
func NewS3Reader(cfg *config.S3SourceConfig, prefix string) Reader {
	prefix = strings.Trim(prefix, "/")
	if prefix == "." {
		prefix = ""
	}

	return &s3Reader{
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: prefix,
	}
}

func (r *s3Reader) Root() string {
	return r.url(r.prefix)
}

func (r *s3Reader) ListCampaigns(ctx context.Context) ([]Entry, error) {
	prefix := ""
	if r.prefix != "" {
		prefix = r.prefix + "/"
	}

	return r.listPrefixes(ctx, prefix)
}

func (r *s3Reader) ListTests(
	ctx context.Context, campaign Entry,
) ([]Entry, error) {
	key, err := r.key(campaign.Path)
	if err != nil {
		return nil, err
	}

	return r.listPrefixes(ctx, key)
}

// ListFiles lists the objects directly under {test.Path}.
func (r *s3Reader) ListFiles(
	ctx context.Context, test Entry,
) ([]Entry, error) {
	prefix, err := r.key(test.Path)
	if err != nil {
		return nil, err
	}

	paginator := s3.NewListObjectsV2Paginator(
		r.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(r.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		},
	)

	var files []Entry

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under %q: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}

			entry := Entry{
				Name: path.Base(*obj.Key),
				Path: r.url(*obj.Key),
				Size: aws.ToInt64(obj.Size),
			}

			if obj.LastModified != nil {
				entry.ModTime = *obj.LastModified
			}

			files = append(files, entry)
		}
	}

	sortEntries(files)

	return files, nil
}

func (r *s3Reader) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := r.key(p)
	if err != nil {
		return nil, err
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	return out.Body, nil
}

// listPrefixes returns the common prefixes ("directories") under prefix.
func (r *s3Reader) listPrefixes(
	ctx context.Context, prefix string,
) ([]Entry, error) {
	paginator := s3.NewListObjectsV2Paginator(
		r.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(r.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		},
	)

	var dirs []Entry

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing prefixes under %q: %w", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}

			// "root/camp1/" -> "camp1"
			dirs = append(dirs, Entry{
				Name: path.Base(strings.TrimRight(*cp.Prefix, "/")),
				Path: r.url(*cp.Prefix),
			})
		}
	}

	sortEntries(dirs)

	return dirs, nil
}

func (r *s3Reader) url(key string) string {
	return s3Scheme + r.bucket + "/" + key
}

func (r *s3Reader) key(u string) (string, error) {
	base := s3Scheme + r.bucket + "/"
	if !strings.HasPrefix(u, base) {
		return "", fmt.Errorf("path %q is outside bucket %q", u, r.bucket)
	}

	return strings.TrimPrefix(u, base), nil
}

func newS3Client(cfg *config.S3SourceConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
