package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ga_friendliness/internal/adapters/httpclient"
)

// HTTPFetcher downloads a snapshot over HTTP(S).
type HTTPFetcher struct {
	url    string
	client *httpclient.Client
}

func NewHTTPFetcher(url string, client *httpclient.Client) *HTTPFetcher {
	return &HTTPFetcher{url: url, client: client}
}

func (f *HTTPFetcher) Key() string { return f.url }

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	return f.client.Do(ctx, "snapshot", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "ga-friendliness/1.0")
		return req, nil
	})
}

// S3Getter is the slice of the S3 API the fetcher needs.
type S3Getter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads a snapshot object from S3 or an S3-compatible store.
type S3Fetcher struct {
	api    S3Getter
	bucket string
	key    string
}

func NewS3Fetcher(api S3Getter, bucket, key string) *S3Fetcher {
	return &S3Fetcher{api: api, bucket: bucket, key: key}
}

func (f *S3Fetcher) Key() string { return "s3://" + f.bucket + "/" + f.key }

func (f *S3Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	out, err := f.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(f.bucket), Key: aws.String(f.key)})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", f.Key(), err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

type S3Settings struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client builds a client; static credentials and a custom endpoint are
// used when set, otherwise the default AWS chain applies.
func NewS3Client(ctx context.Context, s S3Settings) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if s.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.Region))
	}
	if s.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(u string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(u, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", u)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs bucket and key: %q", u)
	}
	return bucket, key, nil
}
