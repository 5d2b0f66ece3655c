// Package s3blob exports resolved-market ledgers to S3-compatible object
// storage.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the object-store connection settings.
type ClientConfig struct {
	// Endpoint overrides the AWS default for self-hosted stores such as a
	// local MinIO. Leave empty for AWS S3. A bare host:port gets a scheme
	// derived from UseSSL.
	Endpoint string

	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// UseSSL selects https when Endpoint carries no scheme of its own.
	UseSSL bool

	// ForcePathStyle addresses the bucket in the URL path instead of the
	// subdomain. Self-hosted stores generally need it.
	ForcePathStyle bool
}

// Client holds the SDK client and the bucket every archive lands in.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds an S3 client from static credentials. Bucket and region must be
// set; the endpoint override only applies when configured.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if u, perr := url.Parse(endpoint); perr != nil || u.Scheme == "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			endpoint = scheme + "://" + endpoint
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Close exists so the client slots into the app's closer list; the SDK's
// HTTP client needs no teardown.
func (c *Client) Close() error {
	return nil
}
