// Package s3 implements an object-store data source for s3://bucket/prefix
// locations. Listing paginates over the prefix; each object opens as its own
// unit, mirroring the local tree source.
package s3

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	s3api "github.com/aws/aws-sdk-go/service/s3"

	"playetl/internal/datasource"
)

// Prefix enumerates .json objects under an S3 bucket/prefix.
type Prefix struct {
	client *s3api.S3
	bucket string
	prefix string
}

// ParseURI splits an s3://bucket/prefix URI. The prefix may be empty.
func ParseURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %s", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 URI missing bucket: %s", uri)
	}
	return bucket, prefix, nil
}

// NewPrefix builds a Prefix source from an s3://bucket/prefix URI using the
// ambient AWS credential chain (env, shared config, instance role).
func NewPrefix(uri, region string) (*Prefix, error) {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return &Prefix{client: s3api.New(sess), bucket: bucket, prefix: prefix}, nil
}

// List pages through the prefix and returns every .json key, sorted.
func (p *Prefix) List(ctx context.Context) ([]string, error) {
	var keys []string
	input := &s3api.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.prefix),
	}
	err := p.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3api.ListObjectsV2Output, last bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				if strings.HasSuffix(key, ".json") {
					keys = append(keys, key)
				}
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", p.bucket, p.prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Unit returns a Source for one listed key.
func (p *Prefix) Unit(name string) datasource.Source {
	return &object{client: p.client, bucket: p.bucket, key: name}
}

type object struct {
	client *s3api.S3
	bucket string
	key    string
}

func (o *object) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := o.client.GetObjectWithContext(ctx, &s3api.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", o.bucket, o.key, err)
	}
	return out.Body, nil
}

var _ datasource.Lister = (*Prefix)(nil)
