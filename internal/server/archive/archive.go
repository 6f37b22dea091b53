// Package archive stores verified counterparty messages in S3-compatible
// object storage for later audit.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/umasend/internal/server/config"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
)

// KeyPrefix is prepended to every object key.
const KeyPrefix = "evidence"

var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archive struct {
	bucket string
	client objectPutter
}

var _ payflow.EvidenceArchive = (*S3Archive)(nil)

// New returns the S3 archive when enabled in c, and a Nop otherwise.
func New(ctx context.Context, c *sc.Config) (payflow.EvidenceArchive, error) {
	if !c.ArchiveEnabled {
		return Nop{}, nil
	}
	return NewS3Archive(ctx, c)
}

func NewS3Archive(ctx context.Context, c *sc.Config) (*S3Archive, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(c.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3RootUser,
			c.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{bucket: c.S3Bucket, client: client}, nil
}

func (a *S3Archive) Put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(path.Join(KeyPrefix, key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive put %s: %w", key, err)
	}
	return nil
}

// Nop discards everything.
type Nop struct{}

func (Nop) Put(context.Context, string, []byte) error { return nil }
