// Package blob stores generated exports in S3 and hands out presigned download links.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/google/uuid"
)

const ExportPrefix = "exports/"

type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	PresignGet(key string, ttl time.Duration) (string, error)
	PurgeOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error)
}

type S3Store struct {
	Uploader s3manageriface.UploaderAPI
	Client   s3iface.S3API
	Bucket   string
}

// NewS3Store builds a store from static bucket credentials.
func NewS3Store(region, bucket, accessKey, secretKey string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return &S3Store{
		Uploader: s3manager.NewUploader(sess),
		Client:   s3.New(sess),
		Bucket:   bucket,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:             aws.String(s.Bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(body),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String("attachment"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (s *S3Store) PresignGet(key string, ttl time.Duration) (string, error) {
	req, _ := s.Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})

	urlStr, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return urlStr, nil
}

// PurgeOlderThan deletes every object under prefix last modified before cutoff.
func (s *S3Store) PurgeOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	var stale []*s3.ObjectIdentifier

	err := s.Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				stale = append(stale, &s3.ObjectIdentifier{Key: obj.Key})
			}
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, err)
	}

	deleted := 0
	// DeleteObjects accepts at most 1000 keys per call
	for start := 0; start < len(stale); start += 1000 {
		end := min(start+1000, len(stale))
		_, err := s.Client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.Bucket),
			Delete: &s3.Delete{Objects: stale[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("delete stale exports: %w", err)
		}
		deleted += end - start
	}
	return deleted, nil
}

// ExportKey is the object key for one CSV export of a user.
func ExportKey(userID string, now time.Time) string {
	return fmt.Sprintf("%s%s/%s-%s.csv", ExportPrefix, userID, now.UTC().Format("20060102T150405Z"), uuid.NewString())
}
