package blob

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3manager.UploadInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &s3manager.UploadOutput{Location: "s3://bucket/" + aws.StringValue(in.Key)}, nil
}

type fakeS3 struct {
	s3iface.S3API
	objects []*s3.Object
	deleted []string
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	fn(&s3.ListObjectsV2Output{Contents: f.objects}, true)
	return nil
}

func (f *fakeS3) DeleteObjectsWithContext(ctx aws.Context, in *s3.DeleteObjectsInput, opts ...request.Option) (*s3.DeleteObjectsOutput, error) {
	for _, o := range in.Delete.Objects {
		f.deleted = append(f.deleted, aws.StringValue(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestPut(t *testing.T) {
	up := &fakeUploader{}
	s := &S3Store{Uploader: up, Bucket: "adlens-exports"}

	require.NoError(t, s.Put(context.Background(), "exports/u/1.csv", "text/csv", []byte("a,b\n")))
	assert.Equal(t, "adlens-exports", aws.StringValue(up.input.Bucket))
	assert.Equal(t, "text/csv", aws.StringValue(up.input.ContentType))
	assert.Equal(t, "a,b\n", up.body)

	up.err = errors.New("access denied")
	assert.ErrorContains(t, s.Put(context.Background(), "k", "text/csv", nil), "access denied")
}

func TestPresignGet(t *testing.T) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Credentials:      credentials.NewStaticCredentials("AKID", "SECRET", ""),
		Endpoint:         aws.String("http://localhost:9000"),
		S3ForcePathStyle: aws.Bool(true),
	})
	require.NoError(t, err)

	s := &S3Store{Client: s3.New(sess), Bucket: "adlens-exports"}
	raw, err := s.PresignGet("exports/u/1.csv", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/adlens-exports/exports/u/1.csv", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestPurgeOlderThan(t *testing.T) {
	now := time.Now()
	fake := &fakeS3{objects: []*s3.Object{
		{Key: aws.String("exports/u/old.csv"), LastModified: aws.Time(now.Add(-48 * time.Hour))},
		{Key: aws.String("exports/u/new.csv"), LastModified: aws.Time(now)},
	}}
	s := &S3Store{Client: fake, Bucket: "adlens-exports"}

	n, err := s.PurgeOlderThan(context.Background(), ExportPrefix, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"exports/u/old.csv"}, fake.deleted)
}

func TestExportKey(t *testing.T) {
	key := ExportKey("user-1", time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(key, "exports/user-1/20240315T093000Z-"))
	assert.True(t, strings.HasSuffix(key, ".csv"))
}
