package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is the slice of the S3 API the opener uses.
type S3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3 opens ranged read handles onto one S3 object.
type S3 struct {
	client S3Client
	bucket string
	key    string
}

func NewS3(client S3Client, bucket, key string) *S3 {
	return &S3{client: client, bucket: bucket, key: key}
}

// Open stats the object first so a bad key fails at open time, then
// returns a cursor that streams ranges on demand.
func (s *S3) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	info, err := s.Stat(ctx)
	if err != nil {
		return nil, err
	}
	return &s3Cursor{
		ctx:    ctx,
		client: s.client,
		bucket: s.bucket,
		key:    s.key,
		size:   info.Size,
	}, nil
}

func (s *S3) Stat(ctx context.Context) (Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if s3IsNotFound(err) {
			return Info{}, fmt.Errorf("%w: s3://%s/%s", ErrNotExist, s.bucket, s.key)
		}
		return Info{}, fmt.Errorf("head s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return Info{Name: path.Base(s.key), Size: aws.ToInt64(out.ContentLength)}, nil
}

func s3IsNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// s3Cursor reads the object sequentially through one open-ended ranged
// GetObject body, dropping the stream whenever a seek moves the position.
type s3Cursor struct {
	ctx    context.Context
	client S3Client
	bucket string
	key    string
	size   int64
	pos    int64
	body   io.ReadCloser
}

func (c *s3Cursor) Read(p []byte) (int, error) {
	if c.pos >= c.size {
		return 0, io.EOF
	}
	if c.body == nil {
		out, err := c.client.GetObject(c.ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-", c.pos)),
		})
		if err != nil {
			if s3IsNotFound(err) {
				return 0, fmt.Errorf("%w: s3://%s/%s", ErrNotExist, c.bucket, c.key)
			}
			return 0, fmt.Errorf("get s3://%s/%s at %d: %w", c.bucket, c.key, c.pos, err)
		}
		c.body = out.Body
	}
	n, err := c.body.Read(p)
	c.pos += int64(n)
	return n, err
}

func (c *s3Cursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.pos + offset
	case io.SeekEnd:
		abs = c.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	if abs != c.pos && c.body != nil {
		_ = c.body.Close()
		c.body = nil
	}
	c.pos = abs
	return abs, nil
}

func (c *s3Cursor) Close() error {
	if c.body == nil {
		return nil
	}
	err := c.body.Close()
	c.body = nil
	return err
}
