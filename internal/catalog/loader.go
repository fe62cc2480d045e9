// internal/catalog/loader.go
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/chunkd/internal/cryptoutil"
	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/xerrors"
)

// maxCatalogBytes caps a catalog document fetched from S3. Catalogs are
// small YAML files; anything bigger is a bad upload.
const maxCatalogBytes int64 = 4 * 1024 * 1024

// S3Client is the slice of the S3 API the loader uses.
type S3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SSMClient is the slice of the SSM API the loader uses.
type SSMClient interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type LoaderOptions struct {
	Logger log.Logger

	// Path enables local mode: the catalog is read from this file and the
	// current hash is the file's SHA256.
	Path string

	// Remote mode: SSM parameter containing the catalog SHA256 hash, and
	// the S3 location of catalog documents: s3://{bucket}/{prefix}/{hash}.yaml
	SSMParam string
	S3Bucket string
	S3Prefix string

	// Injectable clients for tests. Nil values are built from AWSConfig.
	S3Client  S3Client
	SSMClient SSMClient

	// AWSConfig overrides the SDK default chain.
	AWSConfig *aws.Config
}

type Loader struct {
	opts      LoaderOptions
	ssmClient SSMClient
	s3Client  S3Client
	logger    log.Logger
}

// NewLoader creates a catalog Loader in local mode (Path) or remote mode
// (SSMParam + S3Bucket). Exactly one mode must be configured.
func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	local := opts.Path != ""
	remote := opts.SSMParam != "" || opts.S3Bucket != ""
	if local && remote {
		return nil, xerrors.New("catalog path and SSM/S3 location are mutually exclusive")
	}
	if !local && !remote {
		return nil, xerrors.New("either Path or SSMParam+S3Bucket is required")
	}
	if remote && (opts.SSMParam == "" || opts.S3Bucket == "") {
		return nil, xerrors.New("remote mode requires both SSMParam and S3Bucket")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	l := &Loader{
		opts:      opts,
		ssmClient: opts.SSMClient,
		s3Client:  opts.S3Client,
		logger:    opts.Logger,
	}

	if remote && (l.ssmClient == nil || l.s3Client == nil) {
		var awsCfg aws.Config
		var err error
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		if l.ssmClient == nil {
			l.ssmClient = ssm.NewFromConfig(awsCfg)
		}
		if l.s3Client == nil {
			l.s3Client = s3.NewFromConfig(awsCfg)
		}
	}

	return l, nil
}

// FetchCurrentHash returns the hash of the catalog that should be active:
// the SSM parameter value in remote mode, the file's SHA256 in local mode.
func (l *Loader) FetchCurrentHash(ctx context.Context) (string, error) {
	if l.opts.Path != "" {
		data, err := os.ReadFile(l.opts.Path)
		if err != nil {
			return "", xerrors.Wrapf(err, "read catalog %s", l.opts.Path)
		}
		return cryptoutil.SHA256Hex(data), nil
	}

	out, err := l.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}

	hash := strings.TrimSpace(*out.Parameter.Value)
	if hash == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", l.opts.SSMParam)
	}

	return hash, nil
}

// s3Key maps a hash to its object key under the configured prefix.
func (l *Loader) s3Key(hash string) string {
	if l.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.yaml", l.opts.S3Prefix, hash)
	}
	return fmt.Sprintf("%s.yaml", hash)
}

// fetch returns the raw catalog document for hash along with its actual
// SHA256, from whichever mode the loader is in.
func (l *Loader) fetch(ctx context.Context, hash string) ([]byte, string, error) {
	if l.opts.Path != "" {
		data, err := os.ReadFile(l.opts.Path)
		if err != nil {
			return nil, "", xerrors.Wrapf(err, "read catalog %s", l.opts.Path)
		}
		return data, cryptoutil.SHA256Hex(data), nil
	}

	key := l.s3Key(hash)
	l.logger.Info(ctx, "downloading catalog",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"expected_hash", hash,
	)

	out, err := l.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	data, actualHash, err := readWithHash(out.Body, maxCatalogBytes)
	if err != nil {
		return nil, "", xerrors.Wrap(err, "download catalog")
	}
	return data, actualHash, nil
}

// Load fetches the current catalog and returns a Snapshot
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

// LoadHash fetches a specific catalog by hash, verifies it, and returns a
// Snapshot. The actual document hash must match; a mismatch means the
// upload is corrupt or the document changed mid-load.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()

	data, actualHash, err := l.fetch(ctx, hash)
	if err != nil {
		return nil, err
	}

	// Hash comparisons go through HashEqual everywhere, secret or not.
	if !cryptoutil.HashEqual(actualHash, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actualHash)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, err
	}

	source := SourceS3
	if l.opts.Path != "" {
		source = SourceFile
	}

	l.logger.Info(ctx, "loaded catalog",
		"version", cat.Version,
		"entries", len(cat.Entries),
		"hash", actualHash,
		"source", string(source),
	)

	return &Snapshot{
		Catalog: cat,
		Meta: Meta{
			Version:    cat.Version,
			SHA256:     actualHash,
			VerifiedAt: loadedAt,
			Source:     source,
		},
		LoadedAt: loadedAt,
	}, nil
}

// readWithHash consumes r, hashing as it goes. A body larger than maxSize
// is an error; the extra LimitReader byte is how it tells.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	lr := io.LimitReader(r, maxSize+1)
	tr := io.TeeReader(lr, h)

	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("catalog exceeds max size (%d bytes, limit %d)", len(data), maxSize)
	}

	return data, hex.EncodeToString(h.Sum(nil)), nil
}
