package dump

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// BucketConfig addresses an S3-compatible bucket.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Prefix is the run root inside the bucket (e.g. "out-2026-10-17T10-00-00").
	Prefix string
}

// Bucket uploads artifacts to object storage. The logs are buffered and
// uploaded by Close.
type Bucket struct {
	client     *miniogo.Client
	bucket     string
	prefix     string
	opts       Options
	log        *slog.Logger
	frameTypes bytes.Buffer
	timestamps bytes.Buffer
}

var _ Sink = (*Bucket)(nil)

// NewBucket connects to the endpoint and creates the bucket if missing.
func NewBucket(ctx context.Context, cfg BucketConfig, opts Options, log *slog.Logger) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("dump: bucket name is required")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("dump: create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("dump: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("dump: create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("mv-capture: bucket created", "bucket", cfg.Bucket)
	}

	return &Bucket{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		opts:   opts,
		log:    log,
	}, nil
}

// Key returns the object key of a run-relative name.
func (b *Bucket) Key(name string) string {
	return path.Join(b.prefix, name)
}

func (b *Bucket) Write(ctx context.Context, step int, r mvcapture.Result) error {
	arts, err := Encode(step, r, b.opts)
	if err != nil {
		return err
	}
	for _, a := range arts {
		if err := b.put(ctx, a); err != nil {
			return err
		}
	}
	b.timestamps.WriteString(TimestampLine(r.Timestamp))
	b.frameTypes.WriteString(FrameTypeLine(r.FrameType))
	return nil
}

func (b *Bucket) put(ctx context.Context, a Artifact) error {
	key := b.Key(a.Name)
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(a.Data), int64(len(a.Data)), miniogo.PutObjectOptions{
		ContentType: a.ContentType,
	})
	if err != nil {
		return fmt.Errorf("dump: upload %s: %w", key, err)
	}
	b.log.Debug("mv-capture: artifact uploaded", "bucket", b.bucket, "key", key, "bytes", len(a.Data))
	return nil
}

func (b *Bucket) Close(ctx context.Context) error {
	for _, a := range []Artifact{
		{Name: FrameTypesFile, ContentType: "text/plain", Data: b.frameTypes.Bytes()},
		{Name: TimestampsFile, ContentType: "text/plain", Data: b.timestamps.Bytes()},
	} {
		if err := b.put(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
