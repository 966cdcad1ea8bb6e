package attach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// ErrNoDocuments is returned by S3Source.Populate when nothing is configured.
var ErrNoDocuments = errors.New("attach: no documents configured")

// ObjectGetter is the part of *s3.Client used by S3Source.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Document names one object and the value it decodes into.
type Document struct {
	Key string

	// New returns a fresh pointer to decode into. The pointer's type is the
	// attachment key.
	New func() any

	// Optional documents that are missing or fail to decode are skipped.
	Optional bool
}

// S3Source loads read-only attachments from a bucket.
// Objects ending in .yaml or .yml are decoded as YAML, anything else as JSON.
type S3Source struct {
	Client    ObjectGetter
	Bucket    string
	Prefix    string
	Documents []Document

	// MaxSize bounds each object. Zero means 1 MiB.
	MaxSize int64
}

// Populate fetches every document and adds the decoded values to store.
func (src *S3Source) Populate(ctx context.Context, store *Store) error {
	if len(src.Documents) == 0 {
		return ErrNoDocuments
	}
	for _, doc := range src.Documents {
		v, err := src.load(ctx, doc)
		if err != nil {
			if doc.Optional {
				continue
			}
			return err
		}
		store.Add(v)
	}
	return nil
}

func (src *S3Source) load(ctx context.Context, doc Document) (any, error) {
	key := path.Join(src.Prefix, doc.Key)
	out, err := src.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("attach: get s3://%s/%s: %w", src.Bucket, key, err)
	}
	defer out.Body.Close()

	limit := src.MaxSize
	if limit <= 0 {
		limit = 1 << 20
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("attach: read %s: %w", key, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("attach: %s exceeds %d bytes", key, limit)
	}

	v := doc.New()
	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return nil, fmt.Errorf("attach: decode %s: %w", key, err)
	}
	return v, nil
}
