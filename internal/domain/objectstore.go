package domain

import (
	"context"
	"io"
	"time"
)

type PutObjectParams struct {
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
}

type PresignGetParams struct {
	Key         string
	TTL         time.Duration
	Filename    string
	ContentType string
}

// ObjectStore holds file bytes addressed by opaque keys. Keys are
// generated fresh per upload and never reused after deletion.
type ObjectStore interface {
	PutObject(ctx context.Context, params PutObjectParams) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes many keys, chunked internally if the
	// backend limits batch size.
	DeleteObjects(ctx context.Context, keys []string) error

	PresignGetURL(ctx context.Context, params PresignGetParams) (string, error)
}
