// Package blobstore stores export artifacts and issues time-limited download
// URLs for them. It provides an in-memory store whose URLs are HMAC-signed and
// served by an Echo handler, and an S3-compatible store using presigned GETs.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound     = errors.New("blob not found")
	ErrInvalidKey       = errors.New("blob key is invalid")
	ErrInvalidSignature = errors.New("download signature is invalid")
	ErrURLExpired       = errors.New("download url has expired")
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	ContentType  string            `json:"content_type,omitempty"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store is the contract for artifact storage backends. Put replaces an
// existing object with the same key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a GET URL for key that stops working after ttl.
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ValidateKey rejects empty keys and keys that could escape a prefix.
func ValidateKey(key string) error {
	if key == "" || key[0] == '/' {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
