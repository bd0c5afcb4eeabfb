package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type storedBlob struct {
	info    Info
	content []byte
}

// MemoryStore is a thread-safe in-memory Store for development and tests.
// Its URLs point at DownloadHandler and are verified with the same signer.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[string]*storedBlob
	signer *URLSigner
}

// NewMemoryStore returns an empty store that signs URLs with signer.
func NewMemoryStore(signer *URLSigner) *MemoryStore {
	return &MemoryStore{
		blobs:  make(map[string]*storedBlob),
		signer: signer,
	}
}

// Put reads content fully, records its SHA-256 as the ETag and stores it.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := ValidateKey(key); err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("reading content: %w", err)
	}

	h := sha256.Sum256(data)
	info := Info{
		Key:          key,
		ContentType:  opts.ContentType,
		Size:         int64(len(data)),
		ETag:         fmt.Sprintf("%x", h),
		Metadata:     opts.Metadata,
		LastModified: time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{info: info, content: data}
	s.mu.Unlock()

	return info, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return Info{}, nil, ErrBlobNotFound
	}
	return blob.info, io.NopCloser(bytes.NewReader(blob.content)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// List returns objects under prefix sorted by key.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Info
	for k, b := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, b.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) PresignURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrBlobNotFound
	}
	return s.signer.Sign(key, ttl), nil
}
