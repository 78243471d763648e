// Package blobstore stores uploaded document files. Objects are addressed by
// key; the documentos domain keeps the metadata.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingKey         = errors.New("object key is required")
)

// MaxFileSize is the largest accepted upload (20 MB).
const MaxFileSize = 20 << 20

// AllowedContentTypes are the file types a clinic document may carry.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"text/plain":      true,
}

// Object describes a stored file.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	Put(ctx context.Context, key string, content io.Reader, size int64, contentType string) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// CheckUpload validates an upload before it reaches a backend. size may be -1
// when unknown.
func CheckUpload(key string, size int64, contentType string) error {
	if key == "" {
		return ErrMissingKey
	}
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	if !AllowedContentTypes[contentType] {
		return fmt.Errorf("%w: %q", ErrInvalidContentType, contentType)
	}
	return nil
}

type storedBlob struct {
	obj  Object
	data []byte
}

// MemoryStore keeps blobs in process memory. Used in development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, key string, content io.Reader, size int64, contentType string) (*Object, error) {
	if err := CheckUpload(key, size, contentType); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	sum := sha256.Sum256(data)
	obj := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{obj: obj, data: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	obj := b.obj
	return io.NopCloser(bytes.NewReader(b.data)), &obj, nil
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
