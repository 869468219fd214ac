// Package blobstore stores rendered documents under slash-separated keys. It
// provides an in-memory store for tests and development and a filesystem
// store rooted at a directory.
package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrInvalidKey   = errors.New("invalid blob key")
)

// MaxFileSize is the maximum allowed blob size in bytes (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Metadata describes a stored blob.
type Metadata struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is implemented by every blob backend. Put overwrites an existing key.
type Store interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (*Metadata, error)
	Get(ctx context.Context, key string) ([]byte, *Metadata, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]*Metadata, error)
}

// ValidateKey rejects empty, absolute and parent-relative keys.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func newMetadata(key string, content []byte, contentType string, now time.Time) *Metadata {
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Metadata{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(content)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(content)),
		UpdatedAt:   now.UTC(),
	}
}

func checkPut(key string, content []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(content) > MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob)}
}

func (s *MemoryStore) Put(_ context.Context, key string, content []byte, contentType string) (*Metadata, error) {
	if err := checkPut(key, content); err != nil {
		return nil, err
	}
	meta := newMetadata(key, content, contentType, time.Now())
	data := append([]byte(nil), content...)

	s.mu.Lock()
	s.blobs[key] = &storedBlob{metadata: *meta, content: data}
	s.mu.Unlock()

	return meta, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata // copy
	return append([]byte(nil), blob.content...), &meta, nil
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

// List returns metadata for every key starting with prefix, sorted by key.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Metadata{}
	for k, b := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			m := b.metadata // copy
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ---------------------------------------------------------------------------
// Filesystem implementation
// ---------------------------------------------------------------------------

// FileStore keeps each blob as a file under root. Content types are derived
// from the key's extension.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes to a temporary file and renames it into place so readers never
// observe a partial blob.
func (s *FileStore) Put(_ context.Context, key string, content []byte, contentType string) (*Metadata, error) {
	if err := checkPut(key, content); err != nil {
		return nil, err
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".blob-*")
	if err != nil {
		return nil, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("commit blob: %w", err)
	}
	return newMetadata(key, content, contentType, time.Now()), nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, *Metadata, error) {
	if err := ValidateKey(key); err != nil {
		return nil, nil, err
	}
	p := s.path(key)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read blob: %w", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, nil, fmt.Errorf("stat blob: %w", err)
	}
	return data, newMetadata(key, data, "", info.ModTime()), nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]*Metadata, error) {
	out := []*Metadata{}
	err := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".blob-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		_, meta, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return out, nil
}
