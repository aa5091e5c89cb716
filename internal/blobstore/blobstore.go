// Package blobstore is the document storage backend: opaque blobs in, file
// references out. The engine never interprets file bytes.
package blobstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pitabwire/quill/model"
)

// Store persists document blobs and returns opaque references to them.
type Store interface {
	// Store persists a blob and returns its file reference.
	Store(ctx context.Context, blob []byte, contentType string) (model.FileRef, error)

	// Fetch retrieves the blob for a file reference.
	Fetch(ctx context.Context, ref model.FileRef) ([]byte, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[model.FileRef][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[model.FileRef][]byte)}
}

// Store persists a blob under a fresh reference.
func (s *MemoryStore) Store(_ context.Context, blob []byte, _ string) (model.FileRef, error) {
	ref := model.FileRef("mem://" + uuid.New().String())
	cp := make([]byte, len(blob))
	copy(cp, blob)

	s.mu.Lock()
	s.blobs[ref] = cp
	s.mu.Unlock()
	return ref, nil
}

// Fetch retrieves a stored blob.
func (s *MemoryStore) Fetch(_ context.Context, ref model.FileRef) ([]byte, error) {
	s.mu.RLock()
	blob, ok := s.blobs[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("blob %q not found", ref))
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Len returns the number of stored blobs. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
