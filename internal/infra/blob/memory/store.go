// Package memory implements an in-memory blob store for tests and ephemeral
// sessions.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"labbench/internal/blob/core"
)

type entry struct {
	obj  core.Object
	data []byte
}

// Store keeps blobs in process memory.
type Store struct {
	mu    sync.RWMutex
	objs  map[string]entry
	nowFn func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{objs: make(map[string]entry), nowFn: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores the blob, replacing existing content.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Object, error) {
	if err := ctx.Err(); err != nil {
		return core.Object{}, err
	}
	if strings.TrimSpace(key) == "" {
		return core.Object{}, core.ErrInvalidKey
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Object{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	sum := sha256.Sum256(b)
	obj := core.Object{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.nowFn(),
	}
	s.mu.Lock()
	s.objs[key] = entry{obj: obj, data: b}
	s.mu.Unlock()
	return copyObject(obj), nil
}

// Get returns a copy of the blob content.
func (s *Store) Get(_ context.Context, key string) (core.Object, io.ReadCloser, error) {
	s.mu.RLock()
	e, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	data := append([]byte(nil), e.data...)
	return copyObject(e.obj), io.NopCloser(bytes.NewReader(data)), nil
}

// Head returns blob metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Object, error) {
	s.mu.RLock()
	e, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return copyObject(e.obj), nil
}

// Delete removes the blob, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

// List returns blobs under prefix ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Object, 0, len(s.objs))
	for k, e := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyObject(e.obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not available in memory.
func (s *Store) PresignURL(context.Context, string, time.Duration) (string, error) {
	return "", core.ErrUnsupported
}

func copyObject(o core.Object) core.Object {
	o.Metadata = core.CloneMetadata(o.Metadata)
	return o
}
