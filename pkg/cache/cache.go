// Package cache declares the abstract remote-cache-backend contract named
// in spec.md §1/§6 ("listed in §6 but no implementation required for the
// core") plus a filesystem-only LocalBackend implementation.
//
// Grounded on original_source/cache_manager.py's CacheBackend ABC
// (exists/get/put/delete) and its LocalCache/MinioCache/GHCRCache tiers;
// Minio and GHCR are declared as documented extension points rather than
// faked out, since the spec does not require them.
package cache

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// ErrNotConfigured is returned by constructors for cache tiers this module
// declares but does not implement.
var ErrNotConfigured = errors.New("cache backend not configured in this build")

// Backend is the contract every cache tier implements: existence check,
// byte-stream retrieval, byte-stream storage, and deletion, keyed by an
// opaque cache key (the Dependency Checksum's canonical-list digest is the
// natural key, though callers may use any string).
type Backend interface {
	Exists(key string) (bool, error)
	Get(key string) (io.ReadCloser, error)
	Put(key string, data io.Reader) error
	Delete(key string) error
}

// LocalBackend stores cache entries as plain files under a root directory,
// grounded on cache_manager.py's LocalCache.
type LocalBackend struct {
	Root string
}

func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalBackend{Root: root}, nil
}

func (l *LocalBackend) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

func (l *LocalBackend) Exists(key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *LocalBackend) Get(key string) (io.ReadCloser, error) {
	return os.Open(l.path(key))
}

func (l *LocalBackend) Put(key string, data io.Reader) error {
	path := l.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, data)
	return err
}

func (l *LocalBackend) Delete(key string) error {
	err := os.Remove(l.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// NewMinioBackend is a documented extension point: spec.md lists the
// object-store tier in its abstract contract but does not require an
// implementation. Wiring one means adding a minio-go client here and
// returning it instead of ErrNotConfigured.
func NewMinioBackend(endpoint, bucket string) (Backend, error) {
	return nil, ErrNotConfigured
}

// NewGHCRBackend is a documented extension point for the registry-backed
// cache tier, same rationale as NewMinioBackend.
func NewGHCRBackend(registry, repository string) (Backend, error) {
	return nil, ErrNotConfigured
}

// GetBestAvailable returns the highest-priority backend that is actually
// configured, mirroring CacheManager.get_best_available's GHCR > Minio >
// Local preference order. Only Local is ever non-nil today.
func GetBestAvailable(ghcr, minio, local Backend) Backend {
	if ghcr != nil {
		return ghcr
	}
	if minio != nil {
		return minio
	}
	return local
}
