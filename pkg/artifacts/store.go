// Package artifacts exports compiled plans to content-addressed storage.
//
// Blobs are keyed by the SHA-256 of their bytes. For a plan the blob is its
// canonical JSON, so the digest is stable across exporters and machines.
package artifacts

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/josephblackelite/spur-protocol/pkg/canonicalize"
	"github.com/josephblackelite/spur-protocol/pkg/compiler"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

const digestPrefix = "sha256:"

// ErrNotFound is returned when no blob exists for a digest.
var ErrNotFound = errors.New("artifact not found")

// Store is a content-addressed blob store.
type Store interface {
	// Put persists data and returns its digest ("sha256:<hex>").
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, digest string) ([]byte, error)
	Exists(ctx context.Context, digest string) (bool, error)
	Delete(ctx context.Context, digest string) error
}

// Digest returns the content address of data.
func Digest(data []byte) string {
	return digestPrefix + canonicalize.HashBytes(data)
}

// parseDigest returns the hex part of a "sha256:<hex>" digest.
func parseDigest(digest string) (string, error) {
	raw, ok := strings.CutPrefix(digest, digestPrefix)
	if !ok {
		return "", fmt.Errorf("invalid digest format: %s", digest)
	}
	if len(raw) != 64 {
		return "", fmt.Errorf("invalid digest length: %s", digest)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid digest hex: %w", err)
	}
	return raw, nil
}

func blobName(raw string) string { return raw + ".json" }

// ExportPlan verifies plan and writes its canonical bytes to s.
func ExportPlan(ctx context.Context, s Store, plan contracts.ExecutionPlan) (string, error) {
	if err := compiler.Verify(plan); err != nil {
		return "", fmt.Errorf("export plan %s: %w", plan.PlanID, err)
	}
	doc, err := canonicalize.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("export plan %s: %w", plan.PlanID, err)
	}
	return s.Put(ctx, doc)
}

// FileStore keeps blobs as files in a single directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: exported plans are meant to be shared
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest := Digest(data)
	path := filepath.Join(s.baseDir, blobName(strings.TrimPrefix(digest, digestPrefix)))
	if _, err := os.Stat(path); err == nil {
		return digest, nil
	}

	tmp := path + ".tmp"
	//nolint:gosec // G306: blobs are world-readable
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return digest, nil
}

func (s *FileStore) Get(_ context.Context, digest string) ([]byte, error) {
	raw, err := parseDigest(digest)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.baseDir, blobName(raw)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", digest, err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, digest string) (bool, error) {
	raw, err := parseDigest(digest)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(filepath.Join(s.baseDir, blobName(raw)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat blob %s: %w", digest, err)
	}
}

func (s *FileStore) Delete(_ context.Context, digest string) error {
	raw, err := parseDigest(digest)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.baseDir, blobName(raw))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", digest, err)
	}
	return nil
}
