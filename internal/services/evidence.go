package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/novaangola/apiserver/internal/storage"
)

// MaxEvidenceSize is the largest accepted evidence file.
const MaxEvidenceSize = 20 << 20

// Both the extension and the declared content type must match.
var evidenceTypePattern = regexp.MustCompile(`jpeg|jpg|png|webp|gif`)

// ObjectStore is the subset of storage.Storage used for evidence files.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// Evidence describes a stored evidence file.
type Evidence struct {
	FileID      string
	ContentType string
	Size        int64
}

// EvidenceService validates and stores evidence images.
type EvidenceService struct {
	store ObjectStore
	options
}

func NewEvidenceService(store ObjectStore, opts ...Option) *EvidenceService {
	return &EvidenceService{store: store, options: newOptions(opts)}
}

// Accepts reports whether a file with this name and content type is allowed.
func Accepts(filename, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return evidenceTypePattern.MatchString(ext) &&
		evidenceTypePattern.MatchString(strings.ToLower(contentType))
}

// Store saves the file under a generated name that keeps the original
// extension. A size of -1 means unknown; the stream is then measured and an
// oversized object is removed again.
func (s *EvidenceService) Store(ctx context.Context, filename, contentType string, size int64, r io.Reader) (Evidence, error) {
	if !Accepts(filename, contentType) {
		return Evidence{}, ErrUnsupportedFile
	}
	if size > MaxEvidenceSize {
		return Evidence{}, ErrFileTooLarge
	}

	fileID := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	counted := &countingReader{r: io.LimitReader(r, MaxEvidenceSize+1)}
	if err := s.store.Put(ctx, fileID, counted, size, contentType); err != nil {
		s.discard(ctx, fileID)
		return Evidence{}, fmt.Errorf("store evidence: %w", err)
	}
	if counted.n > MaxEvidenceSize {
		s.discard(ctx, fileID)
		return Evidence{}, ErrFileTooLarge
	}
	size = counted.n

	s.metrics.IncUploads()
	s.logger.InfoContext(ctx, "evidence stored", "file_id", fileID, "size", size)
	return Evidence{FileID: fileID, ContentType: contentType, Size: size}, nil
}

// Open returns the stored file. Callers must close it.
func (s *EvidenceService) Open(ctx context.Context, fileID string) (*storage.Object, error) {
	obj, err := s.store.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, ErrEvidenceNotFound
		}
		return nil, fmt.Errorf("open evidence: %w", err)
	}
	return obj, nil
}

// discard removes a partially or wrongly stored object.
func (s *EvidenceService) discard(ctx context.Context, fileID string) {
	err := s.store.Delete(ctx, fileID)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.WarnContext(ctx, "failed to discard evidence", "file_id", fileID, "error", err)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
