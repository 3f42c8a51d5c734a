// Package source resolves source references to document bytes.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"pdf-text-overlay/internal/domain"

	"github.com/google/uuid"
)

// UploadScheme prefixes references to documents held in memory.
const UploadScheme = domain.UploadScheme

var pdfMagic = []byte("%PDF-")

// Options configures a Fetcher.
type Options struct {
	// MaxSize caps the bytes read from any source.
	MaxSize int64
	// Timeout applies to http(s) fetches.
	Timeout time.Duration
	// LocalRoot enables plain paths, resolved inside this directory. Empty
	// disables local files.
	LocalRoot string
}

// Fetcher implements domain.SourceFetcher for uploads, http(s) URLs and,
// when enabled, files under a local root.
type Fetcher struct {
	client  *http.Client
	opts    Options
	logger  domain.Logger
	mu      sync.RWMutex
	uploads map[string][]byte
}

// NewFetcher creates a fetcher.
func NewFetcher(opts Options, logger domain.Logger) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		logger:  logger,
		uploads: make(map[string][]byte),
	}
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// Register keeps data in memory and returns a reference to it.
func (f *Fetcher) Register(data []byte) (domain.SourceRef, error) {
	if int64(len(data)) > f.opts.MaxSize && f.opts.MaxSize > 0 {
		return "", fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidFile, f.opts.MaxSize)
	}
	if !IsPDF(data) {
		return "", fmt.Errorf("%w: not a PDF document", domain.ErrInvalidFile)
	}

	id := uuid.NewString()
	f.mu.Lock()
	f.uploads[id] = data
	f.mu.Unlock()
	return domain.SourceRef(UploadScheme + id), nil
}

// Release drops an uploaded document. Other references are ignored.
func (f *Fetcher) Release(ref domain.SourceRef) {
	id, ok := strings.CutPrefix(string(ref), UploadScheme)
	if !ok {
		return
	}
	f.mu.Lock()
	delete(f.uploads, id)
	f.mu.Unlock()
}

// Uploads returns the number of documents held in memory.
func (f *Fetcher) Uploads() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.uploads)
}

// Validate checks that ref names a source this fetcher can read, without
// reading it.
func (f *Fetcher) Validate(ref domain.SourceRef) error {
	s := strings.TrimSpace(string(ref))
	switch {
	case s == "":
		return fmt.Errorf("%w: empty reference", domain.ErrInvalidSource)
	case strings.HasPrefix(s, UploadScheme):
		return nil
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return nil
	case f.opts.LocalRoot == "":
		return fmt.Errorf("%w: local files are disabled", domain.ErrInvalidSource)
	default:
		return nil
	}
}

// Fetch returns the bytes behind ref.
func (f *Fetcher) Fetch(ctx context.Context, ref domain.SourceRef) ([]byte, error) {
	if err := f.Validate(ref); err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(ref))

	if id, ok := strings.CutPrefix(s, UploadScheme); ok {
		f.mu.RLock()
		data, found := f.uploads[id]
		f.mu.RUnlock()
		if !found {
			return nil, fmt.Errorf("%w: upload %s is no longer available", domain.ErrInvalidSource, id)
		}
		return data, nil
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return f.fetchHTTP(ctx, s)
	}
	return f.fetchLocal(s)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	req.Header.Set("Accept", "application/pdf")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	f.logger.Debug("Source fetched", "url", url, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

func (f *Fetcher) fetchLocal(name string) ([]byte, error) {
	root, err := os.OpenRoot(f.opts.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("open source root: %w", err)
	}
	defer root.Close()

	file, err := root.Open(strings.TrimPrefix(name, "file://"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	defer file.Close()

	return f.readLimited(file)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.opts.MaxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.opts.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.opts.MaxSize {
		return nil, fmt.Errorf("%w: source exceeds %d bytes", domain.ErrInvalidFile, f.opts.MaxSize)
	}
	return data, nil
}
