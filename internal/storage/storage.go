// Package storage keeps ingested originals, either on local disk or in an
// S3 bucket. Only local storage can hand a file path back for re-extraction.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by New.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// originalDir is where originals live under the store root.
const originalDir = "original"

// Options selects and configures a backend.
type Options struct {
	Backend    string
	LocalDir   string
	HashVerify bool
	S3         S3Options
}

// Store is the behaviour shared by every backend.
type Store interface {
	Put(ctx context.Context, srcPath, filename string) error
	LocalPath(filename string) (string, bool)
	Name() string
}

// New returns the backend named in opts.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendLocal:
		return NewLocal(opts.LocalDir, opts.HashVerify), nil
	case BackendS3:
		return NewS3(opts.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// cleanName rejects names that would escape the store root.
func cleanName(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("invalid storage filename %q", filename)
	}
	return filename, nil
}
