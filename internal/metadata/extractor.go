// Package metadata holds the metadata extractors and the registry that names them.
package metadata

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported is returned when an extractor does not handle a metadata type.
	ErrUnsupported = errors.New("metadata: unsupported metadata type")
	// ErrUnavailable is returned when an extractor cannot run in this environment.
	ErrUnavailable = errors.New("metadata: extractor unavailable")
)

// Extractor reads one category of embedded metadata from a file.
//
// Extract returns an empty map and a nil error when the file simply carries no
// metadata of the requested type. ErrUnsupported is returned for metadata types
// outside the extractor's table; any other error means the extraction failed.
type Extractor interface {
	IsAvailable() bool
	Supports(mediaType, metadataType string) bool
	Extract(ctx context.Context, filePath, metadataType string) (map[string]any, error)
}
