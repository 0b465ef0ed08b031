package metadata

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ExifName is the registry name of the built-in EXIF reader.
const ExifName = "exif"

var exifMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/tiff": true,
}

// EXIFExtractor reads EXIF tags in-process with goexif.
type EXIFExtractor struct{}

func NewEXIFExtractor() *EXIFExtractor {
	return &EXIFExtractor{}
}

func (e *EXIFExtractor) IsAvailable() bool { return true }

func (e *EXIFExtractor) Supports(mediaType, metadataType string) bool {
	return metadataType == "exif" && exifMediaTypes[mediaType]
}

func (e *EXIFExtractor) Extract(ctx context.Context, filePath, metadataType string) (map[string]any, error) {
	if metadataType != "exif" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, metadataType)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := map[string]any{}
	x, err := exif.Decode(f)
	if x == nil {
		// No EXIF block in the file: nothing to report.
		return fields, nil
	}
	if err != nil && exif.IsCriticalError(err) {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}
	if err := x.Walk(exifWalker{fields: fields}); err != nil {
		return nil, err
	}
	return fields, nil
}

type exifWalker struct {
	fields map[string]any
}

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag == nil {
		return nil
	}
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			w.fields[string(name)] = strings.TrimRight(s, "\x00")
			return nil
		}
	}
	val := tag.String()
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	w.fields[string(name)] = val
	return nil
}
