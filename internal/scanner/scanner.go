// Package scanner walks source directories and detects media types.
package scanner

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// extensionTypes covers formats whose mime registration differs between
// platforms or is missing from most system tables.
var extensionTypes = map[string]string{
	"jpg": "image/jpeg", "jpeg": "image/jpeg", "jpe": "image/jpeg",
	"tif": "image/tiff", "tiff": "image/tiff",
	"png": "image/png", "gif": "image/gif", "webp": "image/webp",
	"svg": "image/svg+xml", "psd": "image/vnd.adobe.photoshop",
	"heic": "image/heic", "heif": "image/heif",
	"mp3": "audio/mpeg", "flac": "audio/flac", "ogg": "audio/ogg", "oga": "audio/ogg",
	"opus": "audio/ogg", "m4a": "audio/mp4", "aif": "audio/x-aiff", "aiff": "audio/x-aiff",
	"wav": "audio/x-wav", "wma": "audio/x-ms-wma",
	"mp4": "video/mp4", "m4v": "video/mp4", "mov": "video/quicktime", "mxf": "video/mxf",
	"avi": "video/x-msvideo", "mkv": "video/x-matroska", "webm": "video/webm",
	"wmv": "video/x-ms-wmv", "flv": "video/x-flv", "ogv": "video/ogg", "mpg": "video/mpeg",
	"pdf": "application/pdf", "zip": "application/zip", "rtf": "application/rtf",
	"swf": "application/x-shockwave-flash", "exe": "application/x-msdownload",
	"xml": "application/xml",
}

// DetectMediaType returns the media type of path from its extension, or ""
// when it is unknown.
func DetectMediaType(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return ""
	}
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	mt, _, err := mime.ParseMediaType(mime.TypeByExtension("." + ext))
	if err != nil {
		return ""
	}
	return mt
}

// Scanner finds files whose media type has extractors configured.
type Scanner struct {
	mediaTypes map[string]bool
}

// New returns a scanner accepting the given media types. An empty list
// accepts every file with a known media type.
func New(mediaTypes []string) *Scanner {
	m := make(map[string]bool, len(mediaTypes))
	for _, mt := range mediaTypes {
		m[strings.ToLower(mt)] = true
	}
	return &Scanner{mediaTypes: m}
}

// Accepts reports whether a file at path would be picked up by Scan.
func (s *Scanner) Accepts(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") {
		return "", false
	}
	mt := DetectMediaType(path)
	if mt == "" {
		return "", false
	}
	if len(s.mediaTypes) > 0 && !s.mediaTypes[mt] {
		return "", false
	}
	return mt, true
}

func (s *Scanner) Scan(root string) ([]types.FileEntry, error) {
	var entries []types.FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		mt, ok := s.Accepts(path)
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}

		entries = append(entries, types.FileEntry{
			Path:      path,
			Name:      d.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Extension: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
			MediaType: mt,
		})

		return nil
	})

	return entries, err
}
