package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// MediaTypeEntry lists the extractors run for one media type, in order.
type MediaTypeEntry struct {
	MediaType string                   `json:"media_type"`
	Bindings  []types.ExtractorBinding `json:"bindings"`
}

// MediaTypes is the ordered media-type table. In YAML it is a mapping of
// media type to a mapping of metadata type to one extractor name or a list
// of names:
//
//	image/jpeg:
//	  exif: [exif, exiftool]
//	  xmp: exiftool
//
// Order is preserved. When several extractors are listed for one metadata
// type they all run and the last one that returns data wins.
type MediaTypes []MediaTypeEntry

func (m *MediaTypes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: media_types must be a mapping", node.Line)
	}
	seen := map[string]bool{}
	out := make(MediaTypes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate media type %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: %s must map metadata types to extractors", val.Line, key.Value)
		}
		entry := MediaTypeEntry{MediaType: key.Value}
		seenType := map[string]bool{}
		for j := 0; j+1 < len(val.Content); j += 2 {
			mtKey, extVal := val.Content[j], val.Content[j+1]
			if seenType[mtKey.Value] {
				return fmt.Errorf("line %d: duplicate metadata type %q for %s", mtKey.Line, mtKey.Value, key.Value)
			}
			seenType[mtKey.Value] = true

			var names []string
			switch extVal.Kind {
			case yaml.ScalarNode:
				names = []string{extVal.Value}
			case yaml.SequenceNode:
				if err := extVal.Decode(&names); err != nil {
					return err
				}
			default:
				return fmt.Errorf("line %d: extractor must be a name or a list of names", extVal.Line)
			}
			for _, name := range names {
				entry.Bindings = append(entry.Bindings, types.ExtractorBinding{MetadataType: mtKey.Value, Extractor: name})
			}
		}
		out = append(out, entry)
	}
	*m = out
	return nil
}

// Table returns the lookup form used by the extraction orchestrator.
func (m MediaTypes) Table() types.MediaTypeTable {
	t := make(types.MediaTypeTable, len(m))
	for _, e := range m {
		t[e.MediaType] = append(t[e.MediaType], e.Bindings...)
	}
	return t
}

// Names lists the configured media types in order.
func (m MediaTypes) Names() []string {
	names := make([]string, 0, len(m))
	for _, e := range m {
		names = append(names, e.MediaType)
	}
	return names
}

func bind(mediaType string, pairs ...string) MediaTypeEntry {
	e := MediaTypeEntry{MediaType: mediaType}
	for i := 0; i+1 < len(pairs); i += 2 {
		e.Bindings = append(e.Bindings, types.ExtractorBinding{MetadataType: pairs[i], Extractor: pairs[i+1]})
	}
	return e
}

// DefaultMediaTypes is the built-in table. Built-in readers are listed before
// exiftool for the same metadata type so exiftool output wins when it runs.
func DefaultMediaTypes() MediaTypes {
	return MediaTypes{
		bind("image/jpeg",
			"exif", "exif", "exif", "exiftool",
			"iccprofile", "exiftool",
			"photoshop", "exiftool",
			"iptc", "exiftool",
			"xmp", "exiftool",
			"app14", "exiftool"),
		bind("image/png", "xmp", "exiftool", "png", "exiftool", "iptc", "exiftool", "exif", "exiftool"),
		bind("image/gif", "xmp", "exiftool", "gif", "exiftool", "iptc", "exiftool"),
		bind("image/svg+xml", "svg", "exiftool", "iptc", "exiftool"),
		bind("image/tiff",
			"exif", "exif", "exif", "exiftool",
			"iccprofile", "exiftool",
			"iptc", "exiftool"),
		bind("application/vnd.adobe.photoshop",
			"photoshop", "exiftool", "iptc", "exiftool", "xmp", "exiftool",
			"iccprofile", "exiftool", "exif", "exiftool"),
		bind("application/pdf", "xmp", "exiftool", "pdf", "exiftool"),
		bind("application/msword", "flashpix", "exiftool"),
		bind("application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"zip", "exiftool", "xmp", "exiftool", "xml", "exiftool"),
		bind("application/vnd.oasis.opendocument.text", "xmp", "exiftool"),
		bind("application/rtf", "rtf", "exiftool"),
		bind("video/x-msvideo", "riff", "exiftool"),
		bind("video/mp4", "quicktime", "exiftool", "nonrealtimemeta", "sidecar"),
		bind("video/quicktime", "quicktime", "exiftool"),
		bind("video/mxf", "nonrealtimemeta", "sidecar"),
		bind("video/mpeg", "mpeg", "exiftool"),
		bind("video/x-ms-wmv", "asf", "exiftool"),
		bind("video/x-ms-asf", "asf", "exiftool"),
		bind("audio/mpeg", "mpeg", "exiftool", "id3", "id3v2", "id3", "exiftool"),
		bind("audio/ogg", "vorbis", "tag", "vorbis", "exiftool"),
		bind("audio/flac", "vorbis", "tag", "flac", "exiftool"),
		bind("audio/mp4", "mp4", "tag", "quicktime", "exiftool"),
		bind("audio/wav", "riff", "exiftool"),
		bind("audio/x-wav", "riff", "exiftool"),
	}
}
