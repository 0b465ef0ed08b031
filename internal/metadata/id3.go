package metadata

import (
	"context"
	"fmt"
	"sort"

	"github.com/bogem/id3v2/v2"
)

// ID3v2Name is the registry name of the built-in ID3v2 frame reader.
const ID3v2Name = "id3v2"

// ID3v2Extractor reads ID3v2 frames keyed by frame ID (TIT2, TPE1, COMM, ...).
type ID3v2Extractor struct{}

func NewID3v2Extractor() *ID3v2Extractor {
	return &ID3v2Extractor{}
}

func (e *ID3v2Extractor) IsAvailable() bool { return true }

func (e *ID3v2Extractor) Supports(mediaType, metadataType string) bool {
	return metadataType == "id3" && mediaType == "audio/mpeg"
}

func (e *ID3v2Extractor) Extract(ctx context.Context, filePath, metadataType string) (map[string]any, error) {
	if metadataType != "id3" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, metadataType)
	}
	t, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read ID3v2 tag: %w", err)
	}
	defer t.Close()

	fields := map[string]any{}
	if !t.HasFrames() {
		return fields, nil
	}
	fields["Version"] = fmt.Sprintf("2.%d", t.Version())

	frames := t.AllFrames()
	ids := make([]string, 0, len(frames))
	for id := range frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var texts []any
		for _, f := range frames[id] {
			switch fr := f.(type) {
			case id3v2.TextFrame:
				texts = append(texts, fr.Text)
			case id3v2.CommentFrame:
				texts = append(texts, fr.Text)
			case id3v2.UnsynchronisedLyricsFrame:
				texts = append(texts, fr.Lyrics)
			case id3v2.UserDefinedTextFrame:
				texts = append(texts, fr.Value)
			}
		}
		switch len(texts) {
		case 0:
		case 1:
			fields[id] = texts[0]
		default:
			fields[id] = texts
		}
	}
	return fields, nil
}
