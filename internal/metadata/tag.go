package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// TagName is the registry name of the built-in audio tag reader.
const TagName = "tag"

// tagFormats lists the tag families dhowden/tag can report, keyed by metadata type.
var tagFormats = map[string][]tag.Format{
	"id3":    {tag.ID3v1, tag.ID3v2_2, tag.ID3v2_3, tag.ID3v2_4},
	"vorbis": {tag.VORBIS},
	"mp4":    {tag.MP4},
}

// AudioTagExtractor reads ID3, Vorbis comment and MP4 atoms with dhowden/tag.
type AudioTagExtractor struct{}

func NewAudioTagExtractor() *AudioTagExtractor {
	return &AudioTagExtractor{}
}

func (e *AudioTagExtractor) IsAvailable() bool { return true }

func (e *AudioTagExtractor) Supports(mediaType, metadataType string) bool {
	_, ok := tagFormats[metadataType]
	return ok && strings.HasPrefix(mediaType, "audio/")
}

func (e *AudioTagExtractor) Extract(ctx context.Context, filePath, metadataType string) (map[string]any, error) {
	formats, ok := tagFormats[metadataType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, metadataType)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read tags: %w", err)
	}
	if !formatIn(m.Format(), formats) {
		// The file is tagged, just not with the family asked for.
		return map[string]any{}, nil
	}

	fields := map[string]any{}
	add := func(key, val string) {
		if val != "" {
			fields[key] = val
		}
	}
	add("Format", string(m.Format()))
	add("FileType", string(m.FileType()))
	add("Title", m.Title())
	add("Artist", m.Artist())
	add("Album", m.Album())
	add("AlbumArtist", m.AlbumArtist())
	add("Composer", m.Composer())
	add("Genre", m.Genre())
	add("Comment", m.Comment())
	add("Lyrics", m.Lyrics())
	if m.Year() != 0 {
		add("Year", strconv.Itoa(m.Year()))
	}
	if track, total := m.Track(); track != 0 {
		add("Track", numberOf(track, total))
	}
	if disc, total := m.Disc(); disc != 0 {
		add("Disc", numberOf(disc, total))
	}

	raw := map[string]any{}
	for k, v := range m.Raw() {
		switch vt := v.(type) {
		case string:
			raw[k] = vt
		case []string:
			raw[k] = strings.Join(vt, "; ")
		case int:
			raw[k] = strconv.Itoa(vt)
		case nil:
		default:
			// Pictures and binary frames are left out.
		}
	}
	if len(raw) > 0 {
		fields["Raw"] = raw
	}
	return fields, nil
}

func formatIn(f tag.Format, formats []tag.Format) bool {
	for _, candidate := range formats {
		if f == candidate {
			return true
		}
	}
	return false
}

func numberOf(n, total int) string {
	if total == 0 {
		return strconv.Itoa(n)
	}
	return strconv.Itoa(n) + "/" + strconv.Itoa(total)
}
