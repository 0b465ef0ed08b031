// Package types defines core data structures used across MetaPipe modules.
package types

import (
	"strings"
	"time"
)

// ResourceKind identifies which resource a value belongs to.
type ResourceKind string

const (
	ResourceMedia ResourceKind = "media"
	ResourceItem  ResourceKind = "item"
)

// Valid reports whether k is one of the supported mapping targets.
func (k ResourceKind) Valid() bool {
	return k == ResourceMedia || k == ResourceItem
}

// Payload is the extracted metadata tree keyed by metadata type.
type Payload map[string]any

// MetadataRecord is the latest extraction result for one media.
type MetadataRecord struct {
	// MediaID is the owning media and the uniqueness key.
	MediaID string `json:"media_id"`
	// ExtractedAt is the time of the last successful extraction.
	ExtractedAt time.Time `json:"extracted_at"`
	// Extractors maps each metadata type to the extractor that produced it.
	Extractors map[string]string `json:"extractors"`
	// Payload maps metadata type to the extracted tree.
	Payload Payload `json:"payload"`
}

// ExtractorFor returns the extractor that produced metadataType, if any.
func (r *MetadataRecord) ExtractorFor(metadataType string) (string, bool) {
	if r == nil {
		return "", false
	}
	if _, ok := r.Payload[metadataType]; !ok {
		return "", false
	}
	name, ok := r.Extractors[metadataType]
	return name, ok
}

// CrosswalkRule projects one extracted field onto one property.
type CrosswalkRule struct {
	// Resource is the mapping target (media or item).
	Resource ResourceKind `yaml:"resource" json:"resource"`
	// Extractor optionally restricts the rule to metadata produced by this extractor.
	Extractor string `yaml:"extractor,omitempty" json:"extractor,omitempty"`
	// Pointer is an RFC 6901 JSON Pointer into the record payload (e.g. "/exif/Artist").
	Pointer string `yaml:"pointer" json:"pointer"`
	// Term is the target property term (prefix:localName).
	Term string `yaml:"term" json:"term"`
	// Replace clears existing values of the property before adding.
	Replace bool `yaml:"replace" json:"replace"`
}

// ExtractorBinding pairs a metadata type with the extractor that reads it.
type ExtractorBinding struct {
	MetadataType string `yaml:"metadata_type" json:"metadata_type"`
	Extractor    string `yaml:"extractor" json:"extractor"`
}

// MediaTypeTable maps a media type to its ordered extractor bindings.
type MediaTypeTable map[string][]ExtractorBinding

// Property is a vocabulary property that values can be attached to.
type Property struct {
	ID               int    `json:"id"`
	VocabularyPrefix string `json:"vocabulary_prefix"`
	LocalName        string `json:"local_name"`
	Label            string `json:"label,omitempty"`
}

// Term returns the prefix:localName form of the property.
func (p Property) Term() string {
	return p.VocabularyPrefix + ":" + p.LocalName
}

// SplitTerm splits "prefix:localName". ok is false when either part is empty.
func SplitTerm(term string) (prefix, localName string, ok bool) {
	prefix, localName, found := strings.Cut(term, ":")
	if !found || prefix == "" || localName == "" {
		return "", "", false
	}
	return prefix, localName, true
}

// Value is a property value attached to a media or an item.
type Value struct {
	ID           string       `json:"id"`
	ResourceID   string       `json:"resource_id"`
	ResourceKind ResourceKind `json:"resource_type"`
	PropertyID   int          `json:"property_id"`
	Term         string       `json:"term"`
	Type         string       `json:"type"`
	Value        string       `json:"value"`
	IsPublic     bool         `json:"is_public"`
}

// ValueTypeLiteral is the only value type produced by mapping.
const ValueTypeLiteral = "literal"

// ChangeSet is a batch of value removals and additions applied together.
// Removals are applied before additions.
type ChangeSet struct {
	Remove []Value `json:"remove"`
	Add    []Value `json:"add"`
}

// Empty reports whether the change set does nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Remove) == 0 && len(c.Add) == 0
}

// Item is a content record that owns media.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Media is a file attached to an item.
type Media struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	MediaType string    `json:"media_type"`
	Filename  string    `json:"filename"`
	Source    string    `json:"source,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// FileEntry represents a scanned file with its detected media type.
type FileEntry struct {
	// Path is the absolute path to the source file.
	Path string
	// Name is the base filename.
	Name string
	// Size is the file size in bytes.
	Size int64
	// ModTime is the file modification time.
	ModTime time.Time
	// Extension is the lowercase file extension without dot (e.g., "jpg", "mp4").
	Extension string
	// MediaType is the detected IANA media type (e.g., "image/jpeg").
	MediaType string
}

// Action is a caller-supplied extract-metadata action token.
type Action string

const (
	ActionRefresh           Action = "refresh"
	ActionRefreshMapAdd     Action = "refresh_map_add"
	ActionRefreshMapReplace Action = "refresh_map_replace"
	ActionMapAdd            Action = "map_add"
	ActionMapReplace        Action = "map_replace"
	ActionDelete            Action = "delete"
	ActionDefault           Action = "default"
)

// ActionLabels holds the human-readable label of every known action.
var ActionLabels = map[Action]string{
	ActionRefresh:           "Refresh metadata",
	ActionRefreshMapAdd:     "Refresh and map metadata (add values)",
	ActionRefreshMapReplace: "Refresh and map metadata (replace values)",
	ActionMapAdd:            "Map metadata (add values)",
	ActionMapReplace:        "Map metadata (replace values)",
	ActionDelete:            "Delete extracted metadata",
}

// Known reports whether a is an action the dispatcher acts on.
func (a Action) Known() bool {
	_, ok := ActionLabels[a]
	return ok
}

// Refreshes reports whether a re-extracts metadata from the file.
func (a Action) Refreshes() bool {
	return a == ActionRefresh || a == ActionRefreshMapAdd || a == ActionRefreshMapReplace
}

// ActionResult summarizes what one action did to one media.
type ActionResult struct {
	MediaID   string `json:"media_id"`
	Action    Action `json:"action"`
	Extracted bool   `json:"extracted"`
	Mapped    bool   `json:"mapped"`
	Deleted   bool   `json:"deleted"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	// Skipped explains why nothing happened (e.g. "file not local").
	Skipped string `json:"skipped,omitempty"`
}

// IngestSummary contains statistics for an ingest run.
type IngestSummary struct {
	ScannedFiles int           `json:"scanned_files"`
	Ingested     int           `json:"ingested"`
	Extracted    int           `json:"extracted"`
	Mapped       int           `json:"mapped"`
	Failed       int           `json:"failed"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
}
