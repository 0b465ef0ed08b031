package pipeline

import (
	"context"
	"time"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// FileStore is where ingested originals live. LocalPath reports false when
// the backend cannot hand out a filesystem path.
type FileStore interface {
	LocalPath(filename string) (string, bool)
	Put(ctx context.Context, srcPath, filename string) error
}

// ResourceGraph owns items, media and their property values.
type ResourceGraph interface {
	Media(ctx context.Context, id string) (types.Media, error)
	Item(ctx context.Context, id string) (types.Item, error)
	ItemMedia(ctx context.Context, itemID string) ([]types.Media, error)
	Values(ctx context.Context, kind types.ResourceKind, id string) ([]types.Value, error)
	ApplyChanges(ctx context.Context, cs types.ChangeSet) error
	CreateItem(ctx context.Context, title string) (types.Item, error)
	CreateMedia(ctx context.Context, m types.Media) (types.Media, error)
	DeleteMedia(ctx context.Context, id string) error
}

type PropertyCatalog interface {
	FindPropertyByTerm(term string) (types.Property, bool)
}

// RecordStore persists one metadata record per media.
type RecordStore interface {
	Upsert(ctx context.Context, mediaID string, payload types.Payload, extractors map[string]string, extractedAt time.Time) (*types.MetadataRecord, error)
	Find(ctx context.Context, mediaID string) (*types.MetadataRecord, error)
	Delete(ctx context.Context, mediaID string) error
}
