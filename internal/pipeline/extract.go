package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/internal/metrics"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// Orchestrator runs the extractors configured for a media type and stores
// the merged result as one record per media.
type Orchestrator struct {
	registry *metadata.Registry
	table    types.MediaTypeTable
	records  RecordStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(registry *metadata.Registry, table types.MediaTypeTable, records RecordStore, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		table:    table,
		records:  records,
		logger:   logger,
		now:      time.Now,
	}
}

// readable reports whether path is a regular file that can be opened.
func readable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Extract reads every metadata type bound to mediaType from filePath and
// upserts the record of mediaID. It returns nil without touching the store
// when the file is not readable, the media type has no bindings, or no
// extractor produced anything. Extractor failures only drop their own
// metadata type; store errors are returned.
func (o *Orchestrator) Extract(ctx context.Context, filePath, mediaType, mediaID string) (*types.MetadataRecord, error) {
	log := o.logger.With(zap.String("media_id", mediaID), zap.String("path", filePath))

	if !readable(filePath) {
		log.Debug("skip extraction: file not readable")
		return nil, nil
	}
	bindings := o.table[mediaType]
	if len(bindings) == 0 {
		log.Debug("skip extraction: media type not configured", zap.String("media_type", mediaType))
		return nil, nil
	}

	available := map[string]bool{}
	payload := map[string]any{}
	producers := map[string]string{}

	for _, b := range bindings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blog := log.With(zap.String("extractor", b.Extractor), zap.String("metadata_type", b.MetadataType))

		ex, err := o.registry.Get(b.Extractor)
		if err != nil {
			blog.Debug("skip extractor: not registered")
			continue
		}
		ok, seen := available[b.Extractor]
		if !seen {
			ok = ex.IsAvailable()
			available[b.Extractor] = ok
		}
		if !ok {
			blog.Debug("skip extractor: unavailable")
			metrics.Extractions.WithLabelValues(b.Extractor, metrics.OutcomeUnavailable).Inc()
			continue
		}
		if !ex.Supports(mediaType, b.MetadataType) {
			blog.Debug("skip extractor: unsupported")
			metrics.Extractions.WithLabelValues(b.Extractor, metrics.OutcomeUnsupported).Inc()
			continue
		}

		start := time.Now()
		result, err := ex.Extract(ctx, filePath, b.MetadataType)
		metrics.ExtractionSeconds.WithLabelValues(b.Extractor).Observe(time.Since(start).Seconds())
		switch {
		case errors.Is(err, metadata.ErrUnsupported):
			blog.Debug("skip extractor: unsupported metadata type")
			metrics.Extractions.WithLabelValues(b.Extractor, metrics.OutcomeUnsupported).Inc()
			continue
		case err != nil:
			blog.Warn("extractor failed", zap.Error(err))
			metrics.Extractions.WithLabelValues(b.Extractor, metrics.OutcomeError).Inc()
			continue
		case result == nil:
			metrics.Extractions.WithLabelValues(b.Extractor, metrics.OutcomeError).Inc()
			continue
		}

		outcome := metrics.OutcomeOK
		if len(result) == 0 {
			outcome = metrics.OutcomeEmpty
		}
		metrics.Extractions.WithLabelValues(b.Extractor, outcome).Inc()
		payload[b.MetadataType] = result
		producers[b.MetadataType] = b.Extractor
	}

	if len(payload) == 0 {
		log.Debug("no metadata extracted")
		return nil, nil
	}

	normalized, err := metadata.NormalizePayload(payload)
	if err != nil {
		log.Warn("dropping extraction: payload not encodable", zap.Error(err))
		return nil, nil
	}

	rec, err := o.records.Upsert(ctx, mediaID, types.Payload(normalized), producers, o.now())
	if err != nil {
		return nil, fmt.Errorf("failed to store metadata for %s: %w", mediaID, err)
	}
	log.Debug("metadata extracted", zap.Int("metadata_types", len(normalized)))
	return rec, nil
}
