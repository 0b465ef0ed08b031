package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/On-Jun9/MetaPipe/internal/metrics"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// ErrNotIngestible is returned for files without a configured media type.
var ErrNotIngestible = errors.New("file type is not configured for ingest")

// IngestResult describes one ingested file.
type IngestResult struct {
	Item   types.Item            `json:"item"`
	Media  types.Media           `json:"media"`
	Record *types.MetadataRecord `json:"record,omitempty"`
	Added  int                   `json:"added"`
}

// Ingest creates an item and a media for sourcePath, extracts its metadata,
// stores the original and maps the record with each rule's own replace flag.
func (p *Pipeline) Ingest(ctx context.Context, sourcePath string) (*IngestResult, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, err
	}
	mediaType, ok := p.scanner.Accepts(abs)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotIngestible, sourcePath)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotIngestible, sourcePath)
	}

	base := filepath.Base(abs)
	item, err := p.graph.CreateItem(ctx, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	media, err := p.graph.CreateMedia(ctx, types.Media{
		ItemID:    item.ID,
		MediaType: mediaType,
		Filename:  uuid.NewString() + strings.ToLower(filepath.Ext(base)),
		Source:    abs,
		Size:      info.Size(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create media: %w", err)
	}
	result := &IngestResult{Item: item, Media: media}

	undo := func(cause error) (*IngestResult, error) {
		if err := p.DeleteMedia(context.WithoutCancel(ctx), media.ID); err != nil {
			p.logger.Warn("failed to roll back ingest", zap.String("media_id", media.ID), zap.Error(err))
		}
		return nil, cause
	}

	rec, err := p.orchestrator.Extract(ctx, abs, mediaType, media.ID)
	if err != nil {
		return undo(err)
	}
	result.Record = rec

	if p.files != nil {
		if err := p.files.Put(ctx, abs, media.Filename); err != nil {
			return undo(fmt.Errorf("failed to store %s: %w", base, err))
		}
	}

	if rec != nil {
		added, _, err := p.MapMetadata(ctx, media, rec, nil)
		if err != nil {
			return undo(err)
		}
		result.Added = added
	}

	metrics.IngestedFiles.Inc()
	p.logger.Info("ingested "+base,
		zap.String("item_id", item.ID),
		zap.String("media_id", media.ID),
		zap.String("media_type", mediaType),
		zap.Bool("extracted", rec != nil),
		zap.Int("added", result.Added))
	return result, nil
}

// IngestAll ingests every configured file under root. Per-file failures are
// counted and logged; only scan errors and cancellation are returned.
func (p *Pipeline) IngestAll(ctx context.Context, root string) (*types.IngestSummary, error) {
	startTime := time.Now()
	p.logger.Info("Starting scan: '" + root + "'")
	p.emit(ProgressUpdate{Type: EventStatus, Message: "scanning " + root})

	entries, err := p.scanner.Scan(root)
	if err != nil {
		return nil, err
	}
	p.logger.Info(fmt.Sprintf("Found %d files", len(entries)))

	summary := &types.IngestSummary{ScannedFiles: len(entries), StartTime: startTime}
	var mu sync.Mutex
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.jobs)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.Ingest(gctx, entry.Path)

			mu.Lock()
			defer mu.Unlock()
			processed++
			update := ProgressUpdate{Type: EventProgress, Current: processed, Total: len(entries), Filename: entry.Name}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				summary.Failed++
				update.Error = err.Error()
				p.logger.Error("ingest failed", zap.String("path", entry.Path), zap.Error(err))
			} else {
				summary.Ingested++
				if res.Record != nil {
					summary.Extracted++
				}
				if res.Added > 0 {
					summary.Mapped++
				}
			}
			p.logger.Progress(processed, len(entries), entry.Name)
			p.emit(update)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(startTime)
	p.logger.Summary(*summary)
	p.emit(ProgressUpdate{Type: EventComplete, Summary: summary})
	return summary, nil
}

// Watch ingests files created under dir until ctx is done. A file is
// ingested once it has not been written to for the settle period, and at
// most once per Watch call.
func (p *Pipeline) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	p.logger.Info("watching " + dir)

	ready := make(chan string)
	pending := map[string]*time.Timer{}
	ingested := map[string]bool{}
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, accepted := p.scanner.Accepts(event.Name); !accepted {
				continue
			}
			name := event.Name
			if ingested[name] {
				continue
			}
			if t, exists := pending[name]; exists {
				t.Reset(p.watchSettle)
				continue
			}
			pending[name] = time.AfterFunc(p.watchSettle, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})
		case name := <-ready:
			if _, exists := pending[name]; !exists {
				continue
			}
			delete(pending, name)
			if !readable(name) {
				continue
			}
			ingested[name] = true
			res, err := p.Ingest(ctx, name)
			if err != nil {
				delete(ingested, name)
				p.logger.Error("ingest failed", zap.String("path", name), zap.Error(err))
				p.emit(ProgressUpdate{Type: EventError, Filename: filepath.Base(name), Error: err.Error()})
				continue
			}
			p.emit(ProgressUpdate{Type: EventProgress, Filename: filepath.Base(name), Message: "ingested " + res.Media.ID})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watch error", zap.Error(err))
		}
	}
}
