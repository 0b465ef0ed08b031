package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/On-Jun9/MetaPipe/internal/metrics"
	"github.com/On-Jun9/MetaPipe/internal/state"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// Reasons recorded in ActionResult.Skipped.
const (
	SkipUnknownAction = "unknown action"
	SkipNotLocal      = "file not local"
	SkipNoMetadata    = "no metadata extracted"
	SkipNoRecord      = "no metadata record"
	SkipMappingOff    = "mapping disabled"
)

// ActionOption is one entry of the action menu.
type ActionOption struct {
	Token types.Action `json:"token"`
	Label string       `json:"label"`
}

var actionOrder = []types.Action{
	types.ActionRefresh,
	types.ActionRefreshMapAdd,
	types.ActionRefreshMapReplace,
	types.ActionMapAdd,
	types.ActionMapReplace,
	types.ActionDelete,
}

// AvailableActions lists the actions valid for the configured file store.
// Refresh actions need originals on local disk.
func (p *Pipeline) AvailableActions() []ActionOption {
	out := []ActionOption{{Token: types.ActionDefault, Label: "[No action]"}}
	for _, a := range actionOrder {
		if a.Refreshes() && !p.localFiles {
			continue
		}
		out = append(out, ActionOption{Token: a, Label: types.ActionLabels[a]})
	}
	return out
}

// ExtractMetadata runs the extractors for one file and stores the result.
func (p *Pipeline) ExtractMetadata(ctx context.Context, filePath, mediaType, mediaID string) (*types.MetadataRecord, error) {
	return p.orchestrator.Extract(ctx, filePath, mediaType, mediaID)
}

// MapMetadata applies the crosswalk to record and writes the change set.
// replace overrides each rule's own flag when non-nil.
func (p *Pipeline) MapMetadata(ctx context.Context, media types.Media, record *types.MetadataRecord, replace *bool) (added, removed int, err error) {
	if p.disableMapping {
		return 0, 0, nil
	}
	cs, err := p.mapper.Map(ctx, media, record, replace)
	if err != nil {
		return 0, 0, err
	}
	if cs.Empty() {
		return 0, 0, nil
	}
	if err := p.graph.ApplyChanges(ctx, cs); err != nil {
		return 0, 0, fmt.Errorf("failed to apply values for media %s: %w", media.ID, err)
	}
	metrics.Values.WithLabelValues("added").Add(float64(len(cs.Add)))
	metrics.Values.WithLabelValues("removed").Add(float64(len(cs.Remove)))
	return len(cs.Add), len(cs.Remove), nil
}

// DeleteMetadata removes the record of a media. Mapped values stay.
func (p *Pipeline) DeleteMetadata(ctx context.Context, mediaID string) error {
	if err := p.records.Delete(ctx, mediaID); err != nil {
		return fmt.Errorf("failed to delete metadata for %s: %w", mediaID, err)
	}
	return nil
}

// FindMetadata returns the stored record of a media.
func (p *Pipeline) FindMetadata(ctx context.Context, mediaID string) (*types.MetadataRecord, error) {
	return p.records.Find(ctx, mediaID)
}

// DeleteMedia removes a media with its values and its metadata record.
func (p *Pipeline) DeleteMedia(ctx context.Context, mediaID string) error {
	if err := p.graph.DeleteMedia(ctx, mediaID); err != nil {
		return fmt.Errorf("failed to delete media %s: %w", mediaID, err)
	}
	return p.DeleteMetadata(ctx, mediaID)
}

func boolPtr(b bool) *bool { return &b }

// PerformAction runs one action token against a media. Unknown tokens and
// unmet preconditions are reported in Skipped, not as errors.
func (p *Pipeline) PerformAction(ctx context.Context, mediaID string, action types.Action) (types.ActionResult, error) {
	start := time.Now()
	res, err := p.performAction(ctx, mediaID, action)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Skipped != "":
		outcome = "skipped"
	}
	metrics.Actions.WithLabelValues(string(action), outcome).Inc()
	p.logger.LogAction(res, time.Since(start), err)

	update := ProgressUpdate{Type: EventAction, Result: &res}
	if err != nil {
		update.Error = err.Error()
	}
	p.emit(update)
	return res, err
}

func (p *Pipeline) performAction(ctx context.Context, mediaID string, action types.Action) (types.ActionResult, error) {
	res := types.ActionResult{MediaID: mediaID, Action: action}
	if !action.Known() {
		res.Skipped = SkipUnknownAction
		return res, nil
	}

	media, err := p.graph.Media(ctx, mediaID)
	if err != nil {
		return res, err
	}
	lockKey := media.ItemID
	if lockKey == "" {
		lockKey = "media:" + media.ID
	}
	unlock := p.itemLocks.Lock(lockKey)
	defer unlock()

	switch action {
	case types.ActionRefresh, types.ActionRefreshMapAdd, types.ActionRefreshMapReplace:
		path, ok := p.localPath(media)
		if !ok {
			res.Skipped = SkipNotLocal
			return res, nil
		}
		rec, err := p.orchestrator.Extract(ctx, path, media.MediaType, media.ID)
		if err != nil {
			return res, err
		}
		if rec == nil {
			res.Skipped = SkipNoMetadata
			return res, nil
		}
		res.Extracted = true
		if action == types.ActionRefresh {
			return res, nil
		}
		return p.mapInto(ctx, res, media, rec, boolPtr(action == types.ActionRefreshMapReplace))

	case types.ActionMapAdd, types.ActionMapReplace:
		rec, err := p.records.Find(ctx, media.ID)
		if errors.Is(err, state.ErrNotFound) {
			res.Skipped = SkipNoRecord
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("failed to load metadata for %s: %w", media.ID, err)
		}
		return p.mapInto(ctx, res, media, rec, boolPtr(action == types.ActionMapReplace))

	case types.ActionDelete:
		if err := p.DeleteMetadata(ctx, media.ID); err != nil {
			return res, err
		}
		res.Deleted = true
	}
	return res, nil
}

func (p *Pipeline) mapInto(ctx context.Context, res types.ActionResult, media types.Media, rec *types.MetadataRecord, replace *bool) (types.ActionResult, error) {
	if p.disableMapping {
		res.Skipped = SkipMappingOff
		return res, nil
	}
	added, removed, err := p.MapMetadata(ctx, media, rec, replace)
	if err != nil {
		return res, err
	}
	res.Mapped = true
	res.Added = added
	res.Removed = removed
	return res, nil
}

func (p *Pipeline) localPath(media types.Media) (string, bool) {
	if p.files == nil || media.Filename == "" {
		return "", false
	}
	return p.files.LocalPath(media.Filename)
}

// PerformItemAction runs action on every media of an item in attachment
// order, stopping at the first error.
func (p *Pipeline) PerformItemAction(ctx context.Context, itemID string, action types.Action) ([]types.ActionResult, error) {
	if _, err := p.graph.Item(ctx, itemID); err != nil {
		return nil, err
	}
	media, err := p.graph.ItemMedia(ctx, itemID)
	if err != nil {
		return nil, err
	}
	results := make([]types.ActionResult, 0, len(media))
	for _, m := range media {
		res, err := p.PerformAction(ctx, m.ID, action)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// PerformBatch runs action on many media or items with at most jobs
// resources in flight. Results keep the order of ids.
func (p *Pipeline) PerformBatch(ctx context.Context, kind types.ResourceKind, ids []string, action types.Action) ([]types.ActionResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unsupported resource type %q", kind)
	}

	perID := make([][]types.ActionResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.jobs)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if kind == types.ResourceItem {
				res, err := p.PerformItemAction(gctx, id, action)
				perID[i] = res
				return err
			}
			res, err := p.PerformAction(gctx, id, action)
			perID[i] = []types.ActionResult{res}
			return err
		})
	}
	err := g.Wait()

	var results []types.ActionResult
	for _, rs := range perID {
		results = append(results, rs...)
	}
	return results, err
}
