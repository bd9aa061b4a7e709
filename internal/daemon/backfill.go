package daemon

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-music-agent/internal/music"
)

// defaultBackfillLimit caps how many history tracks one backfill run visits.
const defaultBackfillLimit = 50

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	Tracks   int `json:"tracks"`
	Tagged   int `json:"tagged"`
	Untagged int `json:"untagged"` // analyzed but nothing to tag
	Failed   int `json:"failed"`
	Tags     int `json:"tags"`
}

type backfillResult struct {
	analysis Analysis
	err      error
}

// Backfill analyzes played tracks that carry no tags yet. Catalog lookups
// run on a bounded worker pool; the results are then written one at a time.
// Plays are not recorded again.
func (d *Daemon) Backfill(ctx context.Context, limit int) (BackfillReport, error) {
	if limit <= 0 {
		limit = defaultBackfillLimit
	}
	tracks, err := d.store.UntaggedTracks(ctx, limit)
	if err != nil {
		return BackfillReport{}, err
	}
	report := BackfillReport{Tracks: len(tracks)}
	if len(tracks) == 0 {
		return report, nil
	}

	results := d.enrichAll(ctx, tracks)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	log := d.logger.With("component", "backfill")
	for i, r := range results {
		if r.err != nil {
			log.Warn("analyzing track failed", "track", tracks[i].String(), "error", r.err)
			report.Failed++
			continue
		}
		a := r.analysis
		if len(a.Suggestions) == 0 && a.Features == nil {
			report.Untagged++
			continue
		}
		if err := d.persist(ctx, &a, nil); err != nil {
			return report, err
		}
		report.Tagged++
		report.Tags += len(a.Tags)
	}

	log.Info("backfill finished",
		"tracks", report.Tracks,
		"tagged", report.Tagged,
		"untagged", report.Untagged,
		"failed", report.Failed,
	)
	return report, nil
}

// enrichAll runs enrich for every track on d.concurrency workers. Results
// are in input order; individual failures are kept in the result rather
// than failing the batch.
func (d *Daemon) enrichAll(ctx context.Context, tracks []music.TrackReference) []backfillResult {
	results := make([]backfillResult, len(tracks))

	type workItem struct {
		index int
		track music.TrackReference
	}
	workCh := make(chan workItem, len(tracks))
	for i, t := range tracks {
		workCh <- workItem{index: i, track: t}
	}
	close(workCh)

	var g errgroup.Group
	for i, n := 0, min(d.concurrency, len(tracks)); i < n; i++ {
		g.Go(func() error {
			for work := range workCh {
				if err := ctx.Err(); err != nil {
					results[work.index] = backfillResult{err: err}
					continue
				}
				a, err := d.enrich(ctx, work.track)
				results[work.index] = backfillResult{analysis: a, err: err}
			}
			return nil
		})
	}
	g.Wait()
	return results
}
