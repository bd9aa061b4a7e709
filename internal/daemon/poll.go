package daemon

import (
	"context"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
)

// PollOutcome is the result of one poll cycle.
type PollOutcome string

const (
	PollNoChange    PollOutcome = "no-change"
	PollChanged     PollOutcome = "change-detected"
	PollFetchFailed PollOutcome = "fetch-failed"
	PollStoreFailed PollOutcome = "store-failed"
)

func (d *Daemon) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	log := d.logger.With("component", "poll")
	log.Info("poll loop started", "interval", d.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			log.Info("poll loop stopped")
			return nil
		case <-ticker.C:
			d.pollCycle(ctx)
		}
	}
}

// pollCycle runs PollOnce to completion even when ctx ends meanwhile. The
// cycle is cancelled only once the drain timeout has passed after that.
func (d *Daemon) pollCycle(ctx context.Context) PollOutcome {
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(d.cfg.DrainTimeout, cancel)
	})
	defer stop()
	return d.PollOnce(cycleCtx)
}

// PollOnce runs one poll cycle: it compares the current track with the last
// one seen and analyzes it when it changed. A failed fetch keeps the last
// seen track so the next cycle retries; a failed store write does not.
func (d *Daemon) PollOnce(ctx context.Context) PollOutcome {
	log := d.logger.With("component", "poll")

	state, lastID, err := d.observeTrack(ctx)
	if err != nil {
		log.Warn("poll cycle", "outcome", PollFetchFailed, "error", err)
		return d.recordPoll(PollFetchFailed, nil, err)
	}

	var currentID string
	if state.Track != nil {
		currentID = state.Track.ID
	}
	if currentID == lastID {
		log.Debug("poll cycle", "outcome", PollNoChange)
		return d.recordPoll(PollNoChange, state.Track, nil)
	}

	if state.Track == nil {
		d.advanceLastSeen(lastID, nil)
		log.Info("poll cycle", "outcome", PollChanged, "track", "none")
		return d.recordPoll(PollChanged, nil, nil)
	}

	track := *state.Track
	_, err = d.AnalyzeAndStore(ctx, track, music.TriggerPoll)
	switch {
	case err == nil:
		d.advanceLastSeen(lastID, &track)
		log.Info("poll cycle", "outcome", PollChanged, "track", track.String())
		return d.recordPoll(PollChanged, &track, nil)
	case ctx.Err() != nil:
		// Shutting down; leave last-seen for the next run.
		log.Warn("poll cycle", "outcome", PollFetchFailed, "track", track.String(), "error", err)
		return d.recordPoll(PollFetchFailed, &track, err)
	default:
		d.advanceLastSeen(lastID, &track)
		log.Error("poll cycle", "outcome", PollStoreFailed, "track", track.String(), "error", err)
		return d.recordPoll(PollStoreFailed, &track, err)
	}
}

// observeTrack reads the playback state and the last-seen id as one step with
// respect to handlers that start playback.
func (d *Daemon) observeTrack(ctx context.Context) (music.PlaybackState, string, error) {
	d.transition.Lock()
	defer d.transition.Unlock()

	state, err := d.player.Current(ctx)
	if err != nil {
		return music.PlaybackState{}, "", err
	}
	var lastID string
	if last := d.lastSeenTrack(); last != nil {
		lastID = last.ID
	}
	return state, lastID, nil
}

func (d *Daemon) recordPoll(outcome PollOutcome, track *music.TrackReference, err error) PollOutcome {
	d.mu.Lock()
	d.lastPoll = outcome
	d.lastPollAt = time.Now()
	d.mu.Unlock()

	d.metrics.RecordPoll(string(outcome))
	if outcome != PollNoChange {
		e := trackEvent(EventPoll, string(outcome), track)
		if err != nil {
			e.Message = apperr.Message(err)
		}
		d.events.publish(e)
	}
	return outcome
}
