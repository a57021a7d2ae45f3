package caption

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/live-caption-translator/internal/subtitle"
)

// ReplaySource plays a subtitle track back in real time, scaled by speed,
// and samples the caption on screen every interval like PageSource does.
// The last sample is always the empty caption after the final cue.
type ReplaySource struct {
	track    *subtitle.Track
	interval time.Duration
	speed    float64
	now      func() time.Time
}

func NewReplaySource(track *subtitle.Track, interval time.Duration, speed float64) *ReplaySource {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if speed <= 0 {
		speed = 1
	}
	return &ReplaySource{track: track, interval: interval, speed: speed, now: time.Now}
}

func (r *ReplaySource) Samples(ctx context.Context) (<-chan string, error) {
	if r.track == nil || len(r.track.Cues) == 0 {
		return nil, fmt.Errorf("subtitle track has no cues")
	}

	out := make(chan string)
	go func() {
		defer close(out)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		started := r.now()
		end := r.track.Duration()
		for {
			offset := time.Duration(float64(r.now().Sub(started)) * r.speed)
			select {
			case out <- r.track.TextAt(offset):
			case <-ctx.Done():
				return
			}
			if offset >= end {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
