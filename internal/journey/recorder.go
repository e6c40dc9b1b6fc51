package journey

import (
	"context"
	"time"

	"github.com/journeytrack/journeytrack/internal/emitter"
)

// Emitter routes tracking events to the analytics pipeline. Emission
// never blocks journey recording on a result.
type Emitter interface {
	Emit(ctx context.Context, ev emitter.Event)
}

// nopEmitter stands in when no pipeline is configured.
type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, emitter.Event) {}

// Recorder appends visits to a journey and keeps the dwell-time
// bookkeeping honest.
type Recorder struct {
	emitter Emitter
	now     func() time.Time
}

func NewRecorder(em Emitter) *Recorder {
	if em == nil {
		em = nopEmitter{}
	}
	return &Recorder{
		emitter: em,
		now:     time.Now,
	}
}

// RecordVisit appends a visit for path to j. The previous entry's
// timeSpent, unknown until now, is backfilled as the whole-second floor
// of the gap between the two timestamps.
//
// Invariant: at most one entry — the newest — lacks timeSpent.
// Repeated paths append distinct entries; there is no de-duplication.
func (r *Recorder) RecordVisit(ctx context.Context, j *Journey, path, fullURL string) {
	now := r.now()

	if last := lastVisit(j); last != nil && last.TimeSpent == nil {
		spent := int64(now.Sub(last.Timestamp).Seconds())
		if spent < 0 {
			spent = 0
		}
		last.TimeSpent = &spent
	}

	if fullURL == "" {
		fullURL = path
	}
	j.PagesVisited = append(j.PagesVisited, PageVisit{
		Path:      path,
		FullURL:   fullURL,
		Timestamp: now,
	})

	r.emitter.Emit(ctx, r.event(j, "page_view", path, nil))
}

// SampleScrollDepth emits a scroll-depth event for the current page.
// It never mutates the journey; scroll samples ride the analytics
// pipeline only.
func (r *Recorder) SampleScrollDepth(ctx context.Context, j *Journey, path string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.emitter.Emit(ctx, r.event(j, "scroll_depth", path, map[string]any{
		"depth_percent": percent,
	}))
}

// TrackEvent emits a named custom event with arbitrary properties.
func (r *Recorder) TrackEvent(ctx context.Context, j *Journey, name, path string, properties map[string]any) {
	r.emitter.Emit(ctx, r.event(j, "custom", path, map[string]any{
		"name":       name,
		"properties": properties,
	}))
}

func (r *Recorder) event(j *Journey, typ, path string, payload map[string]any) emitter.Event {
	return emitter.Event{
		Type:       typ,
		SessionID:  j.SessionID,
		Path:       path,
		Timestamp:  r.now().UnixMilli(),
		DeviceType: j.DeviceType,
		Browser:    j.Browser,
		OS:         j.OS,
		Country:    j.Country,
		City:       j.City,
		Payload:    payload,
	}
}

func lastVisit(j *Journey) *PageVisit {
	if len(j.PagesVisited) == 0 {
		return nil
	}
	return &j.PagesVisited[len(j.PagesVisited)-1]
}
