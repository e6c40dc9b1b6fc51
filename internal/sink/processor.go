// Package sink drains tracking events from Kafka into ClickHouse.
package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/journeytrack/journeytrack/internal/config"
	"github.com/journeytrack/journeytrack/internal/emitter"
)

// Inserter is the ClickHouse slice the processor needs.
type Inserter interface {
	InsertEvents(ctx context.Context, events []EventRow) error
}

// Processor buffers transformed events and flushes them in batches,
// either when the buffer fills or on the ticker.
type Processor struct {
	store    Inserter
	batchCfg config.BatchConfig

	buffer []EventRow

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

func NewProcessor(store Inserter, batchCfg config.BatchConfig) *Processor {
	p := &Processor{
		store:    store,
		batchCfg: batchCfg,
		buffer:   make([]EventRow, 0, batchCfg.Size),
		done:     make(chan struct{}),
	}

	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	go p.flushLoop()

	return p
}

// Process transforms one raw Kafka message into a row and buffers it.
func (p *Processor) Process(ctx context.Context, raw map[string]interface{}) error {
	row := transform(raw)

	p.mu.Lock()
	p.buffer = append(p.buffer, row)
	shouldFlush := len(p.buffer) >= p.batchCfg.Size
	p.mu.Unlock()

	if shouldFlush {
		p.Flush()
	}
	return nil
}

func (p *Processor) flushLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.Flush()
		}
	}
}

// Flush writes all buffered rows to ClickHouse.
func (p *Processor) Flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	events := p.buffer
	p.buffer = make([]EventRow, 0, p.batchCfg.Size)
	p.mu.Unlock()

	start := time.Now()
	if err := p.store.InsertEvents(context.Background(), events); err != nil {
		log.Error().Err(err).Int("count", len(events)).Msg("Failed to insert events")
		return
	}
	log.Info().
		Int("count", len(events)).
		Dur("duration", time.Since(start)).
		Msg("Flushed events to ClickHouse")
}

// Stop stops the ticker and flushes whatever is left.
func (p *Processor) Stop() {
	p.ticker.Stop()
	close(p.done)
	p.Flush()
}

// transform maps the emitter's wire shape onto a ClickHouse row.
// Unknown payloads are kept verbatim as JSON.
func transform(raw map[string]interface{}) EventRow {
	var ev emitter.Event
	if data, err := json.Marshal(raw); err == nil {
		json.Unmarshal(data, &ev)
	}

	row := EventRow{
		EventID:    ev.EventID,
		SessionID:  ev.SessionID,
		EventType:  ev.Type,
		Timestamp:  time.UnixMilli(ev.Timestamp),
		PagePath:   ev.Path,
		DeviceType: ev.DeviceType,
		Browser:    ev.Browser,
		OS:         ev.OS,
		Country:    ev.Country,
		City:       ev.City,
	}

	if len(ev.Payload) > 0 {
		if data, err := json.Marshal(ev.Payload); err == nil {
			row.Payload = string(data)
		}
	}

	return row
}
