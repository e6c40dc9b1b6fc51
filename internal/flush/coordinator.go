// Package flush handles best-effort journey saves on exit signals.
//
// Pages fire the exit beacon from both visibilitychange(hidden) and
// beforeunload, and both can fire for the same exit. A short-lived
// Redis guard collapses the double fire; anything slipping past the
// guard window lands as a duplicate row, which the store tolerates.
package flush

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/journeytrack/journeytrack/internal/journey"
)

// guardTTL bounds the window in which repeat exit signals for one
// session collapse into a single save.
const guardTTL = 30 * time.Second

// Guard admits at most one flush per session per guard window.
type Guard interface {
	Acquire(ctx context.Context, sessionID string) bool
}

// Saver is the persistence collaborator.
type Saver interface {
	Save(ctx context.Context, sub journey.Submission) bool
}

// RedisGuard implements Guard with SETNX. Fails open: if Redis is down
// the flush proceeds and a duplicate row is the worst case.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, sessionID string) bool {
	if g.client == nil {
		return true
	}

	ok, err := g.client.SetNX(ctx, "exitflush:"+sessionID, 1, guardTTL).Result()
	if err != nil {
		log.Debug().Err(err).Msg("Exit-flush guard unavailable, allowing flush")
		return true
	}
	return ok
}

// Coordinator decides whether an exit signal turns into a save.
type Coordinator struct {
	guard Guard
	saver Saver
}

func NewCoordinator(guard Guard, saver Saver) *Coordinator {
	return &Coordinator{guard: guard, saver: saver}
}

// FlushIfReturning saves j for returning users only: sessions that
// recorded at least one visit but never submitted a form. Fire and
// forget; the boolean is for observability, the page never sees an
// acknowledgment.
func (c *Coordinator) FlushIfReturning(ctx context.Context, j *journey.Journey) bool {
	if j == nil || len(j.PagesVisited) == 0 {
		return false
	}
	if j.Submitted {
		// The journey already rode a form submission; nothing to salvage.
		return false
	}
	if !c.guard.Acquire(ctx, j.SessionID) {
		log.Debug().Str("session_id", j.SessionID).Msg("Exit flush already fired for this window")
		return false
	}

	saved := c.saver.Save(ctx, journey.Submission{
		SessionID: j.SessionID,
		Type:      journey.SubmissionExit,
		Journey:   *j,
	})
	if !saved {
		log.Warn().Str("session_id", j.SessionID).Msg("Exit flush failed to persist journey")
	}
	return saved
}
