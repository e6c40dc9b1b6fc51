// Package storage writes journey snapshots and leads to Postgres.
//
// Both writes are one-way: plain INSERTs with no conflict key, so a
// double-fired exit flush produces two rows. Analytics here is
// approximate by design decision; see the saved-journey dedupe guard in
// the flush package for the only mitigation.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/journeytrack/journeytrack/internal/journey"
)

// DB is the slice of pgxpool.Pool the gateway needs. Narrowed so tests
// can substitute a recorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Lead is the flattened record for the leads side-channel. It shares a
// session_id with the journey table but the two inserts are not
// transactionally linked; partial writes are possible and accepted.
type Lead struct {
	SessionID   string
	Name        string
	Email       string
	Phone       string
	Company     string
	Service     string
	Message     string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string
	DeviceType  string
	Browser     string
	OS          string
}

const retryBackoff = 250 * time.Millisecond

// Gateway persists submissions. Save never panics past its boundary and
// reports success as a bare boolean; callers decide independently what
// the end user sees.
type Gateway struct {
	db    DB
	now   func() time.Time
	sleep func(time.Duration)
}

func NewGateway(pool *pgxpool.Pool) *Gateway {
	return newGateway(pool)
}

func newGateway(db DB) *Gateway {
	return &Gateway{
		db:    db,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

const insertJourneySQL = `
	INSERT INTO user_journeys (
		session_id, email, name, phone,
		pages_visited, total_pages, first_page, last_page,
		device_type, browser, os, country, city, ip_address,
		submission_type, newsletter_subscribed, contact_form_submitted,
		session_start, session_end, time_on_site
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
`

// Save inserts one row per call into user_journeys. time_on_site is
// computed here, at save time, from the journey's sessionStart. The
// insert is retried once on failure; after that the row is dropped and
// the caller only learns "false".
func (g *Gateway) Save(ctx context.Context, sub journey.Submission) bool {
	now := g.now()
	j := sub.Journey

	pages, err := json.Marshal(j.PagesVisited)
	if err != nil {
		log.Error().Err(err).Str("session_id", sub.SessionID).Msg("Failed to encode pages for journey row")
		return false
	}

	timeOnSite := int64(now.Sub(j.SessionStart).Seconds())
	if timeOnSite < 0 {
		timeOnSite = 0
	}

	args := []any{
		sub.SessionID,
		nullable(sub.Email),
		nullable(sub.Name),
		nullable(sub.Phone),
		string(pages),
		len(j.PagesVisited),
		j.FirstPage(),
		j.LastPage(),
		j.DeviceType,
		j.Browser,
		j.OS,
		nullable(j.Country),
		nullable(j.City),
		nullable(j.IPAddress),
		string(sub.Type),
		sub.Type == journey.SubmissionNewsletter,
		sub.Type == journey.SubmissionContact,
		j.SessionStart,
		now,
		timeOnSite,
	}

	if err := g.exec(ctx, insertJourneySQL, args); err != nil {
		log.Error().Err(err).
			Str("session_id", sub.SessionID).
			Str("submission_type", string(sub.Type)).
			Msg("Failed to save journey")
		return false
	}
	return true
}

const insertLeadSQL = `
	INSERT INTO leads (
		session_id, name, email, phone, company, service, message,
		utm_source, utm_medium, utm_campaign, utm_term, utm_content,
		device_type, browser, os, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

// SaveLead writes the flattened lead record, independently of Save.
func (g *Gateway) SaveLead(ctx context.Context, lead Lead) bool {
	args := []any{
		lead.SessionID,
		nullable(lead.Name),
		nullable(lead.Email),
		nullable(lead.Phone),
		nullable(lead.Company),
		nullable(lead.Service),
		nullable(lead.Message),
		nullable(lead.UTMSource),
		nullable(lead.UTMMedium),
		nullable(lead.UTMCampaign),
		nullable(lead.UTMTerm),
		nullable(lead.UTMContent),
		lead.DeviceType,
		lead.Browser,
		lead.OS,
		g.now(),
	}

	if err := g.exec(ctx, insertLeadSQL, args); err != nil {
		log.Error().Err(err).Str("session_id", lead.SessionID).Msg("Failed to save lead")
		return false
	}
	return true
}

// exec runs the insert with a single backoff retry. One retry is the
// whole resilience budget; there is no dead-letter path.
func (g *Gateway) exec(ctx context.Context, sql string, args []any) error {
	_, err := g.db.Exec(ctx, sql, args...)
	if err == nil {
		return nil
	}

	g.sleep(retryBackoff)
	_, err = g.db.Exec(ctx, sql, args...)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
