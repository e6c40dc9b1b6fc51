// Package session owns session identity and the cookie-resident journey.
//
// The cookie names and shapes are a wire contract shared with the site's
// pages: session_id carries a raw UUID-v4 string, user_journey carries the
// URL-escaped JSON journey. Both roll on a 1-day expiry.
package session

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/journeytrack/journeytrack/internal/device"
	"github.com/journeytrack/journeytrack/internal/geo"
	"github.com/journeytrack/journeytrack/internal/journey"
)

const (
	SessionCookie = "session_id"
	JourneyCookie = "user_journey"

	// CookieTTL is the rolling expiry for both cookies.
	CookieTTL = 24 * time.Hour
)

var uuidV4Pattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// ValidSessionID reports whether s is a well-formed UUID-v4 session id.
// Anything else is treated as absent and regenerated.
func ValidSessionID(s string) bool {
	return uuidV4Pattern.MatchString(s)
}

const hexDigits = "0123456789abcdef"

// NewSessionID synthesizes a UUID-v4-shaped identifier. Each hex nibble
// is independently randomized with the version and variant nibbles
// fixed. Not cryptographically secure; session ids only need to be
// unique enough for analytics.
func NewSessionID() string {
	buf := make([]byte, 36)
	for i := range buf {
		switch i {
		case 8, 13, 18, 23:
			buf[i] = '-'
		case 14:
			buf[i] = '4'
		case 19:
			buf[i] = hexDigits[8+rand.Intn(4)]
		default:
			buf[i] = hexDigits[rand.Intn(16)]
		}
	}
	return string(buf)
}

// Resolver is the geolocation collaborator. Lookups are best effort and
// never fail; an unresolvable IP yields a zero Location.
type Resolver interface {
	Resolve(ctx context.Context, ip string) geo.Location
}

// Manager ensures every request carries a valid session id and journey.
type Manager struct {
	geo Resolver
	now func() time.Time
}

func NewManager(resolver Resolver) *Manager {
	return &Manager{
		geo: resolver,
		now: time.Now,
	}
}

// EnsureSession reads the session cookies from r, repairing them as
// needed, and returns a usable journey. It never fails:
//
//   - a missing or malformed session id discards both cookies and a
//     fresh id is generated
//   - a surviving journey has its embedded sessionId overwritten with
//     the cookie-level id so the two can never drift
//   - with no journey, a fresh one is built from the User-Agent and a
//     best-effort geo lookup
//
// Cookie writes for the id and any newly built journey happen here;
// callers that mutate the journey persist it with WriteJourney.
func (m *Manager) EnsureSession(ctx context.Context, w http.ResponseWriter, r *http.Request, clientIP string) *journey.Journey {
	sid, fresh := m.ensureID(w, r)

	var j *journey.Journey
	if !fresh {
		j = readJourney(r)
	}

	if j != nil {
		// Keep the embedded id in lockstep with the cookie-level id.
		j.SessionID = sid
		return j
	}

	j = m.newJourney(ctx, sid, r.UserAgent(), clientIP)
	m.WriteJourney(w, j)
	return j
}

// ensureID validates the session_id cookie, regenerating it when absent
// or malformed. fresh reports that the old journey (if any) belonged to
// a discarded id and must not be reused.
func (m *Manager) ensureID(w http.ResponseWriter, r *http.Request) (sid string, fresh bool) {
	if c, err := r.Cookie(SessionCookie); err == nil && ValidSessionID(c.Value) {
		return c.Value, false
	}

	sid = NewSessionID()
	m.setCookie(w, SessionCookie, sid)
	log.Debug().Str("session_id", sid).Msg("Generated new session id")
	return sid, true
}

func (m *Manager) newJourney(ctx context.Context, sid, userAgent, clientIP string) *journey.Journey {
	profile := device.Inspect(userAgent)
	loc := m.geo.Resolve(ctx, clientIP)

	return &journey.Journey{
		SessionID:      sid,
		PagesVisited:   []journey.PageVisit{},
		DeviceType:     profile.DeviceType,
		Browser:        profile.Browser,
		BrowserVersion: profile.BrowserVersion,
		OS:             profile.OS,
		OSVersion:      profile.OSVersion,
		Country:        loc.Country,
		City:           loc.City,
		IPAddress:      loc.IP,
		SessionStart:   m.now(),
	}
}

// WriteJourney persists j to the journey cookie, resetting its expiry
// to a day from now.
func (m *Manager) WriteJourney(w http.ResponseWriter, j *journey.Journey) {
	data, err := json.Marshal(j)
	if err != nil {
		log.Error().Err(err).Str("session_id", j.SessionID).Msg("Failed to encode journey")
		return
	}
	m.setCookie(w, JourneyCookie, url.QueryEscape(string(data)))
}

func (m *Manager) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  m.now().Add(CookieTTL),
		SameSite: http.SameSiteLaxMode,
	})
}

// readJourney decodes the journey cookie, tolerating any corruption by
// returning nil so the caller rebuilds from scratch.
func readJourney(r *http.Request) *journey.Journey {
	c, err := r.Cookie(JourneyCookie)
	if err != nil {
		return nil
	}

	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil
	}

	var j journey.Journey
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		log.Debug().Err(err).Msg("Discarding malformed journey cookie")
		return nil
	}
	return &j
}
