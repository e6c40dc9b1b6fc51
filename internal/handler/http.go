// Package handler exposes the tracking HTTP surface called by the
// site's pages.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/journeytrack/journeytrack/internal/journey"
	"github.com/journeytrack/journeytrack/internal/session"
	"github.com/journeytrack/journeytrack/internal/storage"
)

// Store is the persistence gateway as the handlers see it.
type Store interface {
	Save(ctx context.Context, sub journey.Submission) bool
	SaveLead(ctx context.Context, lead storage.Lead) bool
}

// Flusher is the exit-flush coordinator as the handlers see it.
type Flusher interface {
	FlushIfReturning(ctx context.Context, j *journey.Journey) bool
}

type Handler struct {
	sessions *session.Manager
	recorder *journey.Recorder
	locks    *journey.Locks
	store    Store
	flusher  Flusher
}

func New(sessions *session.Manager, recorder *journey.Recorder, store Store, flusher Flusher) *Handler {
	return &Handler{
		sessions: sessions,
		recorder: recorder,
		locks:    journey.NewLocks(),
		store:    store,
		flusher:  flusher,
	}
}

type visitRequest struct {
	Path    string `json:"path"`
	FullURL string `json:"fullUrl"`
}

// HandleVisit records one page visit. The whole read-modify-write of
// the journey cookie runs under the session's lock so rapid route
// changes cannot clobber each other's entries.
func (h *Handler) HandleVisit(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	h.withJourney(w, r, func(ctx context.Context, j *journey.Journey) {
		h.recorder.RecordVisit(ctx, j, req.Path, req.FullURL)
		h.sessions.WriteJourney(w, j)
	})

	w.WriteHeader(http.StatusAccepted)
}

type scrollRequest struct {
	Path    string `json:"path"`
	Percent int    `json:"percent"`
}

// HandleScroll emits a scroll-depth sample. The journey itself is not
// mutated, so no cookie write happens here.
func (h *Handler) HandleScroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	h.withJourney(w, r, func(ctx context.Context, j *journey.Journey) {
		h.recorder.SampleScrollDepth(ctx, j, req.Path, req.Percent)
	})

	w.WriteHeader(http.StatusAccepted)
}

type submissionRequest struct {
	Type     journey.SubmissionType `json:"type"`
	Email    string                 `json:"email"`
	Name     string                 `json:"name"`
	Phone    string                 `json:"phone"`
	Company  string                 `json:"company"`
	Services []string               `json:"services"`
	Message  string                 `json:"message"`
	UTM      utmFields              `json:"utm"`
}

type utmFields struct {
	Source   string `json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign"`
	Term     string `json:"term"`
	Content  string `json:"content"`
}

type submissionResponse struct {
	Success bool `json:"success"`
}

// HandleSubmission snapshots the journey alongside a newsletter,
// contact or lead form action. The response reflects only the primary
// action; journey and lead persistence failures are logged, never
// surfaced to the visitor.
func (h *Handler) HandleSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !journey.ValidSubmissionType(req.Type) || req.Email == "" {
		http.Error(w, "Invalid submission", http.StatusBadRequest)
		return
	}

	h.withJourney(w, r, func(ctx context.Context, j *journey.Journey) {
		j.Submitted = true
		h.sessions.WriteJourney(w, j)

		sub := journey.Submission{
			SessionID: j.SessionID,
			Email:     req.Email,
			Name:      req.Name,
			Phone:     req.Phone,
			Company:   req.Company,
			Services:  req.Services,
			Message:   req.Message,
			Type:      req.Type,
			Journey:   *j,
		}
		if !h.store.Save(ctx, sub) {
			log.Warn().Str("session_id", j.SessionID).Msg("Journey row dropped for submission")
		}

		if req.Type == journey.SubmissionLeadForm {
			service := ""
			if len(req.Services) > 0 {
				service = req.Services[0]
			}
			lead := storage.Lead{
				SessionID:   j.SessionID,
				Name:        req.Name,
				Email:       req.Email,
				Phone:       req.Phone,
				Company:     req.Company,
				Service:     service,
				Message:     req.Message,
				UTMSource:   req.UTM.Source,
				UTMMedium:   req.UTM.Medium,
				UTMCampaign: req.UTM.Campaign,
				UTMTerm:     req.UTM.Term,
				UTMContent:  req.UTM.Content,
				DeviceType:  j.DeviceType,
				Browser:     j.Browser,
				OS:          j.OS,
			}
			if !h.store.SaveLead(ctx, lead) {
				log.Warn().Str("session_id", j.SessionID).Msg("Lead row dropped for submission")
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(submissionResponse{Success: true})
}

// HandleFlush is the exit beacon target. Always 202: the page is
// unloading and nobody reads the answer.
func (h *Handler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	h.withJourney(w, r, func(ctx context.Context, j *journey.Journey) {
		h.flusher.FlushIfReturning(ctx, j)
	})
	w.WriteHeader(http.StatusAccepted)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// withJourney runs fn with the request's journey under the session
// lock. The lock key is the raw cookie value; fresh sessions get their
// id inside EnsureSession and cannot contend yet.
func (h *Handler) withJourney(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, j *journey.Journey)) {
	key := ""
	if c, err := r.Cookie(session.SessionCookie); err == nil {
		key = c.Value
	}

	h.locks.Do(key, func() {
		j := h.sessions.EnsureSession(r.Context(), w, r, clientIP(r))
		fn(r.Context(), j)
	})
}

func clientIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-IP")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return ip
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
