// Package journey holds the visitor journey model and the recorder that
// mutates it.
package journey

import "time"

// PageVisit is one entry in the visit sequence. TimeSpent is filled in
// retroactively when the next visit arrives, so it is nil on the most
// recent entry until the session moves on.
type PageVisit struct {
	Path      string    `json:"path"`
	FullURL   string    `json:"fullUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TimeSpent *int64    `json:"timeSpent,omitempty"`
}

// Journey is the cookie-resident record of one session: the ordered
// pages visited plus environment and geo metadata. The cookie is the
// source of truth while the session is live; rows written to the store
// are point-in-time copies.
type Journey struct {
	SessionID      string      `json:"sessionId"`
	PagesVisited   []PageVisit `json:"pagesVisited"`
	DeviceType     string      `json:"deviceType"`
	Browser        string      `json:"browser"`
	BrowserVersion string      `json:"browserVersion,omitempty"`
	OS             string      `json:"os"`
	OSVersion      string      `json:"osVersion,omitempty"`
	Country        string      `json:"country,omitempty"`
	City           string      `json:"city,omitempty"`
	IPAddress      string      `json:"ipAddress,omitempty"`
	SessionStart   time.Time   `json:"sessionStart"`
	SessionEnd     *time.Time  `json:"sessionEnd,omitempty"`
	TimeOnSite     *int64      `json:"timeOnSite,omitempty"`

	// Submitted flips once a form submission snapshots this journey.
	// Exit flushes only fire for journeys that have not submitted.
	Submitted bool `json:"submitted,omitempty"`
}

// FirstPage returns the entry page with the fullUrl-then-path fallback,
// or nil when nothing was visited.
func (j *Journey) FirstPage() *string {
	return pageRef(j.PagesVisited, 0)
}

// LastPage returns the exit page with the fullUrl-then-path fallback,
// or nil when nothing was visited.
func (j *Journey) LastPage() *string {
	return pageRef(j.PagesVisited, len(j.PagesVisited)-1)
}

func pageRef(pages []PageVisit, i int) *string {
	if i < 0 || i >= len(pages) {
		return nil
	}
	if pages[i].FullURL != "" {
		return &pages[i].FullURL
	}
	if pages[i].Path != "" {
		return &pages[i].Path
	}
	return nil
}

// SubmissionType distinguishes the user action that snapshotted a journey.
type SubmissionType string

const (
	SubmissionNewsletter SubmissionType = "newsletter"
	SubmissionContact    SubmissionType = "contact"
	SubmissionLeadForm   SubmissionType = "lead_form"

	// SubmissionExit marks best-effort saves triggered by tab-hide or
	// unload rather than a form action.
	SubmissionExit SubmissionType = "exit"
)

// ValidSubmissionType reports whether t names a user-initiated
// submission. Exit flushes are internal and not accepted from clients.
func ValidSubmissionType(t SubmissionType) bool {
	switch t {
	case SubmissionNewsletter, SubmissionContact, SubmissionLeadForm:
		return true
	}
	return false
}

// Submission is a point-in-time snapshot of a journey taken at the
// moment of a user action. Journey is held by value: later mutations to
// the live journey do not retroactively change a sent submission.
type Submission struct {
	SessionID string
	Email     string
	Name      string
	Phone     string
	Company   string
	Services  []string
	Message   string
	Type      SubmissionType
	Journey   Journey
}
