package models

// Domain models matching the database schema in db/migrations/0001_init.sql

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Person is a tracked reminder recipient, identified by email and/or
// Messenger PSID. A person with neither is invalid and must not be stored.
type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	PSID      string    `json:"psid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValid reports whether the person carries at least one contact handle.
func (p *Person) IsValid() bool {
	return strings.TrimSpace(p.Email) != "" || strings.TrimSpace(p.PSID) != ""
}

// NormalizedEmail returns the email lowered and trimmed, the form used for
// all matching against external submissions.
func (p *Person) NormalizedEmail() string {
	return NormalizeEmail(p.Email)
}

// NormalizeEmail lowers and trims an email address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Pole is an organizational bucket for forms.
type Pole struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Form is a tracked external survey with a snapshot of expected respondents.
type Form struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	GoogleFormID string     `json:"google_form_id"`
	PoleID       string     `json:"pole_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	DateEnvoi    *time.Time `json:"date_envoi,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// URL returns the public Google Forms URL for the form.
func (f *Form) URL() string {
	return "https://docs.google.com/forms/d/" + f.GoogleFormID + "/viewform"
}

// Response tracks one person's completion and reminder state against one form.
// At most one row exists per (form, person) pair.
type Response struct {
	ID            string     `json:"id"`
	FormID        string     `json:"form_id"`
	PersonID      string     `json:"person_id"`
	HasResponded  bool       `json:"has_responded"`
	ResponseDate  *time.Time `json:"response_date,omitempty"`
	LastReminder  *time.Time `json:"last_reminder,omitempty"`
	ReminderCount int        `json:"reminder_count"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NonResponder pairs a person with their pending response row.
type NonResponder struct {
	Person   Person   `json:"person"`
	Response Response `json:"response"`
}

// NewID generates an opaque entity identifier.
func NewID() string {
	return uuid.NewString()
}

// Status discriminates service-level results.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	// StatusSyncFailed marks a reminder run aborted because the guarding
	// sync failed before anything was sent.
	StatusSyncFailed Status = "sync_failed"
)

// SyncStats aggregates one synchronization pass. Errors counts individual
// submissions that could not be applied; FailedForms counts forms whose
// whole sync pass failed.
type SyncStats struct {
	Updated     int `json:"updated"`
	Created     int `json:"created"`
	Errors      int `json:"errors"`
	FailedForms int `json:"failed_forms"`
}

// Add merges another pass into s.
func (s *SyncStats) Add(o SyncStats) {
	s.Updated += o.Updated
	s.Created += o.Created
	s.Errors += o.Errors
	s.FailedForms += o.FailedForms
}

// SendResult records the outcome of a single reminder send.
type SendResult struct {
	Success    bool          `json:"success"`
	PersonName string        `json:"person_name"`
	PSID       string        `json:"psid"`
	MessageID  string        `json:"message_id,omitempty"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// BulkSendStats aggregates a bulk dispatch.
type BulkSendStats struct {
	Sent    int           `json:"sent"`
	Failed  int           `json:"failed"`
	Total   time.Duration `json:"total_time"`
	Results []SendResult  `json:"results"`
}

// FormReminderReport is the per-form section of a reminder run.
type FormReminderReport struct {
	FormID   string       `json:"form_id"`
	FormName string       `json:"form_name"`
	Sent     int          `json:"sent"`
	Failed   int          `json:"failed"`
	Reason   string       `json:"reason,omitempty"`
	Results  []SendResult `json:"results,omitempty"`
}

// ReminderReport is the consolidated result of a reminder run.
type ReminderReport struct {
	Status      Status                        `json:"status"`
	Message     string                        `json:"message,omitempty"`
	SyncStats   *SyncStats                    `json:"sync_stats,omitempty"`
	PerForm     map[string]FormReminderReport `json:"per_form,omitempty"`
	TotalSent   int                           `json:"total_sent"`
	TotalFailed int                           `json:"total_failed"`
	StartedAt   time.Time                     `json:"started_at"`
	Duration    time.Duration                 `json:"duration"`
}

// PreviewEntry describes one reminder-eligible person.
type PreviewEntry struct {
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	LastReminder  *time.Time `json:"last_reminder,omitempty"`
	ReminderCount int        `json:"reminder_count"`
}

// FormPreview is the eligibility preview for one form.
type FormPreview struct {
	FormID   string         `json:"form_id"`
	Eligible int            `json:"eligible_for_reminder"`
	People   []PreviewEntry `json:"people"`
}

// ReminderPreview is the dry-run view of a reminder pass. No side effects.
type ReminderPreview struct {
	TotalReminders int                    `json:"total_reminders"`
	PerForm        map[string]FormPreview `json:"per_form"`
	Timestamp      time.Time              `json:"timestamp"`
}

// FormStats counts response state for one form.
type FormStats struct {
	Total     int `json:"total"`
	Responded int `json:"responded"`
	Pending   int `json:"pending"`
}

// ResponseRate returns the completion percentage.
func (s FormStats) ResponseRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Responded) / float64(s.Total) * 100
}

// GlobalStats is the store-wide dashboard summary.
type GlobalStats struct {
	TotalPeople      int        `json:"total_people"`
	TotalForms       int        `json:"total_forms"`
	TotalResponses   int        `json:"total_responses"`
	PendingReminders int        `json:"pending_reminders"`
	SentToday        int        `json:"sent_today"`
	SuccessRate      float64    `json:"success_rate"`
	LastSync         *time.Time `json:"last_sync,omitempty"`
}

// MessengerStats summarizes recent send activity from the message log.
type MessengerStats struct {
	PeriodHours    int     `json:"period_hours"`
	TotalMessages  int     `json:"total_messages"`
	Successful     int     `json:"successful"`
	Failed         int     `json:"failed"`
	SuccessRate    float64 `json:"success_rate"`
	AvgLatencyMsec float64 `json:"avg_latency_ms"`
}

// HealthReport is the data-integrity view surfaced by the health check.
// Orphans are reported, not auto-repaired.
type HealthReport struct {
	Status            Status `json:"status"`
	PeopleCount       int    `json:"people_count"`
	PolesCount        int    `json:"poles_count"`
	FormsCount        int    `json:"forms_count"`
	ResponsesCount    int    `json:"responses_count"`
	OrphanedResponses int    `json:"orphaned_responses"`
	FormsWithoutPole  int    `json:"forms_without_pole"`
}

// DashboardStats bundles everything the dashboard renders in one call.
type DashboardStats struct {
	Global      GlobalStats     `json:"global_stats"`
	Messenger   MessengerStats  `json:"messenger_stats"`
	Forms       []DashboardForm `json:"forms_stats"`
	LastUpdated time.Time       `json:"last_updated"`
}

// DashboardForm is the per-form row of the dashboard.
type DashboardForm struct {
	FormID       string  `json:"form_id"`
	FormName     string  `json:"form_name"`
	Total        int     `json:"total_responses"`
	Responded    int     `json:"responded"`
	Pending      int     `json:"pending"`
	ResponseRate float64 `json:"response_rate"`
}

// MessageLogEntry is one persisted send attempt, kept for send statistics.
type MessageLogEntry struct {
	ID         int64         `json:"id"`
	FormID     string        `json:"form_id,omitempty"`
	PersonID   string        `json:"person_id,omitempty"`
	PersonName string        `json:"person_name"`
	Success    bool          `json:"success"`
	MessageID  string        `json:"message_id,omitempty"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
	SentAt     time.Time     `json:"sent_at"`
}

// User is a dashboard operator account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
