package repository

import (
	"context"
	"time"

	"github.com/stntools/relance/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

// ErrNotFound is not used: lookups return (nil, nil) when no row matches,
// matching the convention of the storage layer.

type PersonRepo interface {
	// CreatePerson stores a new person. Returns models sentinel errors for
	// invalid people (no email and no psid) and duplicate email/psid.
	CreatePerson(ctx context.Context, p *models.Person) error
	GetPersonByID(ctx context.Context, id string) (*models.Person, error)
	// GetPersonByEmail matches case-insensitively on the normalized email.
	GetPersonByEmail(ctx context.Context, email string) (*models.Person, error)
	GetPersonByPSID(ctx context.Context, psid string) (*models.Person, error)
	ListPeople(ctx context.Context) ([]models.Person, error)
	UpdatePerson(ctx context.Context, p *models.Person) error
	// DeletePerson removes the person; response rows cascade.
	DeletePerson(ctx context.Context, id string) (bool, error)
}

type PoleRepo interface {
	CreatePole(ctx context.Context, p *models.Pole) error
	GetPoleByID(ctx context.Context, id string) (*models.Pole, error)
	ListPoles(ctx context.Context, activeOnly bool) ([]models.Pole, error)
	UpdatePole(ctx context.Context, p *models.Pole) (bool, error)
	// DeletePole removes a pole, optionally moving its forms to another
	// pole first; otherwise their pole_id is set NULL by the schema.
	DeletePole(ctx context.Context, id string, moveFormsTo string) (bool, error)
}

type FormRepo interface {
	// CreateForm stores the form and materializes one response row per
	// distinct expected person id, all in one transaction.
	CreateForm(ctx context.Context, f *models.Form, expectedPeopleIDs []string) error
	GetFormByID(ctx context.Context, id string) (*models.Form, []string, error)
	GetFormByGoogleID(ctx context.Context, googleFormID string) (*models.Form, []string, error)
	ListForms(ctx context.Context, activeOnly bool) ([]models.Form, error)
	ListFormsByPole(ctx context.Context, poleID string) ([]models.Form, error)
	ExpectedPeopleIDs(ctx context.Context, formID string) ([]string, error)
	UpdateForm(ctx context.Context, f *models.Form) (bool, error)
	// UpdateExpectedPeople reconciles the expected set: rows are preserved
	// for people who remain, created for new people, dropped for removed.
	UpdateExpectedPeople(ctx context.Context, formID string, peopleIDs []string) error
	// AddExpectedPerson appends one person to the expected set and creates
	// the matching response row if missing.
	AddExpectedPerson(ctx context.Context, formID, personID string) error
	DeleteForm(ctx context.Context, id string) (bool, error)
}

type ResponseRepo interface {
	ListResponsesForForm(ctx context.Context, formID string) ([]models.Response, error)
	// NonResponders returns people joined to their pending response rows.
	NonResponders(ctx context.Context, formID string) ([]models.NonResponder, error)
	// ReminderEligible narrows NonResponders to people with a psid whose
	// cooldown has elapsed (or who were never reminded).
	ReminderEligible(ctx context.Context, formID string, cooldown time.Duration) ([]models.NonResponder, error)
	// RecordResponse upserts: an existing row is marked responded, a
	// missing row is created already responded. Idempotent; reminder
	// bookkeeping is untouched.
	RecordResponse(ctx context.Context, formID, personID string, responseDate time.Time) error
	// RecordReminderSent sets last_reminder to now and increments
	// reminder_count.
	RecordReminderSent(ctx context.Context, formID, personID string) (bool, error)
	FormStats(ctx context.Context, formID string) (models.FormStats, error)
}

type StatsRepo interface {
	GlobalStats(ctx context.Context) (models.GlobalStats, error)
	HealthCheck(ctx context.Context) (models.HealthReport, error)
	SetLastSync(ctx context.Context, t time.Time) error
}

type MessageLogRepo interface {
	LogMessage(ctx context.Context, e *models.MessageLogEntry) error
	MessengerStats(ctx context.Context, period time.Duration) (models.MessengerStats, error)
}

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}
