// Package reminder orchestrates the sync, eligibility and dispatch cycle:
// pull submissions from the form endpoint, reconcile response state, then
// send paced Messenger reminders to whoever is still pending.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stntools/relance/pkg/appscript"
	"github.com/stntools/relance/pkg/messenger"
	"github.com/stntools/relance/pkg/models"
	"github.com/stntools/relance/pkg/repository"
)

// Store is the slice of the repository the service needs.
type Store interface {
	repository.PersonRepo
	repository.FormRepo
	repository.ResponseRepo
	repository.StatsRepo
	repository.MessageLogRepo
}

// FormFetcher pulls submissions from the external form endpoint.
type FormFetcher interface {
	FetchResponses(ctx context.Context, googleFormID string) (*appscript.FormResponses, error)
	SelfTest(ctx context.Context) error
	InvalidateCache()
}

// Sender delivers one reminder message.
type Sender interface {
	Send(ctx context.Context, m messenger.Message) models.SendResult
	SelfTest(ctx context.Context) error
}

// Config holds the reminder tunables.
type Config struct {
	// Cooldown is the minimum interval between two reminders to the same
	// person for the same form.
	Cooldown time.Duration
	// Template is the default message template.
	Template string
}

type Service struct {
	store  Store
	forms  FormFetcher
	sender Sender
	cfg    Config
	logger *slog.Logger
}

func New(store Store, forms FormFetcher, sender Sender, cfg Config, logger *slog.Logger) *Service {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, forms: forms, sender: sender, cfg: cfg, logger: logger}
}

// SyncForm reconciles one form's response state against the endpoint.
// Submissions are matched to the expected people by normalized email first,
// then to anyone in the store, and unknown respondents are created on the
// fly. Individual submission failures are counted, not fatal.
func (s *Service) SyncForm(ctx context.Context, formID string) (models.SyncStats, error) {
	var stats models.SyncStats

	form, expectedIDs, err := s.store.GetFormByID(ctx, formID)
	if err != nil {
		return stats, err
	}
	if form == nil {
		return stats, fmt.Errorf("form %s not found", formID)
	}

	payload, err := s.forms.FetchResponses(ctx, form.GoogleFormID)
	if err != nil {
		return stats, fmt.Errorf("fetch submissions for %s: %w", form.Name, err)
	}

	expectedByEmail := make(map[string]string, len(expectedIDs))
	for _, personID := range expectedIDs {
		p, err := s.store.GetPersonByID(ctx, personID)
		if err != nil {
			return stats, err
		}
		if p != nil && p.Email != "" {
			expectedByEmail[p.NormalizedEmail()] = p.ID
		}
	}

	for _, sub := range submissions(payload) {
		// rows without an email cannot be matched to anyone; they count
		// as neither success nor error
		if models.NormalizeEmail(sub.Email) == "" {
			continue
		}
		if err := s.applySubmission(ctx, form, expectedByEmail, sub, &stats); err != nil {
			stats.Errors++
			s.logger.Warn("submission not applied",
				"form", form.Name, "email", sub.Email, "error", err)
		}
	}

	if err := s.store.SetLastSync(ctx, time.Now().UTC()); err != nil {
		return stats, err
	}
	s.logger.Info("form synced", "form", form.Name,
		"updated", stats.Updated, "created", stats.Created, "errors", stats.Errors)
	return stats, nil
}

// submissions normalizes the payload: the detailed people list wins, the
// bare email list is the fallback for older endpoint deployments.
func submissions(payload *appscript.FormResponses) []appscript.Submission {
	if len(payload.People) > 0 {
		return payload.People
	}
	out := make([]appscript.Submission, 0, len(payload.Emails))
	for _, email := range payload.Emails {
		out = append(out, appscript.Submission{Email: email})
	}
	return out
}

func (s *Service) applySubmission(ctx context.Context, form *models.Form, expectedByEmail map[string]string, sub appscript.Submission, stats *models.SyncStats) error {
	email := models.NormalizeEmail(sub.Email)
	if personID, ok := expectedByEmail[email]; ok {
		if err := s.store.RecordResponse(ctx, form.ID, personID, sub.SubmittedAt()); err != nil {
			return err
		}
		stats.Updated++
		return nil
	}

	// not expected on this form: match anyone already in the store
	p, err := s.store.GetPersonByEmail(ctx, email)
	if err != nil {
		return err
	}
	created := false
	if p == nil {
		p = &models.Person{Name: sub.DisplayName(), Email: email}
		if err := s.store.CreatePerson(ctx, p); err != nil {
			return err
		}
		created = true
	}

	if err := s.store.AddExpectedPerson(ctx, form.ID, p.ID); err != nil {
		return err
	}
	if err := s.store.RecordResponse(ctx, form.ID, p.ID, sub.SubmittedAt()); err != nil {
		return err
	}
	if created {
		stats.Created++
	} else {
		stats.Updated++
	}
	return nil
}

// SyncAllForms runs SyncForm over every active form. A form whose sync
// fails is counted in FailedForms and the pass continues.
func (s *Service) SyncAllForms(ctx context.Context) (models.SyncStats, error) {
	var total models.SyncStats
	forms, err := s.store.ListForms(ctx, true)
	if err != nil {
		return total, err
	}
	for _, f := range forms {
		stats, err := s.SyncForm(ctx, f.ID)
		if err != nil {
			total.FailedForms++
			s.logger.Warn("form sync failed", "form", f.Name, "error", err)
			continue
		}
		total.Add(stats)
	}
	return total, nil
}

// Preview reports who would receive a reminder right now. No side effects.
// An empty formID covers every active form; a non-positive cooldown uses the
// configured one.
func (s *Service) Preview(ctx context.Context, formID string, cooldown time.Duration) (models.ReminderPreview, error) {
	preview := models.ReminderPreview{
		PerForm:   make(map[string]models.FormPreview),
		Timestamp: time.Now().UTC(),
	}
	if cooldown <= 0 {
		cooldown = s.cfg.Cooldown
	}

	var forms []models.Form
	if formID != "" {
		form, _, err := s.store.GetFormByID(ctx, formID)
		if err != nil {
			return preview, err
		}
		if form == nil {
			return preview, fmt.Errorf("form %s not found", formID)
		}
		forms = []models.Form{*form}
	} else {
		var err error
		forms, err = s.store.ListForms(ctx, true)
		if err != nil {
			return preview, err
		}
	}

	for _, f := range forms {
		eligible, err := s.store.ReminderEligible(ctx, f.ID, cooldown)
		if err != nil {
			return preview, err
		}
		fp := models.FormPreview{FormID: f.ID, Eligible: len(eligible)}
		for _, nr := range eligible {
			fp.People = append(fp.People, models.PreviewEntry{
				Name:          nr.Person.Name,
				Email:         nr.Person.Email,
				LastReminder:  nr.Response.LastReminder,
				ReminderCount: nr.Response.ReminderCount,
			})
		}
		preview.PerForm[f.Name] = fp
		preview.TotalReminders += len(eligible)
	}
	return preview, nil
}

// SendReminders runs the full guarded cycle over every active form: sync
// first, then dispatch to the eligible non-responders. A form whose sync
// failed is skipped, and when every form's sync failed nothing is sent at
// all. Individual submission errors never abort the run. syncFirst=false
// skips the guard and dispatches against the stored state as is.
func (s *Service) SendReminders(ctx context.Context, template string, syncFirst bool) models.ReminderReport {
	report := models.ReminderReport{
		Status:    models.StatusSuccess,
		PerForm:   make(map[string]models.FormReminderReport),
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	forms, err := s.store.ListForms(ctx, true)
	if err != nil {
		report.Status = models.StatusError
		report.Message = err.Error()
		return report
	}
	if len(forms) == 0 {
		report.Message = "no active forms"
		return report
	}

	syncFailed := make(map[string]bool)
	if syncFirst {
		var syncStats models.SyncStats
		for _, f := range forms {
			stats, err := s.SyncForm(ctx, f.ID)
			if err != nil {
				syncStats.FailedForms++
				syncFailed[f.ID] = true
				s.logger.Warn("form sync failed", "form", f.Name, "error", err)
				continue
			}
			syncStats.Add(stats)
		}
		report.SyncStats = &syncStats
		if syncStats.FailedForms >= len(forms) {
			// stale response state would re-remind people who already answered
			report.Status = models.StatusSyncFailed
			report.Message = "sync failed, no reminders sent"
			return report
		}
	}

	for _, f := range forms {
		if syncFailed[f.ID] {
			report.PerForm[f.Name] = models.FormReminderReport{
				FormID: f.ID, FormName: f.Name, Reason: "sync failed",
			}
			continue
		}
		fr := s.sendForForm(ctx, &f, template)
		report.PerForm[f.Name] = fr
		report.TotalSent += fr.Sent
		report.TotalFailed += fr.Failed
	}
	if report.TotalFailed > 0 {
		report.Status = models.StatusWarning
	}
	return report
}

// SendRemindersForForm runs the guarded cycle for a single form.
func (s *Service) SendRemindersForForm(ctx context.Context, formID, template string, syncFirst bool) models.ReminderReport {
	report := models.ReminderReport{
		Status:    models.StatusSuccess,
		PerForm:   make(map[string]models.FormReminderReport),
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	form, _, err := s.store.GetFormByID(ctx, formID)
	if err == nil && form == nil {
		err = fmt.Errorf("form %s not found", formID)
	}
	if err != nil {
		report.Status = models.StatusError
		report.Message = err.Error()
		return report
	}

	if syncFirst {
		syncStats, err := s.SyncForm(ctx, formID)
		report.SyncStats = &syncStats
		if err != nil {
			report.Status = models.StatusSyncFailed
			report.Message = "sync failed, no reminders sent"
			return report
		}
	}

	fr := s.sendForForm(ctx, form, template)
	report.PerForm[form.Name] = fr
	report.TotalSent = fr.Sent
	report.TotalFailed = fr.Failed
	if fr.Failed > 0 {
		report.Status = models.StatusWarning
	}
	return report
}

// sendForForm dispatches to the eligible non-responders of one form.
// Reminder bookkeeping is updated only for sends the API accepted, so a
// failed recipient stays eligible for the next run.
func (s *Service) sendForForm(ctx context.Context, form *models.Form, template string) models.FormReminderReport {
	fr := models.FormReminderReport{FormID: form.ID, FormName: form.Name}
	if template == "" {
		template = s.cfg.Template
	}

	eligible, err := s.store.ReminderEligible(ctx, form.ID, s.cfg.Cooldown)
	if err != nil {
		fr.Reason = err.Error()
		return fr
	}
	if len(eligible) == 0 {
		fr.Reason = "nobody eligible"
		return fr
	}

	for _, nr := range eligible {
		text := Render(template, templateData(&nr.Person, form))
		res := s.sender.Send(ctx, messenger.Message{
			PSID:       nr.Person.PSID,
			PersonName: nr.Person.Name,
			Text:       text,
		})
		fr.Results = append(fr.Results, res)

		if res.Success {
			fr.Sent++
			if _, err := s.store.RecordReminderSent(ctx, form.ID, nr.Person.ID); err != nil {
				s.logger.Error("reminder sent but not recorded",
					"form", form.Name, "person", nr.Person.Name, "error", err)
			}
		} else {
			fr.Failed++
			s.logger.Warn("reminder send failed",
				"form", form.Name, "person", nr.Person.Name, "error", res.Error)
		}

		entry := &models.MessageLogEntry{
			FormID:     form.ID,
			PersonID:   nr.Person.ID,
			PersonName: nr.Person.Name,
			Success:    res.Success,
			MessageID:  res.MessageID,
			Latency:    res.Latency,
			Error:      res.Error,
			SentAt:     res.Timestamp,
		}
		if err := s.store.LogMessage(ctx, entry); err != nil {
			s.logger.Error("message log write failed", "error", err)
		}
	}
	return fr
}

// DashboardStats bundles the global, messenger and per-form numbers the
// dashboard renders in one call.
func (s *Service) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	var out models.DashboardStats

	global, err := s.store.GlobalStats(ctx)
	if err != nil {
		return out, err
	}
	msg, err := s.store.MessengerStats(ctx, 24*time.Hour)
	if err != nil {
		return out, err
	}
	forms, err := s.store.ListForms(ctx, true)
	if err != nil {
		return out, err
	}

	out.Global = global
	out.Messenger = msg
	out.LastUpdated = time.Now().UTC()
	for _, f := range forms {
		fs, err := s.store.FormStats(ctx, f.ID)
		if err != nil {
			return out, err
		}
		out.Forms = append(out.Forms, models.DashboardForm{
			FormID:       f.ID,
			FormName:     f.Name,
			Total:        fs.Total,
			Responded:    fs.Responded,
			Pending:      fs.Pending,
			ResponseRate: fs.ResponseRate(),
		})
	}
	return out, nil
}

// ConnectionStatus is the probe outcome for one external collaborator.
type ConnectionStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ConnectionReport aggregates the external connectivity probes.
type ConnectionReport struct {
	AppScript ConnectionStatus `json:"app_script"`
	Messenger ConnectionStatus `json:"messenger"`
}

// TestConnections probes both external collaborators.
func (s *Service) TestConnections(ctx context.Context) ConnectionReport {
	var report ConnectionReport
	if err := s.forms.SelfTest(ctx); err != nil {
		report.AppScript.Error = err.Error()
	} else {
		report.AppScript.OK = true
	}
	if err := s.sender.SelfTest(ctx); err != nil {
		report.Messenger.Error = err.Error()
	} else {
		report.Messenger.OK = true
	}
	return report
}
