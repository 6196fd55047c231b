package reminder

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	dbfs "github.com/stntools/relance/db"
	"github.com/stntools/relance/internal/db"
	"github.com/stntools/relance/internal/repository/sqlite"
	"github.com/stntools/relance/pkg/appscript"
	"github.com/stntools/relance/pkg/messenger"
	"github.com/stntools/relance/pkg/models"
)

type fakeFetcher struct {
	payloads map[string]*appscript.FormResponses
	errs     map[string]error
	err      error
	selfErr  error
}

func (f *fakeFetcher) FetchResponses(_ context.Context, googleFormID string) (*appscript.FormResponses, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errs[googleFormID]; err != nil {
		return nil, err
	}
	if p, ok := f.payloads[googleFormID]; ok {
		return p, nil
	}
	return &appscript.FormResponses{}, nil
}

func (f *fakeFetcher) SelfTest(context.Context) error { return f.selfErr }
func (f *fakeFetcher) InvalidateCache()               {}

type fakeSender struct {
	failPSIDs map[string]bool
	selfErr   error
	sent      []messenger.Message
}

func (s *fakeSender) Send(_ context.Context, m messenger.Message) models.SendResult {
	s.sent = append(s.sent, m)
	res := models.SendResult{
		PersonName: m.PersonName,
		PSID:       m.PSID,
		Timestamp:  time.Now().UTC(),
		Latency:    5 * time.Millisecond,
	}
	if s.failPSIDs[m.PSID] {
		res.Error = "user unavailable"
		return res
	}
	res.Success = true
	res.MessageID = "mid." + m.PSID
	return res
}

func (s *fakeSender) SelfTest(context.Context) error { return s.selfErr }

func newTestStore(t *testing.T) (*sqlite.SQLiteRepo, context.Context) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.Migrate(ctx, conn, dbfs.Migrations); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return sqlite.New(conn, nil), ctx
}

func newService(store Store, fetcher FormFetcher, sender Sender) *Service {
	return New(store, fetcher, sender, Config{Cooldown: 24 * time.Hour, Template: "Salut {name}, formulaire {form_name} : {form_url}"}, nil)
}

func TestSyncForm(t *testing.T) {
	store, ctx := newTestStore(t)

	expected := &models.Person{Name: "Alice", Email: "alice@example.com", PSID: "psid-a"}
	if err := store.CreatePerson(ctx, expected); err != nil {
		t.Fatalf("create person: %v", err)
	}
	known := &models.Person{Name: "Bob", Email: "bob@example.com"}
	if err := store.CreatePerson(ctx, known); err != nil {
		t.Fatalf("create person: %v", err)
	}
	form := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, form, []string{expected.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}

	fetcher := &fakeFetcher{payloads: map[string]*appscript.FormResponses{
		"gform-1": {People: []appscript.Submission{
			// expected on the form, matched by normalized email
			{Email: "ALICE@Example.com ", Timestamp: "2026-08-20T10:00:00Z"},
			// in the store but not expected on this form
			{Email: "bob@example.com"},
			// unknown, created on the fly
			{Email: "carol.durand@example.com"},
			// no email: skipped, neither success nor error
			{Email: ""},
		}},
	}}
	svc := newService(store, fetcher, &fakeSender{})

	stats, err := svc.SyncForm(ctx, form.ID)
	if err != nil {
		t.Fatalf("sync form: %v", err)
	}
	if stats.Updated != 2 || stats.Created != 1 || stats.Errors != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	fs, err := store.FormStats(ctx, form.ID)
	if err != nil {
		t.Fatalf("form stats: %v", err)
	}
	if fs.Total != 3 || fs.Responded != 3 {
		t.Fatalf("unexpected form stats: %+v", fs)
	}

	// the unknown respondent was created with the email local part as name
	carol, err := store.GetPersonByEmail(ctx, "carol.durand@example.com")
	if err != nil || carol == nil {
		t.Fatalf("expected auto-created person, got %v err=%v", carol, err)
	}
	if carol.Name != "carol.durand" {
		t.Fatalf("unexpected fallback name: %q", carol.Name)
	}

	global, err := store.GlobalStats(ctx)
	if err != nil {
		t.Fatalf("global stats: %v", err)
	}
	if global.LastSync == nil {
		t.Fatal("expected last sync to be recorded")
	}
}

func TestSyncFormEndpointDown(t *testing.T) {
	store, ctx := newTestStore(t)
	form := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, form, nil); err != nil {
		t.Fatalf("create form: %v", err)
	}

	svc := newService(store, &fakeFetcher{err: fmt.Errorf("endpoint unreachable")}, &fakeSender{})
	if _, err := svc.SyncForm(ctx, form.ID); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}

func TestSendReminders(t *testing.T) {
	store, ctx := newTestStore(t)

	alice := &models.Person{Name: "Alice", Email: "alice@example.com", PSID: "psid-a"}
	bob := &models.Person{Name: "Bob", Email: "bob@example.com", PSID: "psid-b"}
	noPSID := &models.Person{Name: "Carol", Email: "carol@example.com"}
	for _, p := range []*models.Person{alice, bob, noPSID} {
		if err := store.CreatePerson(ctx, p); err != nil {
			t.Fatalf("create person: %v", err)
		}
	}
	form := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, form, []string{alice.ID, bob.ID, noPSID.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}

	fetcher := &fakeFetcher{payloads: map[string]*appscript.FormResponses{}}
	sender := &fakeSender{failPSIDs: map[string]bool{"psid-b": true}}
	svc := newService(store, fetcher, sender)

	report := svc.SendReminders(ctx, "", true)
	if report.Status != models.StatusWarning {
		t.Fatalf("expected warning status with one failure, got %s", report.Status)
	}
	if report.TotalSent != 1 || report.TotalFailed != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	// Carol has no psid and must not be dispatched at all
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 dispatch attempts, got %d", len(sender.sent))
	}
	for _, m := range sender.sent {
		if m.Text == "" || m.PSID == "" {
			t.Fatalf("unexpected message: %+v", m)
		}
	}

	// bookkeeping: success recorded, failure left eligible
	responses, err := store.ListResponsesForForm(ctx, form.ID)
	if err != nil {
		t.Fatalf("list responses: %v", err)
	}
	byPerson := make(map[string]models.Response, len(responses))
	for _, r := range responses {
		byPerson[r.PersonID] = r
	}
	if byPerson[alice.ID].ReminderCount != 1 || byPerson[alice.ID].LastReminder == nil {
		t.Fatalf("expected reminder recorded for alice, got %+v", byPerson[alice.ID])
	}
	if byPerson[bob.ID].ReminderCount != 0 || byPerson[bob.ID].LastReminder != nil {
		t.Fatalf("failed send must not update bookkeeping, got %+v", byPerson[bob.ID])
	}

	// both attempts are in the message log
	msgStats, err := store.MessengerStats(ctx, time.Hour)
	if err != nil {
		t.Fatalf("messenger stats: %v", err)
	}
	if msgStats.TotalMessages != 2 || msgStats.Successful != 1 || msgStats.Failed != 1 {
		t.Fatalf("unexpected message log stats: %+v", msgStats)
	}

	// a second run within the cooldown only retries the failed recipient
	sender.sent = nil
	report = svc.SendReminders(ctx, "", true)
	if len(sender.sent) != 1 || sender.sent[0].PSID != "psid-b" {
		t.Fatalf("expected only the failed recipient to be retried, got %+v", sender.sent)
	}
	_ = report
}

func TestSendRemindersSyncFailed(t *testing.T) {
	store, ctx := newTestStore(t)
	alice := &models.Person{Name: "Alice", Email: "alice@example.com", PSID: "psid-a"}
	if err := store.CreatePerson(ctx, alice); err != nil {
		t.Fatalf("create person: %v", err)
	}
	form := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, form, []string{alice.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}

	sender := &fakeSender{}
	svc := newService(store, &fakeFetcher{err: fmt.Errorf("endpoint unreachable")}, sender)

	report := svc.SendReminders(ctx, "", true)
	if report.Status != models.StatusSyncFailed {
		t.Fatalf("expected sync_failed, got %s", report.Status)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no reminders may go out on a failed sync, got %d", len(sender.sent))
	}
}

func TestSendRemindersKeepsGoingOnSubmissionNoise(t *testing.T) {
	store, ctx := newTestStore(t)
	alice := &models.Person{Name: "Alice", Email: "alice@example.com", PSID: "psid-a"}
	bob := &models.Person{Name: "Bob", Email: "bob@example.com", PSID: "psid-b"}
	for _, p := range []*models.Person{alice, bob} {
		if err := store.CreatePerson(ctx, p); err != nil {
			t.Fatalf("create person: %v", err)
		}
	}
	form := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, form, []string{alice.ID, bob.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}

	// one good submission next to an unusable one: the sync itself succeeds
	fetcher := &fakeFetcher{payloads: map[string]*appscript.FormResponses{
		"gform-1": {People: []appscript.Submission{
			{Email: "alice@example.com", Timestamp: "2026-08-20T10:00:00Z"},
			{Email: ""},
		}},
	}}
	sender := &fakeSender{}
	svc := newService(store, fetcher, sender)

	report := svc.SendReminders(ctx, "", true)
	if report.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", report.Status, report.Message)
	}
	if report.SyncStats == nil || report.SyncStats.Errors != 0 || report.SyncStats.FailedForms != 0 {
		t.Fatalf("unexpected sync stats: %+v", report.SyncStats)
	}
	if report.TotalSent != 1 || len(sender.sent) != 1 || sender.sent[0].PSID != "psid-b" {
		t.Fatalf("expected the pending recipient to be reminded, got %+v", sender.sent)
	}
}

func TestSendRemindersPartialSyncFailure(t *testing.T) {
	store, ctx := newTestStore(t)
	alice := &models.Person{Name: "Alice", Email: "alice@example.com", PSID: "psid-a"}
	bob := &models.Person{Name: "Bob", Email: "bob@example.com", PSID: "psid-b"}
	for _, p := range []*models.Person{alice, bob} {
		if err := store.CreatePerson(ctx, p); err != nil {
			t.Fatalf("create person: %v", err)
		}
	}
	broken := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, broken, []string{alice.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}
	healthy := &models.Form{Name: "Repas", GoogleFormID: "gform-2", IsActive: true}
	if err := store.CreateForm(ctx, healthy, []string{bob.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}

	fetcher := &fakeFetcher{errs: map[string]error{"gform-1": fmt.Errorf("endpoint unreachable")}}
	sender := &fakeSender{}
	svc := newService(store, fetcher, sender)

	report := svc.SendReminders(ctx, "", true)
	if report.Status == models.StatusSyncFailed {
		t.Fatalf("one failed sync must not abort the run: %+v", report)
	}
	if report.SyncStats == nil || report.SyncStats.FailedForms != 1 {
		t.Fatalf("unexpected sync stats: %+v", report.SyncStats)
	}
	// only the form that synced dispatches; the other is skipped, not sent
	// against stale state
	if report.TotalSent != 1 || len(sender.sent) != 1 || sender.sent[0].PSID != "psid-b" {
		t.Fatalf("unexpected dispatches: %+v", sender.sent)
	}
	if fr := report.PerForm["Dispos"]; fr.Sent != 0 || fr.Reason == "" {
		t.Fatalf("expected the unsynced form to be skipped with a reason, got %+v", fr)
	}
}

func TestSendRemindersForFormNotFound(t *testing.T) {
	store, ctx := newTestStore(t)
	svc := newService(store, &fakeFetcher{}, &fakeSender{})

	report := svc.SendRemindersForForm(ctx, "no-such-form", "", true)
	if report.Status != models.StatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
}

func TestPreviewHasNoSideEffects(t *testing.T) {
	store, ctx := newTestStore(t)
	alice := &models.Person{Name: "Alice", Email: "alice@example.com", PSID: "psid-a"}
	if err := store.CreatePerson(ctx, alice); err != nil {
		t.Fatalf("create person: %v", err)
	}
	form := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, form, []string{alice.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}

	svc := newService(store, &fakeFetcher{}, &fakeSender{})
	preview, err := svc.Preview(ctx, "", 0)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.TotalReminders != 1 {
		t.Fatalf("expected 1 eligible reminder, got %d", preview.TotalReminders)
	}
	fp, ok := preview.PerForm["Dispos"]
	if !ok || len(fp.People) != 1 || fp.People[0].Name != "Alice" {
		t.Fatalf("unexpected preview: %+v", preview.PerForm)
	}

	responses, _ := store.ListResponsesForForm(ctx, form.ID)
	if responses[0].ReminderCount != 0 || responses[0].LastReminder != nil {
		t.Fatalf("preview must not touch bookkeeping, got %+v", responses[0])
	}
}

func TestDashboardStats(t *testing.T) {
	store, ctx := newTestStore(t)
	alice := &models.Person{Name: "Alice", Email: "alice@example.com", PSID: "psid-a"}
	if err := store.CreatePerson(ctx, alice); err != nil {
		t.Fatalf("create person: %v", err)
	}
	form := &models.Form{Name: "Dispos", GoogleFormID: "gform-1", IsActive: true}
	if err := store.CreateForm(ctx, form, []string{alice.ID}); err != nil {
		t.Fatalf("create form: %v", err)
	}
	if err := store.RecordResponse(ctx, form.ID, alice.ID, time.Now()); err != nil {
		t.Fatalf("record response: %v", err)
	}

	svc := newService(store, &fakeFetcher{}, &fakeSender{})
	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if stats.Global.TotalPeople != 1 || stats.Global.TotalForms != 1 {
		t.Fatalf("unexpected global stats: %+v", stats.Global)
	}
	if len(stats.Forms) != 1 || stats.Forms[0].ResponseRate != 100 {
		t.Fatalf("unexpected form stats: %+v", stats.Forms)
	}
}

func TestTestConnections(t *testing.T) {
	store, ctx := newTestStore(t)
	svc := newService(store, &fakeFetcher{selfErr: fmt.Errorf("endpoint down")}, &fakeSender{})

	report := svc.TestConnections(ctx)
	if report.AppScript.OK || report.AppScript.Error == "" {
		t.Fatalf("expected app script probe failure, got %+v", report.AppScript)
	}
	if !report.Messenger.OK {
		t.Fatalf("expected messenger probe success, got %+v", report.Messenger)
	}
}
