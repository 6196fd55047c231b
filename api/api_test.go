package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stntools/relance/api"
	dbfs "github.com/stntools/relance/db"
	"github.com/stntools/relance/internal/config"
	"github.com/stntools/relance/internal/db"
	"github.com/stntools/relance/pkg/models"
)

// testEnv wires the full router against a temp database and fake external
// endpoints, and holds an authenticated operator token.
type testEnv struct {
	srv   *httptest.Server
	token string

	appScriptHits int
	messengerHits int
	// submissions served by the fake form endpoint, keyed by google form id
	submissions map[string][]map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{submissions: make(map[string][]map[string]string)}

	appScript := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.appScriptHits++
		formID := r.URL.Query().Get("formId")
		if formID == "" {
			fmt.Fprint(w, `{"error": "missing formId"}`)
			return
		}
		subs := env.submissions[formID]
		if subs == nil {
			subs = []map[string]string{}
		}
		json.NewEncoder(w).Encode(map[string]any{"people": subs})
	}))
	t.Cleanup(appScript.Close)

	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.messengerHits++
		fmt.Fprintf(w, `{"recipient_id": "x", "message_id": "mid.%d"}`, env.messengerHits)
	}))
	t.Cleanup(graph.Close)

	cfg := &config.Config{
		Addr:          ":0",
		JWTSecret:     "testsecret",
		APITimeout:    5 * time.Second,
		DatabasePath:  filepath.Join(t.TempDir(), "test.db"),
		TokenDuration: time.Hour,
		PageToken:     "test-page-token",
		AppScriptURL:  appScript.URL,
	}
	cfg.AppScript.CacheTTL = time.Millisecond
	cfg.Messenger.BaseURL = graph.URL + "/me/messages"
	cfg.Messenger.SendDelay = time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	ctx := context.Background()
	conn, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.Migrate(ctx, conn, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	env.srv = httptest.NewServer(api.SetupRoutes(cfg, "test", "now", conn))
	t.Cleanup(env.srv.Close)

	status, body := env.do(t, http.MethodPost, "/v1/auth/signup",
		map[string]string{"name": "Admin", "email": "admin@example.com", "password": "s3cret"})
	if status != http.StatusOK {
		t.Fatalf("signup: status %d body %s", status, body)
	}
	var ar struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &ar); err != nil || ar.Token == "" {
		t.Fatalf("signup token: %v body %s", err, body)
	}
	env.token = ar.Token
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	return res.StatusCode, data
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	// protected routes reject missing and garbage tokens
	noAuth := *env
	noAuth.token = ""
	if status, _ := noAuth.do(t, http.MethodGet, "/v1/people", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	noAuth.token = "garbage"
	if status, _ := noAuth.do(t, http.MethodGet, "/v1/people", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", status)
	}

	// duplicate signup is rejected
	status, _ := env.do(t, http.MethodPost, "/v1/auth/signup",
		map[string]string{"name": "Again", "email": "admin@example.com", "password": "other"})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate signup, got %d", status)
	}

	// signin with the wrong password is rejected
	status, _ = env.do(t, http.MethodPost, "/v1/auth/signin",
		map[string]string{"email": "admin@example.com", "password": "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 on wrong password, got %d", status)
	}

	// signin with the right password issues a token
	status, body := env.do(t, http.MethodPost, "/v1/auth/signin",
		map[string]string{"email": "admin@example.com", "password": "s3cret"})
	if status != http.StatusOK || !bytes.Contains(body, []byte("token")) {
		t.Fatalf("signin: status %d body %s", status, body)
	}
}

func TestPeopleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/v1/people",
		map[string]string{"name": "Alice", "email": "alice@example.com", "psid": "psid-a"})
	if status != http.StatusCreated {
		t.Fatalf("create person: status %d body %s", status, body)
	}
	var alice models.Person
	if err := json.Unmarshal(body, &alice); err != nil || alice.ID == "" {
		t.Fatalf("decode person: %v body %s", err, body)
	}

	// a person without any contact handle is rejected
	if status, _ := env.do(t, http.MethodPost, "/v1/people", map[string]string{"name": "Ghost"}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for contactless person, got %d", status)
	}
	// duplicate email is a conflict
	status, _ = env.do(t, http.MethodPost, "/v1/people",
		map[string]string{"name": "Alice2", "email": "ALICE@example.com"})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", status)
	}

	status, body = env.do(t, http.MethodGet, "/v1/people/"+alice.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("get person: status %d body %s", status, body)
	}

	status, _ = env.do(t, http.MethodPut, "/v1/people/"+alice.ID,
		map[string]string{"name": "Alice Martin", "email": "alice@example.com", "psid": "psid-a"})
	if status != http.StatusOK {
		t.Fatalf("update person: status %d", status)
	}

	if status, _ := env.do(t, http.MethodDelete, "/v1/people/"+alice.ID, nil); status != http.StatusNoContent {
		t.Fatalf("delete person: status %d", status)
	}
	if status, _ := env.do(t, http.MethodDelete, "/v1/people/"+alice.ID, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", status)
	}
}

func TestFormAndReminderFlow(t *testing.T) {
	env := newTestEnv(t)

	var people []models.Person
	for _, p := range []map[string]string{
		{"name": "Alice", "email": "alice@example.com", "psid": "psid-a"},
		{"name": "Bob", "email": "bob@example.com", "psid": "psid-b"},
	} {
		status, body := env.do(t, http.MethodPost, "/v1/people", p)
		if status != http.StatusCreated {
			t.Fatalf("create person: status %d body %s", status, body)
		}
		var created models.Person
		json.Unmarshal(body, &created)
		people = append(people, created)
	}

	status, body := env.do(t, http.MethodPost, "/v1/forms", map[string]any{
		"name":                "Dispos",
		"google_form_id":      "gform-1",
		"date_envoi":          "2026-08-20",
		"expected_people_ids": []string{people[0].ID, people[1].ID},
	})
	if status != http.StatusCreated {
		t.Fatalf("create form: status %d body %s", status, body)
	}
	var form struct {
		models.Form
		URL string `json:"url"`
	}
	json.Unmarshal(body, &form)
	if form.URL != "https://docs.google.com/forms/d/gform-1/viewform" {
		t.Fatalf("unexpected form url: %q", form.URL)
	}

	// duplicate google form id is a conflict
	status, _ = env.do(t, http.MethodPost, "/v1/forms",
		map[string]any{"name": "Copie", "google_form_id": "gform-1"})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate google form id, got %d", status)
	}

	// Alice answers on the external form, then we sync
	env.submissions["gform-1"] = []map[string]string{
		{"email": "alice@example.com", "timestamp": "2026-08-21T09:00:00Z"},
	}
	status, body = env.do(t, http.MethodPost, "/v1/forms/"+form.ID+"/sync", nil)
	if status != http.StatusOK {
		t.Fatalf("sync form: status %d body %s", status, body)
	}
	var sync models.SyncStats
	json.Unmarshal(body, &sync)
	if sync.Updated != 1 {
		t.Fatalf("unexpected sync stats: %+v", sync)
	}

	// only Bob is still pending
	status, body = env.do(t, http.MethodGet, "/v1/forms/"+form.ID+"/non-responders", nil)
	if status != http.StatusOK {
		t.Fatalf("non-responders: status %d", status)
	}
	var pending []models.NonResponder
	json.Unmarshal(body, &pending)
	if len(pending) != 1 || pending[0].Person.Name != "Bob" {
		t.Fatalf("unexpected non-responders: %+v", pending)
	}

	// preview is side-effect free and sees Bob
	status, body = env.do(t, http.MethodGet, "/v1/reminders/preview", nil)
	if status != http.StatusOK {
		t.Fatalf("preview: status %d", status)
	}
	var preview models.ReminderPreview
	json.Unmarshal(body, &preview)
	if preview.TotalReminders != 1 {
		t.Fatalf("unexpected preview: %+v", preview)
	}
	if env.messengerHits != 0 {
		t.Fatalf("preview must not send, got %d sends", env.messengerHits)
	}

	// send reminders for the form: one paced send to Bob
	status, body = env.do(t, http.MethodPost, "/v1/forms/"+form.ID+"/reminders", nil)
	if status != http.StatusOK {
		t.Fatalf("send reminders: status %d body %s", status, body)
	}
	var report models.ReminderReport
	json.Unmarshal(body, &report)
	if report.Status != models.StatusSuccess || report.TotalSent != 1 || report.TotalFailed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if env.messengerHits != 1 {
		t.Fatalf("expected 1 messenger call, got %d", env.messengerHits)
	}

	// a second run within the cooldown sends nothing
	status, body = env.do(t, http.MethodPost, "/v1/forms/"+form.ID+"/reminders", nil)
	if status != http.StatusOK {
		t.Fatalf("second send: status %d", status)
	}
	json.Unmarshal(body, &report)
	if report.TotalSent != 0 || env.messengerHits != 1 {
		t.Fatalf("cooldown not honored: report %+v hits %d", report, env.messengerHits)
	}

	// dashboard reflects the state
	status, body = env.do(t, http.MethodGet, "/v1/stats/dashboard", nil)
	if status != http.StatusOK {
		t.Fatalf("dashboard: status %d", status)
	}
	var dash models.DashboardStats
	json.Unmarshal(body, &dash)
	if dash.Global.TotalPeople != 2 || len(dash.Forms) != 1 || dash.Forms[0].Responded != 1 {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}
	if dash.Messenger.TotalMessages != 1 || dash.Messenger.Successful != 1 {
		t.Fatalf("unexpected messenger stats: %+v", dash.Messenger)
	}
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// health and version are open endpoints
	open := *env
	open.token = ""
	status, body := open.do(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("health: status %d", status)
	}
	var health models.HealthReport
	json.Unmarshal(body, &health)
	if health.Status != models.StatusSuccess {
		t.Fatalf("unexpected health: %+v", health)
	}

	status, body = open.do(t, http.MethodGet, "/version", nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"version":"test"`)) {
		t.Fatalf("version: status %d body %s", status, body)
	}

	// connection probes hit both fake endpoints
	status, body = env.do(t, http.MethodGet, "/v1/connections/test", nil)
	if status != http.StatusOK {
		t.Fatalf("connections: status %d", status)
	}
	var probes struct {
		AppScript struct {
			OK bool `json:"ok"`
		} `json:"app_script"`
		Messenger struct {
			OK bool `json:"ok"`
		} `json:"messenger"`
	}
	json.Unmarshal(body, &probes)
	if !probes.AppScript.OK || !probes.Messenger.OK {
		t.Fatalf("unexpected probes: %s", body)
	}
}
