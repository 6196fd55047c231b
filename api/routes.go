package api

import (
	"time"

	"github.com/gorilla/mux"

	"github.com/stntools/relance/internal/config"
	"github.com/stntools/relance/internal/db"
	"github.com/stntools/relance/internal/reminder"
	"github.com/stntools/relance/internal/repository/sqlite"
	"github.com/stntools/relance/pkg/appscript"
	"github.com/stntools/relance/pkg/messenger"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, db *db.DB) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Repository and external clients
	repo := sqlite.New(db, logger)
	formsClient := appscript.New(appscript.Config{
		URL:      cfg.AppScriptURL,
		Timeout:  cfg.AppScript.Timeout,
		Retries:  cfg.AppScript.Retries,
		Backoff:  cfg.AppScript.Backoff,
		CacheTTL: cfg.AppScript.CacheTTL,
	})
	sender := messenger.New(messenger.Config{
		BaseURL:   cfg.Messenger.BaseURL,
		PageToken: cfg.PageToken,
		Timeout:   cfg.Messenger.Timeout,
		SendDelay: cfg.Messenger.SendDelay,
	})
	svc := reminder.New(repo, formsClient, sender, reminder.Config{
		Cooldown: time.Duration(cfg.Reminder.CooldownHours) * time.Hour,
		Template: cfg.Reminder.DefaultTemplate,
	}, logger)

	// Create handlers
	systemHandler := NewSystemHandler(repo)
	authHandler := NewAuthHandler(repo, cfg.JWTSecret, cfg.TokenDuration)
	peopleHandler := NewPeopleHandler(repo)
	polesHandler := NewPolesHandler(repo)
	formsHandler := NewFormsHandler(repo, repo)
	remindersHandler := NewRemindersHandler(svc, repo, repo)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Auth endpoints
	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/signout", authHandler.Signout).Methods("POST")

	// People endpoints
	apiV1.HandleFunc("/people", peopleHandler.Create).Methods("POST")
	apiV1.HandleFunc("/people", peopleHandler.List).Methods("GET")
	apiV1.HandleFunc("/people/{id}", peopleHandler.Get).Methods("GET")
	apiV1.HandleFunc("/people/{id}", peopleHandler.Update).Methods("PUT")
	apiV1.HandleFunc("/people/{id}", peopleHandler.Delete).Methods("DELETE")

	// Pole endpoints
	apiV1.HandleFunc("/poles", polesHandler.Create).Methods("POST")
	apiV1.HandleFunc("/poles", polesHandler.List).Methods("GET")
	apiV1.HandleFunc("/poles/{id}", polesHandler.Update).Methods("PUT")
	apiV1.HandleFunc("/poles/{id}", polesHandler.Delete).Methods("DELETE")

	// Form endpoints
	apiV1.HandleFunc("/forms", formsHandler.Create).Methods("POST")
	apiV1.HandleFunc("/forms", formsHandler.List).Methods("GET")
	apiV1.HandleFunc("/forms/{id}", formsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/forms/{id}", formsHandler.Update).Methods("PUT")
	apiV1.HandleFunc("/forms/{id}", formsHandler.Delete).Methods("DELETE")
	apiV1.HandleFunc("/forms/{id}/non-responders", formsHandler.NonResponders).Methods("GET")

	// Sync and reminder endpoints
	apiV1.HandleFunc("/sync", remindersHandler.SyncAll).Methods("POST")
	apiV1.HandleFunc("/forms/{id}/sync", remindersHandler.SyncForm).Methods("POST")
	apiV1.HandleFunc("/reminders/preview", remindersHandler.Preview).Methods("GET")
	apiV1.HandleFunc("/reminders/send", remindersHandler.SendAll).Methods("POST")
	apiV1.HandleFunc("/forms/{id}/reminders", remindersHandler.SendForForm).Methods("POST")

	// Stats endpoints
	apiV1.HandleFunc("/stats", remindersHandler.GlobalStats).Methods("GET")
	apiV1.HandleFunc("/stats/dashboard", remindersHandler.Dashboard).Methods("GET")
	apiV1.HandleFunc("/stats/messenger", remindersHandler.MessengerStats).Methods("GET")
	apiV1.HandleFunc("/connections/test", remindersHandler.TestConnections).Methods("GET")

	return r
}
