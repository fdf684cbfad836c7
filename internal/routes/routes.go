package routes

import (
	"database/sql"
	"net/http"

	gh "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/statusify/statusify/internal/authz"
	"github.com/statusify/statusify/internal/handlers"
	"github.com/statusify/statusify/internal/middleware"
	"github.com/statusify/statusify/internal/status"
)

type Handlers struct {
	DB          *sql.DB
	Auth        *handlers.AuthHandler
	Home        *handlers.HomeHandler
	Incidents   *handlers.IncidentHandler
	Status      *handlers.StatusHandler
	Subscribers *handlers.SubscriberHandler
}

// NewRouter sets up every route. POST forms may tunnel PATCH and DELETE
// through the _method field.
func NewRouter(h Handlers) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.MetricsMiddleware)
	router.Use(h.Auth.Authenticate)

	// Health and metrics
	router.HandleFunc("/health", handlers.HealthCheck(h.DB)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public pages
	router.HandleFunc("/", h.Home.Index).Methods(http.MethodGet)
	router.HandleFunc("/status.svg", h.Status.Badge).Methods(http.MethodGet)
	router.HandleFunc("/up.svg", handlers.BadgeImage(status.Up)).Methods(http.MethodGet)
	router.HandleFunc("/down.svg", handlers.BadgeImage(status.Down)).Methods(http.MethodGet)

	// Session
	router.HandleFunc(authz.SignInPath, h.Auth.SignInForm).Methods(http.MethodGet)
	router.HandleFunc(authz.SignInPath, h.Auth.SignIn).Methods(http.MethodPost)
	router.HandleFunc("/users/sign_out", h.Auth.SignOut).Methods(http.MethodDelete)

	// Incidents
	router.Handle("/incidents/new", authz.RequireUserFunc(h.Incidents.New)).Methods(http.MethodGet)
	router.Handle("/incidents", authz.RequireUserFunc(h.Incidents.Create)).Methods(http.MethodPost)
	router.Handle("/incidents/{id}/edit", authz.RequireUserFunc(h.Incidents.Edit)).Methods(http.MethodGet)
	router.Handle("/incidents/{id}/edit", authz.RequireUserFunc(h.Incidents.Update)).Methods(http.MethodPatch, http.MethodPut)
	router.Handle("/incidents/{id}/deactivate", authz.RequireUserFunc(h.Incidents.Deactivate)).Methods(http.MethodGet)
	router.Handle("/incidents/{id}", authz.RequireUserFunc(h.Incidents.Update)).Methods(http.MethodPatch, http.MethodPut)
	router.Handle("/incidents/{id}", authz.RequireUserFunc(h.Incidents.Delete)).Methods(http.MethodDelete)
	router.HandleFunc("/incidents/{id}", h.Incidents.Show).Methods(http.MethodGet)

	// Subscribers
	router.HandleFunc("/subscribers", h.Subscribers.Subscribe).Methods(http.MethodPost)
	router.HandleFunc("/subscribers/{key}/activate", h.Subscribers.Activate).Methods(http.MethodGet)

	// JSON API
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", h.Status.APIStatus).Methods(http.MethodGet)
	api.HandleFunc("/incidents", h.Status.APIIncidents).Methods(http.MethodGet)

	return gh.HTTPMethodOverrideHandler(router)
}
