package handlers

import (
	"embed"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/authz"
	"github.com/statusify/statusify/internal/models"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/status"
	"github.com/statusify/statusify/internal/telemetry"
)

//go:embed assets/*.svg
var assetFS embed.FS

type StatusHandler struct {
	incidents repository.IncidentRepository
	appURL    string
	logger    zerolog.Logger
}

func NewStatusHandler(incidents repository.IncidentRepository, appURL string, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		incidents: incidents,
		appURL:    appURL,
		logger:    logger.With().Str("handler", "status").Logger(),
	}
}

func (h *StatusHandler) summary(r *http.Request) (status.Summary, error) {
	incidents, err := h.incidents.ListStates(r.Context())
	if err != nil {
		return status.Summary{}, err
	}
	summary := status.Evaluate(incidents)
	telemetry.StatusChecksTotal.WithLabelValues(string(summary.State)).Inc()
	return summary, nil
}

// Badge redirects to the up or down image for the current state.
func (h *StatusHandler) Badge(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summary(r)
	if err != nil {
		logger := loggerFromRequest(r, h.logger)
		logger.Error().Err(err).Msg("failed to evaluate status")
		http.Error(w, "Failed to evaluate status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.Redirect(w, r, status.BadgeURL(h.appURL, summary.State), http.StatusFound)
}

func (h *StatusHandler) APIStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summary(r)
	if err != nil {
		logger := loggerFromRequest(r, h.logger)
		logger.Error().Err(err).Msg("failed to evaluate status")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to evaluate status"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// APIIncidents lists incidents with their events. Anonymous callers only
// see public incidents.
func (h *StatusHandler) APIIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.incidents.List(r.Context(), !authz.SignedIn(r))
	if err != nil {
		logger := loggerFromRequest(r, h.logger)
		logger.Error().Err(err).Msg("failed to list incidents")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list incidents"})
		return
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

// BadgeImage serves the embedded up.svg and down.svg images.
func BadgeImage(state status.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := assetFS.ReadFile("assets/" + string(state) + ".svg")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Write(data)
	}
}
