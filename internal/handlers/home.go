package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/authz"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/status"
)

type HomeHandler struct {
	incidents repository.IncidentRepository
	render    *Renderer
	logger    zerolog.Logger
}

func NewHomeHandler(incidents repository.IncidentRepository, render *Renderer, logger zerolog.Logger) *HomeHandler {
	return &HomeHandler{incidents: incidents, render: render, logger: logger.With().Str("handler", "home").Logger()}
}

// Index shows the overall state and the incident timeline. Private
// incidents are listed for signed-in users only, but every incident
// counts toward the state.
func (h *HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	all, err := h.incidents.List(r.Context(), false)
	if err != nil {
		logger := loggerFromRequest(r, h.logger)
		logger.Error().Err(err).Msg("failed to list incidents")
		http.Error(w, "Failed to load incidents", http.StatusInternalServerError)
		return
	}

	signedIn := authz.SignedIn(r)
	visible := all[:0:0]
	for _, incident := range all {
		if incident.VisibleTo(signedIn) {
			visible = append(visible, incident)
		}
	}

	h.render.Render(w, r, http.StatusOK, "index", Page{
		Summary:   status.Evaluate(all),
		Incidents: visible,
	})
}
