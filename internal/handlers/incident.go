package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/authz"
	"github.com/statusify/statusify/internal/models"
	"github.com/statusify/statusify/internal/notification"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/session"
	"github.com/statusify/statusify/internal/telemetry"
)

const incidentNotFoundMessage = "Unable to find that incident"

type IncidentHandler struct {
	incidents repository.IncidentRepository
	notifier  notification.Service
	render    *Renderer
	logger    zerolog.Logger
}

func NewIncidentHandler(incidents repository.IncidentRepository, notifier notification.Service, render *Renderer, logger zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{
		incidents: incidents,
		notifier:  notifier,
		render:    render,
		logger:    logger.With().Str("handler", "incidents").Logger(),
	}
}

func (h *IncidentHandler) New(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, "incident_form", Page{
		Title:    "New incident",
		Incident: models.Incident{Public: true},
		Form:     IncidentForm{Action: "/incidents", Method: http.MethodPost},
	})
}

func (h *IncidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r, h.logger)
	if err := r.ParseForm(); err != nil {
		h.fail(w, "create")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cmd := ParseCreateIncident(r.PostForm)
	if err := cmd.Validate(); err != nil {
		h.fail(w, "create")
		var verrs ValidationErrors
		errors.As(err, &verrs)
		h.render.Render(w, r, http.StatusUnprocessableEntity, "incident_form", Page{
			Title: "New incident",
			Incident: models.Incident{
				Name:      cmd.Name,
				Component: cmd.Component,
				Severity:  cmd.Severity,
				Public:    cmd.Public,
			},
			Form: IncidentForm{Action: "/incidents", Method: http.MethodPost, Errors: verrs.Messages()},
		})
		return
	}

	var userID *int64
	if id, ok := authz.IdentityFromRequest(r); ok {
		userID = &id.UserID
	}

	incident, err := h.incidents.Create(r.Context(), cmd.Params(userID))
	if err != nil {
		logger.Error().Err(err).Msg("failed to create incident")
		h.fail(w, "create")
		http.Error(w, "Failed to create incident", http.StatusInternalServerError)
		return
	}

	if err := h.notifier.IncidentOpened(r.Context(), incident); err != nil {
		logger.Warn().Err(err).Int64("incident_id", incident.ID).Msg("failed to enqueue incident notice")
	}

	logger.Info().Int64("incident_id", incident.ID).Msg("incident created")
	h.succeed(w, "create")
	session.SetFlash(w, session.Flash{Notice: "Incident was successfully created."})
	http.Redirect(w, r, fmt.Sprintf("/incidents/%d", incident.ID), http.StatusFound)
}

func (h *IncidentHandler) Edit(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.load(w, r)
	if !ok {
		return
	}
	h.render.Render(w, r, http.StatusOK, "incident_form", Page{
		Title:    "Edit " + incident.Name,
		Incident: incident,
		Form: IncidentForm{
			Action:  fmt.Sprintf("/incidents/%d", incident.ID),
			Method:  http.MethodPatch,
			Editing: true,
		},
	})
}

func (h *IncidentHandler) Update(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r, h.logger)
	id, ok := incidentIDFromRequest(r)
	if !ok {
		h.fail(w, "update")
		h.notFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, "update")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cmd := ParseUpdateIncident(r.PostForm)
	if err := cmd.Validate(); err != nil {
		h.fail(w, "update")
		incident, getErr := h.incidents.Get(r.Context(), id)
		if getErr != nil {
			h.notFound(w, r)
			return
		}
		var verrs ValidationErrors
		errors.As(err, &verrs)
		h.render.Render(w, r, http.StatusUnprocessableEntity, "incident_form", Page{
			Title:    "Edit " + incident.Name,
			Incident: incident,
			Form: IncidentForm{
				Action:  fmt.Sprintf("/incidents/%d", incident.ID),
				Method:  http.MethodPatch,
				Editing: true,
				Errors:  verrs.Messages(),
			},
		})
		return
	}

	incident, err := h.incidents.Update(r.Context(), id, cmd.Params())
	if err != nil {
		h.fail(w, "update")
		if errors.Is(err, sql.ErrNoRows) {
			h.notFound(w, r)
			return
		}
		logger.Error().Err(err).Int64("incident_id", id).Msg("failed to update incident")
		http.Error(w, "Failed to update incident", http.StatusInternalServerError)
		return
	}

	if !cmd.Event.Empty() {
		if err := h.notifier.IncidentUpdated(r.Context(), incident); err != nil {
			logger.Warn().Err(err).Int64("incident_id", incident.ID).Msg("failed to enqueue incident notice")
		}
	}

	h.succeed(w, "update")
	session.SetFlash(w, session.Flash{Notice: "Incident was successfully updated."})
	http.Redirect(w, r, fmt.Sprintf("/incidents/%d", incident.ID), http.StatusFound)
}

func (h *IncidentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r, h.logger)
	id, ok := incidentIDFromRequest(r)
	if !ok {
		h.fail(w, "delete")
		h.notFound(w, r)
		return
	}

	if err := h.incidents.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete")
		if errors.Is(err, sql.ErrNoRows) {
			h.notFound(w, r)
			return
		}
		logger.Error().Err(err).Int64("incident_id", id).Msg("failed to delete incident")
		http.Error(w, "Failed to delete incident", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("incident_id", id).Msg("incident deleted")
	h.succeed(w, "delete")
	session.SetFlash(w, session.Flash{Notice: "Incident was successfully deleted."})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *IncidentHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r, h.logger)
	id, ok := incidentIDFromRequest(r)
	if !ok {
		h.fail(w, "deactivate")
		h.notFound(w, r)
		return
	}

	wasActive, err := h.incidents.Deactivate(r.Context(), id)
	if err != nil {
		h.fail(w, "deactivate")
		if errors.Is(err, sql.ErrNoRows) {
			h.notFound(w, r)
			return
		}
		logger.Error().Err(err).Int64("incident_id", id).Msg("failed to deactivate incident")
		http.Error(w, "Failed to deactivate incident", http.StatusInternalServerError)
		return
	}

	if wasActive {
		if incident, err := h.incidents.Get(r.Context(), id); err == nil {
			if err := h.notifier.IncidentResolved(r.Context(), incident); err != nil {
				logger.Warn().Err(err).Int64("incident_id", id).Msg("failed to enqueue incident notice")
			}
		}
	}

	h.succeed(w, "deactivate")
	session.SetFlash(w, session.Flash{Notice: "Incident was marked as resolved."})
	http.Redirect(w, r, fmt.Sprintf("/incidents/%d", id), http.StatusFound)
}

func (h *IncidentHandler) Show(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.load(w, r)
	if !ok {
		return
	}
	if !incident.VisibleTo(authz.SignedIn(r)) {
		h.notFound(w, r)
		return
	}
	h.render.Render(w, r, http.StatusOK, "incident_show", Page{Title: incident.Name, Incident: incident})
}

// load fetches the incident named by the route, redirecting with a warning
// when it does not exist.
func (h *IncidentHandler) load(w http.ResponseWriter, r *http.Request) (models.Incident, bool) {
	id, ok := incidentIDFromRequest(r)
	if !ok {
		h.notFound(w, r)
		return models.Incident{}, false
	}
	incident, err := h.incidents.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger := loggerFromRequest(r, h.logger)
			logger.Error().Err(err).Int64("incident_id", id).Msg("failed to load incident")
			http.Error(w, "Failed to load incident", http.StatusInternalServerError)
			return models.Incident{}, false
		}
		h.notFound(w, r)
		return models.Incident{}, false
	}
	return incident, true
}

func (h *IncidentHandler) notFound(w http.ResponseWriter, r *http.Request) {
	session.SetFlash(w, session.Flash{Warning: incidentNotFoundMessage})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *IncidentHandler) succeed(w http.ResponseWriter, operation string) {
	setOutcome(w, true)
	telemetry.IncidentMutationsTotal.WithLabelValues(operation, outcomeSuccess).Inc()
}

func (h *IncidentHandler) fail(w http.ResponseWriter, operation string) {
	setOutcome(w, false)
	telemetry.IncidentMutationsTotal.WithLabelValues(operation, outcomeFailed).Inc()
}
