package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/notification"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/session"
)

const (
	subscribedMessage          = "Check your inbox to confirm the subscription."
	invalidSubscriberMessage   = "Please enter a valid email address."
	activatedMessage           = "Your subscription is confirmed."
	subscriptionNotFoundNotice = "Unable to find that subscription"
)

type SubscriberHandler struct {
	subscribers repository.SubscriberRepository
	notifier    notification.Service
	logger      zerolog.Logger
}

func NewSubscriberHandler(subscribers repository.SubscriberRepository, notifier notification.Service, logger zerolog.Logger) *SubscriberHandler {
	return &SubscriberHandler{subscribers: subscribers, notifier: notifier, logger: logger.With().Str("handler", "subscribers").Logger()}
}

// Subscribe registers an address for incident emails. Known addresses get
// the same response as new ones.
func (h *SubscriberHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r, h.logger)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	email, ok := parseEmail(r.PostForm.Get("subscriber[email]"))
	if !ok {
		setOutcome(w, false)
		session.SetFlash(w, session.Flash{Alert: invalidSubscriberMessage})
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	key, err := generateToken()
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate activation key")
		setOutcome(w, false)
		http.Error(w, "Failed to subscribe", http.StatusInternalServerError)
		return
	}

	sub, created, err := h.subscribers.Subscribe(r.Context(), email, key)
	if err != nil {
		logger.Error().Err(err).Msg("failed to store subscriber")
		setOutcome(w, false)
		http.Error(w, "Failed to subscribe", http.StatusInternalServerError)
		return
	}
	if created {
		if err := h.notifier.SubscriberCreated(r.Context(), sub); err != nil {
			logger.Warn().Err(err).Int64("subscriber_id", sub.ID).Msg("failed to enqueue activation email")
		}
	}

	setOutcome(w, true)
	session.SetFlash(w, session.Flash{Notice: subscribedMessage})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *SubscriberHandler) Activate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if _, err := h.subscribers.Activate(r.Context(), key); err != nil {
		setOutcome(w, false)
		if !errors.Is(err, sql.ErrNoRows) {
			logger := loggerFromRequest(r, h.logger)
			logger.Error().Err(err).Msg("failed to activate subscriber")
			http.Error(w, "Failed to activate subscription", http.StatusInternalServerError)
			return
		}
		session.SetFlash(w, session.Flash{Warning: subscriptionNotFoundNotice})
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	setOutcome(w, true)
	session.SetFlash(w, session.Flash{Notice: activatedMessage})
	http.Redirect(w, r, "/", http.StatusFound)
}

// parseEmail accepts a bare address and rejects display-name forms.
func parseEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Name != "" || addr.Address != raw {
		return "", false
	}
	return repository.NormalizeEmail(addr.Address), true
}
