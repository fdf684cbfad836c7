package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/models"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/telemetry"
)

// ErrUnknownJob is returned by Deliver for payloads it cannot handle.
var ErrUnknownJob = errors.New("unknown job kind")

const mailerQueue = "mailers"

type Service interface {
	// Enqueue side: called from request handlers. Failures are logged by
	// the caller and never abort the request.
	IncidentOpened(ctx context.Context, incident models.Incident) error
	IncidentUpdated(ctx context.Context, incident models.Incident) error
	IncidentResolved(ctx context.Context, incident models.Incident) error
	SubscriberCreated(ctx context.Context, sub models.Subscriber) error

	// Deliver performs the work described by a delayed job payload.
	Deliver(ctx context.Context, payload models.JobPayload) error
}

type service struct {
	jobs        repository.JobRepository
	incidents   repository.IncidentRepository
	subscribers repository.SubscriberRepository
	mailer      Mailer
	appURL      string
	logger      zerolog.Logger
}

func NewService(
	jobs repository.JobRepository,
	incidents repository.IncidentRepository,
	subscribers repository.SubscriberRepository,
	mailer Mailer,
	appURL string,
	logger zerolog.Logger,
) Service {
	return &service{
		jobs:        jobs,
		incidents:   incidents,
		subscribers: subscribers,
		mailer:      mailer,
		appURL:      strings.TrimRight(appURL, "/"),
		logger:      logger.With().Str("component", "notification_service").Logger(),
	}
}

func (s *service) IncidentOpened(ctx context.Context, incident models.Incident) error {
	return s.enqueueNotice(ctx, incident, models.NoticeOpened)
}

func (s *service) IncidentUpdated(ctx context.Context, incident models.Incident) error {
	return s.enqueueNotice(ctx, incident, models.NoticeUpdated)
}

func (s *service) IncidentResolved(ctx context.Context, incident models.Incident) error {
	return s.enqueueNotice(ctx, incident, models.NoticeResolved)
}

func (s *service) enqueueNotice(ctx context.Context, incident models.Incident, notice models.NoticeType) error {
	if !incident.Public {
		return nil
	}
	job, err := s.jobs.Enqueue(ctx, models.JobPayload{
		Kind:       models.JobKindIncidentNotice,
		IncidentID: incident.ID,
		Notice:     notice,
	}, repository.EnqueueOptions{Queue: mailerQueue})
	if err != nil {
		return fmt.Errorf("enqueue incident notice: %w", err)
	}
	s.logger.Debug().
		Int64("job_id", job.ID).
		Int64("incident_id", incident.ID).
		Str("notice", string(notice)).
		Msg("incident notice enqueued")
	return nil
}

func (s *service) SubscriberCreated(ctx context.Context, sub models.Subscriber) error {
	if sub.Activated {
		return nil
	}
	_, err := s.jobs.Enqueue(ctx, models.JobPayload{
		Kind:         models.JobKindSubscriberActivation,
		SubscriberID: sub.ID,
	}, repository.EnqueueOptions{Queue: mailerQueue})
	if err != nil {
		return fmt.Errorf("enqueue subscriber activation: %w", err)
	}
	return nil
}

func (s *service) Deliver(ctx context.Context, payload models.JobPayload) error {
	switch payload.Kind {
	case models.JobKindIncidentNotice:
		return s.deliverNotice(ctx, payload)
	case models.JobKindSubscriberActivation:
		return s.deliverActivation(ctx, payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, payload.Kind)
	}
}

func (s *service) deliverNotice(ctx context.Context, payload models.JobPayload) error {
	incident, err := s.incidents.Get(ctx, payload.IncidentID)
	if err != nil {
		return fmt.Errorf("load incident %d: %w", payload.IncidentID, err)
	}
	if !incident.Public {
		return nil
	}

	subscribers, err := s.subscribers.ListActivated(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(subscribers) == 0 {
		return nil
	}

	msg := s.noticeMessage(incident, payload.Notice)
	template := "incident_" + string(payload.Notice)

	var failures int
	var lastErr error
	for _, sub := range subscribers {
		msg.To = []string{sub.Email}
		err := s.mailer.Send(ctx, msg)
		recordEmail(template, err)
		if err != nil {
			failures++
			lastErr = err
			logDeliveryError(s.logger, err, template, sub.Email)
		}
	}

	// Retrying after a partial failure would resend to everyone who already got it.
	if failures == len(subscribers) {
		return fmt.Errorf("deliver %s to %d subscribers: %w", template, failures, lastErr)
	}
	return nil
}

func (s *service) deliverActivation(ctx context.Context, payload models.JobPayload) error {
	sub, err := s.subscribers.GetByID(ctx, payload.SubscriberID)
	if err != nil {
		return fmt.Errorf("load subscriber %d: %w", payload.SubscriberID, err)
	}
	if sub.Activated || sub.ActivationKey == nil {
		return nil
	}

	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString("Someone (hopefully you) asked to receive status updates at this address.\n")
	body.WriteString("Confirm the subscription by opening the link below:\n\n")
	body.WriteString(fmt.Sprintf("%s/subscribers/%s/activate\n\n", s.appURL, *sub.ActivationKey))
	body.WriteString("If you did not request this, you can ignore this email.\n")

	err = s.mailer.Send(ctx, Message{
		To:      []string{sub.Email},
		Subject: "[Statusify] Confirm your subscription",
		Body:    body.String(),
	})
	recordEmail("subscriber_activation", err)
	return err
}

func (s *service) noticeMessage(incident models.Incident, notice models.NoticeType) Message {
	var verb string
	switch notice {
	case models.NoticeOpened:
		verb = "New incident"
	case models.NoticeResolved:
		verb = "Resolved"
	default:
		verb = "Update"
	}

	body := strings.Builder{}
	body.WriteString(fmt.Sprintf("%s: %s\n\n", verb, incident.Name))
	body.WriteString(fmt.Sprintf("Component: %s\n", incident.Component))
	if incident.Severity != "" {
		body.WriteString(fmt.Sprintf("Severity: %s\n", incident.Severity))
	}
	if evt, ok := incident.LatestEvent(); ok {
		if evt.Status != "" {
			body.WriteString(fmt.Sprintf("Status: %s\n", evt.Status))
		}
		if evt.Message != "" {
			body.WriteString("\n" + evt.Message + "\n")
		}
	}
	body.WriteString(fmt.Sprintf("\n%s/incidents/%d\n", s.appURL, incident.ID))

	return Message{
		Subject: fmt.Sprintf("[Statusify] %s: %s", verb, incident.Name),
		Body:    body.String(),
	}
}

func recordEmail(template string, err error) {
	result := "sent"
	if err != nil {
		result = "error"
	}
	telemetry.EmailsSentTotal.WithLabelValues(template, result).Inc()
}
