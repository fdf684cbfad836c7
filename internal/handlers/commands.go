package handlers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/statusify/statusify/internal/repository"
)

var (
	errNameRequired      = errors.New("Name can't be blank")
	errComponentRequired = errors.New("Component can't be blank")
)

// ValidationErrors collects every failed rule of a command.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Messages() []string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return msgs
}

// CreateIncidentCommand is the typed form of a new-incident submission.
type CreateIncidentCommand struct {
	Name         string
	Component    string
	Severity     string
	Public       bool
	InitialEvent EventCommand
}

type EventCommand struct {
	Message string
	Status  string
}

func (e EventCommand) Empty() bool {
	return e.Message == "" && e.Status == ""
}

// ParseCreateIncident reads incident[...] fields. A missing public flag
// defaults to true.
func ParseCreateIncident(form url.Values) CreateIncidentCommand {
	cmd := CreateIncidentCommand{
		Name:      strings.TrimSpace(form.Get("incident[name]")),
		Component: strings.TrimSpace(form.Get("incident[component]")),
		Severity:  strings.TrimSpace(form.Get("incident[severity]")),
		Public:    true,
		InitialEvent: EventCommand{
			Message: strings.TrimSpace(form.Get("incident[events_attributes][0][message]")),
			Status:  strings.TrimSpace(form.Get("incident[events_attributes][0][status]")),
		},
	}
	if public, ok := formBool(form, "incident[public]"); ok {
		cmd.Public = public
	}
	return cmd
}

func (c CreateIncidentCommand) Validate() error {
	var errs ValidationErrors
	if c.Name == "" {
		errs = append(errs, errNameRequired)
	}
	if c.Component == "" {
		errs = append(errs, errComponentRequired)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c CreateIncidentCommand) Params(userID *int64) repository.CreateIncidentParams {
	return repository.CreateIncidentParams{
		Name:      c.Name,
		Component: c.Component,
		Severity:  c.Severity,
		Public:    c.Public,
		UserID:    userID,
		Event: repository.EventParams{
			Message: c.InitialEvent.Message,
			Status:  c.InitialEvent.Status,
		},
	}
}

// UpdateIncidentCommand holds only the fields present in the submission;
// absent fields are nil and keep their stored value.
type UpdateIncidentCommand struct {
	Name      *string
	Component *string
	Severity  *string
	Public    *bool
	Event     EventCommand
}

func ParseUpdateIncident(form url.Values) UpdateIncidentCommand {
	cmd := UpdateIncidentCommand{
		Name:      formString(form, "incident[name]"),
		Component: formString(form, "incident[component]"),
		Severity:  formString(form, "incident[severity]"),
		Event: EventCommand{
			Message: strings.TrimSpace(form.Get("incident[event][message]")),
			Status:  strings.TrimSpace(form.Get("incident[event][status]")),
		},
	}
	if public, ok := formBool(form, "incident[public]"); ok {
		cmd.Public = &public
	}
	return cmd
}

func (c UpdateIncidentCommand) Validate() error {
	var errs ValidationErrors
	if c.Name != nil && *c.Name == "" {
		errs = append(errs, errNameRequired)
	}
	if c.Component != nil && *c.Component == "" {
		errs = append(errs, errComponentRequired)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c UpdateIncidentCommand) Params() repository.UpdateIncidentParams {
	params := repository.UpdateIncidentParams{
		Name:      c.Name,
		Component: c.Component,
		Severity:  c.Severity,
		Public:    c.Public,
	}
	if !c.Event.Empty() {
		params.Event = &repository.EventParams{Message: c.Event.Message, Status: c.Event.Status}
	}
	return params
}

func formString(form url.Values, key string) *string {
	if _, ok := form[key]; !ok {
		return nil
	}
	v := strings.TrimSpace(form.Get(key))
	return &v
}

// formBool reads a checkbox. With the hidden-field pattern the last value wins.
func formBool(form url.Values, key string) (bool, bool) {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(values[len(values)-1])) {
	case "1", "true", "on", "yes", "t":
		return true, true
	default:
		return false, true
	}
}
