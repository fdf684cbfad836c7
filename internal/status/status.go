// Package status decides the public up/down state from incident records.
package status

import (
	"strings"

	"github.com/statusify/statusify/internal/models"
)

type State string

const (
	Up   State = "up"
	Down State = "down"
)

// Summary is the aggregated view served by the badge and the JSON API.
type Summary struct {
	State           State `json:"status"`
	ActiveIncidents int   `json:"active_incidents"`
}

// Evaluate returns Down if any incident is active and Up otherwise.
// The public flag only controls display and does not affect the result.
func Evaluate(incidents []models.Incident) Summary {
	summary := Summary{State: Up}
	for _, incident := range incidents {
		if incident.Active {
			summary.ActiveIncidents++
		}
	}
	if summary.ActiveIncidents > 0 {
		summary.State = Down
	}
	return summary
}

// IsUp reports whether no incident is active.
func IsUp(incidents []models.Incident) bool {
	return Evaluate(incidents).State == Up
}

// BadgeURL returns the badge image location for state relative to appURL.
func BadgeURL(appURL string, state State) string {
	return strings.TrimRight(appURL, "/") + "/" + string(state) + ".svg"
}
