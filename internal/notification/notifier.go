package notification

import (
	"strings"

	"github.com/rs/zerolog"
)

func sanitizeRecipients(recipients []string) []string {
	var cleaned []string
	for _, recipient := range recipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func logDeliveryError(logger zerolog.Logger, err error, template, recipient string) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("template", template).
		Str("recipient", recipient).
		Msg("failed to deliver email")
}
