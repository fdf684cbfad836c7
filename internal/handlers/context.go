package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// OutcomeHeader carries the result of a mutating request.
const OutcomeHeader = "status"

const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
)

func setOutcome(w http.ResponseWriter, ok bool) {
	if ok {
		w.Header().Set(OutcomeHeader, outcomeSuccess)
		return
	}
	w.Header().Set(OutcomeHeader, outcomeFailed)
}

// loggerFromRequest returns the request-scoped logger installed by the
// logging middleware, or fallback when none is attached.
func loggerFromRequest(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	logger := zerolog.Ctx(r.Context())
	if logger.GetLevel() == zerolog.Disabled {
		return fallback
	}
	return *logger
}

// incidentIDFromRequest parses the {id} route variable. Anything other than
// a positive integer is reported as missing.
func incidentIDFromRequest(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
