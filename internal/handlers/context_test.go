package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func newRequestWithAuth(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestIncidentIDFromRequest(t *testing.T) {
	cases := map[string]struct {
		id int64
		ok bool
	}{
		"42":  {42, true},
		"0":   {0, false},
		"-3":  {0, false},
		"abc": {0, false},
		"":    {0, false},
	}
	for raw, tc := range cases {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": raw})
		id, ok := incidentIDFromRequest(req)
		assert.Equal(t, tc.ok, ok, raw)
		assert.Equal(t, tc.id, id, raw)
	}
}

func TestRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", remoteIP(req))

	req.RemoteAddr = "10.0.0.8"
	assert.Equal(t, "10.0.0.8", remoteIP(req))
}

func TestSetOutcome(t *testing.T) {
	rec := httptest.NewRecorder()
	setOutcome(rec, true)
	assert.Equal(t, "success", rec.Header().Get(OutcomeHeader))
	setOutcome(rec, false)
	assert.Equal(t, "failed", rec.Header().Get(OutcomeHeader))
}
