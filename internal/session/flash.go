package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookieName = "_statusify_flash"

// Flash holds one-shot messages keyed the way the pages display them.
type Flash struct {
	Notice  string `json:"notice,omitempty"`
	Alert   string `json:"alert,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func (f Flash) Empty() bool {
	return f.Notice == "" && f.Alert == "" && f.Warning == ""
}

// SetFlash stores f for the next request.
func SetFlash(w http.ResponseWriter, f Flash) {
	if f.Empty() {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash returns the pending flash on r and expires it.
func PopFlash(w http.ResponseWriter, r *http.Request) Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return Flash{}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return DecodeFlash(cookie.Value)
}

// DecodeFlash parses a flash cookie value. Malformed values yield an empty Flash.
func DecodeFlash(value string) Flash {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Flash{}
	}
	var f Flash
	if err := json.Unmarshal(data, &f); err != nil {
		return Flash{}
	}
	return f
}

// FlashFromResponse extracts the flash set on a recorded response.
func FlashFromResponse(resp *http.Response) Flash {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == flashCookieName && cookie.Value != "" {
			return DecodeFlash(cookie.Value)
		}
	}
	return Flash{}
}
