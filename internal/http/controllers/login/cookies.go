package login

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName transports the session id between requests.
const SessionCookieName = "sid"

// CookieConfig describes how the session cookie is emitted.
type CookieConfig struct {
	Domain   string
	SameSite string
	Secure   bool
	TTL      time.Duration
}

func parseSameSite(s string) http.SameSite {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// sessionCookie builds the cookie carrying the session id.
func (c CookieConfig) sessionCookie(sid string) *http.Cookie {
	ck := &http.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: parseSameSite(c.SameSite),
	}
	if strings.TrimSpace(c.Domain) != "" {
		ck.Domain = c.Domain
	}
	if c.TTL > 0 {
		ck.Expires = time.Now().Add(c.TTL).UTC()
		ck.MaxAge = int(c.TTL.Seconds())
	}
	return ck
}

// deletionCookie expires the session cookie immediately.
func (c CookieConfig) deletionCookie() *http.Cookie {
	ck := &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: parseSameSite(c.SameSite),
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
	}
	if strings.TrimSpace(c.Domain) != "" {
		ck.Domain = c.Domain
	}
	return ck
}

// sessionID reads the session id from the request cookie, "" when absent.
func sessionID(r *http.Request) string {
	ck, err := r.Cookie(SessionCookieName)
	if err != nil || ck == nil {
		return ""
	}
	return ck.Value
}
