// Package login contiene los controllers HTTP del flujo de login. Los
// controllers sólo traducen HTTP ↔ servicio; toda la lógica vive en
// internal/http/services/login.
package login

import (
	"encoding/json"
	"net/http"

	httperrors "github.com/jxmono/login-providers/internal/http/errors"
	svc "github.com/jxmono/login-providers/internal/http/services/login"
	"github.com/jxmono/login-providers/internal/observability/logger"
)

// RedirectController computes the provider authorize URL.
type RedirectController struct {
	service     svc.Service
	secretsFile string
	cookie      CookieConfig
}

// NewRedirectController creates a new RedirectController.
func NewRedirectController(service svc.Service, secretsFile string, cookie CookieConfig) *RedirectController {
	return &RedirectController{service: service, secretsFile: secretsFile, cookie: cookie}
}

type redirectRequest struct {
	Provider string `json:"provider"`
	Locale   string `json:"locale,omitempty"`
}

// Redirect handles POST /login/redirect. Responds with the authorize URL as
// plain text and sets the session cookie the callback will need.
func (c *RedirectController) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("RedirectController.Redirect"))

	var req redirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}
	if req.Provider == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("provider required"))
		return
	}

	result, err := c.service.Redirect(ctx, svc.RedirectRequest{
		Provider:    req.Provider,
		SecretsFile: c.secretsFile,
		SessionID:   sessionID(r),
		Locale:      req.Locale,
	})
	if err != nil {
		log.Warn("redirect failed", logger.Provider(req.Provider), logger.Err(err))
		httperrors.WriteError(w, mapServiceError(err))
		return
	}

	http.SetCookie(w, c.cookie.sessionCookie(result.SessionID))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(result.URL))
}
