package login

import (
	"net/http"

	httperrors "github.com/jxmono/login-providers/internal/http/errors"
	svc "github.com/jxmono/login-providers/internal/http/services/login"
	"github.com/jxmono/login-providers/internal/observability/logger"
)

// LogoutController ends the authenticated session.
type LogoutController struct {
	service svc.Service
	cookie  CookieConfig
}

// NewLogoutController creates a new LogoutController.
func NewLogoutController(service svc.Service, cookie CookieConfig) *LogoutController {
	return &LogoutController{service: service, cookie: cookie}
}

// Logout handles POST /logout. Requires an authenticated session; the
// cookie is cleared in every outcome.
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutController.Logout"))

	err := c.service.Logout(ctx, sessionID(r))
	http.SetCookie(w, c.cookie.deletionCookie())
	if err != nil {
		log.Warn("logout failed", logger.Err(err))
		httperrors.WriteError(w, mapServiceError(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}
