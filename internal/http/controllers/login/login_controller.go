package login

import (
	"encoding/json"
	"net/http"

	httperrors "github.com/jxmono/login-providers/internal/http/errors"
	svc "github.com/jxmono/login-providers/internal/http/services/login"
	"github.com/jxmono/login-providers/internal/observability/logger"
)

// LoginController processes the provider callback.
type LoginController struct {
	service     svc.Service
	secretsFile string
	role        string
	cookie      CookieConfig
	observe     func(provider string, success bool) // optional metrics hook
}

// NewLoginController creates a new LoginController. role is the name every
// successful login resolves to; observe may be nil.
func NewLoginController(service svc.Service, secretsFile, role string, cookie CookieConfig, observe func(provider string, success bool)) *LoginController {
	return &LoginController{service: service, secretsFile: secretsFile, role: role, cookie: cookie, observe: observe}
}

type loginRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code,omitempty"`
	Verifier string `json:"oauth_verifier,omitempty"`
	State    string `json:"state,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

type loginResponse struct {
	LoggedIn bool `json:"loggedIn"`
}

// Login handles POST /login. On success the session cookie is (re)issued
// bound to the authenticated session.
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	result, err := c.service.Login(ctx, svc.LoginRequest{
		Provider:    req.Provider,
		SecretsFile: c.secretsFile,
		SessionID:   sessionID(r),
		Locale:      req.Locale,
		Role:        c.role,
		Code:        req.Code,
		Verifier:    req.Verifier,
		State:       req.State,
	})
	if c.observe != nil {
		c.observe(req.Provider, err == nil)
	}
	if err != nil {
		log.Warn("login failed", logger.Provider(req.Provider), logger.Err(err))
		// El servicio ya desmontó la sesión; el cliente también pierde la
		// cookie.
		http.SetCookie(w, c.cookie.deletionCookie())
		httperrors.WriteError(w, mapServiceError(err))
		return
	}

	http.SetCookie(w, c.cookie.sessionCookie(result.SessionID))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(loginResponse{LoggedIn: true})
}
