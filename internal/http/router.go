// Package http arma la superficie HTTP del servicio: router, métricas y
// servidor.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	loginctrl "github.com/jxmono/login-providers/internal/http/controllers/login"
	"github.com/jxmono/login-providers/internal/http/middlewares"
	loginsvc "github.com/jxmono/login-providers/internal/http/services/login"
)

// RouterDeps contiene las dependencias del router principal.
type RouterDeps struct {
	Login       loginsvc.Service
	SecretsFile string
	Role        string
	Cookie      loginctrl.CookieConfig

	// Metrics es el handler de /metrics; nil lo deshabilita.
	Metrics http.Handler
	// Ready verifica las dependencias (DB, sesiones) para /healthz;
	// nil responde siempre ok.
	Ready func(ctx context.Context) error
}

// NewRouter registra todas las rutas del servicio.
func NewRouter(deps RouterDeps) http.Handler {
	redirect := loginctrl.NewRedirectController(deps.Login, deps.SecretsFile, deps.Cookie)
	var observe func(provider string, success bool)
	if deps.Metrics != nil {
		observe = ObserveLoginAttempt
	}
	login := loginctrl.NewLoginController(deps.Login, deps.SecretsFile, deps.Role, deps.Cookie, observe)
	logout := loginctrl.NewLogoutController(deps.Login, deps.Cookie)
	userinfo := loginctrl.NewUserInfoController(deps.Login)

	r := chi.NewRouter()
	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithRecover())
	r.Use(middlewares.WithLogging())
	if deps.Metrics != nil {
		r.Use(WithMetrics)
	}

	r.Post("/login/redirect", redirect.Redirect)
	r.Post("/login", login.Login)
	r.Post("/logout", logout.Logout)
	r.Get("/userinfo", userinfo.UserInfo)

	r.Get("/healthz", healthHandler(deps.Ready))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

func healthHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
