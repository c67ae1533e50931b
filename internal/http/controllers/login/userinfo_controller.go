package login

import (
	"encoding/json"
	"net/http"

	svc "github.com/jxmono/login-providers/internal/http/services/login"
)

// UserInfoController exposes the session payload of the caller.
type UserInfoController struct {
	service svc.Service
}

// NewUserInfoController creates a new UserInfoController.
func NewUserInfoController(service svc.Service) *UserInfoController {
	return &UserInfoController{service: service}
}

// UserInfo handles GET /userinfo. Always 200: an anonymous caller gets an
// empty object, never an error.
func (c *UserInfoController) UserInfo(w http.ResponseWriter, r *http.Request) {
	payload := c.service.UserInfo(r.Context(), sessionID(r))

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if payload == nil {
		_, _ = w.Write([]byte("{}\n"))
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
