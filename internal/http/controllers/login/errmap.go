package login

import (
	"errors"

	"github.com/jxmono/login-providers/internal/account"
	httperrors "github.com/jxmono/login-providers/internal/http/errors"
	svc "github.com/jxmono/login-providers/internal/http/services/login"
	"github.com/jxmono/login-providers/internal/provider"
	"github.com/jxmono/login-providers/internal/role"
)

// mapServiceError traduce los errores centinela del servicio a respuestas
// AppError. El orden importa: los casos más específicos van primero.
func mapServiceError(err error) *httperrors.AppError {
	switch {
	case errors.Is(err, svc.ErrMissingProvider):
		return httperrors.ErrBadRequest.WithDetail("provider required")
	case errors.Is(err, svc.ErrMissingRole):
		return httperrors.ErrBadRequest.WithDetail("role required")
	case errors.Is(err, svc.ErrNotLoggedIn):
		return httperrors.ErrNotLoggedIn
	case errors.Is(err, svc.ErrStateExpired):
		return httperrors.ErrBadRequest.WithDetail("state expired")
	case errors.Is(err, svc.ErrStateInvalid), errors.Is(err, svc.ErrStateAudience):
		return httperrors.ErrBadRequest.WithDetail("invalid state")
	case errors.Is(err, provider.ErrInvalidCallback):
		return httperrors.ErrBadRequest.WithDetail("invalid callback data")
	case errors.Is(err, provider.ErrInvalidConfiguration):
		return httperrors.ErrProviderUnknown.WithCause(err)
	case errors.Is(err, provider.ErrUpstreamTimeout):
		return httperrors.ErrProviderTimeout.WithCause(err)
	case errors.Is(err, provider.ErrUpstreamProvider):
		return httperrors.ErrProviderUpstream.WithCause(err)
	case errors.Is(err, provider.ErrInactiveAccount):
		return httperrors.ErrAccountInactive.WithCause(err)
	case errors.Is(err, account.ErrInvalidIdentity):
		return httperrors.ErrBadRequest.WithDetail("incomplete identity").WithCause(err)
	case errors.Is(err, role.ErrRoleNotFound):
		return httperrors.ErrRoleNotFound.WithCause(err)
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}
