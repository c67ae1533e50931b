// Package account resolves a normalized provider identity into a durable
// local user record and folds in the latest provider login metadata.
package account

import (
	"time"

	"github.com/jxmono/login-providers/internal/provider"
)

// LoginRecord is the per-provider login metadata embedded inside a user
// record. A user holds at most one LoginRecord per provider; a new login
// through the same provider replaces the old record in place.
type LoginRecord struct {
	Provider   string                `json:"provider"`
	ExternalID string                `json:"id"`
	Username   string                `json:"username"`
	Email      string                `json:"email"`
	FullName   string                `json:"fullname"`
	Auth       provider.AuthMaterial `json:"auth"`
}

// LastLogin records when and through which provider the user last logged in.
type LastLogin struct {
	At       time.Time `json:"date"`
	Provider string    `json:"provider"`
}

// UserRecord is the durable user entity. Created on first login from any
// provider, mutated on every subsequent login, never deleted here.
type UserRecord struct {
	ID        string        `json:"_id"`
	Email     string        `json:"email"`
	LastLogin LastLogin     `json:"last_login"`
	Logins    []LoginRecord `json:"logins"`
	Projects  []string      `json:"projects"`
}

// loginRecordFrom projects an exchanged identity into its embedded form.
func loginRecordFrom(id *provider.Identity) LoginRecord {
	return LoginRecord{
		Provider:   id.Provider,
		ExternalID: id.ExternalID,
		Username:   id.Username,
		Email:      id.Email,
		FullName:   id.FullName,
		Auth:       id.Auth,
	}
}
