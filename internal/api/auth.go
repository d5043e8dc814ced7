package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/curaflow/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Authenticator checks basic-auth credentials. With no admin credentials
// configured every request is treated as admin.
type Authenticator struct {
	creds config.Credentials
}

func NewAuthenticator(creds config.Credentials) *Authenticator {
	return &Authenticator{creds: creds}
}

// Enabled returns true if authentication is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.creds.Enabled()
}

// authenticate returns the caller's role, or "" for bad credentials.
func (a *Authenticator) authenticate(r *http.Request) Role {
	if !a.Enabled() {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	c := a.creds
	if secureCompare(user, c.AdminUser) && secureCompare(pass, c.AdminPass) {
		return RoleAdmin
	}
	if c.OperatorUser != "" && c.OperatorPass != "" &&
		secureCompare(user, c.OperatorUser) && secureCompare(pass, c.OperatorPass) {
		return RoleOperator
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="curaflow"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// RequireRole wraps a handler and requires one of the specified roles.
func (a *Authenticator) RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := a.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "forbidden")
	}
}

// RequireAnyRole wraps a handler requiring admin or operator role.
func (a *Authenticator) RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func (a *Authenticator) RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin)
}
