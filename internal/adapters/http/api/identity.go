package api

import (
	"net/http"
	"strings"

	"github.com/okian/playrank/internal/domain/model"
)

// Trusted identity headers set by the upstream authentication layer.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	roleAdmin = "admin"
)

// Caller is the identity attached to a request.
type Caller struct {
	UserID string
	Admin  bool
}

// callerFrom reads the caller from the trusted headers. ok is false when no
// user id is present.
func callerFrom(r *http.Request) (Caller, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return Caller{}, false
	}
	role := strings.TrimSpace(r.Header.Get(HeaderUserRole))
	return Caller{UserID: id, Admin: strings.EqualFold(role, roleAdmin)}, true
}

// requireUser returns the caller or ErrUnauthenticated.
func requireUser(r *http.Request, op string) (Caller, error) {
	c, ok := callerFrom(r)
	if !ok {
		return Caller{}, NewKind(op, model.ErrUnauthenticated)
	}
	return c, nil
}

// requireAdmin returns the caller if it carries the admin role.
func requireAdmin(r *http.Request, op string) (Caller, error) {
	c, err := requireUser(r, op)
	if err != nil {
		return Caller{}, err
	}
	if !c.Admin {
		return Caller{}, NewKind(op, model.ErrForbidden)
	}
	return c, nil
}

// requireSelfOrAdmin allows the caller to act on userID only if it is their
// own id or they are an admin.
func requireSelfOrAdmin(r *http.Request, op, userID string) (Caller, error) {
	c, err := requireUser(r, op)
	if err != nil {
		return Caller{}, err
	}
	if c.UserID != userID && !c.Admin {
		return Caller{}, NewKind(op, model.ErrForbidden)
	}
	return c, nil
}
