// Package telemetry defines the auth audit events emitted by the service and interceptors.
package telemetry

import (
	"context"
	"time"
)

// Event types.
const (
	EventRegister     = "register"
	EventLogin        = "login"
	EventRefresh      = "refresh"
	EventLogout       = "logout"
	EventLogoutAll    = "logout_all"
	EventAccessDenied = "access_denied"
	EventSessionPurge = "session_purge"
)

// AuthEvent is one auth outcome. Kind carries the precise failure label (autherr.Kind) even
// when the caller only saw a normalized error.
type AuthEvent struct {
	Type          string
	UserID        string
	SessionID     string
	CorrelationID string
	Outcome       string // "success" or "failure"
	Kind          string
	Detail        string
	At            time.Time
}

// EventEmitter emits auth events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *AuthEvent) error
}

// Outcome returns "success" for a nil error and "failure" otherwise.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}
