package auth

import (
	"errors"

	"github.com/NicolasHaas/gorelay/pkg/model"
)

// Authentication failures.
var (
	ErrInvalidCredentials   = errors.New("auth: invalid credentials")
	ErrAccountBanned        = errors.New("auth: account banned")
	ErrNameAlreadyConnected = errors.New("auth: name already connected")
)

// Registration failures. Length violations are reported as *model.ConstraintError.
var (
	ErrLoginTaken       = errors.New("auth: login taken")
	ErrDisplayNameTaken = errors.New("auth: display name taken")
)

// Replies sent to the requesting client.
const (
	MsgInvalidCredentials   = "Invalid login/password"
	MsgAccountBanned        = "This account has been banned by an administrator"
	MsgNameAlreadyConnected = "This account is already connected"
	MsgLoginTaken           = "This login is already taken"
	MsgDisplayNameTaken     = "Display name is already taken"
)

// Message maps an authentication or registration error to the line shown to
// the client. Errors outside the taxonomy (backend failures) read as invalid
// credentials.
func Message(err error) string {
	var ce *model.ConstraintError
	switch {
	case errors.As(err, &ce):
		return "Registration failed: " + ce.Error()
	case errors.Is(err, ErrAccountBanned):
		return MsgAccountBanned
	case errors.Is(err, ErrNameAlreadyConnected):
		return MsgNameAlreadyConnected
	case errors.Is(err, ErrLoginTaken):
		return MsgLoginTaken
	case errors.Is(err, ErrDisplayNameTaken):
		return MsgDisplayNameTaken
	default:
		return MsgInvalidCredentials
	}
}

// Reason is a short label for metrics and logs.
func Reason(err error) string {
	var ce *model.ConstraintError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ce):
		return "constraint_" + ce.Field
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountBanned):
		return "banned"
	case errors.Is(err, ErrNameAlreadyConnected):
		return "already_connected"
	case errors.Is(err, ErrLoginTaken):
		return "login_taken"
	case errors.Is(err, ErrDisplayNameTaken):
		return "display_name_taken"
	default:
		return "backend"
	}
}
