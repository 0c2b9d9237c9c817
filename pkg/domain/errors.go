package domain

import (
	"errors"
	"fmt"
)

// Conflict enumerates recoverable state conflicts a caller can render as a
// specific message.
type Conflict string

// Known conflict reasons.
const (
	ConflictAlreadyJoined   Conflict = "already_joined"
	ConflictTeamUnavailable Conflict = "team_unavailable"
	ConflictTeamFull        Conflict = "team_full"
	ConflictRequestGone     Conflict = "request_gone"
	ConflictEventNameTaken  Conflict = "event_name_taken"
	ConflictTeamNameTaken   Conflict = "team_name_taken"
	ConflictThemeFull       Conflict = "theme_full"
	ConflictLeaderRemoval   Conflict = "leader_removal"
)

// ConflictError reports a state conflict. Two ConflictErrors match under
// errors.Is when their reasons are equal.
type ConflictError struct {
	Reason Conflict
	Detail string
}

func (e ConflictError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	return string(e.Reason)
}

// Is enables errors.Is() comparison on the conflict reason.
func (e ConflictError) Is(target error) bool {
	t, ok := target.(ConflictError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// NotFoundError is returned when a referenced row does not exist, for example
// because it was deleted concurrently between two calls.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// Is enables errors.Is() comparison on the entity type.
func (e NotFoundError) Is(target error) bool {
	t, ok := target.(NotFoundError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

// Conflict sentinels.
var (
	ErrAlreadyJoined   = ConflictError{Reason: ConflictAlreadyJoined}
	ErrTeamUnavailable = ConflictError{Reason: ConflictTeamUnavailable}
	ErrTeamFull        = ConflictError{Reason: ConflictTeamFull}
	ErrRequestGone     = ConflictError{Reason: ConflictRequestGone}
	ErrEventNameTaken  = ConflictError{Reason: ConflictEventNameTaken}
	ErrTeamNameTaken   = ConflictError{Reason: ConflictTeamNameTaken}
	ErrThemeFull       = ConflictError{Reason: ConflictThemeFull}
	ErrLeaderRemoval   = ConflictError{Reason: ConflictLeaderRemoval}
)

// Lookup-miss sentinels.
var (
	ErrEventNotFound  = NotFoundError{Entity: EntityEvent}
	ErrThemeNotFound  = NotFoundError{Entity: EntityTheme}
	ErrTeamNotFound   = NotFoundError{Entity: EntityTeam}
	ErrMemberNotFound = NotFoundError{Entity: EntityMember}
)

// IsConflict reports whether err carries a ConflictError and returns its reason.
func IsConflict(err error) (Conflict, bool) {
	var c ConflictError
	if errors.As(err, &c) {
		return c.Reason, true
	}
	return "", false
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
