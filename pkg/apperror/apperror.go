package apperror

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable part of an error sent back to clients.
type Kind string

const (
	KindInternal               Kind = "internal"
	KindInvalidInput           Kind = "invalid_input"
	KindNotFound               Kind = "not_found"
	KindUnauthenticated        Kind = "unauthenticated"
	KindBanned                 Kind = "banned"
	KindAlreadyOnTeam          Kind = "already_on_team"
	KindTeamFull               Kind = "team_full"
	KindTeamNotFound           Kind = "team_not_found"
	KindNotLeader              Kind = "not_leader"
	KindNotOnTeam              Kind = "not_on_team"
	KindInviteNotFound         Kind = "invite_not_found"
	KindInviteNotForYou        Kind = "invite_not_for_you"
	KindInviteExpired          Kind = "invite_expired"
	KindInviteConsumed         Kind = "invite_consumed"
	KindRecipientOffline       Kind = "recipient_offline"
	KindMessageTooLong         Kind = "message_too_long"
	KindInvalidChannelSelector Kind = "invalid_channel_selector"
	KindDeliveryFailed         Kind = "delivery_failed"
	KindUnknownEvent           Kind = "unknown_event"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind so wrapped copies of a sentinel compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithCause returns a copy of the sentinel err carrying cause. The copy keeps
// the sentinel's kind and public message.
func WithCause(err error, cause error) error {
	return Wrap(KindOf(err), PublicMessage(err), cause)
}

// Detailf returns a copy of the sentinel err with detail appended to its
// public message.
func Detailf(err error, format string, args ...any) error {
	return New(KindOf(err), PublicMessage(err)+": "+fmt.Sprintf(format, args...))
}

func InvalidInput(msg string) error {
	return New(KindInvalidInput, msg)
}

func NotFound(msg string) error {
	return New(KindNotFound, msg)
}

func Unauthenticated(msg string) error {
	return New(KindUnauthenticated, msg)
}

// KindOf reports the Kind of err, or KindInternal for errors that did not
// originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsFatal reports whether err must terminate the connection it happened on.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindUnauthenticated, KindBanned:
		return true
	}
	return false
}

// IsDomain reports whether err is a client-facing domain error as opposed to
// an infrastructure failure.
func IsDomain(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind != KindInternal
}

// PublicMessage returns the text safe to show a client. Internal causes are
// never leaked.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
