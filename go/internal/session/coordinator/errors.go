package coordinator

import (
	"errors"
	"net/http"

	"github.com/mcdev12/brainstorm/go/internal/session/round"
	"github.com/mcdev12/brainstorm/go/internal/session/submission"
	"github.com/mcdev12/brainstorm/go/internal/store"
)

var (
	ErrInvalidRoundCount           = errors.New("round count must be between 2 and 10")
	ErrInvalidAction               = errors.New("unknown control action")
	ErrTeamAlreadyHasActiveSession = errors.New("team already has an active session")
	ErrInvalidSessionTransition    = errors.New("invalid session transition")
	ErrSessionNotRunning           = errors.New("session is not running")
	ErrRoundMismatch               = errors.New("round does not match the current round")
	ErrForbidden                   = errors.New("forbidden")
	ErrCoordinatorStopped          = errors.New("session coordinator stopped")

	ErrInvalidIdeaSet      = submission.ErrInvalidIdeaSet
	ErrDuplicateSubmission = submission.ErrDuplicateSubmission
	ErrNotFound            = store.ErrNotFound
)

// Kind classifies an error for the transport layers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStateConflict
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindStateConflict:
		return "STATE_CONFLICT"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus is the REST status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// KindOf maps err onto the error taxonomy. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidIdeaSet),
		errors.Is(err, ErrInvalidRoundCount),
		errors.Is(err, ErrInvalidAction):
		return KindValidation
	case errors.Is(err, ErrDuplicateSubmission),
		errors.Is(err, ErrTeamAlreadyHasActiveSession),
		errors.Is(err, ErrInvalidSessionTransition),
		errors.Is(err, ErrSessionNotRunning),
		errors.Is(err, ErrRoundMismatch),
		errors.Is(err, round.ErrRoundClosed),
		errors.Is(err, round.ErrInvalidTransition):
		return KindStateConflict
	case errors.Is(err, ErrForbidden),
		errors.Is(err, submission.ErrNotOnRoster):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
