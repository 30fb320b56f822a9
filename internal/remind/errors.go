package remind

import "errors"

var (
	// ErrEmptyContent rejects a blank message body in the second creation
	// step. The pending token survives so the user can try again.
	ErrEmptyContent = errors.New("reminder content is empty")

	// ErrNoPending means the second creation step arrived with no live
	// pending token for that conversation (never started, already used,
	// or idle-expired).
	ErrNoPending = errors.New("no pending reminder for this conversation")

	// ErrNotFound marks a cancel index outside the just-fetched list.
	ErrNotFound = errors.New("no reminder at that position")

	// ErrNotAuthorized marks a cancel attempt by someone who is neither
	// the setter nor an administrator.
	ErrNotAuthorized = errors.New("not allowed to cancel this reminder")
)
