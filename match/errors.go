package match

import "github.com/rotisserie/eris"

// ErrorKind classifies an error for the recovery policy: validation errors
// need a different action from the caller, state and concurrency errors are
// recoverable with a resync, not-found is fatal to the session.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindState
	KindConcurrency
	KindNotFound
)

var (
	// Validation errors. Retrying the same intent can never succeed.
	ErrCardNotInHand = eris.New("card not in hand")
	ErrIllegalMove   = eris.New("illegal move")
	ErrInvalidPass   = eris.New("pass must name exactly 3 distinct cards from your hand")
	ErrInvalidBid    = eris.New("invalid bid")

	// State errors. A resync and possibly a retry recovers these.
	ErrMatchNotActive = eris.New("match not active")
	ErrNotYourTurn    = eris.New("not your turn")
	ErrAlreadyPassed  = eris.New("already passed")
	ErrAlreadyBid     = eris.New("already bid")

	// Concurrency errors. Always recoverable: resync, then retry.
	ErrRevisionMismatch = eris.New("revision mismatch")

	// Not-found errors. Fatal to the current session.
	ErrMatchNotFound = eris.New("match not found")
)

// Kind returns the taxonomy bucket for err, unwrapping eris chains.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case eris.Is(err, ErrCardNotInHand),
		eris.Is(err, ErrIllegalMove),
		eris.Is(err, ErrInvalidPass),
		eris.Is(err, ErrInvalidBid):
		return KindValidation
	case eris.Is(err, ErrMatchNotActive),
		eris.Is(err, ErrNotYourTurn),
		eris.Is(err, ErrAlreadyPassed),
		eris.Is(err, ErrAlreadyBid):
		return KindState
	case eris.Is(err, ErrRevisionMismatch):
		return KindConcurrency
	case eris.Is(err, ErrMatchNotFound):
		return KindNotFound
	}
	return KindUnknown
}

// Recoverable reports whether a resync-then-retry cycle can clear the error.
func Recoverable(err error) bool {
	k := Kind(err)
	return k == KindState || k == KindConcurrency
}
