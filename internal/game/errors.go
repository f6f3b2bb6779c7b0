package game

import (
	"errors"
	"fmt"
)

// Protocol errors. Every instruction is a total function: callers always get
// one of these back instead of a silent no-op.
var (
	ErrInvalidStatus      = errors.New("invalid room status")
	ErrUnauthorized       = errors.New("caller is not permitted for this action")
	ErrCommitmentMismatch = errors.New("reveal does not match stored commitment")
	ErrAlreadyResolved    = errors.New("game is already resolved")
	ErrAlreadyJoined      = errors.New("player already joined this room")
	ErrAlreadyCommitted   = errors.New("player has already committed")
	ErrAlreadyRevealed    = errors.New("player has already revealed")
	ErrInsufficientFunds  = errors.New("deposit below required amount")
	ErrTimeoutNotReached  = errors.New("deadline has not passed yet")
	ErrInvalidCommitment  = errors.New("commitment must not be all zeroes")
	ErrWeakSecret         = errors.New("secret value is too weak")
	ErrNotReadyToResolve  = errors.New("both reveals required for resolution")
	ErrBothRevealed       = errors.New("both reveals present, use manual resolve")
	ErrBetTooLow          = errors.New("bet amount is below the minimum")
	ErrBetTooHigh         = errors.New("bet amount is above the maximum")
	ErrSelfJoin           = errors.New("cannot play against yourself")
	ErrGameNotFound       = errors.New("game room not found")
	ErrGameExists         = errors.New("game id already used by this creator")
	ErrProgramPaused      = errors.New("game creation is paused")
)

// InvalidStatusError reports the phase an instruction needed versus the phase
// the room was actually in. Unwraps to ErrInvalidStatus.
type InvalidStatusError struct {
	Current  Status
	Required Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid room status %s, requires %s", e.Current, e.Required)
}

func (e *InvalidStatusError) Unwrap() error { return ErrInvalidStatus }

func invalidStatus(current, required Status) error {
	return &InvalidStatusError{Current: current, Required: required}
}
