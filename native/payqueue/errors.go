package payqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueOperationFailed is the single error class raised when order
	// validation fails at enqueue or settlement pre-validation time. The whole
	// call aborts with no partial state.
	ErrQueueOperationFailed = errors.New("payqueue: queue operation failed")
	// ErrOrderNotFound indicates an unknown order id or a client mismatch.
	ErrOrderNotFound = errors.New("payqueue: order not found")
	// ErrInvalidTransition indicates an attempt to move an order out of a
	// terminal state.
	ErrInvalidTransition = errors.New("payqueue: invalid state transition")
	// ErrNothingToClaim indicates a claim against a zero unclaimable balance.
	ErrNothingToClaim = errors.New("payqueue: nothing to claim")
	// ErrReentrant indicates a re-entrant call into an in-flight settlement.
	ErrReentrant = errors.New("payqueue: reentrant queue execution")
)

func transitionError(id uint64, current, attempted OrderState) error {
	return fmt.Errorf("%w: order %d is %s, attempted %s", ErrInvalidTransition, id, current, attempted)
}
