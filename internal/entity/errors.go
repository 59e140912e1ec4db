package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrLeadNotFound    = fmt.Errorf("lead %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)

	ErrValidation        = errors.New("validation error")
	ErrChannel           = errors.New("channel error")
	ErrStorage           = errors.New("storage error")
	ErrQueueUnavailable  = errors.New("queue unavailable")
	ErrInvalidTransition = errors.New("invalid lead status transition")
)

// TransitionError is returned when a lead is asked to move backwards or sideways.
type TransitionError struct {
	LeadID string
	From   LeadStatus
	To     LeadStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lead %s: cannot move from %q to %q", e.LeadID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// StorageError wraps a persistence failure. errors.Is(err, ErrStorage) holds
// for it and the driver error stays reachable through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
