package store

import "errors"

var (
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrEntryNotFound     = errors.New("queue entry not found")
	ErrStaffNotFound     = errors.New("staff not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaffBusy         = errors.New("staff already serving another entry")
	ErrTokenConflict     = errors.New("token already issued")
	ErrNoPendingEntry    = errors.New("no pending entry for customer")
)
