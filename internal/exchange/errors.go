package exchange

import "errors"

var (
	// ErrOrderNotFound is returned when a referenced order id does not exist
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrderState is returned when an operation's status precondition is violated
	ErrInvalidOrderState = errors.New("invalid order state")
	// ErrPriceConstraint is returned by a directed match whose buy price is below the sell price
	ErrPriceConstraint = errors.New("buy order price must be greater than or equal to sell order price")
	// ErrConcurrentModification means the rows changed between the scan and the settlement
	// transaction so that nothing is left to fill. Matchers treat it as a skip.
	ErrConcurrentModification = errors.New("order modified concurrently")
	// ErrPersistence wraps failures of the underlying store
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidOrder is returned for malformed order input
	ErrInvalidOrder = errors.New("invalid order")
)
