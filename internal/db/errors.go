package db

import "errors"

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create for an existing document ID.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrEventAlreadyProcessed is returned by MutateOnce for a replayed billing event.
	ErrEventAlreadyProcessed = errors.New("billing event already processed")
)
