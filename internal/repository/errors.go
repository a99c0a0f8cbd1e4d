package repository

import "errors"

// This file defines custom errors specific to the repository layer.
// This allows the repository to communicate outcomes in a database-agnostic way.

var (
	// ErrNotFound is returned when a query for a single entity finds no rows.
	// The service layer should check for this specific error and translate it
	// into a domain-level error (like `app_errors.ErrNotFound`), decoupling
	// the business logic from the data access implementation.
	ErrNotFound = errors.New("repository: not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint, e.g. reusing a conversation id or a (conversation,
	// sequence) pair. It abstracts the driver's constraint error.
	ErrDuplicate = errors.New("repository: duplicate key")
)
