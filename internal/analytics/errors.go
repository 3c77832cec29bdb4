// Package analytics maintains the denormalized ad metrics: ingest with
// incremental aggregation, full resync from the event log, the read API
// over the aggregates, provisioning and the simulation control record.
package analytics

import "errors"

var (
	// ErrNotFound means a referenced customer, brand or ad does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput means the request failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict means a unique slug is already taken.
	ErrConflict = errors.New("conflict")
)
