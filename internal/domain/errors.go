package domain

import "errors"

var (
	// ErrSourceUnavailable marks a document store that cannot be reached or
	// enumerated, and an artifact that cannot be read or decoded.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInvalidArtifact marks a blank artifact location.
	ErrInvalidArtifact = errors.New("invalid artifact location")

	// ErrStore marks a relational transaction that was rolled back.
	ErrStore = errors.New("relational store failure")
)
