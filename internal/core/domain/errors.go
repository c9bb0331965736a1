package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates a required service (generation, embedding) is not available
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrEmptyBatch indicates an index operation received no chunks
	ErrEmptyBatch = errors.New("empty chunk batch")

	// ErrEmptyQuestion indicates the question is blank after trimming
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrIndexNotReady indicates no vector index has been built yet
	ErrIndexNotReady = errors.New("no documents indexed")

	// ErrDimensionMismatch indicates vectors of different sizes were combined
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexBusy indicates another instance holds the index write lock
	ErrIndexBusy = errors.New("index is being modified by another instance")

	// ErrCorruptArtifact indicates a persisted artifact failed to decode or verify
	ErrCorruptArtifact = errors.New("corrupt persisted artifact")
)
