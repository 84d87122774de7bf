package domain

import "errors"

// Sentinel errors shared across use cases.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStoreUnavailable indicates the vector store could not be reached.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrLLMUnavailable indicates the text-generation service failed.
	ErrLLMUnavailable = errors.New("llm service unavailable")
	// ErrEmptyBatch indicates an indexing request with no documents.
	ErrEmptyBatch = errors.New("empty document batch")
)
