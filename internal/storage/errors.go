package storage

import "errors"

var (
	ErrStoreUnreachable   = errors.New("vector store unreachable")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrRepositoryMismatch = errors.New("record belongs to another repository")
	ErrMissingRepository  = errors.New("repository url is required")
	ErrUnknownBackend     = errors.New("unknown vector store backend")
)
