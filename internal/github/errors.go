package github

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRepositoryURL = errors.New("invalid repository url")
	ErrRepositoryNotFound   = errors.New("repository not found")
	ErrTreeFetchFailed      = errors.New("tree fetch failed")
	ErrBlobFetchFailed      = errors.New("blob fetch failed")
)

// BlobFetchError reports the file whose download aborted an ingestion.
type BlobFetchError struct {
	Path       string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *BlobFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %s (status %d): %v", ErrBlobFetchFailed, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrBlobFetchFailed, e.Path, e.Err)
}

func (e *BlobFetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrBlobFetchFailed) hold for every BlobFetchError.
func (e *BlobFetchError) Is(target error) bool { return target == ErrBlobFetchFailed }
