package embedding

import (
	"errors"
	"fmt"
)

var (
	ErrMissingConfig        = errors.New("embedding client not configured")
	ErrEmbeddingBatchFailed = errors.New("embedding batch failed")
	ErrUnexpectedResponse   = errors.New("unexpected embedding response")
)

// BatchError identifies the batch that failed an Embed call.
type BatchError struct {
	BatchIndex int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("could not generate embeddings for batch %d: %v", e.BatchIndex+1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEmbeddingBatchFailed) hold for every BatchError.
func (e *BatchError) Is(target error) bool { return target == ErrEmbeddingBatchFailed }
