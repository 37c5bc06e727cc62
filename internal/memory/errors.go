package memory

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion is returned by Import for blobs written by an unknown format version.
var ErrUnsupportedVersion = errors.New("unsupported export version")

// StoreOverflowError is returned when a single entry alone exceeds the token budget.
// Pruning cannot make room for such an entry, so Put rejects it.
type StoreOverflowError struct {
	Key       string
	Tokens    int
	MaxTokens int
}

func (e *StoreOverflowError) Error() string {
	return fmt.Sprintf("context entry %q needs %d tokens, store budget is %d", e.Key, e.Tokens, e.MaxTokens)
}
