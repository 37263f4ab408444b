package transcript

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for transcript operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDuplicateMessage indicates a message with the same message id was
	// already appended. Can occur if a terminal job write is retried.
	ErrDuplicateMessage = errors.New("message already exists")

	// ErrJobNotFound indicates the requested job record does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrConversationNotFound indicates the conversation has no messages.
	ErrConversationNotFound = errors.New("conversation not found")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel error if it matches a known query error pattern.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "already contains") ||
			strings.Contains(queryErr.Message, "already exists") {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, queryErr.Message)
		}
	}

	return err
}
