package domain

import "errors"

// Pipeline errors. Callers classify with errors.Is; infrastructure wraps
// these with fmt.Errorf("...: %w", ...) to add detail.
var (
	// ErrConfig indicates invalid component setup. Fatal, detected
	// before any processing starts.
	ErrConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates a vector whose length differs from
	// the index dimension. Fatal for the offending record only.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingService indicates the embedding service failed after
	// retry exhaustion.
	ErrEmbeddingService = errors.New("embedding service failure")

	// ErrGenerationService indicates the language-model service failed
	// after retry exhaustion.
	ErrGenerationService = errors.New("generation service failure")

	// ErrTimeout indicates an external call exceeded its deadline after
	// retry exhaustion. Kept distinct from the service errors so callers
	// can tell a slow service from a broken one.
	ErrTimeout = errors.New("external call timed out")

	// ErrSessionExpired indicates a query against a session past its
	// idle timeout while the manager runs with the "error" policy.
	// Recoverable: the caller starts a new session.
	ErrSessionExpired = errors.New("session expired")
)
