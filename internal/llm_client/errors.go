package llm_client

import "errors"

var (
	ErrNotInitialized = errors.New("llm client not initialized")
	// ErrNoService means no backend can be reached; the run cannot go on.
	ErrNoService = errors.New("no model service available")
	// ErrQueryFailed wraps a single failed query; callers may retry.
	ErrQueryFailed = errors.New("model query failed")
	ErrEmptyReply  = errors.New("empty response")
)
