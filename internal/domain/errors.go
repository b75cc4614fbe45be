package domain

import "errors"

var (
	// ErrEmbedding is returned when the input image is malformed (wrong
	// channel count, zero-sized). Fatal for that query, no retry.
	ErrEmbedding = errors.New("cannot embed malformed image")

	// ErrIndexUnavailable is returned when the reference index artifacts are
	// missing or corrupt. Triggers the OCR fallback path, not an abort.
	ErrIndexUnavailable = errors.New("reference index unavailable")

	// ErrNoMatch is returned when no visual candidate clears the acceptance
	// threshold.
	ErrNoMatch = errors.New("no confident visual match")

	// ErrResolution is returned when neither a collector number nor a name
	// is usable to query the card database.
	ErrResolution = errors.New("no usable text signal to resolve card")

	// ErrCardNotFound is returned when the card database has no candidate
	// for the query.
	ErrCardNotFound = errors.New("card not found in database")

	// ErrRetryableNetwork marks a rate-limit or server-error response that
	// the backoff schedule will retry. It stays in the error chain when
	// retries are exhausted, alongside ErrFatalNetwork.
	ErrRetryableNetwork = errors.New("retryable network failure")

	// ErrFatalNetwork is returned once retries are exhausted or the response
	// status is not retryable. The query is marked unresolved.
	ErrFatalNetwork = errors.New("fatal network failure")

	// ErrCacheIO marks a cache storage fault. Logged; the pipeline proceeds
	// as a cache miss rather than aborting.
	ErrCacheIO = errors.New("cache storage failure")

	// ErrCacheMiss is returned when a card is absent or stale in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidRequest is returned when request parameters are invalid.
	ErrInvalidRequest = errors.New("invalid request parameters")
)
