package domain

import "errors"

// Classified error kinds. Wrap with fmt.Errorf("%w: ...") and test
// with errors.Is.
var (
	// ErrConfiguration covers missing credentials, invalid scope
	// arguments, and unresolvable course/store mappings. Fatal before
	// any network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrParse marks malformed transcript content. Fatal for that
	// transcript only.
	ErrParse = errors.New("parse error")

	// ErrUpload marks a remote store rejection or a terminally failed
	// upload operation after retries are exhausted.
	ErrUpload = errors.New("upload error")

	// ErrRegistryConflict means another writer held the registry lock
	// for the whole acquisition window.
	ErrRegistryConflict = errors.New("registry conflict")

	// ErrMatching means the embedding dependency was unavailable or
	// unusable while matching an answer. Never fatal to a query.
	ErrMatching = errors.New("matching error")

	// ErrNotFound is returned by registry lookups for unknown keys.
	ErrNotFound = errors.New("not found")
)
