package provider

import "errors"

var (
	// ErrAuth indicates the backend rejected the supplied credentials.
	ErrAuth = errors.New("provider authentication failed")
	// ErrNetwork indicates a transport-level failure talking to the
	// backend. Never retried by the sync engine; the next triggered sync
	// is the retry path.
	ErrNetwork = errors.New("provider network error")
	// ErrNotFound indicates the configured remote container (bucket, gist,
	// folder) does not exist.
	ErrNotFound = errors.New("provider resource not found")
	// ErrVersionConflict indicates a conditional write lost the race: the
	// remote version moved since it was observed.
	ErrVersionConflict = errors.New("version conflict")
	// ErrNotConnected indicates an operation on a backend that has not
	// been connected.
	ErrNotConnected = errors.New("provider not connected")
	// ErrUnknownProvider indicates an id the registry has no adapter for.
	ErrUnknownProvider = errors.New("unknown provider")
)
