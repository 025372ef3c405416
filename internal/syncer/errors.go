package syncer

import "errors"

var (
	// ErrSyncInProgress is returned when a sync is requested while another
	// one is in flight. Requests are rejected, never queued.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoProviderConnected is returned when no backend is connected.
	ErrNoProviderConnected = errors.New("no provider connected")

	// ErrParse is returned when a downloaded payload decrypts but fails
	// structural validation. The local store is left untouched.
	ErrParse = errors.New("malformed remote payload")
)
