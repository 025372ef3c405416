package ipc

import "errors"

var (
	// ErrOwnerRunning is returned by Listen when another process already
	// serves the socket. The caller should start as a replica window.
	ErrOwnerRunning = errors.New("session owner already running")

	// ErrNoOwner is returned by the client when no owner answers on the
	// socket.
	ErrNoOwner = errors.New("no session owner reachable")
)
