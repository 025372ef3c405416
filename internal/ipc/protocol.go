// SPDX-License-Identifier: Apache-2.0

// Package ipc carries the cross-window coordination protocol: the session
// owner serves HTTP over a unix domain socket, sibling windows consume it
// through the client. State flows one way, owner to replica; replicas never
// hold mutable session state.
package ipc

import (
	"github.com/termhub/connvault/internal/syncer"
	"github.com/termhub/connvault/models"
)

// unlockRequest is the body of POST /v1/unlock.
type unlockRequest struct {
	Password string `json:"password"`
}

// passwordResponse is the body of GET /v1/session/password.
type passwordResponse struct {
	Password string `json:"password"`
}

// syncRequest is the body of POST /v1/sync. Force is "upload", "download",
// or empty.
type syncRequest struct {
	Trigger models.SyncTrigger `json:"trigger,omitempty"`
	Force   string             `json:"force,omitempty"`
}

const (
	forceUpload   = "upload"
	forceDownload = "download"
)

func (r syncRequest) options() syncer.Options {
	opts := syncer.Options{Trigger: r.Trigger}
	switch r.Force {
	case forceUpload:
		opts.Force = syncer.ForceUpload
	case forceDownload:
		opts.Force = syncer.ForceDownload
	}
	return opts
}

// connectRequest is the body of POST /v1/providers/{id}/connect.
type connectRequest struct {
	Credentials models.ProviderCredentials `json:"credentials"`
}

// eventResponse is the body of GET /v1/events. Seq increases on every
// session change; clients pass it back as ?since= to long-poll.
type eventResponse struct {
	Seq   int64                  `json:"seq"`
	State models.SessionSnapshot `json:"state"`
}

// errorResponse is the body of any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
