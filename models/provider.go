// SPDX-License-Identifier: Apache-2.0

package models

// ProviderID names a storage backend.
type ProviderID string

const (
	ProviderHTTPBlob ProviderID = "httpblob"
	ProviderGist     ProviderID = "gist"
	ProviderSyncDir  ProviderID = "syncdir"
)

// ProviderStatus is the connection lifecycle state of one backend.
type ProviderStatus string

const (
	ProviderDisconnected ProviderStatus = "disconnected"
	ProviderConnected    ProviderStatus = "connected"
	ProviderSyncing      ProviderStatus = "syncing"
	ProviderError        ProviderStatus = "error"
)

// ProviderConnection is the per-backend entry of the session state. The
// registry keeps one for every known backend id, even when disconnected.
type ProviderConnection struct {
	ProviderID ProviderID     `json:"provider_id"`
	Status     ProviderStatus `json:"status"`
	Account    *AccountInfo   `json:"account,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
}

// ProviderCredentials carries whatever a backend needs to connect. Fields
// are adapter-specific; unused ones stay empty.
type ProviderCredentials struct {
	Endpoint string `json:"endpoint,omitempty"` // httpblob base URL
	Token    string `json:"token,omitempty"`    // bearer / oauth token
	GistID   string `json:"gist_id,omitempty"`  // existing gist to reuse
	Dir      string `json:"dir,omitempty"`      // syncdir folder path
}
