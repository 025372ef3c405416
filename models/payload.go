// SPDX-License-Identifier: Apache-2.0

package models

import (
	"fmt"
	"time"
)

// SyncPayload is the immutable snapshot exchanged with a backend. A fresh
// instance is built for every sync attempt and never mutated in place.
// SyncedAt is a logical timestamp in epoch milliseconds, assigned when the
// payload is built.
type SyncPayload struct {
	Hosts               []Host               `json:"hosts"`
	Keys                []SSHKey             `json:"keys"`
	Snippets            []Snippet            `json:"snippets"`
	CustomGroups        []string             `json:"custom_groups"`
	PortForwardingRules []PortForwardingRule `json:"port_forwarding_rules,omitempty"`
	KnownHosts          []KnownHost          `json:"known_hosts,omitempty"`
	SyncedAt            int64                `json:"synced_at"`
}

// NewSyncPayload builds a payload from a vault snapshot, stamping it with
// the current logical timestamp.
func NewSyncPayload(snap VaultSnapshot, now time.Time) *SyncPayload {
	return &SyncPayload{
		Hosts:               snap.Hosts,
		Keys:                snap.Keys,
		Snippets:            snap.Snippets,
		CustomGroups:        snap.CustomGroups,
		PortForwardingRules: snap.PortForwardingRules,
		KnownHosts:          snap.KnownHosts,
		SyncedAt:            now.UnixMilli(),
	}
}

// Snapshot converts the payload back into a vault snapshot for applying a
// download to the local store.
func (p *SyncPayload) Snapshot() VaultSnapshot {
	return VaultSnapshot{
		Hosts:               p.Hosts,
		Keys:                p.Keys,
		Snippets:            p.Snippets,
		CustomGroups:        p.CustomGroups,
		PortForwardingRules: p.PortForwardingRules,
		KnownHosts:          p.KnownHosts,
	}
}

// Validate performs structural checks on a payload before it is applied to
// the local store, so a malformed remote document is rejected instead of
// corrupting the vault.
func (p *SyncPayload) Validate() error {
	for i, h := range p.Hosts {
		if h.ID == "" {
			return fmt.Errorf("host %d: empty id", i)
		}
		if h.Port < 0 || h.Port > 65535 {
			return fmt.Errorf("host %s: port %d out of range", h.ID, h.Port)
		}
	}
	for i, k := range p.Keys {
		if k.ID == "" {
			return fmt.Errorf("key %d: empty id", i)
		}
	}
	for i, s := range p.Snippets {
		if s.ID == "" {
			return fmt.Errorf("snippet %d: empty id", i)
		}
	}
	for i, r := range p.PortForwardingRules {
		if r.ID == "" {
			return fmt.Errorf("forwarding rule %d: empty id", i)
		}
		switch r.Kind {
		case ForwardingLocal, ForwardingRemote, ForwardingDynamic:
		default:
			return fmt.Errorf("forwarding rule %s: unknown kind %q", r.ID, r.Kind)
		}
	}
	for i, kh := range p.KnownHosts {
		if kh.Host == "" || kh.Fingerprint == "" {
			return fmt.Errorf("known host %d: missing host or fingerprint", i)
		}
	}
	return nil
}

// RemoteSnapshot is what a backend adapter returns from Fetch: the opaque
// encrypted blob plus the version metadata used for optimistic concurrency.
type RemoteSnapshot struct {
	Blob      string `json:"blob"`
	Version   int64  `json:"version"`
	UpdatedAt int64  `json:"updated_at"` // epoch ms
}

// AccountInfo identifies the remote account a provider is connected as.
type AccountInfo struct {
	ProviderID ProviderID `json:"provider_id"`
	AccountID  string     `json:"account_id"`
	Email      string     `json:"email,omitempty"`
	Label      string     `json:"label,omitempty"`
}
