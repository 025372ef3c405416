// SPDX-License-Identifier: Apache-2.0

package models

import "time"

// Host is a single saved connection target. Hosts are the primary record
// type of the vault; every other record either decorates a host (forwarding
// rules) or is shared across hosts (keys, snippets).
type Host struct {
	ID        string    `json:"id" db:"id"`
	Label     string    `json:"label" db:"label"`
	Address   string    `json:"address" db:"address"`
	Port      int       `json:"port" db:"port"`
	Username  string    `json:"username" db:"username"`
	KeyID     string    `json:"key_id,omitempty" db:"key_id"`
	Group     string    `json:"group,omitempty" db:"group_name"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SSHKey is a stored key pair. PrivateKey is kept encrypted at rest by the
// local store and is only ever pushed to a backend inside an encrypted
// payload blob.
type SSHKey struct {
	ID         string    `json:"id" db:"id"`
	Label      string    `json:"label" db:"label"`
	PublicKey  string    `json:"public_key" db:"public_key"`
	PrivateKey string    `json:"private_key" db:"private_key"`
	Passphrase string    `json:"passphrase,omitempty" db:"passphrase"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Snippet is a reusable command fragment.
type Snippet struct {
	ID        string    `json:"id" db:"id"`
	Label     string    `json:"label" db:"label"`
	Script    string    `json:"script" db:"script"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ForwardingKind discriminates the three port-forwarding modes.
type ForwardingKind string

const (
	ForwardingLocal   ForwardingKind = "local"
	ForwardingRemote  ForwardingKind = "remote"
	ForwardingDynamic ForwardingKind = "dynamic"
)

// PortForwardingRule binds a forwarding spec to a host.
type PortForwardingRule struct {
	ID       string         `json:"id" db:"id"`
	HostID   string         `json:"host_id" db:"host_id"`
	Kind     ForwardingKind `json:"kind" db:"kind"`
	BindHost string         `json:"bind_host" db:"bind_host"`
	BindPort int            `json:"bind_port" db:"bind_port"`
	DestHost string         `json:"dest_host,omitempty" db:"dest_host"`
	DestPort int            `json:"dest_port,omitempty" db:"dest_port"`
}

// KnownHost is one accepted host-key record, mirroring a line of an
// OpenSSH known_hosts file.
type KnownHost struct {
	Host        string    `json:"host" db:"host"`
	KeyType     string    `json:"key_type" db:"key_type"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	AddedAt     time.Time `json:"added_at" db:"added_at"`
}

// VaultSnapshot is the full sync-relevant local state read from the store in
// one transaction. It is the input for both payload construction and change
// detection.
type VaultSnapshot struct {
	Hosts               []Host
	Keys                []SSHKey
	Snippets            []Snippet
	CustomGroups        []string
	PortForwardingRules []PortForwardingRule
	KnownHosts          []KnownHost
}
