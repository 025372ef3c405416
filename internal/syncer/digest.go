// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/termhub/connvault/models"
)

// digestDoc is the canonical form hashed by ComputeHash. Only sync-relevant
// fields participate; timestamps local to this device (UpdatedAt, AddedAt)
// are excluded so that applying a remote payload and re-reading it yields
// the same digest.
type digestDoc struct {
	Hosts               []digestHost    `json:"hosts"`
	Keys                []digestKey     `json:"keys"`
	Snippets            []digestSnippet `json:"snippets"`
	CustomGroups        []string        `json:"custom_groups"`
	PortForwardingRules []digestRule    `json:"port_forwarding_rules"`
	KnownHosts          []digestKnown   `json:"known_hosts"`
}

type digestHost struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	KeyID    string `json:"key_id"`
	Group    string `json:"group"`
}

type digestKey struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Passphrase string `json:"passphrase"`
}

type digestSnippet struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Script string `json:"script"`
}

type digestRule struct {
	ID       string                `json:"id"`
	HostID   string                `json:"host_id"`
	Kind     models.ForwardingKind `json:"kind"`
	BindHost string                `json:"bind_host"`
	BindPort int                   `json:"bind_port"`
	DestHost string                `json:"dest_host"`
	DestPort int                   `json:"dest_port"`
}

type digestKnown struct {
	Host        string `json:"host"`
	KeyType     string `json:"key_type"`
	Fingerprint string `json:"fingerprint"`
}

// ComputeHash returns a stable hex digest over the sync-relevant fields of a
// vault snapshot. Records are sorted by id before hashing so that storage
// order never influences the result.
func ComputeHash(snap models.VaultSnapshot) string {
	doc := digestDoc{
		Hosts:               make([]digestHost, 0, len(snap.Hosts)),
		Keys:                make([]digestKey, 0, len(snap.Keys)),
		Snippets:            make([]digestSnippet, 0, len(snap.Snippets)),
		CustomGroups:        append([]string(nil), snap.CustomGroups...),
		PortForwardingRules: make([]digestRule, 0, len(snap.PortForwardingRules)),
		KnownHosts:          make([]digestKnown, 0, len(snap.KnownHosts)),
	}

	for _, h := range snap.Hosts {
		doc.Hosts = append(doc.Hosts, digestHost{
			ID: h.ID, Label: h.Label, Address: h.Address, Port: h.Port,
			Username: h.Username, KeyID: h.KeyID, Group: h.Group,
		})
	}
	for _, k := range snap.Keys {
		doc.Keys = append(doc.Keys, digestKey{
			ID: k.ID, Label: k.Label, PublicKey: k.PublicKey,
			PrivateKey: k.PrivateKey, Passphrase: k.Passphrase,
		})
	}
	for _, s := range snap.Snippets {
		doc.Snippets = append(doc.Snippets, digestSnippet{ID: s.ID, Label: s.Label, Script: s.Script})
	}
	for _, r := range snap.PortForwardingRules {
		doc.PortForwardingRules = append(doc.PortForwardingRules, digestRule{
			ID: r.ID, HostID: r.HostID, Kind: r.Kind,
			BindHost: r.BindHost, BindPort: r.BindPort,
			DestHost: r.DestHost, DestPort: r.DestPort,
		})
	}
	for _, kh := range snap.KnownHosts {
		doc.KnownHosts = append(doc.KnownHosts, digestKnown{
			Host: kh.Host, KeyType: kh.KeyType, Fingerprint: kh.Fingerprint,
		})
	}

	sort.Slice(doc.Hosts, func(i, j int) bool { return doc.Hosts[i].ID < doc.Hosts[j].ID })
	sort.Slice(doc.Keys, func(i, j int) bool { return doc.Keys[i].ID < doc.Keys[j].ID })
	sort.Slice(doc.Snippets, func(i, j int) bool { return doc.Snippets[i].ID < doc.Snippets[j].ID })
	sort.Slice(doc.PortForwardingRules, func(i, j int) bool {
		return doc.PortForwardingRules[i].ID < doc.PortForwardingRules[j].ID
	})
	sort.Slice(doc.KnownHosts, func(i, j int) bool {
		a, b := doc.KnownHosts[i], doc.KnownHosts[j]
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		return a.Fingerprint < b.Fingerprint
	})
	sort.Strings(doc.CustomGroups)

	// json.Marshal emits struct fields in declaration order, so the encoded
	// form is canonical once the slices are sorted.
	encoded, err := json.Marshal(doc)
	if err != nil {
		// Only unmarshalable types can fail here, and digestDoc has none.
		panic(err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// HasChanged reports whether the snapshot's digest differs from prevHash.
// An empty prevHash means no baseline exists yet and always counts as
// changed.
func HasChanged(prevHash string, snap models.VaultSnapshot) bool {
	if prevHash == "" {
		return true
	}
	return ComputeHash(snap) != prevHash
}
