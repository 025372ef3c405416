package store

import (
	"context"

	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/models"
)

// VaultRepository is the local persistence surface of the sync-relevant
// vault records. Snapshot and ReplaceAll are what the sync engine uses; the
// upsert methods serve the rest of the application.
type VaultRepository interface {
	// Snapshot reads the complete sync-relevant local state in one
	// transaction.
	Snapshot(ctx context.Context) (models.VaultSnapshot, error)

	// ReplaceAll atomically replaces every synced record with the contents
	// of snap. Used when a remote payload is applied locally.
	ReplaceAll(ctx context.Context, snap models.VaultSnapshot) error

	UpsertHost(ctx context.Context, host models.Host) error
	UpsertKey(ctx context.Context, key models.SSHKey) error
	UpsertSnippet(ctx context.Context, snippet models.Snippet) error
	AddKnownHost(ctx context.Context, kh models.KnownHost) error
}

// MetaRepository is a small key/value store for sync bookkeeping: the vault
// salt and wrapped key blob, the last synced digest, the last known remote
// version, and the last synced timestamp.
type MetaRepository interface {
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Keys of the sync_meta table.
const (
	MetaVaultSalt      = "vault_salt"       // base64 Argon2id salt
	MetaWrappedKey     = "vault_wrapped_vk" // base64 wrapped vault key
	MetaLastSyncedHash = "last_synced_hash"
	MetaLastSyncedAt   = "last_synced_at" // epoch ms, decimal
	MetaRemoteVersion  = "remote_version" // int64, decimal
)

// Storages aggregates every repository backed by the local database.
type Storages struct {
	Vault VaultRepository
	Meta  MetaRepository
}

// NewStorages wires all repositories on top of one database handle.
func NewStorages(db *DB, log *logger.Logger) *Storages {
	return &Storages{
		Vault: NewVaultRepository(db, log),
		Meta:  NewMetaRepository(db, log),
	}
}
