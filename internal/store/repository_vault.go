package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/models"
)

// qb is the squirrel statement builder used for every vault query. SQLite
// uses question-mark placeholders.
var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

type vaultRepository struct {
	*DB
	logger *logger.Logger
}

func NewVaultRepository(db *DB, logger *logger.Logger) VaultRepository {
	return &vaultRepository{
		DB:     db,
		logger: logger,
	}
}

func (v *vaultRepository) Snapshot(ctx context.Context) (models.VaultSnapshot, error) {
	log := logger.FromContext(ctx)

	tx, err := v.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		log.Err(err).Str("func", "vaultRepository.Snapshot").Msg("failed to begin snapshot transaction")
		return models.VaultSnapshot{}, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	var snap models.VaultSnapshot

	if snap.Hosts, err = v.queryHosts(ctx, tx); err != nil {
		return models.VaultSnapshot{}, err
	}
	if snap.Keys, err = v.queryKeys(ctx, tx); err != nil {
		return models.VaultSnapshot{}, err
	}
	if snap.Snippets, err = v.querySnippets(ctx, tx); err != nil {
		return models.VaultSnapshot{}, err
	}
	if snap.CustomGroups, err = v.queryGroups(ctx, tx); err != nil {
		return models.VaultSnapshot{}, err
	}
	if snap.PortForwardingRules, err = v.queryRules(ctx, tx); err != nil {
		return models.VaultSnapshot{}, err
	}
	if snap.KnownHosts, err = v.queryKnownHosts(ctx, tx); err != nil {
		return models.VaultSnapshot{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.VaultSnapshot{}, fmt.Errorf("commit snapshot tx: %w", err)
	}

	return snap, nil
}

func (v *vaultRepository) ReplaceAll(ctx context.Context, snap models.VaultSnapshot) error {
	log := logger.FromContext(ctx)

	tx, err := v.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).Str("func", "vaultRepository.ReplaceAll").Msg("failed to begin replace transaction")
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"hosts", "ssh_keys", "snippets", "custom_groups", "port_forwarding_rules", "known_hosts"} {
		query, args, buildErr := qb.Delete(table).ToSql()
		if buildErr != nil {
			return fmt.Errorf("build delete %s: %w", table, buildErr)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear table %s: %w", table, err)
		}
	}

	for _, h := range snap.Hosts {
		if err = execInsert(ctx, tx, qb.Insert("hosts").
			Columns("id", "label", "address", "port", "username", "key_id", "group_name", "updated_at").
			Values(h.ID, h.Label, h.Address, h.Port, h.Username, h.KeyID, h.Group, h.UpdatedAt)); err != nil {
			return fmt.Errorf("insert host %s: %w", h.ID, err)
		}
	}
	for _, k := range snap.Keys {
		if err = execInsert(ctx, tx, qb.Insert("ssh_keys").
			Columns("id", "label", "public_key", "private_key", "passphrase", "updated_at").
			Values(k.ID, k.Label, k.PublicKey, k.PrivateKey, k.Passphrase, k.UpdatedAt)); err != nil {
			return fmt.Errorf("insert key %s: %w", k.ID, err)
		}
	}
	for _, s := range snap.Snippets {
		if err = execInsert(ctx, tx, qb.Insert("snippets").
			Columns("id", "label", "script", "updated_at").
			Values(s.ID, s.Label, s.Script, s.UpdatedAt)); err != nil {
			return fmt.Errorf("insert snippet %s: %w", s.ID, err)
		}
	}
	for _, g := range snap.CustomGroups {
		if err = execInsert(ctx, tx, qb.Insert("custom_groups").Columns("name").Values(g)); err != nil {
			return fmt.Errorf("insert group %s: %w", g, err)
		}
	}
	for _, r := range snap.PortForwardingRules {
		if err = execInsert(ctx, tx, qb.Insert("port_forwarding_rules").
			Columns("id", "host_id", "kind", "bind_host", "bind_port", "dest_host", "dest_port").
			Values(r.ID, r.HostID, string(r.Kind), r.BindHost, r.BindPort, r.DestHost, r.DestPort)); err != nil {
			return fmt.Errorf("insert rule %s: %w", r.ID, err)
		}
	}
	for _, kh := range snap.KnownHosts {
		if err = execInsert(ctx, tx, qb.Insert("known_hosts").
			Columns("host", "key_type", "fingerprint", "added_at").
			Values(kh.Host, kh.KeyType, kh.Fingerprint, kh.AddedAt)); err != nil {
			return fmt.Errorf("insert known host %s: %w", kh.Host, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}

	return nil
}

func (v *vaultRepository) UpsertHost(ctx context.Context, h models.Host) error {
	query, args, err := qb.Insert("hosts").
		Columns("id", "label", "address", "port", "username", "key_id", "group_name", "updated_at").
		Values(h.ID, h.Label, h.Address, h.Port, h.Username, h.KeyID, h.Group, h.UpdatedAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			address = excluded.address,
			port = excluded.port,
			username = excluded.username,
			key_id = excluded.key_id,
			group_name = excluded.group_name,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert host: %w", err)
	}

	if _, err = v.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert host %s: %w", h.ID, err)
	}
	return nil
}

func (v *vaultRepository) UpsertKey(ctx context.Context, k models.SSHKey) error {
	query, args, err := qb.Insert("ssh_keys").
		Columns("id", "label", "public_key", "private_key", "passphrase", "updated_at").
		Values(k.ID, k.Label, k.PublicKey, k.PrivateKey, k.Passphrase, k.UpdatedAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			public_key = excluded.public_key,
			private_key = excluded.private_key,
			passphrase = excluded.passphrase,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert key: %w", err)
	}

	if _, err = v.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert key %s: %w", k.ID, err)
	}
	return nil
}

func (v *vaultRepository) UpsertSnippet(ctx context.Context, s models.Snippet) error {
	query, args, err := qb.Insert("snippets").
		Columns("id", "label", "script", "updated_at").
		Values(s.ID, s.Label, s.Script, s.UpdatedAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			script = excluded.script,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert snippet: %w", err)
	}

	if _, err = v.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert snippet %s: %w", s.ID, err)
	}
	return nil
}

func (v *vaultRepository) AddKnownHost(ctx context.Context, kh models.KnownHost) error {
	query, args, err := qb.Insert("known_hosts").
		Columns("host", "key_type", "fingerprint", "added_at").
		Values(kh.Host, kh.KeyType, kh.Fingerprint, kh.AddedAt).
		Suffix(`ON CONFLICT(host, key_type) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			added_at = excluded.added_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build add known host: %w", err)
	}

	if _, err = v.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("add known host %s: %w", kh.Host, err)
	}
	return nil
}

func execInsert(ctx context.Context, tx *sql.Tx, builder sq.InsertBuilder) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (v *vaultRepository) queryHosts(ctx context.Context, tx *sql.Tx) ([]models.Host, error) {
	query, _, err := qb.Select("id", "label", "address", "port", "username", "key_id", "group_name", "updated_at").
		From("hosts").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hosts query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query hosts: %w", err)
	}
	defer rows.Close()

	var hosts []models.Host
	for rows.Next() {
		var h models.Host
		if err = rows.Scan(&h.ID, &h.Label, &h.Address, &h.Port, &h.Username, &h.KeyID, &h.Group, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan host row: %w", err)
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

func (v *vaultRepository) queryKeys(ctx context.Context, tx *sql.Tx) ([]models.SSHKey, error) {
	query, _, err := qb.Select("id", "label", "public_key", "private_key", "passphrase", "updated_at").
		From("ssh_keys").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keys query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []models.SSHKey
	for rows.Next() {
		var k models.SSHKey
		if err = rows.Scan(&k.ID, &k.Label, &k.PublicKey, &k.PrivateKey, &k.Passphrase, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (v *vaultRepository) querySnippets(ctx context.Context, tx *sql.Tx) ([]models.Snippet, error) {
	query, _, err := qb.Select("id", "label", "script", "updated_at").
		From("snippets").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snippets query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer rows.Close()

	var snippets []models.Snippet
	for rows.Next() {
		var s models.Snippet
		if err = rows.Scan(&s.ID, &s.Label, &s.Script, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snippet row: %w", err)
		}
		snippets = append(snippets, s)
	}
	return snippets, rows.Err()
}

func (v *vaultRepository) queryGroups(ctx context.Context, tx *sql.Tx) ([]string, error) {
	query, _, err := qb.Select("name").From("custom_groups").OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build groups query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err = rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (v *vaultRepository) queryRules(ctx context.Context, tx *sql.Tx) ([]models.PortForwardingRule, error) {
	query, _, err := qb.Select("id", "host_id", "kind", "bind_host", "bind_port", "dest_host", "dest_port").
		From("port_forwarding_rules").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rules query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.PortForwardingRule
	for rows.Next() {
		var r models.PortForwardingRule
		var kind string
		if err = rows.Scan(&r.ID, &r.HostID, &kind, &r.BindHost, &r.BindPort, &r.DestHost, &r.DestPort); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		r.Kind = models.ForwardingKind(kind)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (v *vaultRepository) queryKnownHosts(ctx context.Context, tx *sql.Tx) ([]models.KnownHost, error) {
	query, _, err := qb.Select("host", "key_type", "fingerprint", "added_at").
		From("known_hosts").OrderBy("host", "key_type").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build known hosts query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query known hosts: %w", err)
	}
	defer rows.Close()

	var khs []models.KnownHost
	for rows.Next() {
		var kh models.KnownHost
		if err = rows.Scan(&kh.Host, &kh.KeyType, &kh.Fingerprint, &kh.AddedAt); err != nil {
			return nil, fmt.Errorf("scan known host row: %w", err)
		}
		khs = append(khs, kh)
	}
	return khs, rows.Err()
}
