package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/models"
)

func newTestVaultRepo(t *testing.T) (*vaultRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	l := logger.Nop()
	repo := &vaultRepository{
		DB:     &DB{DB: db, logger: l},
		logger: l,
	}
	return repo, mock, db
}

func TestSnapshot_ReadsAllTables(t *testing.T) {
	repo, mock, db := newTestVaultRepo(t)
	defer db.Close()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, label, address, port, username, key_id, group_name, updated_at FROM hosts").
		WillReturnRows(sqlmock.
			NewRows([]string{"id", "label", "address", "port", "username", "key_id", "group_name", "updated_at"}).
			AddRow("h1", "prod", "10.0.0.1", 22, "root", "k1", "infra", now))
	mock.ExpectQuery("SELECT id, label, public_key, private_key, passphrase, updated_at FROM ssh_keys").
		WillReturnRows(sqlmock.
			NewRows([]string{"id", "label", "public_key", "private_key", "passphrase", "updated_at"}).
			AddRow("k1", "deploy", "pub", "priv", "", now))
	mock.ExpectQuery("SELECT id, label, script, updated_at FROM snippets").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "script", "updated_at"}))
	mock.ExpectQuery("SELECT name FROM custom_groups").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("infra"))
	mock.ExpectQuery("SELECT id, host_id, kind, bind_host, bind_port, dest_host, dest_port FROM port_forwarding_rules").
		WillReturnRows(sqlmock.NewRows([]string{"id", "host_id", "kind", "bind_host", "bind_port", "dest_host", "dest_port"}))
	mock.ExpectQuery("SELECT host, key_type, fingerprint, added_at FROM known_hosts").
		WillReturnRows(sqlmock.NewRows([]string{"host", "key_type", "fingerprint", "added_at"}))
	mock.ExpectCommit()

	snap, err := repo.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snap.Hosts) != 1 || snap.Hosts[0].ID != "h1" {
		t.Errorf("expected one host h1, got %+v", snap.Hosts)
	}
	if len(snap.Keys) != 1 || snap.Keys[0].ID != "k1" {
		t.Errorf("expected one key k1, got %+v", snap.Keys)
	}
	if len(snap.CustomGroups) != 1 || snap.CustomGroups[0] != "infra" {
		t.Errorf("expected group infra, got %+v", snap.CustomGroups)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceAll_ClearsAndInserts(t *testing.T) {
	repo, mock, db := newTestVaultRepo(t)
	defer db.Close()

	now := time.Now()
	snap := models.VaultSnapshot{
		Hosts:        []models.Host{{ID: "h1", Label: "prod", Address: "10.0.0.1", Port: 22, Username: "root", UpdatedAt: now}},
		CustomGroups: []string{"infra"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hosts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM ssh_keys").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM snippets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM custom_groups").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM port_forwarding_rules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM known_hosts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO hosts").
		WithArgs("h1", "prod", "10.0.0.1", 22, "root", "", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO custom_groups").
		WithArgs("infra").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceAll(context.Background(), snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceAll_RollbackOnInsertError(t *testing.T) {
	repo, mock, db := newTestVaultRepo(t)
	defer db.Close()

	snap := models.VaultSnapshot{
		Hosts: []models.Host{{ID: "h1", Label: "prod", Address: "10.0.0.1", Port: 22}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hosts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM ssh_keys").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM snippets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM custom_groups").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM port_forwarding_rules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM known_hosts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO hosts").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if err := repo.ReplaceAll(context.Background(), snap); err == nil {
		t.Fatalf("expected insert error to abort the transaction")
	}
}

func TestUpsertHost_Executes(t *testing.T) {
	repo, mock, db := newTestVaultRepo(t)
	defer db.Close()

	now := time.Now()
	host := models.Host{ID: "h9", Label: "bastion", Address: "gw.example.com", Port: 22, Username: "ops", UpdatedAt: now}

	mock.ExpectExec("INSERT INTO hosts").
		WithArgs(host.ID, host.Label, host.Address, host.Port, host.Username, "", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.UpsertHost(context.Background(), host); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
