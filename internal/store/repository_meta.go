package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/termhub/connvault/internal/logger"
)

type metaRepository struct {
	*DB
	logger *logger.Logger
}

func NewMetaRepository(db *DB, logger *logger.Logger) MetaRepository {
	return &metaRepository{
		DB:     db,
		logger: logger,
	}
}

func (m *metaRepository) GetMeta(ctx context.Context, key string) (string, bool, error) {
	log := logger.FromContext(ctx)

	query, args, err := qb.Select("value").From("sync_meta").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build meta query: %w", err)
	}

	var value string
	err = m.DB.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		log.Err(err).Str("func", "metaRepository.GetMeta").Str("key", key).Msg("failed to read sync meta")
		return "", false, fmt.Errorf("read sync meta %s: %w", key, err)
	}

	return value, true, nil
}

func (m *metaRepository) SetMeta(ctx context.Context, key, value string) error {
	log := logger.FromContext(ctx)

	query, args, err := qb.Insert("sync_meta").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build meta upsert: %w", err)
	}

	if _, err = m.DB.ExecContext(ctx, query, args...); err != nil {
		log.Err(err).Str("func", "metaRepository.SetMeta").Str("key", key).Msg("failed to write sync meta")
		return fmt.Errorf("write sync meta %s: %w", key, err)
	}

	return nil
}
