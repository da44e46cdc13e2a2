package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

const lastReceivedSequenceKey = "last_receive_sequence"

// NoSequence is the last received sequence of the node that never received a transaction.
const NoSequence int64 = -1

const upsertSettingQuery = `INSERT INTO setting ("key", "value") VALUES (?, ?)
	ON CONFLICT ("key") DO UPDATE SET "value" = excluded."value"`

// ReadSetting reads setting value, returns def when the key is absent.
func (db DataBase) ReadSetting(ctx context.Context, key, def string) (string, error) {
	v, ok, err := db.readSetting(ctx, db.inner, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// WriteSetting upserts setting value.
func (db DataBase) WriteSetting(ctx context.Context, key, value string) error {
	return db.writeSetting(ctx, db.inner, key, value)
}

// LastReceivedSequence returns sequence of the last accepted transaction or NoSequence.
func (db DataBase) LastReceivedSequence(ctx context.Context) (int64, error) {
	v, err := db.ReadSetting(ctx, lastReceivedSequenceKey, strconv.FormatInt(NoSequence, 10))
	if err != nil {
		return NoSequence, err
	}
	seq, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return NoSequence, storageErr(ErrScanFailed, err)
	}
	return seq, nil
}

// WriteLastReceivedSequence stores sequence of the last accepted transaction.
func (db DataBase) WriteLastReceivedSequence(ctx context.Context, seq int64) error {
	return db.WriteSetting(ctx, lastReceivedSequenceKey, strconv.FormatInt(seq, 10))
}

func (db DataBase) readSetting(ctx context.Context, q querier, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, db.dialect.bind(`SELECT "value" FROM setting WHERE "key" = ?`), key).Scan(&v)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, storageErr(ErrSelectFailed, err)
	}
}

func (db DataBase) writeSetting(ctx context.Context, q querier, key, value string) error {
	if _, err := q.ExecContext(ctx, db.dialect.bind(upsertSettingQuery), key, value); err != nil {
		return storageErr(ErrInsertFailed, err)
	}
	return nil
}
