package repository

import (
	"context"
	"fmt"
)

const (
	blocksTable  = "blocks"
	txTable      = "tx"
	settingTable = "setting"
)

func (d dialect) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS blocks (
			height      %[1]s PRIMARY KEY,
			cur_block   TEXT NOT NULL,
			prev_block  TEXT NOT NULL,
			merkle_root TEXT NOT NULL,
			"timestamp" %[1]s NOT NULL,
			cid         TEXT NOT NULL
		)`, d.integerType),
		`CREATE INDEX IF NOT EXISTS cur_block_hash_index ON blocks (cur_block)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tx (
			sequence      %[1]s PRIMARY KEY,
			purchase_id   TEXT NOT NULL,
			"timestamp"   %[1]s NOT NULL,
			amount        TEXT NOT NULL,
			franchisee_id TEXT NOT NULL,
			user_email    TEXT NOT NULL,
			"method"      %[1]s NOT NULL,
			signer        TEXT NOT NULL,
			signature     TEXT NOT NULL,
			hash          TEXT NOT NULL
		)`, d.integerType),
		`CREATE UNIQUE INDEX IF NOT EXISTS tx_hash_index ON tx (hash)`,
		`CREATE TABLE IF NOT EXISTS setting (
			"key"   TEXT PRIMARY KEY,
			"value" TEXT NOT NULL
		)`,
	}
}

// RunMigration creates tables and indexes if they do not exist.
// Running it on already migrated database is a no-op.
func (db DataBase) RunMigration(ctx context.Context) error {
	for _, stmt := range db.dialect.schema() {
		if _, err := db.inner.ExecContext(ctx, stmt); err != nil {
			return storageErr(ErrMigrationFailed, err)
		}
	}
	return nil
}

// DropTables removes all tables. Used to reset the node state.
func (db DataBase) DropTables(ctx context.Context) error {
	for _, table := range []string{blocksTable, txTable, settingTable} {
		if _, err := db.inner.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return storageErr(ErrRemoveFailed, err)
		}
	}
	return nil
}
