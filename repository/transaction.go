package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/transaction"
)

const txColumns = `sequence, purchase_id, "timestamp", amount, franchisee_id, user_email, "method", signer, signature, hash`

const upsertTransactionQuery = `INSERT INTO tx (` + txColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (sequence) DO UPDATE SET
		purchase_id = excluded.purchase_id,
		"timestamp" = excluded."timestamp",
		amount = excluded.amount,
		franchisee_id = excluded.franchisee_id,
		user_email = excluded.user_email,
		"method" = excluded."method",
		signer = excluded.signer,
		signature = excluded.signature,
		hash = excluded.hash`

const maxPreallocatedRows = 1024

type scanner interface {
	Scan(dest ...any) error
}

// WriteTransactions upserts transactions keyed by sequence in a single database transaction.
// Either all transactions are written or none.
func (db DataBase) WriteTransactions(ctx context.Context, trxs []transaction.Transaction) error {
	if len(trxs) == 0 {
		return validationErr(ErrEmptyBatch, "")
	}

	tx, err := db.inner.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(ErrTrxBeginFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, db.dialect.bind(upsertTransactionQuery))
	if err != nil {
		return storageErr(ErrInsertFailed, err)
	}
	defer stmt.Close()

	for _, trx := range trxs {
		if _, err := stmt.ExecContext(
			ctx,
			trx.Sequence, trx.PurchaseID, trx.Timestamp, trx.Amount,
			trx.FranchiseeID, trx.UserEmail, trx.Method, trx.Signer,
			trx.Signature, trx.Hash,
		); err != nil {
			return storageErr(ErrInsertFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(ErrCommitFailed, err)
	}
	return nil
}

// ReadTransactionByHash reads transaction with given hash.
// Returns false when there is no such transaction.
func (db DataBase) ReadTransactionByHash(ctx context.Context, hash hashing.Hash) (transaction.Transaction, bool, error) {
	row := db.inner.QueryRowContext(ctx, db.dialect.bind(`SELECT `+txColumns+` FROM tx WHERE hash = ?`), hash)
	trx, err := scanTransaction(row)
	switch {
	case err == nil:
		return trx, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return transaction.Transaction{}, false, nil
	default:
		return transaction.Transaction{}, false, err
	}
}

// ReadTransactions reads up to limit transactions in ascending sequence order.
func (db DataBase) ReadTransactions(ctx context.Context, limit int) ([]transaction.Transaction, error) {
	if limit < 1 {
		return nil, validationErr(ErrInvalidLimit, "got %d", limit)
	}
	rows, err := db.inner.QueryContext(
		ctx, db.dialect.bind(`SELECT `+txColumns+` FROM tx ORDER BY sequence ASC LIMIT ?`), limit)
	if err != nil {
		return nil, storageErr(ErrSelectFailed, err)
	}
	defer rows.Close()

	size := limit
	if size > maxPreallocatedRows {
		size = maxPreallocatedRows
	}
	trxs := make([]transaction.Transaction, 0, size)
	for rows.Next() {
		trx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		trxs = append(trxs, trx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(ErrSelectFailed, err)
	}
	return trxs, nil
}

// RemoveTransactionByHash removes transaction with given hash.
// Removing not existing transaction is not an error.
func (db DataBase) RemoveTransactionByHash(ctx context.Context, hash hashing.Hash) error {
	if _, err := db.inner.ExecContext(ctx, db.dialect.bind(`DELETE FROM tx WHERE hash = ?`), hash); err != nil {
		return storageErr(ErrRemoveFailed, err)
	}
	return nil
}

// RemoveTransactionsByHashes removes all transactions with given hashes in a single database transaction.
func (db DataBase) RemoveTransactionsByHashes(ctx context.Context, hashes []hashing.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := db.inner.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(ErrTrxBeginFailed, err)
	}
	defer tx.Rollback()

	if err := db.removeTransactions(ctx, tx, hashes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr(ErrCommitFailed, err)
	}
	return nil
}

func (db DataBase) removeTransactions(ctx context.Context, tx *sql.Tx, hashes []hashing.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, db.dialect.bind(`DELETE FROM tx WHERE hash = ?`))
	if err != nil {
		return storageErr(ErrRemoveFailed, err)
	}
	defer stmt.Close()

	for _, h := range hashes {
		if _, err := stmt.ExecContext(ctx, h); err != nil {
			return storageErr(ErrRemoveFailed, err)
		}
	}
	return nil
}

// CountTransactions returns number of stored transactions.
func (db DataBase) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	if err := db.inner.QueryRowContext(ctx, `SELECT COUNT(*) FROM tx`).Scan(&count); err != nil {
		return 0, storageErr(ErrSelectFailed, err)
	}
	return count, nil
}

func scanTransaction(s scanner) (transaction.Transaction, error) {
	var trx transaction.Transaction
	err := s.Scan(
		&trx.Sequence, &trx.PurchaseID, &trx.Timestamp, &trx.Amount,
		&trx.FranchiseeID, &trx.UserEmail, &trx.Method, &trx.Signer,
		&trx.Signature, &trx.Hash,
	)
	switch {
	case err == nil:
		return trx, nil
	case errors.Is(err, sql.ErrNoRows):
		return trx, err
	default:
		return trx, storageErr(ErrScanFailed, err)
	}
}
