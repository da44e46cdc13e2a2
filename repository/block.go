package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/hashing"
)

const blockColumns = `height, cur_block, prev_block, merkle_root, "timestamp", cid`

const (
	lastBlockHeightKey = "last_block_height"
	lastBlockHashKey   = "last_block_hash"
)

type chainTip struct {
	exists bool
	height uint64
	hash   hashing.Hash
}

func (t chainTip) accepts(h *block.Header) error {
	if !t.exists {
		if h.Height != 0 || h.PrevBlock != block.GenesisPrevBlock {
			return validationErr(
				ErrChainMismatch, "empty chain accepts genesis at height 0, got height %d with prev %s", h.Height, h.PrevBlock)
		}
		return nil
	}
	if h.Height != t.height+1 {
		return validationErr(ErrChainMismatch, "expected height %d, got %d", t.height+1, h.Height)
	}
	if h.PrevBlock != t.hash {
		return validationErr(ErrChainMismatch, "expected prev block %s, got %s", t.hash, h.PrevBlock)
	}
	return nil
}

// WriteBlock seals the header with the content identifier and appends it on top of the chain.
// Header must extend the current tip, the first block must be the genesis at height 0.
// The tip is remembered in settings so the chain can be extended after all blocks were pruned.
// Returns the header as stored.
func (db DataBase) WriteBlock(ctx context.Context, h *block.Header, cid string) (block.Header, error) {
	return db.CommitBlock(ctx, h, cid, nil)
}

// CommitBlock writes the block like WriteBlock and removes the included transactions in the same database transaction,
// so either the block is stored and its transactions are gone or nothing changes.
func (db DataBase) CommitBlock(ctx context.Context, h *block.Header, cid string, included []hashing.Hash) (block.Header, error) {
	if h == nil || h.Timestamp <= 0 || h.MerkleRoot.IsZero() {
		return block.Header{}, validationErr(ErrIncompleteHeader, "")
	}
	if cid == "" {
		return block.Header{}, validationErr(ErrEmptyCID, "")
	}
	hdr := *h
	hdr.Seal(cid)

	tx, err := db.inner.BeginTx(ctx, nil)
	if err != nil {
		return block.Header{}, storageErr(ErrTrxBeginFailed, err)
	}
	defer tx.Rollback()

	tip, err := db.readTip(ctx, tx)
	if err != nil {
		return block.Header{}, err
	}
	if err := tip.accepts(&hdr); err != nil {
		return block.Header{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		db.dialect.bind(`INSERT INTO blocks (`+blockColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		hdr.Height, hdr.CurBlock, hdr.PrevBlock, hdr.MerkleRoot, hdr.Timestamp, hdr.CID,
	); err != nil {
		return block.Header{}, storageErr(ErrInsertFailed, err)
	}
	if err := db.writeSetting(ctx, tx, lastBlockHeightKey, strconv.FormatUint(hdr.Height, 10)); err != nil {
		return block.Header{}, err
	}
	if err := db.writeSetting(ctx, tx, lastBlockHashKey, hdr.CurBlock.String()); err != nil {
		return block.Header{}, err
	}
	if err := db.removeTransactions(ctx, tx, included); err != nil {
		return block.Header{}, err
	}

	if err := tx.Commit(); err != nil {
		return block.Header{}, storageErr(ErrCommitFailed, err)
	}
	return hdr, nil
}

func (db DataBase) readTip(ctx context.Context, q querier) (chainTip, error) {
	var tip chainTip
	err := q.QueryRowContext(ctx, `SELECT height, cur_block FROM blocks ORDER BY height DESC LIMIT 1`).
		Scan(&tip.height, &tip.hash)
	switch {
	case err == nil:
		tip.exists = true
		return tip, nil
	case !errors.Is(err, sql.ErrNoRows):
		return tip, storageErr(ErrSelectFailed, err)
	}

	height, ok, err := db.readSetting(ctx, q, lastBlockHeightKey)
	if err != nil || !ok {
		return tip, err
	}
	hash, ok, err := db.readSetting(ctx, q, lastBlockHashKey)
	if err != nil || !ok {
		return tip, err
	}
	if tip.height, err = strconv.ParseUint(height, 10, 64); err != nil {
		return tip, storageErr(ErrScanFailed, err)
	}
	if tip.hash, err = hashing.Parse(hash); err != nil {
		return tip, storageErr(ErrScanFailed, err)
	}
	tip.exists = true
	return tip, nil
}

// LastBlockHeight returns the greatest stored block height.
// Returns false when there are no blocks.
func (db DataBase) LastBlockHeight(ctx context.Context) (uint64, bool, error) {
	var height sql.NullInt64
	if err := db.inner.QueryRowContext(ctx, `SELECT MAX(height) FROM blocks`).Scan(&height); err != nil {
		return 0, false, storageErr(ErrSelectFailed, err)
	}
	if !height.Valid {
		return 0, false, nil
	}
	return uint64(height.Int64), true, nil
}

// ReadBlockByHeight reads block header at given height.
func (db DataBase) ReadBlockByHeight(ctx context.Context, height uint64) (block.Header, bool, error) {
	return db.readBlock(ctx, `SELECT `+blockColumns+` FROM blocks WHERE height = ?`, height)
}

// ReadBlockByHash reads block header with given hash.
func (db DataBase) ReadBlockByHash(ctx context.Context, hash hashing.Hash) (block.Header, bool, error) {
	return db.readBlock(ctx, `SELECT `+blockColumns+` FROM blocks WHERE cur_block = ?`, hash)
}

func (db DataBase) readBlock(ctx context.Context, query string, arg any) (block.Header, bool, error) {
	var h block.Header
	err := db.inner.QueryRowContext(ctx, db.dialect.bind(query), arg).
		Scan(&h.Height, &h.CurBlock, &h.PrevBlock, &h.MerkleRoot, &h.Timestamp, &h.CID)
	switch {
	case err == nil:
		return h, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return block.Header{}, false, nil
	default:
		return block.Header{}, false, storageErr(ErrScanFailed, err)
	}
}

// RemoveBlocksBelow removes all blocks with height strictly less than given height.
func (db DataBase) RemoveBlocksBelow(ctx context.Context, height uint64) error {
	if _, err := db.inner.ExecContext(ctx, db.dialect.bind(`DELETE FROM blocks WHERE height < ?`), height); err != nil {
		return storageErr(ErrRemoveFailed, err)
	}
	return nil
}
