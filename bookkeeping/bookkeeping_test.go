package bookkeeping

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/bartossh/Rollupis/archive"
	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/reactive"
	"github.com/bartossh/Rollupis/repository"
	"github.com/bartossh/Rollupis/transaction"
	"github.com/bartossh/Rollupis/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silentLogger struct{}

func (silentLogger) Debug(string) {}
func (silentLogger) Info(string)  {}
func (silentLogger) Warn(string)  {}
func (silentLogger) Error(string) {}
func (silentLogger) Fatal(string) {}

var errArchiveDown = errors.New("archive is down")

type failingArchive struct{}

func (failingArchive) Archive(context.Context, []transaction.Transaction) (string, error) {
	return "", errArchiveDown
}

var errCommitLost = errors.New("commit lost")

// flakyCommit fails the first commits without touching the storage.
type flakyCommit struct {
	*repository.DataBase
	failures int
}

func (f *flakyCommit) CommitBlock(ctx context.Context, h *block.Header, cid string, included []hashing.Hash) (block.Header, error) {
	if f.failures > 0 {
		f.failures--
		return block.Header{}, errCommitLost
	}
	return f.DataBase.CommitBlock(ctx, h, cid, included)
}

type fixture struct {
	db      *repository.DataBase
	archive *archive.Local
	rx      *reactive.Observable[block.Header]
	w       wallet.Wallet
	next    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := repository.Open(ctx, repository.DBConfig{Path: filepath.Join(dir, "node.db")})
	require.Nil(t, err)
	t.Cleanup(func() { db.Disconnect(ctx) })

	a, err := archive.NewLocal(archive.Config{Path: filepath.Join(dir, "archive")})
	require.Nil(t, err)

	w, err := wallet.New()
	require.Nil(t, err)

	return &fixture{db: db, archive: a, rx: reactive.New[block.Header](100), w: w}
}

func (f *fixture) ledger(t *testing.T, c Config, a Archiver) *Ledger {
	t.Helper()
	l, err := New(c, f.db, a, silentLogger{}, f.rx)
	require.Nil(t, err)
	return l
}

func (f *fixture) record(t *testing.T, n int) []transaction.Transaction {
	t.Helper()
	trxs := make([]transaction.Transaction, 0, n)
	for i := 0; i < n; i++ {
		trx := transaction.New(
			f.next, fmt.Sprintf("purchase-%d", f.next), time.Now().Unix(), decimal.New(f.next+1, 14),
			"a5c19fed89739383", "a@example.com", transaction.MethodMileage)
		require.Nil(t, trx.Sign(&f.w))
		trxs = append(trxs, trx)
		f.next++
	}
	require.Nil(t, f.db.WriteTransactions(context.Background(), trxs))
	return trxs
}

func hashesOf(trxs []transaction.Transaction) []hashing.Hash {
	hashes := make([]hashing.Hash, 0, len(trxs))
	for _, trx := range trxs {
		hashes = append(hashes, trx.Hash)
	}
	return hashes
}

func TestConfigValidate(t *testing.T) {
	assert.Nil(t, Config{BlockIntervalSeconds: 600, BlockTransactionsSize: 100}.Validate())
	assert.ErrorIs(t, Config{BlockIntervalSeconds: 0, BlockTransactionsSize: 100}.Validate(), ErrBlockIntervalNotInRange)
	assert.ErrorIs(t, Config{BlockIntervalSeconds: 5 * 3600, BlockTransactionsSize: 100}.Validate(), ErrBlockIntervalNotInRange)
	assert.ErrorIs(t, Config{BlockIntervalSeconds: 600, BlockTransactionsSize: 0}.Validate(), ErrBlockTransactionsSizeNotInRange)
	assert.ErrorIs(t, Config{BlockIntervalSeconds: 600, BlockTransactionsSize: 60001}.Validate(), ErrBlockTransactionsSizeNotInRange)
}

func TestForgeNothingToForge(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(t, Config{BlockIntervalSeconds: 1, BlockTransactionsSize: 10}, f.archive)

	_, ok, err := l.Forge(context.Background())
	assert.Nil(t, err)
	assert.False(t, ok)

	_, ok, err = f.db.LastBlockHeight(context.Background())
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestForgeGenesisAndChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.rx.Subscribe()
	defer sub.Cancel()
	l := f.ledger(t, Config{BlockIntervalSeconds: 1, BlockTransactionsSize: 4}, f.archive)

	trxs := f.record(t, 10)

	var headers []block.Header
	for {
		h, ok, err := l.Forge(ctx)
		require.Nil(t, err)
		if !ok {
			break
		}
		headers = append(headers, h)
	}
	require.Len(t, headers, 3)

	assert.Equal(t, uint64(0), headers[0].Height)
	assert.Equal(t, block.GenesisPrevBlock, headers[0].PrevBlock)
	for i := 1; i < len(headers); i++ {
		assert.Nil(t, headers[i].Follows(&headers[i-1]))
	}

	assert.Equal(t, block.MerkleRoot(hashesOf(trxs[:4])), headers[0].MerkleRoot)
	assert.Equal(t, block.MerkleRoot(hashesOf(trxs[4:8])), headers[1].MerkleRoot)
	assert.Equal(t, block.MerkleRoot(hashesOf(trxs[8:])), headers[2].MerkleRoot)

	archived, err := f.archive.Read(headers[1].CID)
	require.Nil(t, err)
	assert.Equal(t, hashesOf(trxs[4:8]), hashesOf(archived))

	count, err := f.db.CountTransactions(ctx)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), count)

	for _, expected := range headers {
		stored, ok, err := f.db.ReadBlockByHeight(ctx, expected.Height)
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, expected, stored)
		assert.Equal(t, expected, <-sub.Channel())
	}
}

func TestForgeArchiveFailureKeepsTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := f.ledger(t, Config{BlockIntervalSeconds: 1, BlockTransactionsSize: 10}, failingArchive{})
	f.record(t, 3)

	_, ok, err := l.Forge(ctx)
	assert.ErrorIs(t, err, errArchiveDown)
	assert.False(t, ok)

	count, err := f.db.CountTransactions(ctx)
	assert.Nil(t, err)
	assert.Equal(t, int64(3), count)

	_, ok, err = f.db.LastBlockHeight(ctx)
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestForgeFailedCommitDoesNotDuplicateTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	db := &flakyCommit{DataBase: f.db, failures: 1}
	l, err := New(Config{BlockIntervalSeconds: 1, BlockTransactionsSize: 10}, db, f.archive, silentLogger{}, f.rx)
	require.Nil(t, err)
	trxs := f.record(t, 3)

	_, ok, err := l.Forge(ctx)
	assert.ErrorIs(t, err, errCommitLost)
	assert.False(t, ok)

	count, err := f.db.CountTransactions(ctx)
	assert.Nil(t, err)
	assert.Equal(t, int64(3), count)

	h, ok, err := l.Forge(ctx)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), h.Height)
	assert.Equal(t, block.MerkleRoot(hashesOf(trxs)), h.MerkleRoot)

	_, ok, err = l.Forge(ctx)
	assert.Nil(t, err)
	assert.False(t, ok)

	height, ok, err := f.db.LastBlockHeight(ctx)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), height)
}

func TestForgePrunesOldBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := f.ledger(t, Config{BlockIntervalSeconds: 1, BlockTransactionsSize: 1, RetentionBlocks: 3}, f.archive)
	f.record(t, 6)

	var last block.Header
	for i := 0; i < 6; i++ {
		h, ok, err := l.Forge(ctx)
		require.Nil(t, err)
		require.True(t, ok)
		last = h
	}
	assert.Equal(t, uint64(5), last.Height)

	for height := uint64(0); height < 3; height++ {
		_, ok, err := f.db.ReadBlockByHeight(ctx, height)
		assert.Nil(t, err)
		assert.False(t, ok)
	}
	for height := uint64(3); height <= 5; height++ {
		_, ok, err := f.db.ReadBlockByHeight(ctx, height)
		assert.Nil(t, err)
		assert.True(t, ok)
	}

	f.record(t, 1)
	h, ok, err := l.Forge(ctx)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Nil(t, h.Follows(&last))
}

func TestRunForgesOnTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	sub := f.rx.Subscribe()
	defer sub.Cancel()
	l := f.ledger(t, Config{BlockIntervalSeconds: 1, BlockTransactionsSize: 10}, f.archive)
	f.record(t, 2)

	l.Run(ctx)

	select {
	case h := <-sub.Channel():
		assert.Equal(t, uint64(0), h.Height)
	case <-time.After(5 * time.Second):
		t.Fatal("block was not forged in time")
	}
}
