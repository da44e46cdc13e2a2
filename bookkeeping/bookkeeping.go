package bookkeeping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/logger"
	"github.com/bartossh/Rollupis/transaction"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	minBlockInterval = time.Second
	maxBlockInterval = time.Hour * 4 // value is picked arbitrary

	minBlockTransactionsSize = 1
	maxBlockTransactionsSize = 60000
)

var (
	ErrBlockIntervalNotInRange         = errors.New("block interval is not in range of [one second : four hours]")
	ErrBlockTransactionsSizeNotInRange = errors.New("block transactions size is not in range of [1 : 60000]")
	ErrTipMissing                      = errors.New("last block height is known but the block cannot be read")
)

// TrxReader provides method to read committed transactions in sequence order.
type TrxReader interface {
	ReadTransactions(ctx context.Context, limit int) ([]transaction.Transaction, error)
}

// BlockReadWriter provides block read, commit and prune methods.
// CommitBlock stores the block and removes the included transactions atomically.
type BlockReadWriter interface {
	LastBlockHeight(ctx context.Context) (uint64, bool, error)
	ReadBlockByHeight(ctx context.Context, height uint64) (block.Header, bool, error)
	CommitBlock(ctx context.Context, h *block.Header, cid string, included []hashing.Hash) (block.Header, error)
	RemoveBlocksBelow(ctx context.Context, height uint64) error
}

// DataBaseProvider abstracts all the methods that are expected from repository.
type DataBaseProvider interface {
	TrxReader
	BlockReadWriter
}

// Archiver stores the transactions batch and returns its content identifier.
type Archiver interface {
	Archive(ctx context.Context, trxs []transaction.Transaction) (string, error)
}

// BlockReactivePublisher provides block publishing method.
// It uses reactive package. It you are using your own implementation of reactive package
// take care of Publish method to be non-blocking.
type BlockReactivePublisher interface {
	Publish(block.Header) int
}

// Config is a configuration of the Ledger.
type Config struct {
	BlockIntervalSeconds  uint64 `yaml:"block_interval_seconds"`  // BlockIntervalSeconds is the time between forging rounds.
	BlockTransactionsSize int    `yaml:"block_transactions_size"` // BlockTransactionsSize is the maximum number of transactions in a block.
	RetentionBlocks       uint64 `yaml:"retention_blocks"`        // RetentionBlocks is the number of newest blocks kept, 0 keeps all.
}

// Validate validates the Ledger configuration.
func (c Config) Validate() error {
	if time.Duration(c.BlockIntervalSeconds)*time.Second < minBlockInterval ||
		time.Duration(c.BlockIntervalSeconds)*time.Second > maxBlockInterval {
		return ErrBlockIntervalNotInRange
	}

	if c.BlockTransactionsSize < minBlockTransactionsSize || c.BlockTransactionsSize > maxBlockTransactionsSize {
		return ErrBlockTransactionsSizeNotInRange
	}

	return nil
}

// Ledger seals the committed transactions in the chained blocks.
// Every block is anchored in the archive by the content identifier of its transactions.
type Ledger struct {
	mux     sync.Mutex
	id      string
	config  Config
	db      DataBaseProvider
	archive Archiver
	log     logger.Logger
	blcPub  BlockReactivePublisher
	now     func() time.Time
}

// New creates new Ledger if config is valid or returns error otherwise.
func New(
	config Config,
	db DataBaseProvider,
	archive Archiver,
	log logger.Logger,
	blcPub BlockReactivePublisher,
) (*Ledger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Ledger{
		id:      primitive.NewObjectID().Hex(),
		config:  config,
		db:      db,
		archive: archive,
		log:     log,
		blcPub:  blcPub,
		now:     time.Now,
	}, nil
}

// Run runs the Ledger engine that forges blocks every block interval.
// Run starts a goroutine and can be stopped by cancelling the context.
// It is non-blocking and concurrent safe.
func (l *Ledger) Run(ctx context.Context) {
	go func(ctx context.Context) {
		ticker := time.NewTicker(time.Duration(l.config.BlockIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := l.Forge(ctx); err != nil {
					l.log.Error(fmt.Sprintf("ledger [ %s ], forging block failed: %s", l.id, err))
				}
			}
		}
	}(ctx)
}

// Forge performs a single forging round. It returns false when there was nothing to forge.
// Transactions are removed from the ledger in the same storage transaction that writes the block holding them,
// so a failed round leaves them for the next one and no transaction lands in two blocks.
func (l *Ledger) Forge(ctx context.Context) (block.Header, bool, error) {
	l.mux.Lock()
	defer l.mux.Unlock()

	trxs, err := l.db.ReadTransactions(ctx, l.config.BlockTransactionsSize)
	if err != nil {
		return block.Header{}, false, err
	}
	if len(trxs) == 0 {
		return block.Header{}, false, nil
	}

	height, prev, err := l.next(ctx)
	if err != nil {
		return block.Header{}, false, err
	}

	cid, err := l.archive.Archive(ctx, trxs)
	if err != nil {
		return block.Header{}, false, err
	}

	hashes := make([]hashing.Hash, 0, len(trxs))
	for _, trx := range trxs {
		hashes = append(hashes, trx.Hash)
	}

	nb := block.NewHeader(height, prev, hashes, l.now().Unix())
	h, err := l.db.CommitBlock(ctx, &nb, cid, hashes)
	if err != nil {
		return block.Header{}, false, err
	}

	if err := l.prune(ctx, h.Height); err != nil {
		l.log.Warn(fmt.Sprintf("ledger [ %s ], pruning below block [ %d ] failed: %s", l.id, h.Height, err))
	}

	l.blcPub.Publish(h)
	l.log.Info(fmt.Sprintf("ledger [ %s ], block [ %d ] forged with [ %d ] transactions, cid %s", l.id, h.Height, len(trxs), cid))

	return h, true, nil
}

func (l *Ledger) next(ctx context.Context) (uint64, hashing.Hash, error) {
	height, ok, err := l.db.LastBlockHeight(ctx)
	if err != nil {
		return 0, hashing.Zero, err
	}
	if !ok {
		return 0, block.GenesisPrevBlock, nil
	}
	tip, ok, err := l.db.ReadBlockByHeight(ctx, height)
	if err != nil {
		return 0, hashing.Zero, err
	}
	if !ok {
		return 0, hashing.Zero, errors.Join(ErrTipMissing, fmt.Errorf("height %d", height))
	}
	return tip.Height + 1, tip.CurBlock, nil
}

func (l *Ledger) prune(ctx context.Context, height uint64) error {
	if l.config.RetentionBlocks == 0 || height < l.config.RetentionBlocks {
		return nil
	}
	return l.db.RemoveBlocksBelow(ctx, height-l.config.RetentionBlocks+1)
}
