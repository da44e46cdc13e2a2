package archive

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/bartossh/Rollupis/transaction"
	"github.com/dgraph-io/badger/v4"
	"github.com/ipfs/go-cid"
)

const (
	gcRuntimeTick = time.Minute * 5
	gcDiscard     = 0.5
)

// Badger archives transactions batches in the badger key value store keyed by the content identifier.
type Badger struct {
	db *badger.DB
}

// NewBadger opens badger archive in the configured directory.
// The value log garbage collection runs until the context is canceled.
func NewBadger(ctx context.Context, cfg Config) (*Badger, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, err
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.Path).WithLogger(nil))
	if err != nil {
		return nil, err
	}

	go func() {
		ticker := time.NewTicker(gcRuntimeTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if db.IsClosed() {
					return
				}
				db.RunValueLogGC(gcDiscard)
			}
		}
	}()

	return &Badger{db: db}, nil
}

// Archive stores the batch and returns its content identifier.
// Archiving the same batch twice gives the same identifier.
func (b *Badger) Archive(ctx context.Context, trxs []transaction.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, c, err := encode(trxs)
	if err != nil {
		return "", err
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(c), raw))
	}); err != nil {
		return "", err
	}
	return c, nil
}

// Read reads the batch archived under given identifier and checks the content matches it.
func (b *Badger) Read(id string) ([]transaction.Transaction, error) {
	parsed, err := cid.Decode(id)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(parsed.String()))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	}); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, err
	}

	return decode(parsed, raw)
}

// Close closes the underlying store.
func (b *Badger) Close() error {
	return b.db.Close()
}
