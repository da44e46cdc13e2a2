package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bartossh/Rollupis/transaction"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const fileExtension = ".json"

// Engines of the archive.
const (
	EngineLocal  = "local"
	EngineBadger = "badger"
)

var (
	ErrEmptyPath      = errors.New("archive path is empty")
	ErrEmptyBatch     = errors.New("cannot archive empty batch")
	ErrContentAltered = errors.New("archived content does not match its identifier")
	ErrUnknownEngine  = errors.New("unknown archive engine")
	ErrNotFound       = errors.New("archived batch not found")
)

// Config contains archive configuration.
type Config struct {
	Engine string `yaml:"engine"` // Engine is one of local or badger, local when empty.
	Path   string `yaml:"path"`   // Path is the directory holding archived batches.
}

// Store archives transactions batches addressed by the content identifier.
type Store interface {
	Archive(ctx context.Context, trxs []transaction.Transaction) (string, error)
	Read(id string) ([]transaction.Transaction, error)
	Close() error
}

// Open opens the archive of the configured engine.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Engine {
	case "", EngineLocal:
		return NewLocal(cfg)
	case EngineBadger:
		return NewBadger(ctx, cfg)
	default:
		return nil, errors.Join(ErrUnknownEngine, fmt.Errorf("engine %q", cfg.Engine))
	}
}

// ComputeCID returns CIDv1 string of raw data hashed with sha2-256.
func ComputeCID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

func encode(trxs []transaction.Transaction) ([]byte, string, error) {
	if len(trxs) == 0 {
		return nil, "", ErrEmptyBatch
	}
	raw, err := json.Marshal(trxs)
	if err != nil {
		return nil, "", err
	}
	c, err := ComputeCID(raw)
	if err != nil {
		return nil, "", err
	}
	return raw, c, nil
}

func decode(id cid.Cid, raw []byte) ([]transaction.Transaction, error) {
	c, err := ComputeCID(raw)
	if err != nil {
		return nil, err
	}
	if c != id.String() {
		return nil, errors.Join(ErrContentAltered, fmt.Errorf("expected %s, got %s", id, c))
	}
	var trxs []transaction.Transaction
	if err := json.Unmarshal(raw, &trxs); err != nil {
		return nil, err
	}
	return trxs, nil
}

// Local archives transactions batches as files on the local disk,
// each file named by the content identifier of its bytes.
type Local struct {
	path string
}

// NewLocal creates local archive, creating the directory if needed.
func NewLocal(cfg Config) (*Local, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, err
	}
	return &Local{path: cfg.Path}, nil
}

// Archive stores the batch and returns its content identifier.
// Archiving the same batch twice gives the same identifier.
func (l *Local) Archive(ctx context.Context, trxs []transaction.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, c, err := encode(trxs)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(l.file(c), raw, 0644); err != nil {
		return "", err
	}
	return c, nil
}

// Read reads the batch archived under given identifier and checks the content matches it.
func (l *Local) Read(id string) ([]transaction.Transaction, error) {
	parsed, err := cid.Decode(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(l.file(parsed.String()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, err
	}
	return decode(parsed, raw)
}

// Close is a no-op, files are written synchronously.
func (l *Local) Close() error {
	return nil
}

func (l *Local) file(id string) string {
	return filepath.Join(l.path, id+fileExtension)
}
