package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bartossh/Rollupis/logger"
	"github.com/bartossh/Rollupis/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	lastSequenceGauge   = "rollup_client_last_sequence"
	submitTimeHistogram = "rollup_client_submit_time"
)

const (
	noSequence         int64 = -1
	mileageProbability       = 0.8
	maxAmountUnits           = 100000
	amountExponent           = 14
	statusAccepted           = 200
)

const defaultFranchiseeID = "a5c19fed89739383"

var defaultUsers = []string{
	"a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com",
	"f@example.com", "g@example.com", "h@example.com", "i@example.com", "j@example.com",
	"k@example.com", "l@example.com", "m@example.com", "n@example.com", "o@example.com",
	"p@example.com", "q@example.com", "r@example.com", "s@example.com", "t@example.com",
}

var ErrEmptyUser = errors.New("user email must not be empty")

// Sink accepts signed transactions and tells the last sequence it has persisted.
type Sink interface {
	SendTransaction(ctx context.Context, trx *transaction.Transaction) (int, error)
	Sequence(ctx context.Context) (int64, error)
}

// Signer signs transaction messages.
type Signer interface {
	Sign(message []byte) (digest [32]byte, signature []byte)
	Address() string
}

// Measurer records client side metrics.
type Measurer interface {
	CreateUpdateObservableGauge(name, description string)
	CreateUpdateObservableHistogram(name, description string)
	SetGauge(name string, f float64) bool
	RecordHistogramTime(name string, t time.Duration) bool
}

// Config contains configuration of the transaction Coordinator.
type Config struct {
	FranchiseeID string   `yaml:"franchisee_id"` // FranchiseeID is put in every generated transaction.
	Users        []string `yaml:"users"`         // Users is the pool of user emails transactions are generated for.
	WalletPath   string   `yaml:"wallet_path"`   // WalletPath is the path of the PEM file with the signing wallet.
}

// Validate validates the coordinator configuration.
func (c Config) Validate() error {
	for i, u := range c.Users {
		if u == "" {
			return errors.Join(ErrEmptyUser, fmt.Errorf("user at position %d", i))
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.FranchiseeID == "" {
		c.FranchiseeID = defaultFranchiseeID
	}
	if len(c.Users) == 0 {
		c.Users = defaultUsers
	}
	return c
}

// Coordinator keeps the optimistic sequence counter of a single signing identity.
// It generates, signs and submits one transaction per tick and reconciles the counter
// with the sink whenever a submission is not confirmed.
type Coordinator struct {
	mux          sync.Mutex
	lastSequence atomic.Int64
	cfg          Config
	sink         Sink
	signer       Signer
	m            Measurer
	log          logger.Logger
	rnd          *rand.Rand
	now          func() time.Time
}

// New creates a Coordinator with the counter set to -1, call Start to read the sink state.
func New(cfg Config, sink Sink, signer Signer, m Measurer, log logger.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.CreateUpdateObservableGauge(lastSequenceGauge, "Last sequence confirmed or adopted by the client.")
	m.CreateUpdateObservableHistogram(submitTimeHistogram, "Time of transaction submission to the rollup node.")

	c := &Coordinator{
		cfg:    cfg.withDefaults(),
		sink:   sink,
		signer: signer,
		m:      m,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
	c.lastSequence.Store(noSequence)
	return c, nil
}

// LastSequence returns the sequence of the last transaction known to be persisted.
func (c *Coordinator) LastSequence() int64 {
	return c.lastSequence.Load()
}

// Start adopts the sequence persisted by the sink. When the sink cannot tell it the counter stays unchanged.
func (c *Coordinator) Start(ctx context.Context) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.resync(ctx)
}

// Tick builds, signs and submits the next transaction.
// Confirmed submission advances the counter, any other outcome resynchronizes it with the sink.
func (c *Coordinator) Tick(ctx context.Context) {
	c.mux.Lock()
	defer c.mux.Unlock()

	trx, err := c.build()
	if err != nil {
		c.log.Error(fmt.Sprintf("sequencer, building transaction failed: %s", err))
		return
	}

	start := c.now()
	status, err := c.sink.SendTransaction(ctx, &trx)
	c.m.RecordHistogramTime(submitTimeHistogram, c.now().Sub(start))

	if err == nil && status == statusAccepted {
		c.lastSequence.Add(1)
		c.m.SetGauge(lastSequenceGauge, float64(trx.Sequence))
		c.log.Debug(fmt.Sprintf("sequencer, transaction [ %d ] accepted with hash %s", trx.Sequence, trx.Hash))
		return
	}

	c.log.Warn(fmt.Sprintf("sequencer, transaction [ %d ] not accepted, status %d: %v", trx.Sequence, status, err))
	c.resync(ctx)
}

func (c *Coordinator) resync(ctx context.Context) {
	seq, err := c.sink.Sequence(ctx)
	if err != nil {
		c.log.Warn(fmt.Sprintf("sequencer, reading sink sequence failed, keeping [ %d ]: %s", c.lastSequence.Load(), err))
		return
	}
	if seq < noSequence {
		c.log.Warn(fmt.Sprintf("sequencer, sink returned sequence [ %d ], keeping [ %d ]", seq, c.lastSequence.Load()))
		return
	}

	if prev := c.lastSequence.Swap(seq); prev != seq {
		c.log.Warn(fmt.Sprintf("sequencer, sequence drift, local [ %d ] adopted [ %d ]", prev, seq))
	}
	c.m.SetGauge(lastSequenceGauge, float64(seq))
}

func (c *Coordinator) build() (transaction.Transaction, error) {
	method := transaction.MethodToken
	if c.rnd.Float64() < mileageProbability {
		method = transaction.MethodMileage
	}

	trx := transaction.New(
		c.lastSequence.Load()+1,
		uuid.NewString(),
		c.now().Unix(),
		decimal.New(c.rnd.Int63n(maxAmountUnits), amountExponent),
		c.cfg.FranchiseeID,
		c.cfg.Users[c.rnd.Intn(len(c.cfg.Users))],
		method,
	)
	if err := trx.Sign(c.signer); err != nil {
		return transaction.Transaction{}, err
	}
	return trx, nil
}
