package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/logger"
	"github.com/bartossh/Rollupis/reactive"
	"github.com/bartossh/Rollupis/transaction"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	ApiVersion = "1.0.0"
	Header     = "Rollupis-Node"
)

const (
	transactionGroupURL = "/tx"
	blockGroupURL       = "/block"
	recordURL           = "/record"
	sequenceURL         = "/sequence"
	hashURL             = "/hash"
	heightURL           = "/height"
	lastURL             = "/last"
)

const (
	AliveURL             = "/alive"                          // URL to check if server is alive and version.
	RecordTransactionURL = transactionGroupURL + recordURL   // URL to record signed transaction.
	SequenceURL          = transactionGroupURL + sequenceURL // URL to read last received sequence.
	TransactionByHashURL = transactionGroupURL + hashURL     // URL to read transaction, append /<hash>.
	BlockByHeightURL     = blockGroupURL + heightURL         // URL to read block header, append /<height>.
	LastBlockURL         = blockGroupURL + lastURL           // URL to read the newest block header.
	WsURL                = "/ws"                             // URL to connect to websocket streaming new blocks.
)

const (
	minDataSizeBytes = 1024
	maxDataSizeBytes = 15000000
)

var (
	ErrWrongPortSpecified = errors.New("port must be between 1 and 65535")
	ErrWrongMessageSize   = errors.New("message size must be between 1024 and 15000000")
	ErrEmptyAccessToken   = errors.New("access token must be specified")
)

// Repository abstracts the node storage used by the server.
type Repository interface {
	WriteTransactions(ctx context.Context, trxs []transaction.Transaction) error
	ReadTransactionByHash(ctx context.Context, hash hashing.Hash) (transaction.Transaction, bool, error)
	LastReceivedSequence(ctx context.Context) (int64, error)
	WriteLastReceivedSequence(ctx context.Context, seq int64) error
	LastBlockHeight(ctx context.Context) (uint64, bool, error)
	ReadBlockByHeight(ctx context.Context, height uint64) (block.Header, bool, error)
}

// Verifier provides methods to verify the signature of the message.
type Verifier interface {
	Verify(message, signature []byte, hash [32]byte, address string) error
}

// BlockSubscriptionProvider provides reactive subscription to the newly forged blocks.
type BlockSubscriptionProvider interface {
	Subscribe() *reactive.Subscriber[block.Header]
}

// Config contains configuration of the server.
type Config struct {
	Port          int    `yaml:"port"`            // Port to listen on.
	AccessToken   string `yaml:"access_token"`    // AccessToken required in Authorization header to record transactions.
	DataSizeBytes int    `yaml:"data_size_bytes"` // Maximum size of the request body.
}

// Validate validates the server configuration.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrWrongPortSpecified
	}
	if c.DataSizeBytes < minDataSizeBytes || c.DataSizeBytes > maxDataSizeBytes {
		return ErrWrongMessageSize
	}
	if c.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	return nil
}

type server struct {
	mux      sync.Mutex
	token    string
	repo     Repository
	verifier Verifier
	log      logger.Logger
	rx       BlockSubscriptionProvider
}

// Run initializes routing and runs the server. To stop the server cancel the context.
// It blocks until the context is canceled or the server fails to listen.
func Run(
	ctx context.Context, c Config, repo Repository, verifier Verifier,
	log logger.Logger, rx BlockSubscriptionProvider,
) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s := &server{
		token:    c.AccessToken,
		repo:     repo,
		verifier: verifier,
		log:      log,
		rx:       rx,
	}
	router := s.router(ctx, c)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- router.Listen(fmt.Sprintf("0.0.0.0:%v", c.Port))
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	if err := router.Shutdown(); err != nil {
		return err
	}
	return <-listenErr
}

func (s *server) router(ctx context.Context, c Config) *fiber.App {
	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   time.Second * 5,
		WriteTimeout:  time.Second * 5,
		ServerHeader:  Header,
		AppName:       ApiVersion,
		BodyLimit:     c.DataSizeBytes,
		Concurrency:   4096,
	})
	router.Use(recover.New())

	router.Get(AliveURL, s.alive)

	trx := router.Group(transactionGroupURL)
	trx.Post(recordURL, s.record)
	trx.Get(sequenceURL, s.sequence)
	trx.Get(hashURL+"/:hash", s.transactionByHash)

	blk := router.Group(blockGroupURL)
	blk.Get(heightURL+"/:height", s.blockByHeight)
	blk.Get(lastURL, s.lastBlock)

	router.Group(WsURL, func(c *fiber.Ctx) error { return s.wsWrapper(ctx, c) })

	return router
}
