package zincaddapter

import (
	"errors"
	"fmt"
	"time"

	"github.com/bartossh/Rollupis/httpclient"
)

const (
	healthz              = "/healthz"
	createDocumentWithId = "/api/%s/_doc"
)

const timeout = time.Second * 5

var (
	ErrEmptyAddressProvided    = errors.New("empty zincsearch address provided")
	ErrEmptyIndexProvided      = errors.New("empty zincsearch index provided")
	ErrZincServerNotResponding = errors.New("zinc server not responding on given address")
	ErrZincServerWriteFailed   = errors.New("zinc server write failed")
)

// Config contains configuration for logger back-end.
type Config struct {
	Address string `yaml:"address"` // Address of the logger back-end server.
	Index   string `yaml:"index"`   // Index is unique per service to easy search for logs by the service.
	Token   string `yaml:"token"`   // Token is the value of the Authorization header, e.g. Basic <base64 user:password>.
}

type message struct {
	AdditionalProp1 struct {
		Message string `json:"message"`
	} `json:"additionalProp1"`
}

// ZincClient provides a client that sends logs to the zincsearch backend.
type ZincClient struct {
	address   string
	indexName string
	token     string
}

// New creates a new ZincClient checking the backend is healthy.
func New(cfg Config) (ZincClient, error) {
	if cfg.Address == "" {
		return ZincClient{}, ErrEmptyAddressProvided
	}
	if cfg.Index == "" {
		return ZincClient{}, ErrEmptyIndexProvided
	}
	if _, err := httpclient.MakeGet(timeout, fmt.Sprintf("%s%s", cfg.Address, healthz), nil); err != nil {
		return ZincClient{}, errors.Join(ErrZincServerNotResponding, err)
	}
	return ZincClient{address: cfg.Address, indexName: cfg.Index, token: cfg.Token}, nil
}

// Write satisfies io.Writer abstraction.
func (z *ZincClient) Write(p []byte) (n int, err error) {
	var msg message
	msg.AdditionalProp1.Message = string(p)
	url := fmt.Sprintf("%s%s", z.address, fmt.Sprintf(createDocumentWithId, z.indexName))
	if _, err := httpclient.MakePost(timeout, url, z.token, msg, nil); err != nil {
		return 0, errors.Join(ErrZincServerWriteFailed, err)
	}
	return len(p), nil
}
