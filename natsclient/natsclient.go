package natsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bartossh/Rollupis/block"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject new block headers are published on when none is configured.
const DefaultSubject = "rollup.new_block"

const (
	maxReconnects = 10
	reconnectWait = 2 * time.Second
)

var (
	ErrEmptyAddressProvided = errors.New("nats server address is empty")
	ErrWrongAddressScheme   = errors.New("nats server address scheme must be nats or tls")
)

// Config contains all arguments required to connect to the nats service.
// Address is the nats server address, e.g. nats://localhost:4222.
// Subject is the subject of new block headers, DefaultSubject when empty.
type Config struct {
	Address string `yaml:"server_address"`
	Name    string `yaml:"client_name"`
	Token   string `yaml:"token"`
	Subject string `yaml:"subject"`
}

// Validate validates the nats configuration.
func (c Config) Validate() error {
	if c.Address == "" {
		return ErrEmptyAddressProvided
	}
	u, err := url.Parse(c.Address)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "nats", "tls":
		return nil
	default:
		return errors.Join(ErrWrongAddressScheme, fmt.Errorf("scheme %q", u.Scheme))
	}
}

func (c Config) subject() string {
	if c.Subject == "" {
		return DefaultSubject
	}
	return c.Subject
}

type socket struct {
	conn    *nats.Conn
	subject string
}

func connect(cfg Config) (*socket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := nats.Connect(
		cfg.Address,
		nats.Name(cfg.Name),
		nats.Token(cfg.Token),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
	)
	if err != nil {
		return nil, err
	}
	return &socket{conn: conn, subject: cfg.subject()}, nil
}

// Disconnect drains the message queue and disconnects from the pub/sub.
// Pending messages are delivered before the connection is closed.
func (s *socket) Disconnect() error {
	return s.conn.Drain()
}

func encodeHeader(h *block.Header) ([]byte, error) {
	return json.Marshal(h)
}

func decodeHeader(data []byte) (block.Header, error) {
	var h block.Header
	err := json.Unmarshal(data, &h)
	return h, err
}
