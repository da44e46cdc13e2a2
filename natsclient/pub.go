package natsclient

import (
	"errors"
	"fmt"

	"github.com/bartossh/Rollupis/block"
)

var ErrPublishFailed = errors.New("publishing to nats failed")

// Publisher pushes new block headers to the pub/sub queue.
type Publisher struct {
	*socket
}

// PublisherConnect connects publisher to the pub/sub queue using provided config.
func PublisherConnect(cfg Config) (*Publisher, error) {
	s, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{socket: s}, nil
}

// PublishNewBlock publishes newly forged block header.
func (p *Publisher) PublishNewBlock(h *block.Header) error {
	msg, err := encodeHeader(h)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, msg); err != nil {
		return errors.Join(ErrPublishFailed, fmt.Errorf("block [ %d ]: %w", h.Height, err))
	}
	return nil
}
