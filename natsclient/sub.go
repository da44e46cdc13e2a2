package natsclient

import (
	"fmt"

	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/logger"
	"github.com/nats-io/nats.go"
)

// Subscriber provides functionality to pull messages from the pub/sub queue.
type Subscriber struct {
	*socket
}

// SubscriberConnect connects subscriber to the pub/sub queue using provided config
func SubscriberConnect(cfg Config) (*Subscriber, error) {
	s, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{socket: s}, nil
}

// SubscribeNewBlock calls call for every new block header published.
// Messages that cannot be decoded are logged and skipped.
func (s *Subscriber) SubscribeNewBlock(call func(h *block.Header), log logger.Logger) error {
	_, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		h, err := decodeHeader(msg.Data)
		if err != nil {
			log.Error(fmt.Sprintf("nats subscriber, decoding block header failed: %s", err))
			return
		}
		call(&h)
	})
	return err
}
