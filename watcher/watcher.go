package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/logger"
	"github.com/bartossh/Rollupis/server"
	"github.com/fasthttp/websocket"
)

const (
	wsConnectionTimeout = 5 * time.Second
	wsPingPeriod        = 10 * time.Second
	wsWriteWait         = 5 * time.Second
)

var (
	ErrEmptyWebsocket  = errors.New("websocket address must be specified")
	ErrUnknownCommand  = errors.New("unknown command received")
	ErrConnectionLost  = errors.New("websocket connection lost")
	ErrCorruptedHeader = errors.New("block header hash is corrupted")
)

// Config contains configuration of the watcher.
type Config struct {
	Websocket string `yaml:"websocket"` // Websocket address of the rollup node, e.g. ws://localhost:8080/ws.
}

// Validate validates the watcher configuration.
func (c Config) Validate() error {
	if c.Websocket == "" {
		return ErrEmptyWebsocket
	}
	return nil
}

// NotifyFunc is called for every observed block with the chain continuity check result.
type NotifyFunc func(h block.Header, err error)

// Watcher audits the stream of block headers produced by the rollup node.
// Every header has to carry a valid hash and link to the previously observed one.
type Watcher struct {
	mux    sync.Mutex
	last   *block.Header
	log    logger.Logger
	notify NotifyFunc
}

// New creates Watcher, notify may be nil.
func New(log logger.Logger, notify NotifyFunc) *Watcher {
	return &Watcher{log: log, notify: notify}
}

// Last returns the last observed header with a valid hash.
func (w *Watcher) Last() (block.Header, bool) {
	w.mux.Lock()
	defer w.mux.Unlock()
	if w.last == nil {
		return block.Header{}, false
	}
	return *w.last, true
}

// Observe checks the header against the previously observed one.
// Header with a valid hash becomes the reference for the next check even if it broke the chain,
// so a single missed block is reported once.
func (w *Watcher) Observe(h *block.Header) error {
	w.mux.Lock()
	defer w.mux.Unlock()

	err := h.Follows(w.last)
	switch {
	case err == nil:
		w.log.Info(fmt.Sprintf("watcher, block [ %d ] %s follows the chain", h.Height, h.CurBlock))
	case h.CurBlock != h.ComputeHash():
		err = errors.Join(ErrCorruptedHeader, err)
		w.log.Error(fmt.Sprintf("watcher, block [ %d ] rejected: %s", h.Height, err))
	default:
		w.log.Error(fmt.Sprintf("watcher, chain break at block [ %d ]: %s", h.Height, err))
	}

	if !errors.Is(err, ErrCorruptedHeader) {
		cp := *h
		w.last = &cp
	}
	if w.notify != nil {
		w.notify(*h, err)
	}
	return err
}

// Run connects to the rollup node websocket and observes the streamed blocks.
// It blocks until the context is canceled or the connection is lost.
func (w *Watcher) Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, wsConnectionTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(ctxTimeout, cfg.Websocket, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctxx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.pushPump(ctxx, conn)
	}()

	err = w.pullPump(ctxx, cancel, conn)
	wg.Wait()
	return err
}

func (w *Watcher) pullPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) error {
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		var msg server.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Join(ErrConnectionLost, err)
		}
		if msg.Error != "" {
			w.log.Error(fmt.Sprintf("watcher, node sent error: %s", msg.Error))
			continue
		}
		switch msg.Command {
		case server.CommandNewBlock:
			w.Observe(&msg.Block)
		default:
			w.log.Warn(fmt.Sprintf("watcher, %s: %s", ErrUnknownCommand, msg.Command))
		}
	}
}

func (w *Watcher) pushPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				w.log.Warn(fmt.Sprintf("watcher, writing ping failed: %s", err))
				return
			}
		case <-ctx.Done():
			w.log.Info("watcher, closing connection")
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
				w.log.Warn(fmt.Sprintf("watcher, writing close message failed: %s", err))
			}
			return
		}
	}
}
