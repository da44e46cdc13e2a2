package server

import (
	"context"
	"fmt"
	"time"

	"github.com/bartossh/Rollupis/block"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	socketWriteWait       = 10 * time.Second
	socketPongWait        = 20 * time.Second
	socketPingPeriod      = (socketPongWait * 4) / 5
	socketMaxMessageSize  = 512
	socketCloseReasonStop = "rollup node stopped"
)

const (
	CommandNewBlock = "command_new_block"
)

// Message is the message streamed to the websocket clients.
type Message struct {
	Command string       `json:"command"`         // Command is the command that refers to the action handler in websocket protocol.
	Error   string       `json:"error,omitempty"` // Error is the error message that is sent to the client.
	Block   block.Header `json:"block"`           // Block is the newly forged block header.
}

func (s *server) wsWrapper(ctx context.Context, c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	s.log.Info(fmt.Sprintf("websocket server, new connection from address: %s accepted", c.IP()))

	return websocket.New(func(conn *websocket.Conn) {
		ctxx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.readPump(ctxx, cancel, conn)
		}()
		s.writePump(ctxx, cancel, conn)
		<-done
	})(c)
}

// readPump only keeps the connection alive and detects the client going away.
func (s *server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(socketMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(socketPongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Info(fmt.Sprintf("websocket server, connection closed unexpectedly: %s", err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *server) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	sub := s.rx.Subscribe()
	ticker := time.NewTicker(socketPingPeriod)
	defer func() {
		ticker.Stop()
		sub.Cancel()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, socketCloseReasonStop),
			time.Now().Add(socketWriteWait))
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-sub.Channel():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteJSON(Message{Command: CommandNewBlock, Block: h}); err != nil {
				s.log.Warn(fmt.Sprintf("websocket server, writing block [ %d ] failed: %s", h.Height, err))
				cancel()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				return
			}
		}
	}
}
