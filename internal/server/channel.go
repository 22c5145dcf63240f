package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// controlWriteWait bounds ping and close frame writes.
	controlWriteWait = 5 * time.Second

	// maxCloseReason is the largest reason that fits in a close frame.
	maxCloseReason = 123
)

// wsChannel adapts a gorilla connection to domain.Channel. It keeps the read
// deadline alive with pings and extends it on every pong.
type wsChannel struct {
	conn       *websocket.Conn
	remoteAddr string
	pongWait   time.Duration
	logger     *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newWSChannel(conn *websocket.Conn, cfg config.ServerConfig, remoteAddr string, logger *zap.Logger) *wsChannel {
	c := &wsChannel{
		conn:       conn,
		remoteAddr: remoteAddr,
		pongWait:   cfg.PongWait,
		logger:     logger,
		done:       make(chan struct{}),
	}

	conn.SetReadLimit(cfg.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	go c.keepalive(cfg.PingInterval)
	return c
}

// Receive returns the next text frame. Binary frames are skipped. It does not
// watch ctx; Close unblocks it.
func (c *wsChannel) Receive(ctx context.Context) (string, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return "", io.EOF
			}
			return "", err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		if msgType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", zap.Int("type", msgType))
			continue
		}
		return string(data), nil
	}
}

// Send writes frame as one text message, bounded by ctx's deadline.
func (c *wsChannel) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close attempts a polite close frame and then drops the connection.
func (c *wsChannel) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		msg := websocket.FormatCloseMessage(code, reason)
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait)); werr != nil &&
			!errors.Is(werr, websocket.ErrCloseSent) {
			c.logger.Debug("Close frame not sent", zap.Error(werr))
		}
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) RemoteAddr() string { return c.remoteAddr }

func (c *wsChannel) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				c.logger.Debug("Failed to send ping, closing connection", zap.Error(err))
				// Unblocks Receive, which ends the session.
				_ = c.conn.Close()
				return
			}
		}
	}
}
