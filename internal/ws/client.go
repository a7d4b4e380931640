// Package ws wraps the realtime channel to the preview backend. It owns the
// raw socket and its read pump; connection policy (resets, generations,
// reconnects) lives in core.
package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Frame is one inbound message, or the terminal read error that closed the
// channel. After an error frame the Frames channel is closed.
type Frame struct {
	Data []byte
	Err  error
}

// Transport is the duplex channel the session drives. Satisfied by *Conn and
// by test fakes.
type Transport interface {
	Send(v any) error
	Close() error
	Frames() <-chan Frame
}

// Dialer opens a Transport. Injected into the session so tests can supply a
// fake channel.
type Dialer func(ctx context.Context, url string) (Transport, error)

// Conn is one live websocket connection.
type Conn struct {
	conn   *websocket.Conn
	frames chan Frame
	log    *zap.Logger
}

// Dial opens the socket and starts the read pump.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Conn{
		conn:   conn,
		frames: make(chan Frame, 32),
		log:    log,
	}
	go c.readPump()
	return c, nil
}

func (c *Conn) readPump() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Info("websocket closed", zap.Error(err))
			c.frames <- Frame{Err: err}
			return
		}
		c.frames <- Frame{Data: data}
	}
}

// Send writes one JSON message. All sends are serialized by the session
// loop, which gorilla requires.
func (c *Conn) Send(v any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) Frames() <-chan Frame {
	return c.frames
}
