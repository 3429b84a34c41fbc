// Package client is the Go transport for the joystick: one websocket to the
// car's /ws endpoint carrying JSON commands.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/frudas24/raspacar/internal/joystick"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send once the socket is gone.
var ErrNotConnected = errors.New("not connected")

const (
	defaultWriteWait = 2 * time.Second
	closeWait        = time.Second
)

// Options tunes Dial.
type Options struct {
	// WriteTimeout bounds a single command write.
	WriteTimeout time.Duration
	// Header is sent with the upgrade request.
	Header http.Header
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Conn is a connected control socket. It implements joystick.Sender.
type Conn struct {
	mu        sync.Mutex
	ws        *websocket.Conn
	state     joystick.ConnState
	onState   func(joystick.ConnState)
	writeWait time.Duration
	done      chan struct{}
}

var _ joystick.Sender = (*Conn)(nil)

// Dial opens the control socket. The connection is never re-established;
// once it drops the caller has to Dial again.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	writeWait := opts.WriteTimeout
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	c := &Conn{
		ws:        ws,
		state:     joystick.Connected,
		writeWait: writeWait,
		done:      make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// OnStateChange registers fn and calls it once with the current state.
func (c *Conn) OnStateChange(fn func(joystick.ConnState)) {
	c.mu.Lock()
	c.onState = fn
	state := c.state
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// State returns the lifecycle state.
func (c *Conn) State() joystick.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open reports whether commands can be sent.
func (c *Conn) Open() bool {
	return c.State() == joystick.Connected
}

// Send writes one command as {"x":..,"y":..}.
func (c *Conn) Send(cmd joystick.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != joystick.Connected {
		return ErrNotConnected
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := c.ws.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Done is closed when the socket has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and tears the socket down.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	err := c.ws.Close()
	<-c.done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// readPump drains server frames and flips the state when the socket closes.
func (c *Conn) readPump() {
	defer close(c.done)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				log.Printf("client: connection lost: %v", err)
			}
			break
		}
	}
	c.setState(joystick.Disconnected)
}

// setState updates the state and notifies the listener outside the lock.
func (c *Conn) setState(state joystick.ConnState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}
