package control

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/frudas24/raspacar/internal/drive"
	"github.com/frudas24/raspacar/internal/joystick"
	"github.com/frudas24/raspacar/internal/session"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Policy decides what happens when a second driver connects.
type Policy int

const (
	// PolicyReplace closes the current driver and accepts the new one.
	PolicyReplace Policy = iota
	// PolicyReject keeps the current driver and refuses the new one.
	PolicyReject
)

const closeWriteTimeout = time.Second

// Server handles the joystick control websocket.
type Server struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	session  *session.Session
	driver   drive.Driver
	policy   Policy
	conn     *websocket.Conn
	debug    bool
	logCmd   rate.Sometimes
}

// NewServer creates a control websocket server.
func NewServer(sess *session.Session, driver drive.Driver, policy Policy) *Server {
	return &Server{
		session: sess,
		driver:  driver,
		policy:  policy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logCmd: rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}
}

// SetDebugLogging logs every received command when enabled.
func (s *Server) SetDebugLogging(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = enabled
}

// ServeHTTP upgrades the connection and processes control messages.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.session.IsAuthenticated() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if !s.acceptConn(conn) {
		log.Printf("control: rejected driver from %s, one already connected", r.RemoteAddr)
		closeWith(conn, websocket.CloseTryAgainLater, "driver already connected")
		_ = conn.Close()
		return
	}
	log.Printf("control: driver connected from %s", r.RemoteAddr)
	defer s.cleanupConn(conn, r.RemoteAddr)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("control: read from %s: %v", r.RemoteAddr, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.handleFrame(data)
	}
}

// Close drops the active driver, if any.
func (s *Server) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		_ = conn.Close()
	}
}

// acceptConn applies the connection policy.
func (s *Server) acceptConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	prev := s.conn
	if prev != nil && s.policy == PolicyReject {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.mu.Unlock()

	if prev != nil {
		log.Printf("control: replacing driver %s", prev.RemoteAddr())
		closeWith(prev, websocket.CloseNormalClosure, "replaced by another driver")
		_ = prev.Close()
	}
	s.session.SetDriverConnected(true)
	return true
}

// cleanupConn clears the active connection and stops the car. A driver that
// was replaced leaves the motors to its successor.
func (s *Server) cleanupConn(conn *websocket.Conn, addr string) {
	s.mu.Lock()
	active := s.conn == conn
	if active {
		s.conn = nil
		s.session.SetDriverConnected(false)
	}
	s.mu.Unlock()
	_ = conn.Close()
	if !active {
		log.Printf("control: replaced driver %s disconnected", addr)
		return
	}
	if err := s.driver.Stop(); err != nil {
		log.Printf("control: stop after disconnect: %v", err)
	}
	log.Printf("control: driver %s disconnected", addr)
}

// handleFrame applies one text frame. Bad frames are logged and skipped.
func (s *Server) handleFrame(data []byte) {
	frame, err := Decode(data)
	if err != nil {
		log.Printf("control: %v", err)
		return
	}
	if frame.Stop {
		s.session.RecordCommand(joystick.Command{})
		if err := s.driver.Stop(); err != nil {
			log.Printf("control: stop: %v", err)
		}
		return
	}

	cmd := frame.Command
	s.session.RecordCommand(cmd)
	s.logCommand(cmd)
	if !s.session.DriveEnabled() {
		if err := s.driver.Stop(); err != nil {
			log.Printf("control: stop: %v", err)
		}
		return
	}
	if err := s.driver.Move(cmd.X, cmd.Y); err != nil {
		log.Printf("control: move %s: %v", cmd, err)
	}
}

// logCommand logs every command in debug mode, otherwise only now and then.
func (s *Server) logCommand(cmd joystick.Command) {
	s.mu.Lock()
	debug := s.debug
	s.mu.Unlock()
	if debug {
		log.Printf("control: command %s", cmd)
		return
	}
	s.logCmd.Do(func() {
		log.Printf("control: command %s", cmd)
	})
}

// closeWith sends a close frame without waiting for the peer.
func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
}
