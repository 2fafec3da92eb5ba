// Package listener owns the TCP control socket: the accept loop and the
// per-connection frame handler.
package listener

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mattjoyce/knock/internal/events"
	"github.com/mattjoyce/knock/internal/log"
	"github.com/mattjoyce/knock/internal/protocol"
	"github.com/mattjoyce/knock/internal/queue"
)

// DefaultReadTimeout bounds the single read made on each connection.
const DefaultReadTimeout = 5 * time.Second

const maxAcceptDelay = time.Second

// Server accepts connections one at a time and forwards each decoded frame
// to the dispatch queue.
type Server struct {
	sender      *queue.Sender
	readTimeout time.Duration
	events      events.Publisher
	logger      *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithEvents publishes connection activity to p.
func WithEvents(p events.Publisher) Option {
	return func(s *Server) { s.events = p }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server. Every connection enqueues through its own clone of
// sender; the caller keeps ownership of sender itself.
func New(sender *queue.Sender, opts ...Option) *Server {
	s := &Server{
		sender:      sender,
		readTimeout: DefaultReadTimeout,
		events:      events.Nop{},
		logger:      log.WithComponent("listener"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the control socket.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return ln, nil
}

// Serve runs the accept loop on ln and closes ln on return.
//
// Each accepted connection is handled on its own goroutine, but Serve waits
// for it before accepting the next, so connections are serviced strictly one
// at a time. Serve returns nil once a handler reports a shutdown frame, or
// the accept error once ln is closed.
func (s *Server) Serve(ln net.Listener) error {
	defer ln.Close()

	s.logger.Debug("listening", "addr", ln.Addr().String())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Debug("error on accept", "error", err)
			delay = nextAcceptDelay(delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if s.serveConn(conn) {
			s.logger.Debug("shutdown requested, closing listener")
			return nil
		}
	}
}

// serveConn runs the handler on a dedicated goroutine and waits for it.
func (s *Server) serveConn(conn net.Conn) bool {
	sender := s.sender.Clone()
	done := make(chan bool, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Debug("connection handler panic", "panic", r)
				done <- false
			}
		}()
		done <- s.handle(conn, sender)
	}()

	shutdown := <-done
	s.logger.Debug("connection handled", "shutdown", shutdown)
	return shutdown
}

// handle makes exactly one read of up to FrameSize bytes, decodes it and
// enqueues the result. It reports whether the frame requested shutdown.
func (s *Server) handle(conn net.Conn, sender *queue.Sender) bool {
	defer conn.Close()
	defer sender.Close()

	peer := conn.RemoteAddr().String()
	logger := s.logger.With("peer", peer)

	if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		logger.Debug("error setting read deadline", "error", err)
		return false
	}

	var buf [protocol.FrameSize]byte
	n, err := conn.Read(buf[:])
	if n == 0 {
		// Timeouts, resets and clean EOF before any byte all land here.
		logger.Debug("error on read", "error", err)
		s.events.Publish(events.FrameDropped, dropEvent{Peer: peer, Error: errString(err)})
		return false
	}

	// Unfilled trailing bytes stay zero, so a short frame fails validation.
	msg := protocol.Decode(buf)
	logger.Debug("frame received", "bytes", n, "command", msg.Command, "value", msg.Value)
	s.events.Publish(events.FrameReceived, frameEvent{
		Peer:    peer,
		Bytes:   n,
		Valid:   protocol.Valid(buf),
		Command: msg.Command,
		Value:   msg.Value,
	})

	if err := sender.Send(msg); err != nil {
		logger.Debug("error on dispatch queue send", "error", err)
	}

	if msg.IsShutdown() {
		s.events.Publish(events.ShutdownRequested, dropEvent{Peer: peer})
		return true
	}
	return false
}

type frameEvent struct {
	Peer    string `json:"peer"`
	Bytes   int    `json:"bytes"`
	Valid   bool   `json:"valid"`
	Command byte   `json:"command"`
	Value   byte   `json:"value"`
}

type dropEvent struct {
	Peer  string `json:"peer"`
	Error string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// nextAcceptDelay backs off persistent accept failures (e.g. EMFILE) so the
// loop keeps retrying without spinning.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	next := prev * 2
	if next > maxAcceptDelay {
		next = maxAcceptDelay
	}
	return next
}
