package hl7v2

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MLLP block characters.
const (
	StartBlock     = 0x0B // VT
	EndBlock       = 0x1C // FS
	CarriageReturn = 0x0D // CR
)

const (
	defaultMaxFrameSize = 1 << 20
	mllpIdleTimeout     = 30 * time.Second
	mllpWriteTimeout    = 10 * time.Second
)

// ErrFrameTooLarge is returned by ReadFrame when a payload exceeds the limit.
var ErrFrameTooLarge = errors.New("mllp: frame exceeds size limit")

// MessageHandler is called for each decoded message. The returned message,
// normally an ACK, is written back to the sender; nil sends nothing.
type MessageHandler func(msg *Message) *Message

// MLLPServer accepts HL7v2 messages over MLLP/TCP. Each connection is served
// by its own goroutine and may carry any number of frames.
type MLLPServer struct {
	addr    string
	handler MessageHandler
	logger  zerolog.Logger
	maxSize int

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewMLLPServer returns a server for addr. Nothing is opened until Start.
func NewMLLPServer(addr string, handler MessageHandler, logger zerolog.Logger) *MLLPServer {
	return &MLLPServer{
		addr:    addr,
		handler: handler,
		logger:  logger.With().Str("component", "mllp").Logger(),
		maxSize: defaultMaxFrameSize,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start opens the listener and serves connections in the background.
func (s *MLLPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mllp: listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve(ln)
	}()
	return nil
}

// Stop closes the listener and every open connection, then waits for their
// goroutines to return. Calling Stop more than once is a no-op.
func (s *MLLPServer) Stop() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	ln := s.ln
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

// Addr returns the bound address once started, which resolves port 0.
func (s *MLLPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *MLLPServer) serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.isClosing() {
				s.logger.Error().Err(err).Msg("accept failed")
			}
			return
		}
		if !s.track(conn) {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(conn)
		}()
	}
}

func (s *MLLPServer) serveConn(conn net.Conn) {
	log := s.logger.With().Str("remote_addr", conn.RemoteAddr().String()).Logger()
	r := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(mllpIdleTimeout))

		payload, err := ReadFrame(r, s.maxSize)
		if err != nil {
			var netErr net.Error
			switch {
			case s.isClosing(), errors.Is(err, io.EOF):
			case errors.Is(err, ErrFrameTooLarge):
				log.Warn().Int("limit", s.maxSize).Msg("frame too large, closing connection")
			case errors.As(err, &netErr) && netErr.Timeout():
				log.Debug().Msg("idle connection closed")
			default:
				log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		s.dispatch(conn, payload, log)
	}
}

// dispatch decodes one payload, runs the handler and writes its reply.
// Payloads that do not decode are logged and dropped without a reply.
func (s *MLLPServer) dispatch(conn net.Conn, payload []byte, log zerolog.Logger) {
	msg, err := Parse(string(payload))
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("discarding undecodable message")
		return
	}

	reply := s.handler(msg)
	if reply == nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(mllpWriteTimeout))
	if _, err := conn.Write(Frame(reply.Bytes())); err != nil {
		log.Error().Err(err).Str("control_id", msg.ControlID).Msg("write reply failed")
	}
}

func (s *MLLPServer) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *MLLPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *MLLPServer) untrack(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Frame wraps payload as <VT>payload<FS><CR>.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, StartBlock)
	out = append(out, payload...)
	return append(out, EndBlock, CarriageReturn)
}

// ReadFrame reads the next frame from r and returns its payload. Bytes ahead
// of the start block are skipped. An FS not followed by CR is payload. A
// stream that ends inside a frame yields io.ErrUnexpectedEOF.
func ReadFrame(r *bufio.Reader, limit int) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == StartBlock {
			break
		}
	}

	var payload []byte
	for {
		chunk, err := r.ReadSlice(EndBlock)
		payload = append(payload, chunk...)
		switch {
		case err == bufio.ErrBufferFull:
		case err == io.EOF:
			return nil, io.ErrUnexpectedEOF
		case err != nil:
			return nil, err
		default:
			next, err := r.Peek(1)
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			if err != nil {
				return nil, err
			}
			if next[0] == CarriageReturn {
				r.Discard(1)
				payload = payload[:len(payload)-1]
				if len(payload) > limit {
					return nil, ErrFrameTooLarge
				}
				return payload, nil
			}
		}
		if len(payload) > limit {
			return nil, ErrFrameTooLarge
		}
	}
}
