package transfer

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"erevent/internal/apperr"
)

// ChunkSize is the fixed read/write unit for the byte stream.
const ChunkSize = 8 * 1024

// State tracks a send session through its lifecycle.
type State int

const (
	StateListening State = iota
	StateAccepted
	StateStreaming
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateAccepted:
		return "accepted"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SendSession owns the sending side of one transfer: a staged copy of the
// source file and a single-accept listener opened before the handshake so the
// rendezvous port is known when the init request is made.
//
// The listener and the staging copy are released on every exit path; Close is
// idempotent and safe to call from any state.
type SendSession struct {
	mu    sync.Mutex
	state State

	listener net.Listener
	stageDir string
	filename string
	size     int64

	acceptTimeout time.Duration
}

// OpenSendSession stages a copy of the file at path and starts listening on an
// ephemeral port.
func OpenSendSession(path string, acceptTimeout time.Duration) (*SendSession, error) {
	const op = "transfer.OpenSendSession"

	src, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, op, err, "cannot open %q", path)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, op, err, "cannot stat %q", path)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.New(apperr.Validation, op, "%q is not a regular file", path)
	}

	stageDir, err := os.MkdirTemp("", "erevent-stage-")
	if err != nil {
		return nil, errors.Wrap(err, "create staging dir")
	}
	stagePath := filepath.Join(stageDir, info.Name())
	dst, err := os.Create(stagePath)
	if err != nil {
		os.RemoveAll(stageDir)
		return nil, errors.Wrap(err, "create staging copy")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.RemoveAll(stageDir)
		return nil, errors.Wrap(err, "stage file copy")
	}
	if err := dst.Close(); err != nil {
		os.RemoveAll(stageDir)
		return nil, errors.Wrap(err, "close staging copy")
	}

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		os.RemoveAll(stageDir)
		return nil, apperr.Wrap(apperr.Connectivity, op, err, "cannot open rendezvous listener")
	}

	log.Debug().Str("file", info.Name()).Int64("size", info.Size()).
		Int("port", listener.Addr().(*net.TCPAddr).Port).Msg("send session opened")

	return &SendSession{
		state:         StateListening,
		listener:      listener,
		stageDir:      stageDir,
		filename:      info.Name(),
		size:          info.Size(),
		acceptTimeout: acceptTimeout,
	}, nil
}

// Port returns the rendezvous port the session is listening on.
func (s *SendSession) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Filename returns the staged file's base name.
func (s *SendSession) Filename() string { return s.filename }

// Size returns the staged file's size in bytes.
func (s *SendSession) Size() int64 { return s.size }

// State returns the current session state.
func (s *SendSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send waits for the single inbound connection and streams the staged file as
// fixed-size chunks until end-of-file, then closes the connection. The peer
// detects completion by stream close, not by any terminator. Blocks; run it in
// its own goroutine so a pending transfer cannot stall anything else.
func (s *SendSession) Send(ctx context.Context) error {
	const op = "transfer.Send"
	defer s.Close()

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return apperr.New(apperr.Validation, op, "session already closed")
	}

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	if deadline, ok := listener.(*net.TCPListener); ok {
		deadline.SetDeadline(time.Now().Add(s.acceptTimeout))
	}

	conn, err := listener.Accept()
	if err != nil {
		s.setState(StateFailed)
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.Timeout, op, ctx.Err(), "send cancelled while waiting for receiver")
		}
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return apperr.Wrap(apperr.Timeout, op, err, "no receiver connected within %s", s.acceptTimeout)
		}
		return apperr.Wrap(apperr.Connectivity, op, err, "accept failed")
	}
	defer conn.Close()
	s.setState(StateAccepted)
	log.Info().Str("peer", conn.RemoteAddr().String()).Str("file", s.filename).Msg("receiver connected")

	file, err := os.Open(filepath.Join(s.stageDir, s.filename))
	if err != nil {
		s.setState(StateFailed)
		return apperr.Wrap(apperr.Connectivity, op, err, "open staged file")
	}
	defer file.Close()

	s.setState(StateStreaming)
	buf := make([]byte, ChunkSize)
	var sent int64
	for {
		n, rerr := file.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				s.setState(StateFailed)
				return apperr.Wrap(apperr.Connectivity, op, werr, "stream write after %d bytes", sent)
			}
			sent += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			s.setState(StateFailed)
			return apperr.Wrap(apperr.Connectivity, op, rerr, "stream read after %d bytes", sent)
		}
	}

	s.setState(StateClosed)
	log.Info().Str("file", s.filename).Int64("bytes", sent).Msg("file sent")
	return nil
}

// Close releases the listener and removes the staging copy. Idempotent; called
// on every exit path of Send and safe to call again afterwards.
func (s *SendSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	if s.stageDir != "" {
		if rmErr := os.RemoveAll(s.stageDir); rmErr != nil && err == nil {
			err = rmErr
		}
		s.stageDir = ""
	}
	if s.state != StateFailed {
		s.state = StateClosed
	}
	return err
}

func (s *SendSession) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
