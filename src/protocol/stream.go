package protocol

import (
	"bufio"
	"io"
	"time"

	logs "github.com/danmuck/smplog"
)

// DefaultProbeWindow bounds a single availability probe on a connection.
const DefaultProbeWindow = 100 * time.Millisecond

// Stream is the read side of one exchange.
type Stream interface {
	io.Reader

	// Probe reports whether at least n bytes can be read right now, without
	// consuming them. An expired probe window and a closed peer both
	// report false.
	Probe(n int) bool

	// AtEOF blocks until another byte is available or the peer closes, and
	// reports true only for a clean close. Nothing is consumed.
	AtEOF() (bool, error)
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// BufferedStream implements Stream over any reader. When the reader has
// read deadlines (a net.Conn or net.Pipe) probes are bounded by the probe
// window; otherwise they are bounded by the reader itself.
type BufferedStream struct {
	r        *bufio.Reader
	dl       readDeadliner
	window   time.Duration
	deadline time.Time
}

type StreamOption func(*BufferedStream)

// WithProbeWindow sets how long a probe waits for bytes to arrive.
func WithProbeWindow(d time.Duration) StreamOption {
	return func(s *BufferedStream) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithReadDeadline sets the deadline restored after every probe. The zero
// time means no deadline.
func WithReadDeadline(t time.Time) StreamOption {
	return func(s *BufferedStream) { s.deadline = t }
}

func NewStream(r io.Reader, opts ...StreamOption) *BufferedStream {
	s := &BufferedStream{
		r:      bufio.NewReader(r),
		window: DefaultProbeWindow,
	}
	if dl, ok := r.(readDeadliner); ok {
		s.dl = dl
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BufferedStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *BufferedStream) Probe(n int) bool {
	if s.r.Buffered() >= n {
		return true
	}
	if s.dl != nil {
		if err := s.dl.SetReadDeadline(time.Now().Add(s.window)); err != nil {
			logs.Debugf("Probe(%d): set deadline: %v", n, err)
			return false
		}
		defer s.dl.SetReadDeadline(s.deadline)
	}

	// Peek keeps whatever it managed to buffer, so a short or timed-out
	// probe loses nothing.
	data, err := s.r.Peek(n)
	if err != nil {
		logs.Debugf("Probe(%d): %d byte(s) available: %v", n, len(data), err)
	}
	return len(data) >= n
}

func (s *BufferedStream) AtEOF() (bool, error) {
	if s.r.Buffered() > 0 {
		return false, nil
	}
	_, err := s.r.Peek(1)
	switch err {
	case nil:
		return false, nil
	case io.EOF:
		return true, nil
	default:
		return false, err
	}
}

// Buffered returns the number of bytes read from the underlying reader but
// not yet consumed.
func (s *BufferedStream) Buffered() int {
	return s.r.Buffered()
}
