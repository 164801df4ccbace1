package protocol

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrConnectionClosed is the cause of a reply cut short by the peer.
var ErrConnectionClosed = errors.New("connection closed by server")

// Kind classifies a failure by how the caller should react to it.
type Kind uint8

const (
	KindConfiguration Kind = iota + 1 // fatal: the run cannot start
	KindEncoding                      // fatal to one request, nothing was sent
	KindConnection                    // the exchange was abandoned
	KindProtocol                      // the reply broke its own framing
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindEncoding:
		return "encoding error"
	case KindConnection:
		return "connection error"
	case KindProtocol:
		return "protocol error"
	default:
		return "error"
	}
}

// Error is the error type returned by the codec, the transport and the
// session. Compare with errors.Is against the Err* sentinels.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels for errors.Is. A protocol error also matches ErrConnection.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrEncoding      = &Error{Kind: KindEncoding}
	ErrConnection    = &Error{Kind: KindConnection}
	ErrProtocol      = &Error{Kind: KindProtocol}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindConnection && e.Kind == KindProtocol
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// EncodingError wraps err as a KindEncoding failure of op.
func EncodingError(op string, err error) error {
	return newError(KindEncoding, op, err)
}

// ConnectionError wraps err as a KindConnection failure of op.
func ConnectionError(op string, err error) error {
	return newError(KindConnection, op, err)
}

// ProtocolError wraps err as a KindProtocol failure of op.
func ProtocolError(op string, err error) error {
	return newError(KindProtocol, op, err)
}

// ConfigurationError wraps err as a KindConfiguration failure of op.
func ConfigurationError(op string, err error) error {
	return newError(KindConfiguration, op, err)
}

// shortRead reports a mandatory read of want bytes that stopped at got.
func shortRead(op string, err error, got, want int) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ConnectionError(op, errors.Wrapf(ErrConnectionClosed, "got %d of %d bytes", got, want))
	}
	return ConnectionError(op, errors.Wrapf(err, "got %d of %d bytes", got, want))
}
