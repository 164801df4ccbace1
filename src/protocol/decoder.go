package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"unicode/utf8"

	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

// Framing selects how the decoder decides which optional fields follow a
// reply header.
type Framing uint8

const (
	// FramingStatus reads the fields the layout table lists for the status.
	// A peer that closes cleanly at a field boundary ends the reply early.
	// Statuses missing from the table fall back to probing.
	FramingStatus Framing = iota
	// FramingProbe infers each field from whether bytes are available when
	// the field would start.
	FramingProbe
)

func (f Framing) String() string {
	if f == FramingProbe {
		return "probe"
	}
	return "status"
}

// ParseFraming maps "status" or "probe" to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "status":
		return FramingStatus, nil
	case "probe":
		return FramingProbe, nil
	default:
		return FramingStatus, errors.Errorf("unknown framing %q (want status or probe)", s)
	}
}

// Decoder reads one reply per Decode call from a Stream.
type Decoder struct {
	s          Stream
	framing    Framing
	maxContent uint32
}

type DecoderOption func(*Decoder)

func WithFraming(f Framing) DecoderOption {
	return func(d *Decoder) { d.framing = f }
}

// WithMaxContent caps the declared length of a content field. Zero keeps
// DefaultMaxContent.
func WithMaxContent(n uint32) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxContent = n
		}
	}
}

func NewDecoder(s Stream, opts ...DecoderOption) *Decoder {
	d := &Decoder{s: s, framing: FramingStatus, maxContent: DefaultMaxContent}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reads exactly one reply: [1B version][2B status] followed by an
// optional [2B name_len][name] and an optional [4B content_len][content].
// The stream is left positioned right after the reply.
func (d *Decoder) Decode() (*Response, error) {
	var hdr [ResponseHeaderSize]byte
	if n, err := io.ReadFull(d.s, hdr[:]); err != nil {
		return nil, shortRead("read reply header", err, n, ResponseHeaderSize)
	}
	resp := &Response{
		Version: hdr[0],
		Status:  Status(binary.LittleEndian.Uint16(hdr[1:3])),
	}

	var err error
	if l, ok := layouts[resp.Status]; ok && d.framing == FramingStatus {
		err = d.decodeLayout(resp, l)
	} else {
		if d.framing == FramingStatus {
			logs.Warnf("reply status %d has no known layout, probing for fields", uint16(resp.Status))
		}
		err = d.decodeProbe(resp)
	}
	if err != nil {
		return nil, err
	}

	logs.Debugf("Decode(): version=%d status=%d fields=%s", resp.Version, uint16(resp.Status), resp.Fields)
	return resp, nil
}

func (d *Decoder) decodeLayout(resp *Response, l layout) error {
	if l.wire&FieldName != 0 {
		present, err := d.fieldPresent()
		if err != nil || !present {
			return err
		}
		name, err := d.readName()
		if err != nil {
			return err
		}
		if l.expose&FieldName != 0 {
			resp.FileName = name
			resp.Fields |= FieldName
		}
	}

	if l.wire&FieldContent != 0 {
		present, err := d.fieldPresent()
		if err != nil || !present {
			return err
		}
		content, err := d.readContent()
		if err != nil {
			return err
		}
		if l.expose&FieldContent != 0 {
			resp.Content = content
			resp.Fields |= FieldContent
		}
	}
	return nil
}

func (d *Decoder) decodeProbe(resp *Response) error {
	if d.s.Probe(1) {
		name, err := d.readName()
		if err != nil {
			return err
		}
		resp.FileName = name
		resp.Fields |= FieldName
	}

	if d.s.Probe(3) {
		content, err := d.readContent()
		if err != nil {
			return err
		}
		resp.Content = content
		resp.Fields |= FieldContent
	}
	return nil
}

// fieldPresent waits for the next field to start. A clean close at the
// boundary means the server left the field out.
func (d *Decoder) fieldPresent() (bool, error) {
	eof, err := d.s.AtEOF()
	if err != nil {
		return false, ConnectionError("await reply field", err)
	}
	if eof {
		logs.Debugf("fieldPresent(): peer closed at field boundary")
	}
	return !eof, nil
}

func (d *Decoder) readName() (string, error) {
	var lenBuf [NameLenSize]byte
	if n, err := io.ReadFull(d.s, lenBuf[:]); err != nil {
		return "", shortRead("read file name length", err, n, NameLenSize)
	}
	name := make([]byte, binary.LittleEndian.Uint16(lenBuf[:]))
	if n, err := io.ReadFull(d.s, name); err != nil {
		return "", shortRead("read file name", err, n, len(name))
	}
	if !utf8.Valid(name) {
		return "", ProtocolError("read file name", errors.Errorf("name %q is not valid UTF-8", name))
	}
	return string(name), nil
}

func (d *Decoder) readContent() ([]byte, error) {
	var lenBuf [ContentLenSize]byte
	if n, err := io.ReadFull(d.s, lenBuf[:]); err != nil {
		return nil, shortRead("read content length", err, n, ContentLenSize)
	}
	return readBody(d.s, binary.LittleEndian.Uint32(lenBuf[:]), d.maxContent)
}

// readBody reads a declared-length body without trusting the declared
// length for the allocation.
func readBody(r io.Reader, n, limit uint32) ([]byte, error) {
	if n > limit {
		return nil, ProtocolError("read content", errors.Errorf("declared length %d exceeds limit %d", n, limit))
	}
	var buf bytes.Buffer
	got, err := io.CopyN(&buf, r, int64(n))
	if err != nil {
		return nil, shortRead("read content", err, int(got), int(n))
	}
	return buf.Bytes(), nil
}
