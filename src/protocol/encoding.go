package protocol

import (
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// EncodeList builds a list-backups request: [4B id][1B version][1B 202].
func EncodeList(clientID uint32, version uint8) []byte {
	frame := make([]byte, RequestHeaderSize)
	putHeader(frame, clientID, version, OpList)
	return frame
}

// EncodeSave builds a save request:
// [4B id][1B version][1B 100][2B name_len][name][4B content_len][content]
func EncodeSave(clientID uint32, version uint8, name string, content []byte) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, EncodingError("encode save", err)
	}
	if uint64(len(content)) > MaxContentLen {
		return nil, EncodingError("encode save", errors.Errorf("content of %d bytes exceeds %d", len(content), uint64(MaxContentLen)))
	}

	frame := make([]byte, RequestHeaderSize+NameLenSize+len(name)+ContentLenSize+len(content))
	putHeader(frame, clientID, version, OpSave)
	off := putName(frame, RequestHeaderSize, name)
	binary.LittleEndian.PutUint32(frame[off:], uint32(len(content)))
	copy(frame[off+ContentLenSize:], content)
	return frame, nil
}

// EncodeRestoreOrDelete builds a restore (200) or delete (201) request:
// [4B id][1B version][1B opcode][2B name_len][name]
func EncodeRestoreOrDelete(clientID uint32, version uint8, op Opcode, name string) ([]byte, error) {
	if op != OpRestore && op != OpDelete {
		return nil, EncodingError("encode "+op.String(), errors.Errorf("opcode %d is neither restore nor delete", uint8(op)))
	}
	if err := checkName(name); err != nil {
		return nil, EncodingError("encode "+op.String(), err)
	}

	frame := make([]byte, RequestHeaderSize+NameLenSize+len(name))
	putHeader(frame, clientID, version, op)
	putName(frame, RequestHeaderSize, name)
	return frame, nil
}

// MarshalBinary encodes r according to its opcode.
func (r *Request) MarshalBinary() ([]byte, error) {
	switch r.Op {
	case OpList:
		if r.FileName != "" || len(r.Content) > 0 {
			return nil, EncodingError("encode list", errors.New("list request carries no name or content"))
		}
		return EncodeList(r.ClientID, r.Version), nil
	case OpSave:
		return EncodeSave(r.ClientID, r.Version, r.FileName, r.Content)
	case OpRestore, OpDelete:
		if len(r.Content) > 0 {
			return nil, EncodingError("encode "+r.Op.String(), errors.New("only save requests carry content"))
		}
		return EncodeRestoreOrDelete(r.ClientID, r.Version, r.Op, r.FileName)
	default:
		return nil, EncodingError("encode request", errors.Errorf("unknown opcode %d", uint8(r.Op)))
	}
}

// ReadRequest reads exactly one request from r. It returns io.EOF untouched
// when r ends before the first header byte.
func ReadRequest(r io.Reader) (*Request, error) {
	var hdr [RequestHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, ConnectionError("read request header", err)
	}

	req := &Request{
		ClientID: binary.LittleEndian.Uint32(hdr[0:4]),
		Version:  hdr[4],
		Op:       Opcode(hdr[5]),
	}

	switch req.Op {
	case OpList:
		return req, nil
	case OpSave, OpRestore, OpDelete:
	default:
		return req, ProtocolError("read request", errors.Errorf("unknown opcode %d", hdr[5]))
	}

	var nameLen [NameLenSize]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return req, ConnectionError("read request", errors.Wrap(err, "name length"))
	}
	name := make([]byte, binary.LittleEndian.Uint16(nameLen[:]))
	if _, err := io.ReadFull(r, name); err != nil {
		return req, ConnectionError("read request", errors.Wrapf(err, "name (%d bytes)", len(name)))
	}
	req.FileName = string(name)

	if req.Op != OpSave {
		return req, nil
	}

	var contentLen [ContentLenSize]byte
	if _, err := io.ReadFull(r, contentLen[:]); err != nil {
		return req, ConnectionError("read request", errors.Wrap(err, "content length"))
	}
	content, err := readBody(r, binary.LittleEndian.Uint32(contentLen[:]), DefaultMaxContent)
	if err != nil {
		return req, err
	}
	req.Content = content
	return req, nil
}

// MarshalBinary encodes a reply. Known statuses write the fields their
// layout puts on the wire; unknown statuses write whatever r.Fields holds.
func (r *Response) MarshalBinary() ([]byte, error) {
	fields := r.Fields
	if l, ok := layouts[r.Status]; ok {
		fields = l.wire
	}

	size := ResponseHeaderSize
	if fields&FieldName != 0 {
		if len(r.FileName) > MaxNameLen {
			return nil, EncodingError("encode reply", errors.Errorf("name of %d bytes exceeds %d", len(r.FileName), MaxNameLen))
		}
		size += NameLenSize + len(r.FileName)
	}
	if fields&FieldContent != 0 {
		if uint64(len(r.Content)) > MaxContentLen {
			return nil, EncodingError("encode reply", errors.Errorf("content of %d bytes exceeds %d", len(r.Content), uint64(MaxContentLen)))
		}
		size += ContentLenSize + len(r.Content)
	}

	frame := make([]byte, size)
	frame[0] = r.Version
	binary.LittleEndian.PutUint16(frame[1:3], uint16(r.Status))
	off := ResponseHeaderSize
	if fields&FieldName != 0 {
		off = putName(frame, off, r.FileName)
	}
	if fields&FieldContent != 0 {
		binary.LittleEndian.PutUint32(frame[off:], uint32(len(r.Content)))
		copy(frame[off+ContentLenSize:], r.Content)
	}
	return frame, nil
}

func putHeader(frame []byte, clientID uint32, version uint8, op Opcode) {
	binary.LittleEndian.PutUint32(frame[0:4], clientID)
	frame[4] = version
	frame[5] = byte(op)
}

// putName writes [2B len][name] at off and returns the offset after it.
func putName(frame []byte, off int, name string) int {
	binary.LittleEndian.PutUint16(frame[off:], uint16(len(name)))
	off += NameLenSize
	return off + copy(frame[off:], name)
}

// checkName enforces the ASCII-only, u16-length rule for request names.
func checkName(name string) error {
	if len(name) > MaxNameLen {
		return errors.Errorf("file name of %d bytes exceeds %d", len(name), MaxNameLen)
	}
	for i := 0; i < len(name); i++ {
		if name[i] >= utf8.RuneSelf {
			return errors.Errorf("file name %q is not ASCII", name)
		}
	}
	return nil
}
