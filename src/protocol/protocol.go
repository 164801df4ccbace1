package protocol

import "fmt"

// Opcode identifies the operation a request asks the server to perform.
type Opcode uint8

// Opcodes are part of the wire contract; the numeric values must not change.
const (
	OpSave    Opcode = 100
	OpRestore Opcode = 200
	OpDelete  Opcode = 201
	OpList    Opcode = 202
)

func (op Opcode) String() string {
	switch op {
	case OpSave:
		return "save"
	case OpRestore:
		return "restore"
	case OpDelete:
		return "delete"
	case OpList:
		return "list"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(op))
	}
}

// Status is the outcome code carried in every reply header.
type Status uint16

const (
	StatusRestored    Status = 210  // restore success: name + content
	StatusListing     Status = 211  // backup listing: content holds one name per line
	StatusOK          Status = 212  // save or delete success: name
	StatusNotFound    Status = 1001 // file does not exist on the server: name
	StatusNoFiles     Status = 1002 // client has no files on the server
	StatusServerError Status = 1003 // server could not process the request
)

func (s Status) String() string {
	switch s {
	case StatusRestored:
		return "restored"
	case StatusListing:
		return "listing"
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not-found"
	case StatusNoFiles:
		return "no-files"
	case StatusServerError:
		return "server-error"
	default:
		return fmt.Sprintf("status(%d)", uint16(s))
	}
}

// Known reports whether s has an entry in the reply layout table.
func (s Status) Known() bool {
	_, ok := layouts[s]
	return ok
}

// Wire sizes.
const (
	RequestHeaderSize  = 6 // client id u32, version u8, opcode u8
	ResponseHeaderSize = 3 // version u8, status u16
	NameLenSize        = 2
	ContentLenSize     = 4

	MaxNameLen    = 1<<16 - 1
	MaxContentLen = 1<<32 - 1

	// DefaultMaxContent caps a single decoded content field.
	DefaultMaxContent = 1 << 30
)

// Field is a bit set of the optional trailing fields of a reply.
type Field uint8

const (
	FieldName Field = 1 << iota
	FieldContent
)

func (f Field) String() string {
	switch f {
	case 0:
		return "none"
	case FieldName:
		return "name"
	case FieldContent:
		return "content"
	case FieldName | FieldContent:
		return "name+content"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// Request is one client request. FileName is carried by save, restore and
// delete; Content only by save.
type Request struct {
	ClientID uint32
	Version  uint8
	Op       Opcode
	FileName string
	Content  []byte
}

// Response is one decoded server reply. Fields records which optional
// fields were present on the wire and surfaced for this status.
type Response struct {
	Version  uint8
	Status   Status
	FileName string
	Content  []byte
	Fields   Field
}

// Has reports whether every field in f was decoded.
func (r *Response) Has(f Field) bool {
	return r.Fields&f == f
}
