package session

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net"

	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/pkg/errors"
)

// MinClientID is the smallest randomly chosen client id.
const MinClientID = 1000

// Session holds the constants shared by every request of one run.
type Session struct {
	ClientID uint32
	Version  uint8
	Host     string
	Port     string
	Files    []string // operation targets, addressed by Step.File
}

// NewClientID picks a client id uniformly from [MinClientID, 2^32-1].
func NewClientID() uint32 {
	return MinClientID + rand.Uint32N(math.MaxUint32-MinClientID+1)
}

func (s *Session) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// NoFile marks a step that targets no file.
const NoFile = -1

// Step is one scripted operation. File indexes Session.Files.
type Step struct {
	Op   protocol.Opcode
	File int
}

func (st Step) String() string {
	if st.File == NoFile {
		return st.Op.String()
	}
	return fmt.Sprintf("%s #%d", st.Op, st.File)
}

// DefaultScript is the fixed session: list, save the first two files, list
// again, restore the first file, delete it, then try to restore it again.
func DefaultScript() []Step {
	return []Step{
		{Op: protocol.OpList, File: NoFile},
		{Op: protocol.OpSave, File: 0},
		{Op: protocol.OpSave, File: 1},
		{Op: protocol.OpList, File: NoFile},
		{Op: protocol.OpRestore, File: 0},
		{Op: protocol.OpDelete, File: 0},
		{Op: protocol.OpRestore, File: 0},
	}
}

// FilesNeeded returns how many Session.Files entries steps address.
func FilesNeeded(steps []Step) int {
	n := 0
	for _, st := range steps {
		if st.File+1 > n {
			n = st.File + 1
		}
	}
	return n
}

// Validate checks that every step's file index resolves.
func (s *Session) Validate(steps []Step) error {
	if need := FilesNeeded(steps); len(s.Files) < need {
		return protocol.ConfigurationError("validate session",
			errors.Errorf("script needs %d file name(s), backup list has %d", need, len(s.Files)))
	}
	return nil
}

// FileName resolves the target of st, empty for NoFile.
func (s *Session) FileName(st Step) string {
	if st.File == NoFile || st.File >= len(s.Files) {
		return ""
	}
	return s.Files[st.File]
}
