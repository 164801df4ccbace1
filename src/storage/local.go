package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/dps_backup/src/protocol"
	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

const DefaultRestorePrefix = "tmp"

// Local reads files to back up and writes restored files, both relative to
// Dir.
type Local struct {
	Dir           string
	RestorePrefix string
}

func NewLocal(dir, restorePrefix string) *Local {
	if dir == "" {
		dir = "."
	}
	if restorePrefix == "" {
		restorePrefix = DefaultRestorePrefix
	}
	return &Local{Dir: dir, RestorePrefix: restorePrefix}
}

func (l *Local) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.Dir, name)
}

// Read returns the contents of name. A missing file is an encoding error:
// the request it was meant for cannot be built.
func (l *Local) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(l.path(name))
	if err != nil {
		return nil, protocol.EncodingError("read "+name, errors.Wrap(err, "load file for backup"))
	}
	logs.Debugf("Read(%s): %d bytes", name, len(data))
	return data, nil
}

// WriteRestored stores content restored from the server as
// <prefix>.<extension of name> and returns the written path.
func (l *Local) WriteRestored(name string, content []byte) (string, error) {
	ext := GetFileExtension(name)
	if strings.ContainsAny(ext, `/\`) {
		return "", protocol.ProtocolError("write restored file", errors.Errorf("unsafe extension %q in %q", ext, name))
	}

	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", protocol.ConnectionError("write restored file", errors.Wrapf(err, "ensure directory %s", l.Dir))
	}
	path := filepath.Join(l.Dir, l.RestorePrefix+"."+ext)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", protocol.ConnectionError("write restored file", errors.Wrapf(err, "write %s", path))
	}
	logs.Debugf("WriteRestored(%s): %d bytes to %s", name, len(content), path)
	return path, nil
}

// GetFileExtension returns the text after the last '.' in name, or name
// itself when it has no '.'.
func GetFileExtension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
