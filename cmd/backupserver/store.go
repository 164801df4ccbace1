package main

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

var errBadName = errors.New("file name has no usable base name")

// store keeps each client's files under <root>/<client id>/.
type store struct {
	root string
}

func newStore(root string) (*store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "create storage root %s", root)
	}
	return &store{root: root}, nil
}

func (s *store) clientDir(clientID uint32) string {
	return filepath.Join(s.root, strconv.FormatUint(uint64(clientID), 10))
}

// path reduces name to its base so a client cannot leave its directory.
func (s *store) path(clientID uint32, name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + filepath.FromSlash(name)))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", errors.Wrapf(errBadName, "%q", name)
	}
	return filepath.Join(s.clientDir(clientID), base), nil
}

func (s *store) save(clientID uint32, name string, content []byte) error {
	path, err := s.path(clientID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.clientDir(clientID), 0755); err != nil {
		return errors.Wrapf(err, "create client directory")
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	logs.Debugf("save(%d, %s): %d bytes", clientID, name, len(content))
	return nil
}

// restore returns os.ErrNotExist when the client has no such file.
func (s *store) restore(clientID uint32, name string) ([]byte, error) {
	path, err := s.path(clientID, name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// remove returns os.ErrNotExist when the client has no such file.
func (s *store) remove(clientID uint32, name string) error {
	path, err := s.path(clientID, name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// list returns the client's file names sorted, nil when it has none.
func (s *store) list(clientID uint32) ([]string, error) {
	entries, err := os.ReadDir(s.clientDir(clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
