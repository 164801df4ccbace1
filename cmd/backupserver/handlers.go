package main

import (
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/dps_backup/src/protocol"
	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type server struct {
	store    *store
	idle     time.Duration // read deadline between requests, 0 = none
	requests *prometheus.CounterVec
}

// handleConn serves requests on conn until the client closes it, goes
// idle, or sends something that cannot be parsed.
func (s *server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	for {
		if s.idle > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idle))
		}
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			if err == io.EOF {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				logs.Debugf("handleConn(%s): idle timeout", remote)
				return
			}
			logs.Warnf("handleConn(%s): %v", remote, err)
			if req != nil && errors.Is(err, protocol.ErrProtocol) {
				// unknown opcode; the rest of the stream cannot be framed
				s.count(req.Op, protocol.StatusServerError)
				writeStatus(conn, req.Version, protocol.StatusServerError)
			}
			return
		}
		conn.SetReadDeadline(time.Time{})

		status, err := s.dispatch(conn, req)
		if err != nil {
			logs.Warnf("handleConn(%s): write %s reply: %v", remote, req.Op, err)
			return
		}
		s.count(req.Op, status)
		logs.Debugf("handleConn(%s): client %d %s %q -> %d", remote, req.ClientID, req.Op, req.FileName, status)
	}
}

func (s *server) dispatch(w io.Writer, req *protocol.Request) (protocol.Status, error) {
	switch req.Op {
	case protocol.OpSave:
		return s.handleSave(w, req)
	case protocol.OpRestore:
		return s.handleRestore(w, req)
	case protocol.OpDelete:
		return s.handleDelete(w, req)
	default:
		return s.handleList(w, req)
	}
}

func (s *server) count(op protocol.Opcode, status protocol.Status) {
	if s.requests != nil {
		s.requests.WithLabelValues(op.String(), status.String()).Inc()
	}
}

// 100: 212 + name, or 1003 when the file cannot be written.
func (s *server) handleSave(w io.Writer, req *protocol.Request) (protocol.Status, error) {
	if err := s.store.save(req.ClientID, req.FileName, req.Content); err != nil {
		logs.Warnf("save %q for %d: %v", req.FileName, req.ClientID, err)
		return protocol.StatusServerError, writeStatus(w, req.Version, protocol.StatusServerError)
	}
	return protocol.StatusOK, writeName(w, req.Version, protocol.StatusOK, req.FileName)
}

// 200: 210 + name + content, or 1001 + name.
func (s *server) handleRestore(w io.Writer, req *protocol.Request) (protocol.Status, error) {
	content, err := s.store.restore(req.ClientID, req.FileName)
	switch {
	case err == nil:
		return protocol.StatusRestored, writeFile(w, req.Version, protocol.StatusRestored, req.FileName, content)
	case os.IsNotExist(err), errors.Is(err, errBadName):
		return protocol.StatusNotFound, writeName(w, req.Version, protocol.StatusNotFound, req.FileName)
	default:
		logs.Warnf("restore %q for %d: %v", req.FileName, req.ClientID, err)
		return protocol.StatusServerError, writeStatus(w, req.Version, protocol.StatusServerError)
	}
}

// 201: 212 + name, 1001 + name when missing, 1003 when removal fails.
func (s *server) handleDelete(w io.Writer, req *protocol.Request) (protocol.Status, error) {
	err := s.store.remove(req.ClientID, req.FileName)
	switch {
	case err == nil:
		return protocol.StatusOK, writeName(w, req.Version, protocol.StatusOK, req.FileName)
	case os.IsNotExist(err), errors.Is(err, errBadName):
		return protocol.StatusNotFound, writeName(w, req.Version, protocol.StatusNotFound, req.FileName)
	default:
		logs.Warnf("delete %q for %d: %v", req.FileName, req.ClientID, err)
		return protocol.StatusServerError, writeStatus(w, req.Version, protocol.StatusServerError)
	}
}

// 202: 211 + scratch name + one name per line, or 1002 when empty.
func (s *server) handleList(w io.Writer, req *protocol.Request) (protocol.Status, error) {
	names, err := s.store.list(req.ClientID)
	if err != nil {
		logs.Warnf("list for %d: %v", req.ClientID, err)
		return protocol.StatusServerError, writeStatus(w, req.Version, protocol.StatusServerError)
	}
	if len(names) == 0 {
		return protocol.StatusNoFiles, writeStatus(w, req.Version, protocol.StatusNoFiles)
	}
	listing := strings.Join(names, "\n") + "\n"
	return protocol.StatusListing, writeFile(w, req.Version, protocol.StatusListing, scratchName(), []byte(listing))
}
