package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/danmuck/dps_backup/src/storage"
	"github.com/danmuck/dps_backup/src/transport"
)

// fakeExchange decodes each request and answers from reply.
type fakeExchange struct {
	mu       sync.Mutex
	requests []*protocol.Request
	reply    func(req *protocol.Request) (*protocol.Response, error)
}

func (f *fakeExchange) Send(ctx context.Context, request []byte) (*protocol.Response, error) {
	req, err := protocol.ReadRequest(bytes.NewReader(request))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.reply(req)
}

func newTestRunner(t *testing.T, ex transport.Exchanger, files ...string) (*Runner, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("contents of "+name), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	store := storage.NewLocal(dir, "")
	out := &bytes.Buffer{}
	return &Runner{
		Session:  &Session{ClientID: 31337, Version: 127, Host: "127.0.0.1", Port: "1234", Files: files},
		Exchange: ex,
		Store:    store,
		Render:   &Renderer{Out: out, Store: store},
		Metrics:  NewMetrics(),
	}, out
}

func TestRunIsolatesFailures(t *testing.T) {
	ex := &fakeExchange{reply: func(req *protocol.Request) (*protocol.Response, error) {
		switch req.Op {
		case protocol.OpSave:
			if req.FileName == "b.txt" {
				return nil, protocol.ConnectionError("read reply header", protocol.ErrConnectionClosed)
			}
			return &protocol.Response{Version: 1, Status: protocol.StatusOK, FileName: req.FileName, Fields: protocol.FieldName}, nil
		default:
			return &protocol.Response{Version: 1, Status: protocol.StatusNoFiles}, nil
		}
	}}
	r, out := newTestRunner(t, ex, "a.txt", "b.txt")

	steps := []Step{
		{Op: protocol.OpSave, File: 0},
		{Op: protocol.OpSave, File: 1},
		{Op: protocol.OpList, File: NoFile},
	}
	results := r.Run(context.Background(), steps)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("unexpected failures: %v / %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, protocol.ErrConnection) {
		t.Fatalf("step 2 error = %v, want connection error", results[1].Err)
	}
	if Failed(results) != 1 {
		t.Fatalf("Failed = %d, want 1", Failed(results))
	}
	if len(ex.requests) != 3 {
		t.Fatalf("server saw %d requests, want 3", len(ex.requests))
	}

	text := out.String()
	if !strings.Contains(text, "Error: Could not complete save with 127.0.0.1:1234") {
		t.Errorf("missing connection error message:\n%s", text)
	}
	if !strings.Contains(text, "This user does not have any files on the server.") {
		t.Errorf("list after a failed step did not run:\n%s", text)
	}
}

func TestRunSaveMissingFileSendsNothing(t *testing.T) {
	ex := &fakeExchange{reply: func(req *protocol.Request) (*protocol.Response, error) {
		return &protocol.Response{Version: 1, Status: protocol.StatusOK, FileName: req.FileName, Fields: protocol.FieldName}, nil
	}}
	r, _ := newTestRunner(t, ex)
	r.Session.Files = []string{"does-not-exist.bin"}

	results := r.Run(context.Background(), []Step{{Op: protocol.OpSave, File: 0}})
	if !errors.Is(results[0].Err, protocol.ErrEncoding) {
		t.Fatalf("expected encoding error, got %v", results[0].Err)
	}
	if len(ex.requests) != 0 {
		t.Fatalf("nothing should be sent, server saw %d requests", len(ex.requests))
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ex := &fakeExchange{reply: func(req *protocol.Request) (*protocol.Response, error) {
		return &protocol.Response{Status: protocol.StatusNoFiles}, nil
	}}
	r, _ := newTestRunner(t, ex, "a.txt", "b.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if results := r.Run(ctx, DefaultScript()); len(results) != 0 {
		t.Fatalf("got %d results after cancel, want 0", len(results))
	}
}

func TestExecuteEncodesRequests(t *testing.T) {
	ex := &fakeExchange{reply: func(req *protocol.Request) (*protocol.Response, error) {
		return &protocol.Response{Status: protocol.StatusNoFiles}, nil
	}}
	r, _ := newTestRunner(t, ex, "a.txt", "b.txt")

	for _, step := range []Step{
		{Op: protocol.OpSave, File: 1},
		{Op: protocol.OpRestore, File: 0},
		{Op: protocol.OpDelete, File: 1},
		{Op: protocol.OpList, File: NoFile},
	} {
		if _, err := r.Execute(context.Background(), step); err != nil {
			t.Fatalf("Execute(%s) failed: %v", step, err)
		}
	}

	want := []protocol.Request{
		{ClientID: 31337, Version: 127, Op: protocol.OpSave, FileName: "b.txt", Content: []byte("contents of b.txt")},
		{ClientID: 31337, Version: 127, Op: protocol.OpRestore, FileName: "a.txt"},
		{ClientID: 31337, Version: 127, Op: protocol.OpDelete, FileName: "b.txt"},
		{ClientID: 31337, Version: 127, Op: protocol.OpList},
	}
	for i, got := range ex.requests {
		w := want[i]
		if got.ClientID != w.ClientID || got.Version != w.Version || got.Op != w.Op ||
			got.FileName != w.FileName || !bytes.Equal(got.Content, w.Content) {
			t.Errorf("request %d = %+v, want %+v", i, got, w)
		}
	}
}

// memoryServer is a minimal in-process backup server keyed by client id.
type memoryServer struct {
	mu    sync.Mutex
	files map[uint32]map[string][]byte
}

func (s *memoryServer) reply(req *protocol.Request) *protocol.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &protocol.Response{Version: req.Version, FileName: req.FileName}
	own := s.files[req.ClientID]

	switch req.Op {
	case protocol.OpSave:
		if own == nil {
			own = map[string][]byte{}
			s.files[req.ClientID] = own
		}
		own[req.FileName] = req.Content
		resp.Status = protocol.StatusOK
	case protocol.OpRestore:
		content, ok := own[req.FileName]
		if !ok {
			resp.Status = protocol.StatusNotFound
			break
		}
		resp.Status, resp.Content = protocol.StatusRestored, content
	case protocol.OpDelete:
		if _, ok := own[req.FileName]; !ok {
			resp.Status = protocol.StatusNotFound
			break
		}
		delete(own, req.FileName)
		resp.Status = protocol.StatusOK
	case protocol.OpList:
		if len(own) == 0 {
			resp.Status = protocol.StatusNoFiles
			break
		}
		names := make([]string, 0, len(own))
		for name := range own {
			names = append(names, name)
		}
		sort.Strings(names)
		resp.Status = protocol.StatusListing
		resp.FileName = "0123456789abcdef0123456789abcdef"
		resp.Content = []byte(strings.Join(names, "\n") + "\n")
	}
	return resp
}

func (s *memoryServer) serve(conn net.Conn) {
	for {
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				resp := &protocol.Response{Version: 0, Status: protocol.StatusServerError}
				frame, _ := resp.MarshalBinary()
				conn.Write(frame)
			}
			return
		}
		frame, err := s.reply(req).MarshalBinary()
		if err != nil {
			return
		}
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

func TestRunDefaultScriptEndToEnd(t *testing.T) {
	srv := &memoryServer{files: map[uint32]map[string][]byte{}}
	exit := make(chan any)
	h := transport.NewTCPHandler("127.0.0.1:0", srv.serve, exit)
	if err := h.ListenAndAccept(); err != nil {
		t.Fatalf("ListenAndAccept failed: %v", err)
	}
	defer func() {
		close(exit)
		h.Close()
	}()

	client := transport.NewClient(h.Addr().String())
	client.Timeout = 5 * time.Second
	r, out := newTestRunner(t, client, "notes.txt", "photo.png")
	host, port, _ := net.SplitHostPort(h.Addr().String())
	r.Session.Host, r.Session.Port = host, port

	results := r.Run(context.Background(), DefaultScript())
	if Failed(results) != 0 {
		for _, res := range results {
			t.Logf("%s: %v", res.Step, res.Err)
		}
		t.Fatalf("%d steps failed", Failed(results))
	}

	wantStatus := []protocol.Status{
		protocol.StatusNoFiles,
		protocol.StatusOK,
		protocol.StatusOK,
		protocol.StatusListing,
		protocol.StatusRestored,
		protocol.StatusOK,
		protocol.StatusNotFound,
	}
	for i, res := range results {
		if res.Response.Status != wantStatus[i] {
			t.Errorf("step %d (%s) status = %d, want %d", i+1, res.Step, res.Response.Status, wantStatus[i])
		}
	}

	listing := results[3].Response
	if string(listing.Content) != "notes.txt\nphoto.png\n" || listing.Has(protocol.FieldName) {
		t.Errorf("listing = %+v", listing)
	}

	restored, err := os.ReadFile(filepath.Join(r.Store.Dir, "tmp.txt"))
	if err != nil || string(restored) != "contents of notes.txt" {
		t.Fatalf("restored file = %q, %v", restored, err)
	}
	if !strings.Contains(out.String(), "because file notes.txt does not exist") {
		t.Errorf("final restore message missing:\n%s", out.String())
	}
}
