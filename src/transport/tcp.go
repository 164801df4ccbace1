package transport

import (
	"net"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
)

// ConnHandler serves one accepted connection. The connection is closed
// when it returns.
type ConnHandler func(conn net.Conn)

type TCPHandler struct {
	address  string
	listener net.Listener
	handle   ConnHandler
	exit     chan any
	conns    sync.WaitGroup
	done     chan struct{}

	mu   sync.Mutex
	open map[net.Conn]struct{}
}

// TCPHandler generator function
func NewTCPHandler(address string, handle ConnHandler, exit chan any) *TCPHandler {
	logs.Debugf("NewTCPHandler(%s)", address)
	return &TCPHandler{
		address: address,
		handle:  handle,
		exit:    exit,
		done:    make(chan struct{}),
		open:    make(map[net.Conn]struct{}),
	}
}

// Listen and accept connections via TCPHandler.listener
func (h *TCPHandler) ListenAndAccept() error {
	logs.Debugf("ListenAndAccept(%s)", h.address)
	var err error
	h.listener, err = net.Listen("tcp", h.address)
	if err != nil {
		return err
	}

	go h.acceptConnections()

	return nil
}

// Addr returns the bound listener address, nil before ListenAndAccept.
func (h *TCPHandler) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Close waits for the accept loop to observe exit and for open
// connections to finish. Connections still open when exit fires are
// closed by the accept loop.
func (h *TCPHandler) Close() error {
	logs.Debugf("Close(start)")
	if h.listener != nil {
		<-h.done
	}
	h.conns.Wait()
	logs.Debugf("Close(done)")
	return nil
}

// private

// listener accept loop
func (h *TCPHandler) acceptConnections() {
	logs.Debugf("acceptConnections(): start")
	defer close(h.done)
	defer h.listener.Close()
	for {
		select {
		case <-h.exit:
			logs.Debugf("acceptConnections(): exit")
			h.closeOpen()
			return
		default:
			h.listener.(*net.TCPListener).SetDeadline(time.Now().Add(500 * time.Millisecond)) // Non-blocking
			conn, err := h.listener.Accept()
			if err != nil {
				if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
					// Timeout, continue to check exit
					continue
				}
				logs.Warnf("acceptConnections error: %s", err)
				return
			}
			h.conns.Add(1)
			h.track(conn, true)
			go h.handleConnection(conn)
		}
	}
}

// listener connection handler
func (h *TCPHandler) handleConnection(conn net.Conn) {
	defer h.conns.Done()
	defer h.track(conn, false)
	defer conn.Close()
	clientAddr := conn.RemoteAddr().String()
	logs.Debugf("handleConnection(%s): start", clientAddr)

	h.handle(conn)

	logs.Debugf("handleConnection(%s): connection released", clientAddr)
}

func (h *TCPHandler) track(conn net.Conn, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.open[conn] = struct{}{}
	} else {
		delete(h.open, conn)
	}
}

// closeOpen unblocks handlers still reading from their connections.
func (h *TCPHandler) closeOpen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.open {
		logs.Debugf("closeOpen(): closing %s", conn.RemoteAddr())
		conn.Close()
	}
}
