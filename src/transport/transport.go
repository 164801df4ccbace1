package transport

import (
	"context"
	"net"

	"github.com/danmuck/dps_backup/src/protocol"
)

// Exchanger performs one request/reply exchange.
type Exchanger interface {
	Send(ctx context.Context, request []byte) (*protocol.Response, error) // send one request, decode one reply
}

// Listener accepts connections and hands each to a ConnHandler.
type Listener interface {
	ListenAndAccept() error // listen and accept connections
	Addr() net.Addr         // bound address
	Close() error           // wait for the accept loop and open connections
}

var (
	_ Exchanger = (*Client)(nil)
	_ Listener  = (*TCPHandler)(nil)
)
