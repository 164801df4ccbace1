package transport

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestTCPHandlerListenAndAccept(t *testing.T) {
	exit := make(chan any)
	handler := NewTCPHandler("localhost:0", func(conn net.Conn) {}, exit)

	if err := handler.ListenAndAccept(); err != nil {
		t.Fatalf("ListenAndAccept failed: %v", err)
	}

	// Verify we can connect to it
	conn, err := net.DialTimeout("tcp", handler.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to handler: %v", err)
	}
	conn.Close()

	// Clean shutdown
	close(exit)
	handler.Close()
}

func TestTCPHandlerServesConnection(t *testing.T) {
	exit := make(chan any)
	received := make(chan []byte, 1)
	handler := NewTCPHandler("localhost:0", func(conn net.Conn) {
		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err != nil {
			t.Errorf("handler read failed: %v", err)
			return
		}
		received <- buf
		conn.Write([]byte("pong"))
	}, exit)

	if err := handler.ListenAndAccept(); err != nil {
		t.Fatalf("ListenAndAccept failed: %v", err)
	}

	conn, err := net.DialTimeout("tcp", handler.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Errorf("Expected payload 'hello', got '%s'", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for handler")
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("Failed to read reply: %v", err)
	}
	if string(reply) != "pong" {
		t.Errorf("Expected reply 'pong', got '%s'", reply)
	}

	// The handler returned, so the server side must have closed.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if n, err := conn.Read(reply); err != io.EOF {
		t.Errorf("Expected EOF after handler returned, got %d bytes, %v", n, err)
	}

	close(exit)
	handler.Close()
}

func TestTCPHandlerCloseInterruptsIdleConnections(t *testing.T) {
	exit := make(chan any)
	served := make(chan struct{})
	handler := NewTCPHandler("localhost:0", func(conn net.Conn) {
		close(served)
		conn.SetReadDeadline(time.Now().Add(time.Minute))
		io.ReadAll(conn) // client never writes
	}, exit)

	if err := handler.ListenAndAccept(); err != nil {
		t.Fatalf("ListenAndAccept failed: %v", err)
	}
	conn, err := net.DialTimeout("tcp", handler.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	select {
	case <-served:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for handler")
	}

	start := time.Now()
	close(exit)
	handler.Close()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("Close waited %v on an idle connection", elapsed)
	}
}
