package channel

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func mustBind(t *testing.T) *Channel {
	t.Helper()
	ch, err := Bind(0)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func mustConnect(t *testing.T, server *Channel) *Channel {
	t.Helper()
	ch, err := Connect("127.0.0.1", server.LocalAddr().Port)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestRoundTrip(t *testing.T) {
	server := mustBind(t)
	client := mustConnect(t, server)

	payload := []byte("probe payload")
	if err := client.Send(payload); err != nil {
		t.Fatalf("client send: %v", err)
	}

	buf := make([]byte, 64)
	n, addr, err := server.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("server receive: %v", err)
	}
	if addr == nil {
		t.Fatal("server receive returned nil sender address")
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("server got %q, want %q", buf[:n], payload)
	}

	// Server replies to the recorded sender.
	if err := server.Send(buf[:n]); err != nil {
		t.Fatalf("server send: %v", err)
	}
	n, _, err = client.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("client receive: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("client got %q, want %q", buf[:n], payload)
	}
}

func TestReceiveTimeout(t *testing.T) {
	server := mustBind(t)
	buf := make([]byte, 16)
	_, _, err := server.Receive(buf, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestServerSendWithoutPeer(t *testing.T) {
	server := mustBind(t)
	if err := server.Send([]byte("x")); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("expected ErrNoPeer, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server := mustBind(t)
	if err := server.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestReceiveAfterClose(t *testing.T) {
	server := mustBind(t)
	server.Close()
	buf := make([]byte, 16)
	_, _, err := server.Receive(buf, time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConnectBadHost(t *testing.T) {
	if _, err := Connect("host.invalid.", 9000); err == nil {
		t.Fatal("expected resolution error for invalid host")
	}
}
