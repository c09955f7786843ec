package reflector

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/NodePath81/mtrip/internal/channel"
	"github.com/NodePath81/mtrip/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startReflector(t *testing.T) (*channel.Channel, context.CancelFunc, chan error) {
	t.Helper()
	ch, err := channel.Bind(0)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { ch.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ch, Config{ReadTimeout: 50 * time.Millisecond}, testLogger())
	}()
	return ch, cancel, done
}

func TestEchoIsByteExact(t *testing.T) {
	server, cancel, _ := startReflector(t)
	defer cancel()

	client, err := channel.Connect("127.0.0.1", server.LocalAddr().Port)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	// 64-byte probe carrying sequence number 42 and a non-trivial
	// padding pattern, so an echo of zeroed padding would be caught.
	probe := make([]byte, 64)
	protocol.PutSeq(probe, 42)
	for i := protocol.SeqHeaderSize; i < len(probe); i++ {
		probe[i] = byte(i * 7)
	}
	if err := client.Send(probe); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 128)
	n, _, err := client.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if n != len(probe) {
		t.Fatalf("echo length = %d, want %d", n, len(probe))
	}
	if !bytes.Equal(buf[:n], probe) {
		t.Fatal("echo differs from probe")
	}
	if protocol.Seq(buf) != 42 {
		t.Fatalf("echo sequence = %d, want 42", protocol.Seq(buf))
	}
}

func TestEchoesMultipleDatagrams(t *testing.T) {
	server, cancel, _ := startReflector(t)
	defer cancel()

	client, err := channel.Connect("127.0.0.1", server.LocalAddr().Port)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	buf := make([]byte, 128)
	for seq := uint32(0); seq < 5; seq++ {
		probe := make([]byte, 32)
		protocol.PutSeq(probe, seq)
		if err := client.Send(probe); err != nil {
			t.Fatalf("send seq %d: %v", seq, err)
		}
		n, _, err := client.Receive(buf, time.Second)
		if err != nil {
			t.Fatalf("receive seq %d: %v", seq, err)
		}
		if got := protocol.Seq(buf[:n]); got != seq {
			t.Fatalf("echo sequence = %d, want %d", got, seq)
		}
	}
}

func TestShutdownOnCancel(t *testing.T) {
	_, cancel, done := startReflector(t)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reflector did not stop within 1s of cancellation")
	}
}

func TestShutdownOnChannelClose(t *testing.T) {
	server, cancel, done := startReflector(t)
	defer cancel()

	server.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v, want nil on closed channel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reflector did not stop after channel close")
	}
}
