// Package channel wraps a UDP socket behind the send/receive contract
// shared by the reflector and the prober. A Channel is either bound
// (server role, replies to the most recent sender) or connected
// (client role, fixed peer). It owns the socket for its lifetime and
// closes it exactly once.
package channel

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/NodePath81/mtrip/internal/pacing"
)

var (
	// ErrTimeout reports that no datagram arrived within the receive timeout.
	ErrTimeout = errors.New("channel: receive timed out")
	// ErrClosed reports an operation on a closed channel.
	ErrClosed = errors.New("channel: closed")
	// ErrNoPeer reports a server-role send before any datagram arrived.
	ErrNoPeer = errors.New("channel: no sender recorded yet")
)

const socketBufferBytes = 4 * 1024 * 1024

// Channel is a bound or connected UDP endpoint.
type Channel struct {
	conn      *net.UDPConn
	connected bool

	mu   sync.Mutex
	peer *net.UDPAddr // last sender (server role only)

	closeOnce sync.Once
	closeErr  error
}

// Bind opens a receive-capable endpoint on the local port (server role).
func Bind(port int) (*Channel, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind udp port %d: %w", port, err)
	}
	tune(conn)
	return &Channel{conn: conn}, nil
}

// Connect opens an endpoint with a fixed remote peer (client role).
func Connect(host string, port int) (*Channel, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", host, port, err)
	}
	tune(conn)
	return &Channel{conn: conn, connected: true}, nil
}

func tune(conn *net.UDPConn) {
	_ = conn.SetReadBuffer(socketBufferBytes)
	_ = conn.SetWriteBuffer(socketBufferBytes)
}

// Send transmits exactly len(p) octets to the peer. A server-role
// channel sends to the most recently recorded sender address.
func (c *Channel) Send(p []byte) error {
	if c.connected {
		n, err := c.conn.Write(p)
		return checkSend(n, len(p), err)
	}
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return ErrNoPeer
	}
	n, err := c.conn.WriteToUDP(p, peer)
	return checkSend(n, len(p), err)
}

func checkSend(n, want int, err error) error {
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	if n != want {
		return fmt.Errorf("short udp write: %d of %d bytes", n, want)
	}
	return nil
}

// Receive blocks up to timeout for one datagram and copies it into
// buf. A timeout <= 0 blocks indefinitely. On a server-role channel
// the sender becomes the new reply address.
func (c *Channel) Receive(buf []byte, timeout time.Duration) (int, *net.UDPAddr, error) {
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, nil, err
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return 0, nil, err
		}
	}
	n, addr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return 0, nil, ErrClosed
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, nil, ErrTimeout
		}
		return 0, nil, err
	}
	if !c.connected {
		c.mu.Lock()
		c.peer = addr
		c.mu.Unlock()
	}
	return n, addr, nil
}

// ApplyPacingRate asks the kernel to pace outgoing datagrams at the
// given byte rate. Best effort; unsupported outside linux.
func (c *Channel) ApplyPacingRate(bytesPerSec float64) error {
	return pacing.Apply(c.conn, bytesPerSec)
}

// LocalAddr returns the bound local address.
func (c *Channel) LocalAddr() *net.UDPAddr {
	addr, _ := c.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Close releases the socket. Safe to call from any goroutine and more
// than once; only the first call closes the descriptor.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// IsResourceExhaustion reports whether err is an OS-level resource
// exhaustion condition (descriptor table or socket buffers).
func IsResourceExhaustion(err error) bool {
	return errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) ||
		errors.Is(err, unix.ENOMEM)
}
