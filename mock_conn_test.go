package mqttc

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// mockAddr satisfies net.Addr with fixed values.
type mockAddr struct{}

func (mockAddr) Network() string { return "tcp" }
func (mockAddr) String() string  { return "0.0.0.0" }

// timeoutError is what Read returns when the read deadline passes, shaped
// like the net package's own timeout errors.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// mockConn is a scriptable net.Conn standing in for the broker side of the
// stream. Tests queue broker->client bytes with feed/RemoteWrite and inspect
// client->broker traffic with nextWritten.
type mockConn struct {
	mu      sync.Mutex
	inbound bytes.Buffer // broker -> client
	written bytes.Buffer // client -> broker

	readDeadline time.Time
	closed       bool
}

func newMockConn() *mockConn {
	return &mockConn{}
}

// RemoteWrite queues raw bytes for the client to read.
func (c *mockConn) RemoteWrite(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound.Write(data)
}

// feed queues an encoded control packet for the client to read.
func (c *mockConn) feed(packet packets.ControlPacket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := packet.Write(&c.inbound); err != nil {
		panic(err)
	}
}

// nextWritten decodes the next control packet the client wrote, or nil when
// the client has written nothing further.
func (c *mockConn) nextWritten() packets.ControlPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.written.Len() == 0 {
		return nil
	}
	packet, err := packets.ReadPacket(&c.written)
	if err != nil {
		panic(err)
	}
	return packet
}

// Read hands out queued inbound bytes, blocking until data arrives, the
// deadline passes or the connection closes.
func (c *mockConn) Read(b []byte) (int, error) {
	for {
		c.mu.Lock()
		if c.inbound.Len() > 0 {
			n, _ := c.inbound.Read(b)
			c.mu.Unlock()
			return n, nil
		}
		closed := c.closed
		deadline := c.readDeadline
		c.mu.Unlock()

		if closed {
			return 0, io.EOF
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, timeoutError{}
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.written.Write(b)
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) LocalAddr() net.Addr  { return mockAddr{} }
func (c *mockConn) RemoteAddr() net.Addr { return mockAddr{} }

func (c *mockConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *mockConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *mockConn) SetWriteDeadline(time.Time) error { return nil }

// mockConnector hands out a queue of prepared connections, one per connect
// attempt, so reconnect tests can script each successive stream.
type mockConnector struct {
	conns    []*mockConn
	attempts int
}

func (m *mockConnector) Connect(addr string) (net.Conn, error) {
	if m.attempts >= len(m.conns) {
		return nil, io.EOF
	}
	conn := m.conns[m.attempts]
	m.attempts++
	return conn, nil
}

// connack builds a CONNACK with the given return code and session-present
// flag.
func connack(code byte, sessionPresent bool) *packets.ConnackPacket {
	p := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	p.ReturnCode = code
	p.SessionPresent = sessionPresent
	return p
}

// connectClient runs a handshake against a fresh mock connection that has an
// accepting CONNACK queued, returning the connected client and its conn.
func connectClient(options ...Option) (*Client, *mockConn) {
	conn := newMockConn()
	conn.feed(connack(packets.Accepted, false))
	connector := &mockConnector{conns: []*mockConn{conn}}

	client, err := NewOptions(options...).ConnectWith(connector, "localhost:1883")
	if err != nil {
		panic(err)
	}
	// Drop the CONNECT the handshake wrote so tests start clean.
	if packet := conn.nextWritten(); packet == nil {
		panic("expected CONNECT on the wire")
	}
	return client, conn
}
