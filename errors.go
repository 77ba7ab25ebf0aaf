package mqttc

import (
	"errors"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Standard errors returned by the client.
var (
	// ErrTimeout is returned by Accept when the keep-alive window elapsed
	// without a packet arriving. Await absorbs it into a ping.
	ErrTimeout = errors.New("read timed out")

	// ErrDisconnected is returned when the link is down and the reconnect
	// policy does not allow a new attempt.
	ErrDisconnected = errors.New("client disconnected")

	// ErrConnectionAbort is returned when a packet arrives while the client
	// is in the Disconnected state.
	ErrConnectionAbort = errors.New("connection aborted")

	// ErrHandshakeFailed is returned when the first inbound packet after
	// CONNECT is anything but a CONNACK.
	ErrHandshakeFailed = errors.New("handshake failed: expected CONNACK")

	// ErrAlreadyConnected is returned when a CONNACK arrives on an already
	// connected session.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrProtocolViolation covers acknowledgements that do not line up with
	// what the client sent: SUBACK/UNSUBACK pid or count mismatches, and a
	// Complete for a packet id that is not next in line.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrUnrecognizedPacket is returned for inbound packet types a client
	// should never see (SUBSCRIBE, CONNECT, ...).
	ErrUnrecognizedPacket = errors.New("unrecognized packet")

	// Unhandled acknowledgements: the ack's packet id does not match the
	// head of the corresponding in-flight queue, or the queue is empty.
	// PUBCOMP is only checked against an empty queue; its packet id is not
	// compared.
	ErrUnhandledPuback  = errors.New("unhandled PUBACK")
	ErrUnhandledPubrec  = errors.New("unhandled PUBREC")
	ErrUnhandledPubrel  = errors.New("unhandled PUBREL")
	ErrUnhandledPubcomp = errors.New("unhandled PUBCOMP")

	// ErrIncomingStorageAbsent / ErrOutgoingStorageAbsent indicate a client
	// configured without the store its QoS level requires.
	ErrIncomingStorageAbsent = errors.New("incoming store absent")
	ErrOutgoingStorageAbsent = errors.New("outgoing store absent")

	// ErrStorageMiss is returned by Store.Get for an unknown packet id.
	ErrStorageMiss = errors.New("no stored message for packet id")

	// ErrInvalidURLScheme is returned by Options.Connect for schemes other
	// than tcp, mqtt, tls, ssl and mqtts.
	ErrInvalidURLScheme = errors.New("invalid URL scheme")

	// ErrInvalidTopic is returned for a malformed topic name or filter.
	ErrInvalidTopic = errors.New("invalid topic")
)

// ConnectionRefusedError is returned when the broker answers CONNECT with a
// non-accepted return code.
type ConnectionRefusedError struct {
	Code byte
}

func (e *ConnectionRefusedError) Error() string {
	if text, ok := packets.ConnackReturnCodes[e.Code]; ok {
		return fmt.Sprintf("connection refused: %s", text)
	}
	return fmt.Sprintf("connection refused: return code %d", e.Code)
}

func unhandledAck(sentinel error, pid uint16) error {
	return fmt.Errorf("%w: packet id %d", sentinel, pid)
}
