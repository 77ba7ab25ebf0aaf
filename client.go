package mqttc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	log "github.com/sirupsen/logrus"
)

// Client is a synchronous MQTT 3.1.1 session engine over a single stream.
// All state transitions happen on the caller's goroutine during Publish,
// Subscribe, Unsubscribe, Accept, Await, Complete or Reconnect; the client is
// not safe for concurrent use and callers with concurrent producers must
// serialize externally.
//
// The client exclusively owns its stream, both stores and all queue state.
// The connector is retained so the stream can be re-established on reconnect.
type Client struct {
	connector Connector
	addr      string
	conn      net.Conn
	wr        *bufio.Writer
	state     ClientState
	opts      *Options

	sessionPresent bool
	lastFlush      time.Time
	pids           pidSequence
	awaitPing      bool

	// In-flight queues. FIFO order mirrors broker acknowledgement order; a
	// head/ack packet-id mismatch is a protocol violation.
	incomingPub   []Message // QoS 1 inbound, held across the PUBACK write
	incomingRec   []Message // QoS 2 inbound awaiting PUBREL
	incomingRel   []uint16  // QoS 2 inbound awaiting Complete
	outgoingAck   []Message // QoS 1 outbound awaiting PUBACK
	outgoingRec   []Message // QoS 2 outbound awaiting PUBREC
	outgoingComp  []uint16  // QoS 2 outbound awaiting PUBCOMP
	awaitSuback   []*packets.SubscribePacket
	awaitUnsuback []*packets.UnsubscribePacket

	subscriptions map[string]Subscription
}

var _ PubSub = (*Client)(nil)

// bind installs a fresh stream.
func (c *Client) bind(conn net.Conn) {
	c.conn = conn
	c.wr = bufio.NewWriter(conn)
	c.lastFlush = time.Now()
}

// handshake sends CONNECT and synchronously waits for the CONNACK. Any other
// packet fails the handshake; a refused CONNACK surfaces its return code.
func (c *Client) handshake() error {
	c.state = StateHandshake

	connect := c.opts.connectPacket()
	log.Debugf("Broker <- CONNECT(%s)", connect.ClientIdentifier)
	if err := c.writePacket(connect); err != nil {
		return err
	}
	if err := c.flush(); err != nil {
		return err
	}

	packet, err := c.readPacket()
	if err != nil {
		if errors.Is(err, ErrTimeout) || isTimeout(err) {
			return ErrTimeout
		}
		return err
	}
	_, err = c.dispatch(packet)
	return err
}

// Await drains inbound packets until a user-visible publication is produced,
// returning nil when the session normalizes instead (connected, no pending
// ping, every in-flight queue empty). Keep-alive timeouts are absorbed: the
// first sends a PINGREQ, a second with the ping still pending drops the link.
func (c *Client) Await() (*Message, error) {
	for {
		msg, err := c.Accept()
		switch {
		case err == nil:
			if msg != nil {
				return msg, nil
			}
		case errors.Is(err, ErrTimeout):
			if c.state != StateConnected {
				return nil, ErrTimeout
			}
			if !c.awaitPing {
				if err := c.Ping(); err != nil {
					return nil, err
				}
			} else {
				log.Errorf("No PINGRESP within keep-alive - dropping the link")
				c.unbind()
			}
		default:
			return nil, err
		}
		if c.normalized() {
			return nil, nil
		}
	}
}

// Accept performs one read cycle in the current state: set the remaining
// keep-alive as read deadline, read one packet and dispatch it. A nil message
// with a nil error means the cycle made progress without surfacing a
// publication.
func (c *Client) Accept() (*Message, error) {
	switch c.state {
	case StateConnected, StateHandshake:
		packet, err := c.readPacket()
		if err != nil {
			return c.acceptReadError(err)
		}
		msg, err := c.dispatch(packet)
		if err != nil {
			if errors.Is(err, ErrConnectionAbort) {
				c.unbind()
				return nil, ErrConnectionAbort
			}
			log.Errorf("%s", err)
			return nil, err
		}
		return msg, nil
	default:
		if c.tryReconnect() {
			return nil, nil
		}
		return nil, ErrDisconnected
	}
}

// readPacket reads one control packet, synthesizing ErrTimeout without
// touching the stream when the keep-alive window has already elapsed.
func (c *Client) readPacket() (packets.ControlPacket, error) {
	if c.conn == nil {
		return nil, ErrDisconnected
	}
	if keepAlive := c.opts.keepAlive; keepAlive > 0 {
		elapsed := time.Since(c.lastFlush)
		if elapsed >= keepAlive {
			return nil, ErrTimeout
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(keepAlive - elapsed)); err != nil {
			return nil, err
		}
	}
	return packets.ReadPacket(c.conn)
}

// acceptReadError translates stream failures: deadline expiry becomes
// ErrTimeout, a lost connection unbinds and consults the reconnect policy,
// anything else unbinds and surfaces.
func (c *Client) acceptReadError(err error) (*Message, error) {
	switch {
	case errors.Is(err, ErrTimeout), isTimeout(err):
		return nil, ErrTimeout
	case errors.Is(err, ErrDisconnected):
		return nil, ErrDisconnected
	case isConnectionLost(err):
		log.Errorf("Connection lost: %s", err)
		c.unbind()
		if c.tryReconnect() {
			return nil, nil
		}
		return nil, ErrDisconnected
	default:
		log.Errorf("Read failed: %s", err)
		c.unbind()
		return nil, err
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isConnectionLost(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// normalized reports whether the session is connected with nothing pending.
func (c *Client) normalized() bool {
	return c.state == StateConnected && !c.awaitPing &&
		len(c.incomingPub) == 0 && len(c.incomingRec) == 0 && len(c.incomingRel) == 0 &&
		len(c.outgoingAck) == 0 && len(c.outgoingRec) == 0 && len(c.outgoingComp) == 0 &&
		len(c.awaitSuback) == 0 && len(c.awaitUnsuback) == 0
}

// dispatch validates an inbound packet against the current state and the
// in-flight queues, and drives its side effects.
func (c *Client) dispatch(packet packets.ControlPacket) (*Message, error) {
	switch c.state {
	case StateHandshake:
		connack, ok := packet.(*packets.ConnackPacket)
		if !ok {
			return nil, ErrHandshakeFailed
		}
		if connack.ReturnCode != packets.Accepted {
			return nil, &ConnectionRefusedError{Code: connack.ReturnCode}
		}
		c.sessionPresent = connack.SessionPresent
		c.state = StateConnected
		log.Infof("Connection accepted (session present: %v)", connack.SessionPresent)
		return nil, nil

	case StateConnected:
		return c.dispatchConnected(packet)

	default:
		return nil, ErrConnectionAbort
	}
}

func (c *Client) dispatchConnected(packet packets.ControlPacket) (*Message, error) {
	switch p := packet.(type) {
	case *packets.ConnackPacket:
		return nil, ErrAlreadyConnected

	case *packets.PublishPacket:
		return c.handlePublish(p)

	case *packets.PubackPacket:
		log.Debugf("Broker -> PUBACK(%d)", p.MessageID)
		if len(c.outgoingAck) == 0 || c.outgoingAck[0].PacketID != p.MessageID {
			return nil, unhandledAck(ErrUnhandledPuback, p.MessageID)
		}
		c.outgoingAck = c.outgoingAck[1:]
		return nil, nil

	case *packets.PubrecPacket:
		log.Debugf("Broker -> PUBREC(%d)", p.MessageID)
		if len(c.outgoingRec) == 0 || c.outgoingRec[0].PacketID != p.MessageID {
			return nil, unhandledAck(ErrUnhandledPubrec, p.MessageID)
		}
		c.outgoingRec = c.outgoingRec[1:]

		pubrel := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
		pubrel.MessageID = p.MessageID
		if err := c.writePacket(pubrel); err != nil {
			return nil, err
		}
		if err := c.flush(); err != nil {
			return nil, err
		}
		c.outgoingComp = append(c.outgoingComp, p.MessageID)

		if c.opts.outgoingStore == nil {
			return nil, ErrOutgoingStorageAbsent
		}
		return nil, c.opts.outgoingStore.Delete(p.MessageID)

	case *packets.PubrelPacket:
		log.Debugf("Broker -> PUBREL(%d)", p.MessageID)
		if len(c.incomingRec) == 0 || c.incomingRec[0].PacketID != p.MessageID {
			return nil, unhandledAck(ErrUnhandledPubrel, p.MessageID)
		}
		c.incomingRec = c.incomingRec[1:]

		if c.opts.incomingStore == nil {
			return nil, ErrIncomingStorageAbsent
		}
		m, err := c.opts.incomingStore.Get(p.MessageID)
		if err != nil {
			return nil, err
		}
		c.incomingRel = append(c.incomingRel, p.MessageID)
		return &m, nil

	case *packets.PubcompPacket:
		log.Debugf("Broker -> PUBCOMP(%d)", p.MessageID)
		if len(c.outgoingComp) == 0 {
			return nil, unhandledAck(ErrUnhandledPubcomp, p.MessageID)
		}
		c.outgoingComp = c.outgoingComp[1:]
		return nil, nil

	case *packets.SubackPacket:
		log.Debugf("Broker -> SUBACK(%d)", p.MessageID)
		if len(c.awaitSuback) == 0 {
			return nil, ErrProtocolViolation
		}
		subscribe := c.awaitSuback[0]
		c.awaitSuback = c.awaitSuback[1:]
		if subscribe.MessageID != p.MessageID {
			return nil, ErrProtocolViolation
		}
		if len(p.ReturnCodes) != len(subscribe.Topics) {
			return nil, ErrProtocolViolation
		}
		for i, code := range p.ReturnCodes {
			if code == 0x80 {
				log.Debugf("Subscription to %q refused by broker", subscribe.Topics[i])
				continue
			}
			c.subscriptions[subscribe.Topics[i]] = Subscription{
				PacketID:    p.MessageID,
				TopicFilter: subscribe.Topics[i],
				QoS:         QoS(code),
			}
		}
		return nil, nil

	case *packets.UnsubackPacket:
		log.Debugf("Broker -> UNSUBACK(%d)", p.MessageID)
		if len(c.awaitUnsuback) == 0 {
			return nil, ErrProtocolViolation
		}
		unsubscribe := c.awaitUnsuback[0]
		c.awaitUnsuback = c.awaitUnsuback[1:]
		if unsubscribe.MessageID != p.MessageID {
			return nil, ErrProtocolViolation
		}
		for _, topic := range unsubscribe.Topics {
			delete(c.subscriptions, topic)
		}
		return nil, nil

	case *packets.PingrespPacket:
		log.Debugf("Broker -> PINGRESP")
		c.awaitPing = false
		return nil, nil

	default:
		return nil, ErrUnrecognizedPacket
	}
}

// handlePublish runs the inbound side of the delivery pipelines.
func (c *Client) handlePublish(p *packets.PublishPacket) (*Message, error) {
	m := messageFromPublish(p)
	log.Debugf("Broker -> PUBLISH qos=%d %s (%d bytes)", m.QoS, m.Topic, len(m.Payload))

	switch m.QoS {
	case AtMostOnce:
		return &m, nil

	case AtLeastOnce:
		c.incomingPub = append(c.incomingPub, m)
		puback := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
		puback.MessageID = m.PacketID
		if err := c.writePacket(puback); err != nil {
			return nil, err
		}
		if err := c.flush(); err != nil {
			return nil, err
		}
		// A broker duplicate surfaces again; MQTT 3.1.1 tolerates this.
		c.incomingPub = c.incomingPub[1:]
		return &m, nil

	case ExactlyOnce:
		if c.opts.incomingStore == nil {
			return nil, ErrIncomingStorageAbsent
		}
		if err := c.opts.incomingStore.Put(m); err != nil {
			return nil, err
		}
		c.incomingRec = append(c.incomingRec, m)
		pubrec := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
		pubrec.MessageID = m.PacketID
		if err := c.writePacket(pubrec); err != nil {
			return nil, err
		}
		if err := c.flush(); err != nil {
			return nil, err
		}
		// Not surfaced until PUBREL arrives.
		return nil, nil
	}
	return nil, ErrProtocolViolation
}

// Publish sends a publication. QoS 0 is fire-and-forget; QoS 1 and 2
// allocate a packet id and track the message until the broker acknowledges.
func (c *Client) Publish(topic string, payload []byte, opt PubOpt) error {
	if err := c.publish(topic, payload, opt); err != nil {
		return err
	}
	return c.flush()
}

func (c *Client) publish(topic string, payload []byte, opt PubOpt) error {
	if err := validateTopicName(topic); err != nil {
		return err
	}
	m := Message{Topic: topic, QoS: opt.QoS, Retain: opt.Retain, Payload: payload}

	switch opt.QoS {
	case AtMostOnce:
		// no state
	case AtLeastOnce:
		m.PacketID = c.pids.next()
		c.outgoingAck = append(c.outgoingAck, m)
	case ExactlyOnce:
		m.PacketID = c.pids.next()
		if c.opts.outgoingStore == nil {
			return ErrOutgoingStorageAbsent
		}
		if err := c.opts.outgoingStore.Put(m); err != nil {
			return err
		}
		c.outgoingRec = append(c.outgoingRec, m)
	default:
		return fmt.Errorf("invalid QoS %d", opt.QoS)
	}

	log.Debugf("Broker <- PUBLISH qos=%d %s (%d bytes)", m.QoS, m.Topic, len(m.Payload))
	return c.writePacket(m.toPublish(false))
}

// Subscribe normalizes its input to (filter, qos) pairs and sends a single
// SUBSCRIBE. The registry is only updated when the SUBACK grants the filters.
func (c *Client) Subscribe(subs ToSubscribeTopics) error {
	topics, err := subs.SubscribeTopics()
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return fmt.Errorf("%w: no topic filters", ErrInvalidTopic)
	}

	packet := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	packet.MessageID = c.pids.next()
	for _, sub := range topics {
		packet.Topics = append(packet.Topics, sub.Topic)
		packet.Qoss = append(packet.Qoss, byte(sub.QoS))
	}

	log.Debugf("Broker <- SUBSCRIBE(%d) %v", packet.MessageID, packet.Topics)
	c.awaitSuback = append(c.awaitSuback, packet)
	if err := c.writePacket(packet); err != nil {
		return err
	}
	return c.flush()
}

// Unsubscribe sends a single UNSUBSCRIBE for the given filters. The registry
// entries are removed when the UNSUBACK arrives.
func (c *Client) Unsubscribe(topics ToUnsubscribeTopics) error {
	filters, err := topics.UnsubscribeTopics()
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("%w: no topic filters", ErrInvalidTopic)
	}

	packet := packets.NewControlPacket(packets.Unsubscribe).(*packets.UnsubscribePacket)
	packet.MessageID = c.pids.next()
	packet.Topics = filters

	log.Debugf("Broker <- UNSUBSCRIBE(%d) %v", packet.MessageID, packet.Topics)
	c.awaitUnsuback = append(c.awaitUnsuback, packet)
	if err := c.writePacket(packet); err != nil {
		return err
	}
	return c.flush()
}

// Disconnect ends the session cleanly: DISCONNECT is written so the broker
// discards the last will, then the stream is shut down.
func (c *Client) Disconnect() error {
	if c.state == StateConnected {
		log.Debugf("Broker <- DISCONNECT")
		if err := c.writePacket(packets.NewControlPacket(packets.Disconnect)); err != nil {
			return err
		}
		if err := c.flush(); err != nil {
			return err
		}
	}
	c.unbind()
	return nil
}

// Ping sends a PINGREQ. The pending flag stays set until PINGRESP arrives; a
// keep-alive expiry with the flag still set declares the link dead.
func (c *Client) Ping() error {
	log.Debugf("Broker <- PINGREQ")
	c.awaitPing = true
	if err := c.writePacket(packets.NewControlPacket(packets.Pingreq)); err != nil {
		return err
	}
	return c.flush()
}

// Complete finishes an inbound QoS 2 delivery: PUBCOMP is written and the
// stored message dropped. Completions follow delivery order; completing any
// other packet id is a protocol violation.
func (c *Client) Complete(pid uint16) error {
	if len(c.incomingRel) == 0 || c.incomingRel[0] != pid {
		return ErrProtocolViolation
	}
	c.incomingRel = c.incomingRel[1:]

	pubcomp := packets.NewControlPacket(packets.Pubcomp).(*packets.PubcompPacket)
	pubcomp.MessageID = pid
	log.Debugf("Broker <- PUBCOMP(%d)", pid)
	if err := c.writePacket(pubcomp); err != nil {
		return err
	}
	if err := c.flush(); err != nil {
		return err
	}

	if c.opts.incomingStore == nil {
		return ErrIncomingStorageAbsent
	}
	return c.opts.incomingStore.Delete(pid)
}

// Reconnect re-establishes the stream and redoes the handshake. When the
// broker resumed the session, unacknowledged QoS>0 messages are re-sent with
// DUP set; when it did not, all current subscriptions are re-sent in a single
// SUBSCRIBE.
func (c *Client) Reconnect() error {
	if c.state == StateConnected {
		log.Warnf("mqttc is already connected")
		return nil
	}

	conn, err := dial(c.connector, c.addr, c.opts.keepAlive)
	if err != nil {
		return err
	}
	c.bind(conn)
	if err := c.handshake(); err != nil {
		c.unbind()
		return err
	}

	if c.sessionPresent {
		return c.retransmit()
	}
	if len(c.subscriptions) > 0 {
		return c.resubscribe()
	}
	return nil
}

// retransmit re-sends the in-flight outbound window after session
// resumption: unacknowledged PUBLISHes with DUP set, then pending PUBRELs.
func (c *Client) retransmit() error {
	for _, m := range c.outgoingAck {
		log.Debugf("Broker <- PUBLISH(dup) qos=1 pid=%d", m.PacketID)
		if err := c.writePacket(m.toPublish(true)); err != nil {
			return err
		}
	}
	for _, m := range c.outgoingRec {
		log.Debugf("Broker <- PUBLISH(dup) qos=2 pid=%d", m.PacketID)
		if err := c.writePacket(m.toPublish(true)); err != nil {
			return err
		}
	}
	for _, pid := range c.outgoingComp {
		log.Debugf("Broker <- PUBREL(%d)", pid)
		pubrel := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
		pubrel.MessageID = pid
		if err := c.writePacket(pubrel); err != nil {
			return err
		}
	}
	return c.flush()
}

// resubscribe re-sends every registered filter in one SUBSCRIBE, used when
// the broker reports it has no session state for this client id.
func (c *Client) resubscribe() error {
	subs := make(SubscribeTopics, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub.subscribeTopic())
	}
	log.Infof("Re-subscribing %d filter(s)", len(subs))
	return c.Subscribe(subs)
}

func (c *Client) tryReconnect() bool {
	if !c.opts.reconnect.retry {
		return false
	}
	log.Infof("Reconnect in %s", c.opts.reconnect.after)
	time.Sleep(c.opts.reconnect.after)
	if err := c.Reconnect(); err != nil {
		log.Errorf("Reconnect failed: %s", err)
	}
	return true
}

// Terminate drops the link without a DISCONNECT, preserving in-flight
// publication state for a later Reconnect.
func (c *Client) Terminate() {
	c.unbind()
}

// SetReconnect replaces the reconnect policy.
func (c *Client) SetReconnect(method ReconnectMethod) {
	c.opts.reconnect = method
}

// SessionPresent reports the session-present flag of the last CONNACK.
func (c *Client) SessionPresent() bool {
	return c.sessionPresent
}

// State returns the current lifecycle state.
func (c *Client) State() ClientState {
	return c.state
}

// unbind shuts the stream down and clears the transient acknowledgement
// state. Publication queues and stores survive so the session can resume.
func (c *Client) unbind() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.wr = nil
	}
	c.awaitSuback = nil
	c.awaitUnsuback = nil
	c.awaitPing = false
	c.state = StateDisconnected
	log.Infof("Disconnected %s", c.opts.clientID)
}

func (c *Client) writePacket(packet packets.ControlPacket) error {
	if c.conn == nil {
		return ErrDisconnected
	}
	if keepAlive := c.opts.keepAlive; keepAlive > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(keepAlive))
	}
	return packet.Write(c.wr)
}

// flush pushes buffered packets onto the wire. Any flush counts as a
// heartbeat, so the keep-alive clock restarts here.
func (c *Client) flush() error {
	if c.wr == nil {
		return ErrDisconnected
	}
	if err := c.wr.Flush(); err != nil {
		return err
	}
	c.lastFlush = time.Now()
	return nil
}
