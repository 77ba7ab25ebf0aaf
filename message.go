package mqttc

import (
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// QoS is the MQTT Quality of Service level of a publication.
type QoS byte

const (
	// AtMostOnce (QoS 0) - fire and forget, no acknowledgement.
	AtMostOnce QoS = 0

	// AtLeastOnce (QoS 1) - acknowledged with PUBACK, duplicates possible.
	AtLeastOnce QoS = 1

	// ExactlyOnce (QoS 2) - four-step PUBLISH/PUBREC/PUBREL/PUBCOMP handshake.
	ExactlyOnce QoS = 2
)

// Message is a user-visible publication, either built by Publish or produced
// by Await/Accept for an inbound PUBLISH.
//
// PacketID is non-zero exactly when QoS is above AtMostOnce.
type Message struct {
	Topic    string
	QoS      QoS
	Retain   bool
	PacketID uint16
	Payload  []byte
}

// messageFromPublish converts a decoded PUBLISH packet into a Message.
func messageFromPublish(p *packets.PublishPacket) Message {
	return Message{
		Topic:    p.TopicName,
		QoS:      QoS(p.Qos),
		Retain:   p.Retain,
		PacketID: p.MessageID,
		Payload:  p.Payload,
	}
}

// toPublish builds the wire packet for the message. The dup flag is only set
// on retransmission after session resumption.
func (m Message) toPublish(dup bool) *packets.PublishPacket {
	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.TopicName = m.Topic
	p.Qos = byte(m.QoS)
	p.Retain = m.Retain
	p.MessageID = m.PacketID
	p.Payload = m.Payload
	p.Dup = dup
	return p
}

// PubOpt carries the per-publish options: QoS level and the retain flag.
type PubOpt struct {
	QoS    QoS
	Retain bool
}

// LastWill is the message the broker publishes on behalf of the client if the
// session terminates abnormally.
type LastWill struct {
	Topic   string
	Message []byte
	QoS     QoS
	Retain  bool
}
