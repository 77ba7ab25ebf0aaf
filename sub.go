package mqttc

// Subscription is one active topic filter of the session, created when the
// broker grants it in a SUBACK and removed on UNSUBACK. The registry is not
// cleared on reconnect, whatever the clean-session flag.
type Subscription struct {
	// PacketID of the SUBSCRIBE that created the subscription.
	PacketID uint16

	// TopicFilter as sent in the SUBSCRIBE.
	TopicFilter string

	// QoS granted by the broker. May be lower than requested.
	QoS QoS
}

// subscribeTopic converts the subscription back into a (filter, qos) pair for
// re-subscription after the broker dropped the session.
func (s Subscription) subscribeTopic() SubscribeTopic {
	return SubscribeTopic{Topic: s.TopicFilter, QoS: s.QoS}
}
