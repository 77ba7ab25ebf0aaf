package mqttc

// PubSub is the outbound capability of a session: the four verbs higher
// layers need. Test doubles and alternate transports implement it so code
// built on top can be exercised without a broker.
type PubSub interface {
	Publish(topic string, payload []byte, opt PubOpt) error
	Subscribe(subs ToSubscribeTopics) error
	Unsubscribe(topics ToUnsubscribeTopics) error
	Disconnect() error
}
