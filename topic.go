package mqttc

import (
	"fmt"
	"strings"
)

// Topic length limit imposed by the 16 bit length prefix on the wire.
const maxTopicLength = 65535

// validateTopicName checks a concrete publish destination. Topic names must
// be non-empty, fit the wire length prefix and contain no wildcards.
func validateTopicName(topic string) error {
	if err := validateTopicBytes(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcard in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// validateTopicFilter checks a subscription pattern: '+' must occupy a whole
// level, '#' must be the final level.
func validateTopicFilter(filter string) error {
	if err := validateTopicBytes(filter); err != nil {
		return err
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
			}
		case strings.Contains(level, "#"):
			return fmt.Errorf("%w: '#' must stand alone in %q", ErrInvalidTopic, filter)
		case strings.Contains(level, "+") && level != "+":
			return fmt.Errorf("%w: '+' must stand alone in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateTopicBytes(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(topic, '\x00') {
		return fmt.Errorf("%w: NUL character in topic", ErrInvalidTopic)
	}
	return nil
}

// SubscribeTopic is one (filter, requested QoS) pair of a SUBSCRIBE.
type SubscribeTopic struct {
	Topic string
	QoS   QoS
}

// ToSubscribeTopics is implemented by any value Subscribe accepts: a single
// TopicFilter, a Filters list, or an explicit SubscribeTopics list of pairs.
type ToSubscribeTopics interface {
	SubscribeTopics() ([]SubscribeTopic, error)
}

// ToUnsubscribeTopics is implemented by any value Unsubscribe accepts.
type ToUnsubscribeTopics interface {
	UnsubscribeTopics() ([]string, error)
}

// TopicFilter is a single subscription pattern. As a subscribe input it
// requests QoS 0.
type TopicFilter string

// SubscribeTopics implements ToSubscribeTopics.
func (f TopicFilter) SubscribeTopics() ([]SubscribeTopic, error) {
	if err := validateTopicFilter(string(f)); err != nil {
		return nil, err
	}
	return []SubscribeTopic{{Topic: string(f), QoS: AtMostOnce}}, nil
}

// UnsubscribeTopics implements ToUnsubscribeTopics.
func (f TopicFilter) UnsubscribeTopics() ([]string, error) {
	if err := validateTopicFilter(string(f)); err != nil {
		return nil, err
	}
	return []string{string(f)}, nil
}

// Filters is a plain list of topic filters. As a subscribe input every filter
// requests QoS 0.
type Filters []string

// SubscribeTopics implements ToSubscribeTopics.
func (f Filters) SubscribeTopics() ([]SubscribeTopic, error) {
	subs := make([]SubscribeTopic, 0, len(f))
	for _, filter := range f {
		if err := validateTopicFilter(filter); err != nil {
			return nil, err
		}
		subs = append(subs, SubscribeTopic{Topic: filter, QoS: AtMostOnce})
	}
	return subs, nil
}

// UnsubscribeTopics implements ToUnsubscribeTopics.
func (f Filters) UnsubscribeTopics() ([]string, error) {
	topics := make([]string, 0, len(f))
	for _, filter := range f {
		if err := validateTopicFilter(filter); err != nil {
			return nil, err
		}
		topics = append(topics, filter)
	}
	return topics, nil
}

// SubscribeTopics is an explicit list of (filter, QoS) pairs.
type SubscribeTopics []SubscribeTopic

// SubscribeTopics implements ToSubscribeTopics.
func (s SubscribeTopics) SubscribeTopics() ([]SubscribeTopic, error) {
	for _, sub := range s {
		if err := validateTopicFilter(sub.Topic); err != nil {
			return nil, err
		}
		if sub.QoS > ExactlyOnce {
			return nil, fmt.Errorf("%w: QoS %d out of range for %q", ErrInvalidTopic, sub.QoS, sub.Topic)
		}
	}
	return s, nil
}

// UnsubscribeTopics implements ToUnsubscribeTopics.
func (s SubscribeTopics) UnsubscribeTopics() ([]string, error) {
	topics := make([]string, 0, len(s))
	for _, sub := range s {
		if err := validateTopicFilter(sub.Topic); err != nil {
			return nil, err
		}
		topics = append(topics, sub.Topic)
	}
	return topics, nil
}
