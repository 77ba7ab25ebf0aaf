package mqttc

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/lithammer/shortuuid"
	log "github.com/sirupsen/logrus"
)

// defaultProtocolLevel is MQTT 3.1.1.
const defaultProtocolLevel = 4

// Options carries the session configuration. Build one with NewOptions and
// hand it to Connect or ConnectWith; the resulting client owns the options
// (including both stores) for the rest of its life.
type Options struct {
	protocol      byte
	keepAlive     time.Duration
	cleanSession  bool
	clientID      string
	lastWill      *LastWill
	username      string
	password      string
	reconnect     ReconnectMethod
	incomingStore Store
	outgoingStore Store
}

// Option is an Options-modifying function.
type Option func(*Options)

// NewOptions returns the default session configuration - MQTT 3.1.1, 30
// second keep-alive, clean session, in-memory stores and no reconnection -
// overridden by the given options.
func NewOptions(options ...Option) *Options {
	opts := &Options{
		protocol:      defaultProtocolLevel,
		keepAlive:     30 * time.Second,
		cleanSession:  true,
		reconnect:     ForeverDisconnect(),
		incomingStore: NewMemoryStore(),
		outgoingStore: NewMemoryStore(),
	}
	for _, fOpt := range options {
		fOpt(opts)
	}
	return opts
}

// KeepAlive returns an Option for the keep-alive interval. The value is
// encoded in whole seconds in CONNECT; zero disables the heartbeat.
func KeepAlive(d time.Duration) Option {
	if d < 0 {
		panic("keep-alive cannot be negative")
	}
	return func(o *Options) {
		o.keepAlive = d
	}
}

// Protocol returns an Option for the protocol level. MQTT 3.1.1 is level 4.
func Protocol(level byte) Option {
	return func(o *Options) {
		o.protocol = level
	}
}

// ClientID returns an Option for the client identifier. When no ClientID is
// given, connecting generates a random one of the form "mqttc_<id>".
func ClientID(id string) Option {
	return func(o *Options) {
		o.clientID = id
	}
}

// CleanSession returns an Option for the clean-session flag.
func CleanSession(flag bool) Option {
	return func(o *Options) {
		o.cleanSession = flag
	}
}

// Username returns an Option for the CONNECT user name.
func Username(name string) Option {
	return func(o *Options) {
		o.username = name
	}
}

// Password returns an Option for the CONNECT password.
func Password(password string) Option {
	return func(o *Options) {
		o.password = password
	}
}

// WithLastWill returns an Option installing the message the broker publishes
// if this session dies without a DISCONNECT.
func WithLastWill(topic string, message []byte, opt PubOpt) Option {
	if err := validateTopicName(topic); err != nil {
		panic(fmt.Sprintf("last will: %s", err))
	}
	return func(o *Options) {
		o.lastWill = &LastWill{
			Topic:   topic,
			Message: message,
			QoS:     opt.QoS,
			Retain:  opt.Retain,
		}
	}
}

// Reconnect returns an Option for the reconnect policy.
func Reconnect(method ReconnectMethod) Option {
	return func(o *Options) {
		o.reconnect = method
	}
}

// IncomingStore returns an Option for the store holding inbound QoS 2
// publications until the application completes them.
func IncomingStore(store Store) Option {
	return func(o *Options) {
		o.incomingStore = store
	}
}

// OutgoingStore returns an Option for the store holding outbound QoS 2
// publications until the broker acknowledges them.
func OutgoingStore(store Store) Option {
	return func(o *Options) {
		o.outgoingStore = store
	}
}

// generateClientID fills in a random client identifier.
func (o *Options) generateClientID() {
	o.clientID = "mqttc_" + shortuuid.New()
	log.Infof("Using generated client ID %s", o.clientID)
}

// connectPacket builds the CONNECT for this configuration.
func (o *Options) connectPacket() *packets.ConnectPacket {
	p := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
	p.ProtocolName = "MQTT"
	p.ProtocolVersion = o.protocol
	p.CleanSession = o.cleanSession
	p.Keepalive = uint16(o.keepAlive / time.Second)
	p.ClientIdentifier = o.clientID

	if o.lastWill != nil {
		p.WillFlag = true
		p.WillTopic = o.lastWill.Topic
		p.WillMessage = o.lastWill.Message
		p.WillQos = byte(o.lastWill.QoS)
		p.WillRetain = o.lastWill.Retain
	}
	if o.username != "" {
		p.UsernameFlag = true
		p.Username = o.username
	}
	if o.password != "" {
		p.PasswordFlag = true
		p.Password = []byte(o.password)
	}
	return p
}

// Connect derives the transport from the URL scheme (tcp/mqtt for plain TCP,
// tls/ssl/mqtts for TLS), resolves the broker address with the scheme's
// default port, and connects.
func (o *Options) Connect(rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidURLScheme, rawURL)
	}
	secure, err := isSecureScheme(u)
	if err != nil {
		return nil, err
	}

	var connector Connector = TCPConnector{}
	if secure {
		connector = TLSConnector{}
	}
	return o.ConnectWith(connector, hostPort(u, secure))
}

// ConnectWith obtains a stream from the connector, sends CONNECT and waits
// for the CONNACK. The options value is consumed: the returned client owns
// the stores and the connector for later reconnects.
func (o *Options) ConnectWith(connector Connector, addr string) (*Client, error) {
	if o.clientID == "" {
		o.generateClientID()
	}

	log.Infof("Connecting to %s", addr)
	conn, err := dial(connector, addr, o.keepAlive)
	if err != nil {
		return nil, err
	}

	c := &Client{
		connector:     connector,
		addr:          addr,
		state:         StateDisconnected,
		opts:          o,
		subscriptions: make(map[string]Subscription),
	}
	c.bind(conn)

	if err := c.handshake(); err != nil {
		c.unbind()
		return nil, err
	}
	return c, nil
}

// dial obtains a fresh stream and installs the write deadline baseline.
func dial(connector Connector, addr string, keepAlive time.Duration) (net.Conn, error) {
	conn, err := connector.Connect(addr)
	if err != nil {
		return nil, err
	}
	if keepAlive > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(keepAlive))
		_ = conn.SetWriteDeadline(time.Now().Add(keepAlive))
	}
	return conn, nil
}
