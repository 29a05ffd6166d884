// Package mqtt accepts S-box analysis requests from an MQTT broker and
// publishes the resulting reports. It wraps the Eclipse Paho library, handles
// automatic reconnection and resubscription, and supports optional TLS
// transport.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/clock"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
)

const (
	clientIDPrefix = "sbox-analyzer-"
	tokenTimeout   = 10 * time.Second
)

// Handler receives MQTT messages. Implementations should return promptly;
// analysis work belongs on the dispatcher.
type Handler interface {
	OnMessage(topic string, payload []byte)
}

// Config holds the parameters required to connect to an MQTT broker, the
// request topics to subscribe and where results go.
type Config struct {
	BrokerURL   string   // e.g., "tcp://127.0.0.1:1883" or "ssl://mqtt.example.com:8883"
	ClientID    string   // optional; if empty, a random ID is generated
	Topics      []string // request topic filters, e.g., ["sbox/analyze"]
	ResultTopic string   // optional; defaults to "<request topic>/result"
	QoS         byte     // 0 or 1
	Username    string
	Password    string
	TLSCAFile   string // optional; CA certificate for broker verification
}

// Client subscribes to the configured request topics on every connect and
// publishes result messages.
type Client struct {
	config                    Config
	pahoClient                paho.Client
	handler                   Handler
	initialSubscriptionOnce   sync.Once
	initialSubscriptionResult chan error
	connectAttempts           int32
	clockSource               clock.Clock
}

// NewClient validates the configuration and constructs a client. The TCP
// connection is not opened until Connect is called.
func NewClient(config Config, handler Handler) (*Client, error) {
	if config.BrokerURL == "" {
		return nil, errors.New("mqtt: BrokerURL required")
	}
	if len(config.Topics) == 0 {
		return nil, errors.New("mqtt: at least one Topic required")
	}
	if config.ClientID == "" {
		config.ClientID = generateClientID()
	}
	if config.QoS > 1 {
		config.QoS = 1
	}

	client := &Client{
		config:                    config,
		handler:                   handler,
		initialSubscriptionResult: make(chan error, 1),
		clockSource:               clock.RealClock{},
	}

	opts, err := client.options()
	if err != nil {
		return nil, err
	}
	client.pahoClient = paho.NewClient(opts)
	return client, nil
}

// options builds the Paho settings: persistent session, automatic
// reconnect, resubscription on every connect and every inbound message
// routed to the handler.
func (c *Client) options() (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(c.config.BrokerURL).
		SetClientID(c.config.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetKeepAlive(20 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetDefaultPublishHandler(c.onMessage).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(onConnectionLost)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
	}
	if c.config.Password != "" {
		opts.SetPassword(c.config.Password)
	}

	if isTLSBroker(c.config.BrokerURL) {
		tlsConfig, err := brokerTLSConfig(c.config.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: TLS configuration failed: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	if c.handler != nil {
		c.handler.OnMessage(msg.Topic(), msg.Payload())
	}
}

func onConnectionLost(_ paho.Client, err error) {
	metrics.SetMQTTConnected(false)
	metrics.RecordMQTTDisconnect()
	if err == nil {
		err = errors.New("reason unknown")
	}
	log.Printf("mqtt: connection lost: %v", err)
}

// isTLSBroker reports whether the broker URL scheme implies a TLS transport.
func isTLSBroker(brokerURL string) bool {
	scheme, _, found := strings.Cut(strings.ToLower(brokerURL), "://")
	if !found {
		return false
	}
	switch scheme {
	case "ssl", "tls", "mqtts", "tcps":
		return true
	default:
		return false
	}
}

// brokerTLSConfig trusts caFile when set and the system pool otherwise.
func brokerTLSConfig(caFile string) (*tls.Config, error) {
	roots, err := brokerRoots(caFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: roots}, nil
}

func brokerRoots(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			log.Printf("mqtt: system CA pool unavailable (%v), broker verification will fail", err)
			return x509.NewCertPool(), nil
		}
		return pool, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("failed to parse CA certificate")
	}
	log.Printf("mqtt: trusting broker CA from %s", caFile)
	return pool, nil
}

// generateClientID returns "sbox-analyzer-<UUIDv4>".
func generateClientID() string {
	return clientIDPrefix + uuid.NewString()
}

// ResultTopic returns the topic results for requestTopic are published to.
func (c *Client) ResultTopic(requestTopic string) string {
	return ResultTopicFor(c.config.ResultTopic, requestTopic)
}

// ResultTopicFor returns configured when set, else requestTopic + "/result".
func ResultTopicFor(configured, requestTopic string) string {
	if configured != "" {
		return configured
	}
	return strings.TrimSuffix(requestTopic, "/") + "/result"
}

// await waits for token and reports a timeout or the token's error.
func await(token paho.Token, what string) error {
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("%s timeout", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return nil
}

// Connect opens the connection and blocks until the initial subscription
// completes or a ten-second timeout elapses.
func (c *Client) Connect() error {
	if c.pahoClient == nil {
		return errors.New("mqtt: client not initialized")
	}

	if err := await(c.pahoClient.Connect(), "mqtt: connect"); err != nil {
		metrics.SetMQTTConnected(false)
		return err
	}

	select {
	case err, ok := <-c.initialSubscriptionResult:
		if !ok || err == nil {
			return nil
		}
		metrics.SetMQTTConnected(false)
		return err
	case <-c.afterDuration(tokenTimeout):
		metrics.SetMQTTConnected(false)
		return errors.New("mqtt: initial subscribe timeout")
	}
}

// Publish sends a non-retained payload to topic with the configured QoS and
// waits for the broker acknowledgement.
func (c *Client) Publish(topic string, payload []byte) error {
	if c.pahoClient == nil {
		return errors.New("mqtt: client not initialized")
	}

	err := await(c.pahoClient.Publish(topic, c.config.QoS, false, payload), "mqtt: publish to "+topic)
	metrics.RecordMQTTPublish(err == nil)
	return err
}

func (c *Client) afterDuration(d time.Duration) <-chan time.Time {
	if c.clockSource == nil {
		return time.After(d)
	}
	return c.clockSource.After(d)
}

// Close disconnects from the broker with a 250 ms quiesce period.
func (c *Client) Close() {
	metrics.SetMQTTConnected(false)

	if c.pahoClient != nil && c.pahoClient.IsConnectionOpen() {
		metrics.RecordMQTTDisconnect()
		c.pahoClient.Disconnect(250)
	}
}

// handleConnect resubscribes on every connection, including reconnections,
// and signals completion of the initial subscription.
func (c *Client) handleConnect(pahoClient paho.Client) {
	if err := c.subscribe(pahoClient); err != nil {
		metrics.SetMQTTConnected(false)
		log.Printf("mqtt: subscribe failed: %v", err)
		c.completeInitialSubscription(fmt.Errorf("mqtt: subscribe failed: %w", err))
		return
	}

	if atomic.AddInt32(&c.connectAttempts, 1) > 1 {
		metrics.RecordMQTTReconnect()
		log.Printf("mqtt: re-subscribed to %v (QoS=%d)", c.config.Topics, c.config.QoS)
	} else {
		log.Printf("mqtt: subscribed to %v (QoS=%d)", c.config.Topics, c.config.QoS)
	}

	metrics.SetMQTTConnected(true)
	metrics.RecordMQTTConnect()
	c.completeInitialSubscription(nil)
}

func (c *Client) subscribe(pahoClient paho.Client) error {
	for _, topic := range c.config.Topics {
		if err := await(pahoClient.Subscribe(topic, c.config.QoS, nil), "subscribe to "+topic); err != nil {
			return err
		}
	}
	return nil
}

// completeInitialSubscription delivers the first subscription result
// exactly once.
func (c *Client) completeInitialSubscription(err error) {
	c.initialSubscriptionOnce.Do(func() {
		c.initialSubscriptionResult <- err
		close(c.initialSubscriptionResult)
	})
}
