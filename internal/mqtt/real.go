package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/feeding-monitor/internal/log"
	"github.com/sweeney/feeding-monitor/internal/logic"
)

// bufferCapacity is the number of messages held while the broker is away.
const bufferCapacity = 256

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher starts connecting to the broker in the background and
// returns immediately.
func NewRealPublisher(broker string) *RealPublisher {
	p := &RealPublisher{buf: newRingBuffer(bufferCapacity)}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "LWT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("feeding-monitor-"+uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt: connection lost", "err", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	log.Info("mqtt: connected", "replaying", len(pending))
	for _, m := range pending {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			log.Warn("mqtt: replay failed", "topic", m.topic, "err", token.Error())
		}
	}
}

// IsConnected reports whether the client currently holds a connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a feeding event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(TopicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		n := p.buf.len()
		p.mu.Unlock()
		log.Debug("mqtt: buffered while disconnected", "topic", topic, "buffered", n)
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
