package mqtt

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/holdclick/internal/device"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are buffered and
// replayed, oldest first, when it comes back.
type RealPublisher struct {
	client client
	prefix string
	now    func() time.Time

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // at least one successful connect
	// ready is set once the buffer has been replayed after a connect.
	// Until then new messages queue behind the buffered ones, even if
	// paho already reports the connection open.
	ready bool
}

// NewRealPublisher creates a publisher for the given broker. Connecting
// happens in the background and is retried until it succeeds, so the
// daemon can start while the broker is unreachable.
func NewRealPublisher(broker, prefix string) *RealPublisher {
	p := newPublisher(nil, prefix, time.Now)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(prefix), string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
			p.connectionLost()
		})

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()
	return p
}

func newPublisher(c client, prefix string, now func() time.Time) *RealPublisher {
	return &RealPublisher{
		client: c,
		prefix: prefix,
		now:    now,
		buf:    newRingBuffer(bufferCapacity),
	}
}

func clientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "holdclick"
	}
	return "holdclick-" + host
}

// onConnect replays buffered messages, oldest first. After a reconnect it
// also announces RECONNECTED so subscribers know there may be a gap. Direct
// publishing resumes only once the buffer is empty.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	announce := p.connected
	p.connected = true
	p.mu.Unlock()

	if announce {
		log.Printf("mqtt: reconnected, replaying %d buffered messages", p.Buffered())
	} else {
		log.Printf("mqtt: connected, replaying %d buffered messages", p.Buffered())
	}

	for {
		p.mu.Lock()
		pending := p.buf.drainAll()
		if len(pending) == 0 && !announce {
			p.ready = true
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		for _, m := range pending {
			if err := p.send(m); err != nil {
				log.Printf("mqtt: replay to %s failed: %v", m.topic, err)
			}
		}
		if announce {
			announce = false
			payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
			if err := p.send(bufferedMsg{topic: SystemTopic(p.prefix), payload: payload, qos: 1}); err != nil {
				log.Printf("mqtt: publish reconnected event: %v", err)
			}
		}
	}
}

// connectionLost sends new messages to the buffer until the next onConnect.
func (p *RealPublisher) connectionLost() {
	p.mu.Lock()
	p.ready = false
	p.mu.Unlock()
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a button event to the MQTT broker.
func (p *RealPublisher) Publish(event device.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: ButtonTopic(p.prefix, event.Device), payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should not be lost
	return p.publish(bufferedMsg{
		topic:    SystemTopic(p.prefix),
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.ready || !p.client.IsConnectionOpen() {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	if n := p.Buffered(); n > 0 {
		log.Printf("mqtt: closing with %d unsent messages", n)
	}
	return nil
}
