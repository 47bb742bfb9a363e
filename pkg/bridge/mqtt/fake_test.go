package mqtt

import (
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

type publication struct {
	topic   string
	payload []byte
	retain  bool
}

// fakeClient records what a Queue does with the broker. Methods a Queue
// never calls are left to the embedded nil interface.
type fakeClient struct {
	paho.Client

	lock      sync.Mutex
	subs      map[string]paho.MessageHandler
	unsubs    []string
	published []publication
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.lock.Lock()
	c.subs[topic] = callback
	c.lock.Unlock()
	return &paho.DummyToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	c.lock.Lock()
	for topic := range filters {
		c.subs[topic] = callback
	}
	c.lock.Unlock()
	return &paho.DummyToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.lock.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
		c.unsubs = append(c.unsubs, topic)
	}
	c.lock.Unlock()
	return &paho.DummyToken{}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.lock.Lock()
	c.published = append(c.published, publication{
		topic:   topic,
		payload: append([]byte(nil), payload.([]byte)...),
		retain:  retained,
	})
	c.lock.Unlock()
	return &paho.DummyToken{}
}

func (c *fakeClient) subscribed() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	var topics []string
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	return topics
}

func (c *fakeClient) publications(topic string) []publication {
	c.lock.Lock()
	defer c.lock.Unlock()
	var pubs []publication
	for _, p := range c.published {
		if p.topic == topic {
			pubs = append(pubs, p)
		}
	}
	return pubs
}

// deliver routes a message the way the broker does.
func (c *fakeClient) deliver(topic string, payload []byte) {
	c.lock.Lock()
	var handlers []paho.MessageHandler
	for filter, h := range c.subs {
		if MatchTopic(topic, filter) {
			handlers = append(handlers, h)
		}
	}
	c.lock.Unlock()
	for _, h := range handlers {
		h(c, &fakeMessage{topic: topic, payload: payload})
	}
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not met in time")
		time.Sleep(time.Millisecond)
	}
}
