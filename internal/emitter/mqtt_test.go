package emitter

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"backend-pushup/internal/rep"
	"backend-pushup/internal/session"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	connected bool
	err       error

	mu   sync.Mutex
	sent []message
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.sent = append(c.sent, message{topic: topic, qos: qos, payload: payload.([]byte)})
	c.mu.Unlock()
	return doneToken(c.err)
}

func (c *fakeClient) messages() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.sent...)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "pushup/sessions/abc/updates", Topic("abc"))
}

func TestOnUpdatePublishesJSON(t *testing.T) {
	client := &fakeClient{connected: true}
	e := New(client)

	e.OnUpdate(session.Update{SessionID: "s-1", Count: 2, Status: "DOWN (60°)", State: rep.Down})

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "pushup/sessions/s-1/updates", msgs[0].topic)
	assert.Equal(t, byte(0), msgs[0].qos)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, float64(2), got["count"])
	assert.Equal(t, "down", got["state"])

	require.Eventually(t, func() bool { return e.Stats().Published == 1 }, time.Second, 5*time.Millisecond)
}

func TestOnUpdateDisconnectedCountsError(t *testing.T) {
	client := &fakeClient{connected: false}
	e := New(client)

	e.OnUpdate(session.Update{SessionID: "s-1"})

	assert.Empty(t, client.messages())
	assert.Equal(t, uint64(1), e.Stats().Errors)
}

func TestOnUpdatePublishFailureCountsError(t *testing.T) {
	client := &fakeClient{connected: true, err: errors.New("broker gone")}
	e := New(client)

	e.OnUpdate(session.Update{SessionID: "s-1"})

	require.Eventually(t, func() bool { return e.Stats().Errors == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, e.Stats().Published)
}

func TestEmitterObservesController(t *testing.T) {
	client := &fakeClient{connected: true}
	e := New(client)

	c, err := session.New("s-2", session.DefaultConfig(), nil, session.WithObserver(e))
	require.NoError(t, err)
	c.Start()

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Topic("s-2"), msgs[0].topic)
}
