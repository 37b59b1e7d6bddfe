package rabbitmq

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestPublishMessage(t *testing.T) {
	type TestMsg struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	t.Run("success publish", func(t *testing.T) {
		ch := &fakeChannel{}
		msg := TestMsg{ID: 1, Name: "Hello"}

		err := PublishMessage(ch, "notifications", "welcome", msg)
		require.NoError(t, err)

		require.Len(t, ch.sent, 1)
		assert.Equal(t, "notifications", ch.sent[0].exchange)
		assert.Equal(t, "welcome", ch.sent[0].key)
		assert.Equal(t, "application/json", ch.sent[0].msg.ContentType)
		assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)

		var got TestMsg
		require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &got))
		assert.Equal(t, msg, got)
	})

	t.Run("marshal error", func(t *testing.T) {
		// В json marshal нельзя сериализовать канал
		badMsg := struct {
			Ch chan int `json:"ch"`
		}{
			Ch: make(chan int),
		}

		err := PublishMessage(&fakeChannel{}, "", "q", badMsg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
	})

	t.Run("publish error", func(t *testing.T) {
		ch := &fakeChannel{err: errors.New("channel closed")}

		err := PublishMessage(ch, "notifications", "welcome", map[string]any{"ok": true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "channel closed")
	})
}

func TestPublisher_ConcurrentPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "notifications")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, p.Publish("access_granted", map[string]int{"n": i}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, ch.sent, 20)
	for _, s := range ch.sent {
		assert.Equal(t, "notifications", s.exchange)
		assert.Equal(t, "access_granted", s.key)
	}
}
