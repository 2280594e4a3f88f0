package pushbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"shiplink/internal/domain"
)

func TestPublishInOrder(t *testing.T) {
	topic := NewTopic[int]("t", nil)
	var got []int
	topic.Subscribe(func(v int) { got = append(got, v) })

	for i := range 5 {
		topic.Publish(i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestSubscribersCalledInSubscriptionOrder(t *testing.T) {
	topic := NewTopic[string]("t", nil)
	var calls []string
	topic.Subscribe(func(string) { calls = append(calls, "a") })
	topic.Subscribe(func(string) { calls = append(calls, "b") })

	topic.Publish("x")
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestUnsubscribe(t *testing.T) {
	topic := NewTopic[int]("t", nil)
	var a, b int
	unsubA := topic.Subscribe(func(int) { a++ })
	topic.Subscribe(func(int) { b++ })

	topic.Publish(1)
	unsubA()
	unsubA()
	topic.Publish(2)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, topic.Len())
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	topic := NewTopic[int]("t", nil)
	var second int
	var unsub func()
	unsub = topic.Subscribe(func(int) { unsub() })
	topic.Subscribe(func(int) { second++ })

	topic.Publish(1)
	topic.Publish(2)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, topic.Len())
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	topic := NewTopic[int]("t", nil)
	var delivered bool
	topic.Subscribe(func(int) { panic("boom") })
	topic.Subscribe(func(int) { delivered = true })

	assert.NotPanics(t, func() { topic.Publish(1) })
	assert.True(t, delivered)
}

func TestClose(t *testing.T) {
	topic := NewTopic[int]("t", nil)
	var n int
	topic.Subscribe(func(int) { n++ })
	topic.Close()
	topic.Close()
	topic.Publish(1)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, topic.Len())
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	topic := NewTopic[int]("t", nil)
	var mu sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := topic.Subscribe(func(int) {
				mu.Lock()
				total++
				mu.Unlock()
			})
			defer unsub()
		}()
		go func() {
			defer wg.Done()
			topic.Publish(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, topic.Len())
}

func TestRouter(t *testing.T) {
	r := NewRouter(nil)
	var states []bool
	var users []domain.User
	var items []domain.ChatItem
	closing := 0
	r.Connection.Subscribe(func(up bool) { states = append(states, up) })
	r.User.Subscribe(func(u domain.User) { users = append(users, u) })
	r.Chat.Subscribe(func(batch []domain.ChatItem) { items = append(items, batch...) })
	r.HostClosing.Subscribe(func(struct{}) { closing++ })

	r.Connection.Publish(true)
	r.User.Publish(domain.User{ID: "u1"})
	r.Chat.Publish([]domain.ChatItem{{From: "a", Text: "hi"}})
	r.Chat.Publish(nil)
	r.HostClosing.Publish(struct{}{})
	r.Connection.Publish(false)

	assert.Equal(t, []bool{true, false}, states)
	assert.Equal(t, []domain.User{{ID: "u1"}}, users)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, closing)

	r.Close()
	r.Connection.Publish(true)
	assert.Len(t, states, 2)
}
