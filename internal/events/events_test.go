package events_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tphummel/dcims/internal/events"
)

func TestTopic_PublishInSubscriptionOrder(t *testing.T) {
	var topic events.Topic[int]
	var got []string
	topic.Subscribe(func(n int) { got = append(got, "a") })
	topic.Subscribe(func(n int) { got = append(got, "b") })
	topic.Subscribe(func(n int) { got = append(got, "c") })

	topic.Publish(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestTopic_Unsubscribe(t *testing.T) {
	var topic events.Topic[string]
	var calls int
	unsubscribe := topic.Subscribe(func(string) { calls++ })
	assert.Equal(t, 1, topic.Len())

	topic.Publish("x")
	unsubscribe()
	unsubscribe() // second call is a no-op
	topic.Publish("y")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, topic.Len())
}

func TestTopic_PublishWithoutSubscribers(t *testing.T) {
	var topic events.Topic[events.ServersImported]
	assert.NotPanics(t, func() { topic.Publish(events.ServersImported{Imported: 1}) })
}

func TestTopic_SubscriberMayUnsubscribeDuringPublish(t *testing.T) {
	var topic events.Topic[int]
	var unsubscribe func()
	var calls int
	unsubscribe = topic.Subscribe(func(int) {
		calls++
		unsubscribe()
	})
	topic.Publish(1)
	topic.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestTopic_ConcurrentPublish(t *testing.T) {
	var topic events.Topic[int]
	var mu sync.Mutex
	sum := 0
	topic.Subscribe(func(n int) {
		mu.Lock()
		sum += n
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			topic.Publish(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1275, sum)
}

func TestBus_TopicsAreIndependent(t *testing.T) {
	bus := events.NewBus()
	var servers, dashboards int
	bus.ServerChanged.Subscribe(func(events.ServerChanged) { servers++ })
	bus.DashboardChanged.Subscribe(func(events.DashboardChanged) { dashboards++ })

	bus.ServerChanged.Publish(events.ServerChanged{Action: events.Created})
	assert.Equal(t, 1, servers)
	assert.Equal(t, 0, dashboards)
}
