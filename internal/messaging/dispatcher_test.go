package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"dm-service/internal/mocks"
	"dm-service/internal/models"
)

type recordingFanout struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (f *recordingFanout) Publish(_ context.Context, topic string, _ models.ChatEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return f.err
}

func (f *recordingFanout) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	fanout := &recordingFanout{}
	d := NewDispatcher(fanout, nil, 1, nil)

	assert.True(t, d.Emit(Envelope{Topic: "user:a"}))
	assert.False(t, d.Emit(Envelope{Topic: "user:b"}))

	d.Start(context.Background())
	d.Stop()
	assert.Equal(t, []string{"user:a"}, fanout.seen())
}

func TestDispatcherStopDrainsQueue(t *testing.T) {
	fanout := &recordingFanout{}
	d := NewDispatcher(fanout, nil, 8, nil)
	for _, topic := range []string{"user:a", "user:b", "conversation:a:b"} {
		assert.True(t, d.Emit(Envelope{Topic: topic}))
	}
	d.Start(context.Background())
	d.Stop()

	assert.Equal(t, []string{"user:a", "user:b", "conversation:a:b"}, fanout.seen())
	assert.False(t, d.Emit(Envelope{Topic: "user:late"}))
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	fanout := &recordingFanout{}
	d := NewDispatcher(fanout, nil, 16, nil)
	d.Start(context.Background())
	defer d.Stop()

	d.Emit(Envelope{Topic: "t1"})
	d.Emit(Envelope{Topic: "t2"})

	assert.Eventually(t, func() bool { return len(fanout.seen()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"t1", "t2"}, fanout.seen())
}

func TestDispatcherForwardsRoutedEventsToBroker(t *testing.T) {
	fanout := &recordingFanout{err: errors.New("no sessions")}
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, RoutingKeyMessageCreated, mock.AnythingOfType("models.ChatEvent")).
		Return(nil).Once()

	d := NewDispatcher(fanout, publisher, 4, nil)
	d.Emit(Envelope{Topic: "conversation:a:b", Event: models.ChatEvent{Type: models.EventMessageCreated}, RoutingKey: RoutingKeyMessageCreated})
	d.Emit(Envelope{Topic: "user:b", Event: models.ChatEvent{Type: models.EventUnreadChanged}})
	d.Start(context.Background())
	d.Stop()

	assert.Len(t, fanout.seen(), 2)
	publisher.AssertExpectations(t)
}
