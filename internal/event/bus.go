package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
)

// Topic is the watermill topic all supervision events travel on.
const Topic = "supervision.events"

// Publisher receives typed supervision events. Components take one
// explicitly; there is no package-level bus.
type Publisher interface {
	Publish(e Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Bus publishes events to in-process subscribers.
type Bus struct {
	mu     sync.RWMutex
	pubsub *gochannel.GoChannel
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
	}
}

// Publish sends an event to all current subscribers. Events published while
// nobody is subscribed are dropped.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Time == 0 {
		e.Time = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set("type", string(e.Type))
	_ = b.pubsub.Publish(Topic, msg)
}

// Subscribe returns a channel of events, optionally restricted to the given
// types. The channel closes when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, types ...Type) (<-chan Event, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		out := make(chan Event)
		close(out)
		return out, nil
	}
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	want := make(map[Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			if len(want) > 0 && !want[Type(msg.Metadata.Get("type"))] {
				msg.Ack()
				continue
			}

			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// SubscribeFunc calls fn for every matching event until the returned cancel
// function is called.
func (b *Bus) SubscribeFunc(fn func(Event), types ...Type) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.Subscribe(ctx, types...)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		for e := range events {
			fn(e)
		}
	}()
	return cancel, nil
}

// Close closes the bus and all its subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
