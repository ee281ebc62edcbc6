package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Event is a named, payload-bearing notification. Payload may be empty.
type Event struct {
	Name    string
	Payload json.RawMessage
}

func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errors.Errorf("event %s has no payload", e.Name)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", e.Name)
	}
	return nil
}

type Handler func(ev Event)

// Unlisten releases a listener. Calling it more than once is a no-op.
type Unlisten func()

type Listener interface {
	Listen(ctx context.Context, name string, handler Handler) (Unlisten, error)
}

type Emitter interface {
	Emit(name string, payload any) error
}

// Bus is the in-process event channel: backend event frames and external
// intents are emitted into it, stores listen on it.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	pubsub    *gochannel.GoChannel
	closeOnce sync.Once
}

var (
	_ Listener = (*Bus)(nil)
	_ Emitter  = (*Bus)(nil)
)

// NewInMemoryBus builds a bus whose Emit returns once every listener has
// handled the event, so one listener sees events in the order they were
// emitted. Handlers must not block on the goroutine that emits.
func NewInMemoryBus() *Bus {
	logger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            1024,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Bus{
		Publisher:  pubsub,
		Subscriber: pubsub,
		pubsub:     pubsub,
	}
}

func (b *Bus) Emit(name string, payload any) error {
	bs, err := encodeEnvelope(name, payload)
	if err != nil {
		return err
	}
	if err := b.Publisher.Publish(topic(name), message.NewMessage(watermill.NewUUID(), bs)); err != nil {
		return errors.Wrapf(err, "publish %s", name)
	}
	return nil
}

// Listen delivers every event called name to handler, one at a time, until
// the returned Unlisten is called or ctx is done.
func (b *Bus) Listen(ctx context.Context, name string, handler Handler) (Unlisten, error) {
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.Subscriber.Subscribe(subCtx, topic(name))
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "subscribe %s", name)
	}

	go func() {
		for msg := range msgs {
			dispatch(name, msg, handler)
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func dispatch(name string, msg *message.Message, handler Handler) {
	defer msg.Ack()

	ev, err := decodeEnvelope(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("event", name).Msg("dropping malformed event envelope")
		return
	}
	handler(ev)
}

func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.pubsub.Close()
	})
	return err
}
