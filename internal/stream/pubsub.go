package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub transport, used in
// brokered deployments where the simulation bridge publishes frames to a
// topic instead of serving a socket.
type PubSubConfig struct {
	ProjectID string

	// SubscriptionName receives telemetry frames.
	SubscriptionName string

	// RequestTopic, when set, receives upstream payloads (subscriptions
	// are implicit in Pub/Sub, but route requests still travel upstream).
	RequestTopic string

	// FrameBuffer is the capacity of the delivery channel. Default: 64.
	FrameBuffer int

	Logger zerolog.Logger
}

// PubSubTransport delivers frames from a Pub/Sub subscription. Ordering
// within the subscription follows delivery order; the channel's
// per-frame idempotency covers redelivery.
type PubSubTransport struct {
	cfg    PubSubConfig
	frames chan []byte

	mu     sync.Mutex
	client *pubsub.Client
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewPubSubTransport creates a Pub/Sub transport.
func NewPubSubTransport(cfg PubSubConfig) *PubSubTransport {
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 64
	}
	return &PubSubTransport{
		cfg:    cfg,
		frames: make(chan []byte, cfg.FrameBuffer),
	}
}

// Connect creates the client and starts receiving.
func (t *PubSubTransport) Connect(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, t.cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(t.cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	recvCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.client = client
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		defer close(t.frames)
		err := subscriber.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			t.frames <- msg.Data
			msg.Ack()
		})
		if err != nil && recvCtx.Err() == nil {
			t.cfg.Logger.Error().Err(err).
				Str("subscription", t.cfg.SubscriptionName).
				Msg("pubsub receive ended")
		}
	}()

	return nil
}

// Send publishes a payload to the request topic.
func (t *PubSubTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return fmt.Errorf("pubsub transport not connected")
	}
	if t.cfg.RequestTopic == "" {
		// No upstream path configured; subscriptions are implicit.
		return nil
	}

	result := client.Publisher(t.cfg.RequestTopic).Publish(ctx, &pubsub.Message{Data: payload})
	_, err := result.Get(ctx)
	return err
}

// Frames returns the delivery channel.
func (t *PubSubTransport) Frames() <-chan []byte {
	return t.frames
}

// Close stops receiving and closes the client. Idempotent.
func (t *PubSubTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		cancel := t.cancel
		client := t.client
		t.client = nil
		t.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if client != nil {
			err = client.Close()
		} else {
			close(t.frames)
		}
	})
	return err
}
