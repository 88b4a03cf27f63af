package bus

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var receivedMsg *domain.Message
		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, domain.TopicPredictionCompleted, func(ctx context.Context, msg *domain.Message) error {
			receivedMsg = msg
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicPredictionCompleted, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitFor(t, &wg, time.Second)

		if string(receivedMsg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(receivedMsg.Payload))
		}
		if receivedMsg.Topic != domain.TopicPredictionCompleted {
			t.Errorf("expected topic %s, got %s", domain.TopicPredictionCompleted, receivedMsg.Topic)
		}
		if receivedMsg.ID == "" || receivedMsg.Timestamp == 0 {
			t.Error("message id and timestamp should be set")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var training, bulk atomic.Int32
		var wg sync.WaitGroup
		wg.Add(1)

		bus.Subscribe(ctx, domain.TopicTrainingRequested, func(ctx context.Context, msg *domain.Message) error {
			training.Add(1)
			wg.Done()
			return nil
		})
		bus.Subscribe(ctx, domain.TopicBulkCompleted, func(ctx context.Context, msg *domain.Message) error {
			bulk.Add(1)
			return nil
		})

		bus.Publish(ctx, domain.TopicTrainingRequested, []byte("job-1"))
		waitFor(t, &wg, time.Second)
		time.Sleep(20 * time.Millisecond)

		if training.Load() != 1 {
			t.Errorf("training subscriber got %d messages, want 1", training.Load())
		}
		if bulk.Load() != 0 {
			t.Errorf("bulk subscriber should not receive training messages, got %d", bulk.Load())
		}
	})

	t.Run("FanOut", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			bus.Subscribe(ctx, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
		}

		bus.Publish(ctx, "fanout.topic", []byte("x"))
		waitFor(t, &wg, time.Second)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		if sub.Topic() != "unsub.topic" {
			t.Errorf("Topic() = %s", sub.Topic())
		}

		sub.Unsubscribe()
		bus.Publish(ctx, "unsub.topic", []byte("x"))
		time.Sleep(20 * time.Millisecond)

		if count.Load() != 0 {
			t.Errorf("unsubscribed handler received %d messages", count.Load())
		}

		bus.mu.RLock()
		_, present := bus.subscriptions["unsub.topic"]
		bus.mu.RUnlock()
		if present {
			t.Error("subscription should be removed from the topic table")
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		bus.Subscribe(ctx, "echo.topic", func(ctx context.Context, msg *domain.Message) error {
			return Reply(ctx, bus, msg, append([]byte("re:"), msg.Payload...))
		})

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := bus.Request(reqCtx, "echo.topic", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "re:ping" {
			t.Errorf("reply = %q, want re:ping", reply)
		}
	})

	t.Run("RequestWithoutResponder", func(t *testing.T) {
		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()

		if _, err := bus.Request(reqCtx, "nobody.home", nil); err == nil {
			t.Error("expected timeout error")
		}
	})

	t.Run("ReplyWithoutReplyTopic", func(t *testing.T) {
		msg := &domain.Message{ID: "m", Metadata: map[string]string{}}
		if err := Reply(ctx, bus, msg, nil); err == nil {
			t.Error("expected error for message without reply topic")
		}
	})

	t.Run("EmptyTopic", func(t *testing.T) {
		if err := bus.Publish(ctx, "", nil); err == nil {
			t.Error("expected error for empty topic")
		}
		if _, err := bus.Subscribe(ctx, "", func(context.Context, *domain.Message) error { return nil }); err == nil {
			t.Error("expected error for empty subscribe topic")
		}
	})
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	ctx := context.Background()
	release := make(chan struct{})

	bus.Subscribe(ctx, "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		<-release
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Publish(ctx, "slow.topic", []byte("x"))
	}
	close(release)

	if bus.Dropped() == 0 {
		t.Error("expected dropped deliveries with a full buffer")
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if _, err := bus.Subscribe(ctx, "close.topic", func(context.Context, *domain.Message) error { return nil }); err == nil {
		t.Error("expected subscribe error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	waitFor(t, &wg, 5*time.Second)
	if received.Load() != messageCount {
		t.Errorf("expected %d messages, got %d", messageCount, received.Load())
	}
}

// TestNATSBus runs against a live server named by KESTREL_TEST_NATS_URL.
func TestNATSBus(t *testing.T) {
	url := os.Getenv("KESTREL_TEST_NATS_URL")
	if url == "" {
		t.Skip("KESTREL_TEST_NATS_URL not set")
	}

	bus, err := NewNATSBus(domain.EventBusConfig{NATSUrl: url, NATSMaxReconnects: 1, NATSReconnectWait: 1})
	if err != nil {
		t.Fatalf("NewNATSBus failed: %v", err)
	}
	defer bus.Close()

	ctx := context.Background()
	if err := bus.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	bus.Subscribe(ctx, "kestrel.test.echo", func(ctx context.Context, msg *domain.Message) error {
		return Reply(ctx, bus, msg, msg.Payload)
	})

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	reply, err := bus.Request(reqCtx, "kestrel.test.echo", []byte("ping"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(reply) != "ping" {
		t.Errorf("reply = %q", reply)
	}
}
