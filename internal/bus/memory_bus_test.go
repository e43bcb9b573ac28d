package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/core/logger"
)

func TestMemoryBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewMemoryBus(logger.NewLogger())

	received := make(chan []byte, 1)
	handle, err := b.Subscribe("task.123", func(event []byte) {
		received <- event
	})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer b.Close(handle)

	if err := b.Publish("task.123", map[string]string{"stage": "post_fetched"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	select {
	case payload := <-received:
		if len(payload) == 0 {
			t.Error("expected non-empty payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryBus_DoesNotDeliverToOtherChannels(t *testing.T) {
	b := NewMemoryBus(logger.NewLogger())

	received := make(chan []byte, 1)
	handle, _ := b.Subscribe("task.123", func(event []byte) {
		received <- event
	})
	defer b.Close(handle)

	if err := b.Publish("task.456", "irrelevant"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	select {
	case <-received:
		t.Fatal("should not have received an event for a different channel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryBus_CloseStopsDelivery(t *testing.T) {
	b := NewMemoryBus(logger.NewLogger())

	var mu sync.Mutex
	count := 0
	handle, _ := b.Subscribe("task.789", func(event []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	if err := b.Close(handle); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	if err := b.Publish("task.789", "after-close"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected 0 deliveries after close, got %d", count)
	}
}

func TestMemoryBus_OverflowDropsOldestRatherThanBlocking(t *testing.T) {
	b := NewMemoryBus(logger.NewLogger())
	b.queueSize = 2

	block := make(chan struct{})
	handle, _ := b.Subscribe("task.overflow", func(event []byte) {
		<-block // handler never returns until the test releases it
	})
	defer func() {
		close(block)
		b.Close(handle)
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("task.overflow", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber instead of dropping")
	}
}
