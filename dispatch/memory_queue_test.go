package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueueDeliversPayloads(t *testing.T) {
	queue := NewMemoryQueue(8)
	defer queue.Close()

	for _, payload := range []string{"a", "b", "c"} {
		if err := queue.Publish(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan string, 3)
	errCh := make(chan error, 1)
	go func() {
		errCh <- queue.Consume(ctx, 2, func(_ context.Context, payload []byte) error {
			received <- string(payload)
			return nil
		})
	}()

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case payload := <-received:
			got[payload] = true
		case <-time.After(time.Second):
			t.Fatal("payload never delivered")
		}
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 distinct payloads, got %v", got)
	}
}

func TestMemoryQueueCloseDuringPublish(t *testing.T) {
	queue := NewMemoryQueue(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			for {
				if err := queue.Publish(ctx, []byte("x")); err != nil {
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	if err := queue.Publish(context.Background(), []byte("late")); err == nil {
		t.Fatal("expected error publishing after close")
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), []byte("late")); err == nil {
		t.Fatal("expected error publishing to a closed queue")
	}
}
