package writer

import (
	"context"
	"testing"
	"time"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

// drain and awaitFirst never touch the database, so their queue-draining
// behavior is testable without a live Postgres connection (full batch
// persistence, including the no-orphans invariant, happens in writeBatch and
// needs a real metadata database; no test in this package exercises it).

func newTestWriter(settings Settings) *Writer {
	return &Writer{controller: newSizeController(settings)}
}

func TestDrainStopsAtCurrentBatchSize(t *testing.T) {
	w := newTestWriter(Settings{Initial: 2, Minimum: 1, Maximum: 10, TargetMillis: 100})
	queue := make(chan model.InstancePayload, 10)
	queue <- model.InstancePayload{SOPInstanceUID: "b"}
	queue <- model.InstancePayload{SOPInstanceUID: "c"}

	first := model.InstancePayload{SOPInstanceUID: "a"}
	batch := w.drain(context.Background(), queue, first)
	if len(batch) != 2 {
		t.Fatalf("got %d payloads, want 2 (batch size cap)", len(batch))
	}
	if batch[0].SOPInstanceUID != "a" {
		t.Errorf("first payload = %q, want a", batch[0].SOPInstanceUID)
	}
}

func TestDrainStopsOnTimeoutWithFewerThanBatchSize(t *testing.T) {
	w := newTestWriter(Settings{Initial: 5, Minimum: 1, Maximum: 10, TargetMillis: 100})
	queue := make(chan model.InstancePayload)

	first := model.InstancePayload{SOPInstanceUID: "a"}
	start := time.Now()
	batch := w.drain(context.Background(), queue, first)
	if time.Since(start) > time.Second {
		t.Fatalf("drain took too long waiting on an empty queue")
	}
	if len(batch) != 1 {
		t.Fatalf("got %d payloads, want 1 (only the seed payload, queue never filled)", len(batch))
	}
}

func TestDrainStopsWhenQueueCloses(t *testing.T) {
	w := newTestWriter(Settings{Initial: 5, Minimum: 1, Maximum: 10, TargetMillis: 100})
	queue := make(chan model.InstancePayload, 1)
	queue <- model.InstancePayload{SOPInstanceUID: "b"}
	close(queue)

	first := model.InstancePayload{SOPInstanceUID: "a"}
	batch := w.drain(context.Background(), queue, first)
	if len(batch) != 2 {
		t.Fatalf("got %d payloads, want 2", len(batch))
	}
}

func TestAwaitFirstReturnsFalseOnClosedQueue(t *testing.T) {
	w := newTestWriter(Settings{})
	queue := make(chan model.InstancePayload)
	close(queue)

	_, ok := w.awaitFirst(context.Background(), queue)
	if ok {
		t.Fatalf("expected ok=false on a closed queue")
	}
}

func TestAwaitFirstReturnsFalseOnCancelledContext(t *testing.T) {
	w := newTestWriter(Settings{})
	queue := make(chan model.InstancePayload)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := w.awaitFirst(ctx, queue)
	if ok {
		t.Fatalf("expected ok=false on a cancelled context")
	}
}
