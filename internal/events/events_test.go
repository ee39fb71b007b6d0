package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
	"github.com/nats-io/nats.go"
)

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), DefaultSubject, LogRecorded{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestPublishersImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, 1)
	if _, err := nc.ChanSubscribe(DefaultSubject, msgs); err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	nc.Flush()

	rec := model.NewRecord("lg-1", 1, "Scout", "hello", time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC))
	if err := pub.Publish(context.Background(), DefaultSubject, LogRecorded{Origin: "inst-a", Record: rec}); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-msgs:
		var got LogRecorded
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if got.Origin != "inst-a" {
			t.Errorf("Origin = %q, want inst-a", got.Origin)
		}
		if got.Record.Agent != "Scout" || got.Record.Content != "hello" || got.Record.Text != rec.Text {
			t.Errorf("unexpected record: %+v", got.Record)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishCancelledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, DefaultSubject, LogRecorded{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
