package notify

import (
	"fmt"
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}
	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterNotify(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Notify(Failure("rename_folder", "Invalid folder name"))

	select {
	case got := <-ch:
		if got.Level != LevelError || got.Message != "Invalid folder name" || got.Op != "rename_folder" {
			t.Errorf("got %+v", got)
		}
		if got.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestBroadcasterSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 200; i++ {
		b.Notify(Success("op", "ok"))
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want %d", len(ch), cap(ch))
	}
}

func TestRecent(t *testing.T) {
	b := NewBroadcaster()
	for i := 0; i < historySize+5; i++ {
		b.Notify(Success("op", fmt.Sprint(i)))
	}
	recent := b.Recent()
	if len(recent) != historySize {
		t.Fatalf("len(Recent) = %d, want %d", len(recent), historySize)
	}
	if recent[0].Message != "5" || recent[len(recent)-1].Message != fmt.Sprint(historySize+4) {
		t.Errorf("Recent = %s .. %s", recent[0].Message, recent[len(recent)-1].Message)
	}
}
