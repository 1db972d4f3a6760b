package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/globalchat/internal/model"
)

func TestAppendAndHistory(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := model.Record{ID: fmt.Sprintf("m%d", i), SenderID: "u1", SenderName: "alice", Type: "text", Message: fmt.Sprintf("msg %d", i)}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.History(ctx, 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3, got %d", len(got))
	}
	// Хвост в порядке добавления.
	for i, want := range []string{"m2", "m3", "m4"} {
		if got[i].ID != want {
			t.Fatalf("tail order: want %s at %d, got %s", want, i, got[i].ID)
		}
	}

	all, err := s.History(ctx, 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("want all 5, got %d", len(all))
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Append(ctx, model.Record{ID: "m1", SenderID: "u1", SenderName: "alice", Type: "text", Message: "x"})
	got, _ := s.History(ctx, 10)
	got[0].Message = "mutated"
	again, _ := s.History(ctx, 10)
	if again[0].Message != "x" {
		t.Fatalf("history must return a copy")
	}
}

func TestCapDropsOldest(t *testing.T) {
	s := New()
	s.maxLen = 3
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, model.Record{ID: fmt.Sprintf("m%d", i), SenderID: "u1", SenderName: "a", Type: "text", Message: "x"})
	}
	got, _ := s.History(ctx, 100)
	if len(got) != 3 || got[0].ID != "m2" {
		t.Fatalf("cap must drop the oldest records, got %+v", got)
	}
}
