package webhooklog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func seedDeliveries(t *testing.T, s *MemoryStore, n int) []Delivery {
	t.Helper()
	base := time.Unix(1700000000, 0).UTC()
	out := make([]Delivery, 0, n)
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		s.SetClock(func() time.Time { return at })
		d, err := s.Append(context.Background(), Delivery{
			Method: "POST",
			URL:    fmt.Sprintf("https://api.example/webhooks/telnyx?n=%d", i),
			Body:   "{}",
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		out = append(out, d)
	}
	return out
}

func TestMemoryStorePagination(t *testing.T) {
	s := NewMemoryStore()
	seeded := seedDeliveries(t, s, 5)
	ctx := context.Background()

	page, total, err := s.List(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("expected total 5 page of 2, got %d/%d", total, len(page))
	}
	// Newest first.
	if page[0].ID != seeded[4].ID || page[1].ID != seeded[3].ID {
		t.Fatalf("unexpected page order: %+v", page)
	}

	page, _, _ = s.List(ctx, 3, 2)
	if len(page) != 1 || page[0].ID != seeded[0].ID {
		t.Fatalf("unexpected last page: %+v", page)
	}

	page, total, _ = s.List(ctx, 9, 2)
	if total != 5 || len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}
}

func TestMarkProcessed(t *testing.T) {
	s := NewMemoryStore()
	seeded := seedDeliveries(t, s, 1)
	ctx := context.Background()

	if err := s.MarkProcessed(ctx, seeded[0].ID, ""); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, err := s.FindByID(ctx, seeded[0].ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Processed || got.Error != "" {
		t.Fatalf("unexpected delivery: %+v", got)
	}

	if err := s.MarkProcessed(ctx, seeded[0].ID, "store unavailable"); err != nil {
		t.Fatalf("mark with error: %v", err)
	}
	got, _ = s.FindByID(ctx, seeded[0].ID)
	if got.Error != "store unavailable" {
		t.Fatalf("error not recorded: %+v", got)
	}

	if err := s.MarkProcessed(ctx, "nope", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := NewMemoryStore()
	seeded := seedDeliveries(t, s, 3)
	ctx := context.Background()

	if err := s.Delete(ctx, seeded[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.FindByID(ctx, seeded[1].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, seeded[1].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for double delete, got %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	_, total, _ := s.List(ctx, 1, 10)
	if total != 0 {
		t.Fatalf("expected empty store after clear, got %d", total)
	}
}
