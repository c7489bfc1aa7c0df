package repositories

import (
	"context"
	"testing"
	"time"

	domain "github.com/mazira-designs/api/internal/domain"
)

func TestMemoryCheckoutRecordRepositoryInsertAndFind(t *testing.T) {
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	repo := NewMemoryCheckoutRecordRepository(func() time.Time { return now })
	ctx := context.Background()

	record := domain.CheckoutRecord{
		ID:        "chk_1",
		SessionID: "cs_test_1",
		LineItems: []domain.PlanLineItem{{Category: domain.CategoryBlogPosts, Name: "SEO Blog Posts", Price: 18000, AddOnKeys: []string{"a"}}},
		Total:     18000,
		Customer:  domain.CustomerData{Email: "owner@example.com"},
		ExpiresAt: now.Add(time.Hour),
	}
	if err := repo.Insert(ctx, record); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	record.LineItems[0].AddOnKeys[0] = "mutated"

	got, err := repo.FindBySessionID(ctx, " cs_test_1 ")
	if err != nil {
		t.Fatalf("FindBySessionID: %v", err)
	}
	if got.Customer.Email != "owner@example.com" || got.LineItems[0].AddOnKeys[0] != "a" {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := repo.Insert(ctx, record); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := repo.FindBySessionID(ctx, "cs_missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryCheckoutRecordRepositoryExpiry(t *testing.T) {
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	repo := NewMemoryCheckoutRecordRepository(func() time.Time { return clock })
	ctx := context.Background()

	if err := repo.Insert(ctx, domain.CheckoutRecord{SessionID: "cs_old", ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	clock = now.Add(2 * time.Minute)

	if _, err := repo.FindBySessionID(ctx, "cs_old"); !IsNotFound(err) {
		t.Fatalf("expected expired record to be hidden, got %v", err)
	}
	if err := repo.Insert(ctx, domain.CheckoutRecord{SessionID: "cs_old", ExpiresAt: clock.Add(time.Minute)}); err != nil {
		t.Fatalf("expected expired record to be replaceable: %v", err)
	}
	clock = clock.Add(time.Hour)
	if removed := repo.Sweep(ctx); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestMemoryCheckoutRecordRepositoryRequiresSessionID(t *testing.T) {
	repo := NewMemoryCheckoutRecordRepository(nil)
	if err := repo.Insert(context.Background(), domain.CheckoutRecord{}); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}
