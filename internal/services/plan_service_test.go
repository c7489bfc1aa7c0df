package services

import (
	"context"
	"errors"
	"testing"

	"github.com/mazira-designs/api/internal/catalog"
	domain "github.com/mazira-designs/api/internal/domain"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return c
}

func newTestPlanService(t *testing.T) PlanService {
	t.Helper()
	svc, err := NewPlanService(PlanServiceDeps{Catalog: newTestCatalog(t)})
	if err != nil {
		t.Fatalf("NewPlanService: %v", err)
	}
	return svc
}

func TestNewPlanServiceRequiresCatalog(t *testing.T) {
	if _, err := NewPlanService(PlanServiceDeps{}); err == nil {
		t.Fatalf("expected error without catalog")
	}
}

func TestPlanServiceCatalogViews(t *testing.T) {
	svc := newTestPlanService(t)
	views := svc.Catalog(context.Background())
	if len(views) != len(domain.Categories()) {
		t.Fatalf("expected %d categories, got %d", len(domain.Categories()), len(views))
	}

	social, err := svc.Category(context.Background(), domain.CategorySocialPosts)
	if err != nil {
		t.Fatalf("Category: %v", err)
	}
	if social.Name != "Social Media Posts" || social.Surcharge != 1000 {
		t.Fatalf("unexpected social view %+v", social)
	}
	if !social.Tiers[0].Default || social.Tiers[1].Default {
		t.Fatalf("expected only the first tier to be default")
	}
	if social.Tiers[0].DisplayLabel != "10 Posts per Month – $150/mo" {
		t.Fatalf("unexpected display label %q", social.Tiers[0].DisplayLabel)
	}
	if len(social.Platforms) == 0 || social.Platforms[0].AddKey == "" || social.Platforms[0].FreeKey == "" {
		t.Fatalf("expected platform keys, got %+v", social.Platforms)
	}

	if _, err := svc.Category(context.Background(), domain.Category("podcasts")); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestPlanServiceApplyBuildsPlan(t *testing.T) {
	svc := newTestPlanService(t)
	ctx := context.Background()

	view, err := svc.Apply(ctx, PlanState{}, PlanOperation{Action: PlanActionSelectTier, Category: domain.CategorySocialPosts, Value: "price_1RBAj8Aog87WCP1EZThpEO52"})
	if err != nil {
		t.Fatalf("select tier: %v", err)
	}
	if !view.Changed || view.Total != 15000 {
		t.Fatalf("unexpected view after tier: %+v", view)
	}

	view, err = svc.Apply(ctx, view.State, PlanOperation{Action: PlanActionTogglePlatform, Category: domain.CategorySocialPosts, Value: "tiktok", Checked: true})
	if err != nil {
		t.Fatalf("toggle platform: %v", err)
	}
	if view.Total != 16000 {
		t.Fatalf("expected surcharge applied, got %d", view.Total)
	}

	view, err = svc.Apply(ctx, view.State, PlanOperation{Action: PlanActionFreePlatform, Category: domain.CategorySocialPosts, Value: "tiktok"})
	if err != nil {
		t.Fatalf("free platform: %v", err)
	}
	if view.Total != 15000 {
		t.Fatalf("expected free platform to evict the paid one, got %d", view.Total)
	}

	view, err = svc.Apply(ctx, view.State, PlanOperation{Action: PlanActionSelectTier, Category: domain.CategoryBlogPosts, Value: "4 Blog Posts"})
	if err != nil {
		t.Fatalf("blog tier: %v", err)
	}
	if len(view.LineItems) != 2 || view.LineItems[1].Name != "SEO Blog Posts" || view.Total != 33000 {
		t.Fatalf("unexpected plan %+v", view)
	}

	restored, err := svc.Evaluate(ctx, view.State)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if restored.Total != view.Total || len(restored.LineItems) != len(view.LineItems) {
		t.Fatalf("round trip mismatch: %+v vs %+v", restored, view)
	}
}

func TestPlanServiceApplyIgnoresInvalidValues(t *testing.T) {
	svc := newTestPlanService(t)
	ctx := context.Background()

	for _, op := range []PlanOperation{
		{Action: PlanActionSelectTier, Category: domain.CategoryEmailCampaigns, Value: "select"},
		{Action: PlanActionSelectTier, Category: domain.CategoryEmailCampaigns, Value: "price_unknown"},
		{Action: PlanActionTogglePlatform, Category: domain.CategorySocialPosts, Value: "myspace", Checked: true},
	} {
		view, err := svc.Apply(ctx, PlanState{}, op)
		if err != nil {
			t.Fatalf("Apply(%+v): %v", op, err)
		}
		if view.Changed || len(view.LineItems) != 0 {
			t.Fatalf("expected no change for %+v, got %+v", op, view)
		}
	}
}

func TestPlanServiceApplyRejectsBadOperations(t *testing.T) {
	svc := newTestPlanService(t)
	tests := []PlanOperation{
		{Action: PlanActionSelectTier, Category: domain.Category("podcasts"), Value: "x"},
		{Action: PlanActionFreePlatform, Category: domain.CategoryBlogPosts, Value: "tiktok"},
		{Action: PlanActionToggleTier, Category: domain.CategorySocialPosts, Value: "x"},
		{Action: PlanAction("explode"), Category: domain.CategorySocialPosts},
	}
	for _, op := range tests {
		if _, err := svc.Apply(context.Background(), PlanState{}, op); !errors.Is(err, ErrPlanInvalidInput) {
			t.Fatalf("expected ErrPlanInvalidInput for %+v, got %v", op, err)
		}
	}
}

func TestPlanServiceToggleInstagramAddOns(t *testing.T) {
	svc := newTestPlanService(t)
	ctx := context.Background()
	op := PlanOperation{Action: PlanActionToggleTier, Category: domain.CategoryInstagramStories, Value: "10 Daily Stories Pack"}

	view, err := svc.Apply(ctx, PlanState{}, op)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if view.Total != 10000 {
		t.Fatalf("expected stories pack priced, got %d", view.Total)
	}
	view, err = svc.Apply(ctx, view.State, op)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if view.Total != 0 || len(view.LineItems) != 0 {
		t.Fatalf("expected stories removed, got %+v", view)
	}
}

func TestPlanServiceDefaultTierKeepsPlatforms(t *testing.T) {
	svc := newTestPlanService(t)
	ctx := context.Background()

	view, err := svc.Apply(ctx, PlanState{}, PlanOperation{Action: PlanActionDefaultTier, Category: domain.CategoryBlogPosts})
	if err != nil {
		t.Fatalf("default blog tier: %v", err)
	}
	if !view.Changed || len(view.LineItems) != 1 || view.LineItems[0].PriceKey != "2 Blog Posts" || view.Total != 10000 {
		t.Fatalf("expected the first blog tier, got %+v", view)
	}

	view, err = svc.Apply(ctx, view.State, PlanOperation{Action: PlanActionTogglePlatform, Category: domain.CategorySocialPosts, Value: "tiktok", Checked: true})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	view, err = svc.Apply(ctx, view.State, PlanOperation{Action: PlanActionDefaultTier, Category: domain.CategorySocialPosts})
	if err != nil {
		t.Fatalf("default social tier: %v", err)
	}
	if len(view.LineItems) != 2 {
		t.Fatalf("expected two line items, got %+v", view.LineItems)
	}
	social := view.LineItems[1]
	if social.Category != domain.CategorySocialPosts || len(social.AddOnKeys) != 1 {
		t.Fatalf("expected the default social tier to keep tiktok, got %+v", social)
	}
}

func TestPlanServiceClear(t *testing.T) {
	svc := newTestPlanService(t)
	ctx := context.Background()
	view, err := svc.Apply(ctx, PlanState{}, PlanOperation{Action: PlanActionSelectTier, Category: domain.CategoryBacklinks, Value: "DA 60+"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	view, err = svc.Apply(ctx, view.State, PlanOperation{Action: PlanActionClear})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if view.Total != 0 || len(view.State.Selections) != 0 {
		t.Fatalf("expected empty plan, got %+v", view)
	}
}

func TestPlanServiceQuoteReportsSkipped(t *testing.T) {
	svc := newTestPlanService(t)
	view, err := svc.Quote(context.Background(), []CategoryState{
		{Category: domain.CategoryShortFormVideo, Tier: "8 Short Form Videos", FreePlatform: domain.PlatformTikTok, Additional: []domain.Platform{domain.PlatformYouTube}},
		{Category: domain.CategoryEmailCampaigns, Tier: "price_missing"},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if view.Total != 42000 {
		t.Fatalf("expected 42000, got %d", view.Total)
	}
	if len(view.Skipped) != 1 {
		t.Fatalf("expected one skipped entry, got %v", view.Skipped)
	}
	if view.Currency != "usd" {
		t.Fatalf("unexpected currency %q", view.Currency)
	}
}
