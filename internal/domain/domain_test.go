package domain

import "testing"

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"social_posts":       CategorySocialPosts,
		"Social Media Posts": CategorySocialPosts,
		"  blog ":            CategoryBlogPosts,
		"SEO Blog Posts":     CategoryBlogPosts,
		"carousels":          CategoryInstagramCarousels,
	}
	for in, want := range tests {
		got, ok := ParseCategory(in)
		if !ok || got != want {
			t.Fatalf("ParseCategory(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	for _, in := range []string{"", "podcasts", "social_post"} {
		if got, ok := ParseCategory(in); ok {
			t.Fatalf("ParseCategory(%q) = %q, want no match", in, got)
		}
	}
}

func TestCategoriesReturnsCopyInDisplayOrder(t *testing.T) {
	got := Categories()
	if len(got) != 8 || got[0] != CategorySocialPosts || got[7] != CategoryInstagramCarousels {
		t.Fatalf("unexpected order %v", got)
	}
	got[0] = "mutated"
	if Categories()[0] != CategorySocialPosts {
		t.Fatalf("Categories exposed its backing slice")
	}
}

func TestParsePlatform(t *testing.T) {
	for in, want := range map[string]Platform{"tiktok": PlatformTikTok, "TikTok": PlatformTikTok, " LinkedIn ": PlatformLinkedIn} {
		if got, ok := ParsePlatform(in); !ok || got != want {
			t.Fatalf("ParsePlatform(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParsePlatform("myspace"); ok {
		t.Fatalf("expected unknown platform to be rejected")
	}
}

func TestPlatformSelectionLineItem(t *testing.T) {
	sel := PlatformSelection{
		Cat:    CategorySocialPosts,
		Choice: TierChoice{Key: "10 Social Posts", Label: "10 Posts per Month", UnitPrice: 15000},
		Free:   PlatformChoice{Platform: PlatformInstagram, Key: "Free Instagram (Social)"},
		Additional: []PlatformChoice{
			{Platform: PlatformTikTok, Key: "Add TikTok (Social)"},
			{Platform: PlatformFacebook, Key: "Add Facebook (Social)"},
		},
		Surcharge: 1000,
	}

	item := sel.LineItem()
	if item.Price != 17000 {
		t.Fatalf("price = %d, want 17000", item.Price)
	}
	if item.Tier != "10 Posts per Month (Instagram + 2 more)" {
		t.Fatalf("tier label = %q", item.Tier)
	}
	if item.Name != "Social Media Posts" || item.FreePlatformKey != "Free Instagram (Social)" {
		t.Fatalf("unexpected item %+v", item)
	}
	if len(item.AddOnKeys) != 2 || item.AddOnKeys[1] != "Add Facebook (Social)" {
		t.Fatalf("add-on keys = %v", item.AddOnKeys)
	}
	if !sel.HasAdditional(PlatformTikTok) || sel.HasAdditional(PlatformInstagram) {
		t.Fatalf("HasAdditional disagrees with Additional")
	}
}

func TestTierSelectionLineItem(t *testing.T) {
	item := TierSelection{
		Cat:    CategoryBacklinks,
		Choice: TierChoice{Key: "DA 60+", Label: "DA 60+", UnitPrice: 128500},
	}.LineItem()
	if item.Price != 128500 || item.Tier != "DA 60+" || item.Name != "Backlink Building" || item.PriceKey != "DA 60+" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestPlanLineItemCloneCopiesAddOns(t *testing.T) {
	orig := PlanLineItem{AddOnKeys: []string{"a", "b"}}
	clone := orig.Clone()
	clone.AddOnKeys[0] = "z"
	if orig.AddOnKeys[0] != "a" {
		t.Fatalf("Clone shared AddOnKeys")
	}
}

func TestCustomerDataIsZero(t *testing.T) {
	if !(CustomerData{Email: "  "}).IsZero() {
		t.Fatalf("whitespace-only customer should be zero")
	}
	if (CustomerData{LastName: "Reyes"}).IsZero() {
		t.Fatalf("customer with a name is not zero")
	}
}

func TestParseOnboardingMode(t *testing.T) {
	if m, ok := ParseOnboardingMode("full"); !ok || m != OnboardingFull {
		t.Fatalf("ParseOnboardingMode(full) = %q, %v", m, ok)
	}
	if _, ok := ParseOnboardingMode("Rapid"); ok {
		t.Fatalf("modes are case sensitive")
	}
}
