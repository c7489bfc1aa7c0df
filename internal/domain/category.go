package domain

import "strings"

// Category identifies a sellable service line in the plan builder.
type Category string

const (
	CategorySocialPosts        Category = "social_posts"
	CategoryShortFormVideo     Category = "short_form_video"
	CategoryLongFormVideo      Category = "long_form_video"
	CategoryEmailCampaigns     Category = "email_campaigns"
	CategoryBlogPosts          Category = "blog_posts"
	CategoryBacklinks          Category = "backlinks"
	CategoryInstagramStories   Category = "instagram_stories"
	CategoryInstagramCarousels Category = "instagram_carousels"
)

// CategoryKind separates categories that carry platform choices from plain tier categories.
type CategoryKind string

const (
	// KindTier categories only choose a tier.
	KindTier CategoryKind = "tier"
	// KindPlatform categories choose a tier, one free platform and any number of paid platforms.
	KindPlatform CategoryKind = "platform"
)

type categoryInfo struct {
	name    string
	kind    CategoryKind
	aliases []string
}

var categoryOrder = []Category{
	CategorySocialPosts,
	CategoryShortFormVideo,
	CategoryLongFormVideo,
	CategoryEmailCampaigns,
	CategoryBlogPosts,
	CategoryBacklinks,
	CategoryInstagramStories,
	CategoryInstagramCarousels,
}

var categories = map[Category]categoryInfo{
	CategorySocialPosts:        {name: "Social Media Posts", kind: KindPlatform, aliases: []string{"social", "social posts"}},
	CategoryShortFormVideo:     {name: "Short-Form Videos", kind: KindPlatform, aliases: []string{"short form videos", "short-form video"}},
	CategoryLongFormVideo:      {name: "Long-Form Videos", kind: KindPlatform, aliases: []string{"long form videos", "long-form video"}},
	CategoryEmailCampaigns:     {name: "Email Campaigns", kind: KindTier, aliases: []string{"email"}},
	CategoryBlogPosts:          {name: "SEO Blog Posts", kind: KindTier, aliases: []string{"seo blog articles", "blog posts", "blog"}},
	CategoryBacklinks:          {name: "Backlink Building", kind: KindTier, aliases: []string{"backlinks"}},
	CategoryInstagramStories:   {name: "Instagram Stories", kind: KindTier, aliases: []string{"stories"}},
	CategoryInstagramCarousels: {name: "Instagram Carousels", kind: KindTier, aliases: []string{"carousels"}},
}

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// ParseCategory accepts a slug, a line-item name or a known alias.
func ParseCategory(value string) (Category, bool) {
	needle := strings.ToLower(strings.TrimSpace(value))
	if needle == "" {
		return "", false
	}
	for _, c := range categoryOrder {
		info := categories[c]
		if needle == string(c) || needle == strings.ToLower(info.name) {
			return c, true
		}
		for _, alias := range info.aliases {
			if needle == alias {
				return c, true
			}
		}
	}
	return "", false
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// Name is the customer facing line-item name.
func (c Category) Name() string {
	return categories[c].name
}

// Kind reports the selection shape used by the category.
func (c Category) Kind() CategoryKind {
	return categories[c].kind
}

// Platform is a publishing channel offered with platform categories.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformPinterest Platform = "pinterest"
	PlatformYouTube   Platform = "youtube"
	PlatformGoogle    Platform = "google"
)

var platformNames = map[Platform]string{
	PlatformInstagram: "Instagram",
	PlatformTikTok:    "TikTok",
	PlatformFacebook:  "Facebook",
	PlatformLinkedIn:  "LinkedIn",
	PlatformPinterest: "Pinterest",
	PlatformYouTube:   "YouTube",
	PlatformGoogle:    "Google",
}

// ParsePlatform matches slugs and display names case-insensitively.
func ParsePlatform(value string) (Platform, bool) {
	needle := strings.ToLower(strings.TrimSpace(value))
	if needle == "" {
		return "", false
	}
	if _, ok := platformNames[Platform(needle)]; ok {
		return Platform(needle), true
	}
	for p, name := range platformNames {
		if strings.ToLower(name) == needle {
			return p, true
		}
	}
	return "", false
}

// DisplayName returns the marketing name, e.g. "TikTok".
func (p Platform) DisplayName() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return string(p)
}
