package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/mazira-designs/api/internal/domain"
)

//go:embed catalog.yaml
var defaultDocument []byte

// EntryKind distinguishes tiers from platform entries.
type EntryKind string

const (
	EntryTier         EntryKind = "tier"
	EntryFreePlatform EntryKind = "free_platform"
	EntryAddPlatform  EntryKind = "add_platform"
)

// placeholderTier is the "Select a Plan" option value sent by the plan builder.
const placeholderTier = "select"

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("catalog: entry not found")

// NotFoundError reports a lookup miss. Lookups never fall back to a zero price.
type NotFoundError struct {
	Key      string
	Category domain.Category
}

func (e *NotFoundError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("catalog: no entry %q in category %s", e.Key, e.Category)
	}
	return fmt.Sprintf("catalog: no entry %q", e.Key)
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Entry is an immutable priced unit.
type Entry struct {
	Key        string
	PriceID    string
	Category   domain.Category
	Kind       EntryKind
	Platform   domain.Platform
	Label      string
	Quantity   int
	UnitAmount int64
}

// DisplayLabel renders the option text, e.g. "4 Blogs per Month – $180/mo".
func (e Entry) DisplayLabel() string {
	if e.Kind != EntryTier {
		return e.Label
	}
	return fmt.Sprintf("%s – %s/mo", e.Label, FormatAmount(e.UnitAmount))
}

// CategorySpec is the ordered option list for one category. Tiers[0] is the default tier.
type CategorySpec struct {
	Category            domain.Category
	Unit                string
	Tiers               []Entry
	Platforms           []domain.Platform
	DefaultFreePlatform domain.Platform
	Surcharge           int64
}

// DefaultTier returns the first listed tier.
func (s CategorySpec) DefaultTier() Entry {
	if len(s.Tiers) == 0 {
		return Entry{}
	}
	return s.Tiers[0]
}

// OffersPlatform reports whether p can be chosen for the category.
func (s CategorySpec) OffersPlatform(p domain.Platform) bool {
	for _, candidate := range s.Platforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// Catalog is the read-only price table. Construct it once and pass it to consumers.
type Catalog struct {
	currency  string
	entries   map[string]Entry
	keys      []string
	specs     map[domain.Category]CategorySpec
	platforms map[platformKey]Entry
	warnings  []string
}

type platformKey struct {
	category domain.Category
	platform domain.Platform
	free     bool
}

type document struct {
	Currency   string             `yaml:"currency"`
	Categories []categoryDocument `yaml:"categories"`
}

type categoryDocument struct {
	Category            string             `yaml:"category"`
	Unit                string             `yaml:"unit"`
	Surcharge           int64              `yaml:"surcharge"`
	DefaultFreePlatform string             `yaml:"defaultFreePlatform"`
	Tiers               []tierDocument     `yaml:"tiers"`
	Platforms           []platformDocument `yaml:"platforms"`
}

type tierDocument struct {
	Key      string `yaml:"key"`
	PriceID  string `yaml:"priceId"`
	Label    string `yaml:"label"`
	Quantity int    `yaml:"quantity"`
	Amount   int64  `yaml:"amount"`
}

type platformDocument struct {
	Platform string      `yaml:"platform"`
	Free     priceRefDoc `yaml:"free"`
	Add      priceRefDoc `yaml:"add"`
}

type priceRefDoc struct {
	Key     string `yaml:"key"`
	PriceID string `yaml:"priceId"`
}

// Default loads the catalog bundled with the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultDocument))
}

// LoadFile loads a catalog document from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a catalog document.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	c := &Catalog{
		currency:  strings.ToLower(strings.TrimSpace(doc.Currency)),
		entries:   make(map[string]Entry),
		specs:     make(map[domain.Category]CategorySpec),
		platforms: make(map[platformKey]Entry),
	}
	if c.currency == "" {
		c.currency = "usd"
	}

	var problems []string
	add := func(e Entry) {
		switch {
		case strings.TrimSpace(e.Key) == "":
			problems = append(problems, fmt.Sprintf("%s: entry with empty key", e.Category))
			return
		case strings.TrimSpace(e.PriceID) == "":
			problems = append(problems, fmt.Sprintf("%s: %q has no price id", e.Category, e.Key))
			return
		}
		if _, dup := c.entries[e.Key]; dup {
			problems = append(problems, fmt.Sprintf("duplicate key %q", e.Key))
			return
		}
		c.entries[e.Key] = e
		c.keys = append(c.keys, e.Key)
	}

	for _, cd := range doc.Categories {
		category := domain.Category(strings.TrimSpace(cd.Category))
		if !category.Valid() {
			problems = append(problems, fmt.Sprintf("unknown category %q", cd.Category))
			continue
		}
		if _, dup := c.specs[category]; dup {
			problems = append(problems, fmt.Sprintf("category %s listed twice", category))
			continue
		}
		spec := CategorySpec{
			Category:  category,
			Unit:      cd.Unit,
			Surcharge: cd.Surcharge,
		}
		if len(cd.Tiers) == 0 {
			problems = append(problems, fmt.Sprintf("%s: no tiers", category))
		}
		for _, td := range cd.Tiers {
			if td.Amount <= 0 {
				problems = append(problems, fmt.Sprintf("%s: %q must have a positive amount", category, td.Key))
				continue
			}
			entry := Entry{
				Key:        strings.TrimSpace(td.Key),
				PriceID:    strings.TrimSpace(td.PriceID),
				Category:   category,
				Kind:       EntryTier,
				Label:      strings.TrimSpace(td.Label),
				Quantity:   td.Quantity,
				UnitAmount: td.Amount,
			}
			if entry.Label == "" {
				entry.Label = entry.Key
			}
			add(entry)
			spec.Tiers = append(spec.Tiers, entry)
		}

		switch category.Kind() {
		case domain.KindPlatform:
			if spec.Surcharge <= 0 {
				problems = append(problems, fmt.Sprintf("%s: surcharge must be positive", category))
			}
			for _, pd := range cd.Platforms {
				platform, ok := domain.ParsePlatform(pd.Platform)
				if !ok {
					problems = append(problems, fmt.Sprintf("%s: unknown platform %q", category, pd.Platform))
					continue
				}
				if spec.OffersPlatform(platform) {
					problems = append(problems, fmt.Sprintf("%s: platform %s listed twice", category, platform))
					continue
				}
				free := Entry{Key: strings.TrimSpace(pd.Free.Key), PriceID: strings.TrimSpace(pd.Free.PriceID), Category: category, Kind: EntryFreePlatform, Platform: platform, Label: platform.DisplayName()}
				paid := Entry{Key: strings.TrimSpace(pd.Add.Key), PriceID: strings.TrimSpace(pd.Add.PriceID), Category: category, Kind: EntryAddPlatform, Platform: platform, Label: platform.DisplayName(), UnitAmount: spec.Surcharge}
				before := len(problems)
				add(free)
				add(paid)
				if len(problems) != before {
					continue
				}
				c.platforms[platformKey{category, platform, true}] = free
				c.platforms[platformKey{category, platform, false}] = paid
				spec.Platforms = append(spec.Platforms, platform)
			}
			if len(spec.Platforms) == 0 {
				problems = append(problems, fmt.Sprintf("%s: no platforms", category))
			}
			def, ok := domain.ParsePlatform(cd.DefaultFreePlatform)
			switch {
			case !ok:
				problems = append(problems, fmt.Sprintf("%s: invalid default free platform %q", category, cd.DefaultFreePlatform))
			case !spec.OffersPlatform(def):
				problems = append(problems, fmt.Sprintf("%s: default free platform %s is not offered", category, def))
			default:
				spec.DefaultFreePlatform = def
			}
		default:
			if len(cd.Platforms) > 0 || cd.Surcharge != 0 {
				problems = append(problems, fmt.Sprintf("%s: platform options are not supported", category))
			}
		}
		c.specs[category] = spec
	}

	for _, category := range domain.Categories() {
		if _, ok := c.specs[category]; !ok {
			problems = append(problems, fmt.Sprintf("category %s missing", category))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("catalog: invalid document: %s", strings.Join(problems, "; "))
	}

	c.warnings = duplicatePriceIDs(c)
	return c, nil
}

// duplicatePriceIDs lists price ids shared by more than one key. The live account re-uses a few,
// which is tolerated because resolution always goes through keys.
func duplicatePriceIDs(c *Catalog) []string {
	owners := make(map[string][]string)
	for _, key := range c.keys {
		id := c.entries[key].PriceID
		owners[id] = append(owners[id], key)
	}
	var out []string
	for id, keys := range owners {
		if len(keys) > 1 {
			out = append(out, fmt.Sprintf("price %s shared by %s", id, strings.Join(keys, ", ")))
		}
	}
	sort.Strings(out)
	return out
}

// Currency is the lower-case ISO currency of every amount.
func (c *Catalog) Currency() string { return c.currency }

// Warnings returns non-fatal findings from loading.
func (c *Catalog) Warnings() []string {
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Lookup resolves a canonical key such as "4 Blog Posts".
func (c *Catalog) Lookup(key string) (Entry, error) {
	key = strings.TrimSpace(key)
	if entry, ok := c.entries[key]; ok {
		return entry, nil
	}
	return Entry{}, &NotFoundError{Key: key}
}

// Entries returns every entry in document order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.keys))
	for _, key := range c.keys {
		out = append(out, c.entries[key])
	}
	return out
}

// Category returns the option list for category.
func (c *Catalog) Category(category domain.Category) (CategorySpec, error) {
	spec, ok := c.specs[category]
	if !ok {
		return CategorySpec{}, &NotFoundError{Key: string(category)}
	}
	return cloneSpec(spec), nil
}

// Categories returns all specs in display order.
func (c *Catalog) Categories() []CategorySpec {
	out := make([]CategorySpec, 0, len(c.specs))
	for _, category := range domain.Categories() {
		if spec, ok := c.specs[category]; ok {
			out = append(out, cloneSpec(spec))
		}
	}
	return out
}

// TierByPriceID resolves a tier of category by price id or key. The placeholder option never resolves.
func (c *Catalog) TierByPriceID(category domain.Category, id string) (Entry, error) {
	id = strings.TrimSpace(id)
	spec, ok := c.specs[category]
	if !ok || id == "" || strings.EqualFold(id, placeholderTier) {
		return Entry{}, &NotFoundError{Key: id, Category: category}
	}
	for _, tier := range spec.Tiers {
		if tier.PriceID == id || tier.Key == id {
			return tier, nil
		}
	}
	return Entry{}, &NotFoundError{Key: id, Category: category}
}

// PlatformEntry returns the free or paid entry for platform within category.
func (c *Catalog) PlatformEntry(category domain.Category, platform domain.Platform, free bool) (Entry, error) {
	entry, ok := c.platforms[platformKey{category, platform, free}]
	if !ok {
		return Entry{}, &NotFoundError{Key: string(platform), Category: category}
	}
	return entry, nil
}

// ResolveLabel maps a display label back to its tier, e.g. "4 Blogs per Month – $180/mo".
// Only the trailing " – $…" price suffix is stripped, so labels that contain an en-dash of their
// own ("DA 10–19") still resolve. A relabeled tier fails with *NotFoundError.
func (c *Catalog) ResolveLabel(category domain.Category, label string) (Entry, error) {
	base := TierLabel(label)
	spec, ok := c.specs[category]
	if !ok || base == "" {
		return Entry{}, &NotFoundError{Key: label, Category: category}
	}
	for _, tier := range spec.Tiers {
		if tier.Label == base || tier.Key == base {
			return tier, nil
		}
	}
	return Entry{}, &NotFoundError{Key: base, Category: category}
}

// TierLabel strips the price suffix and any platform summary from a display label.
func TierLabel(label string) string {
	label = strings.TrimSpace(label)
	if idx := strings.LastIndex(label, " – $"); idx >= 0 {
		label = label[:idx]
	}
	if idx := strings.LastIndex(label, " ("); idx >= 0 && strings.HasSuffix(label, ")") {
		label = label[:idx]
	}
	return strings.TrimSpace(label)
}

func cloneSpec(spec CategorySpec) CategorySpec {
	spec.Tiers = append([]Entry(nil), spec.Tiers...)
	spec.Platforms = append([]domain.Platform(nil), spec.Platforms...)
	return spec
}
