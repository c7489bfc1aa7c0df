package catalog

import (
	"strconv"
	"strings"
	"unicode"
)

// ProductMetadata is the normalised form of the metadata attached to Stripe products.
type ProductMetadata struct {
	ProductID          string   `json:"product_id,omitempty"`
	PackageType        string   `json:"package_type,omitempty"`
	Description        string   `json:"description,omitempty"`
	ShortDescription   string   `json:"short_description,omitempty"`
	LongDescription    string   `json:"long_description,omitempty"`
	OneLineDescription string   `json:"one_line_description,omitempty"`
	Features           []string `json:"features,omitempty"`
	QuantityPerMonth   *float64 `json:"quantity_per_month,omitempty"`
	Unit               string   `json:"unit,omitempty"`
	Min                *float64 `json:"min,omitempty"`
	Max                *float64 `json:"max,omitempty"`
	Step               *float64 `json:"step,omitempty"`
	UsageType          string   `json:"usage_type,omitempty"`
	AggregateUsage     string   `json:"aggregate_usage,omitempty"`
}

const maxFeatures = 6

// ParseProductMetadata normalises raw product metadata. Keys are matched after conversion to
// snake_case ("Feature1", "feature 1" and "feature_1" are the same key), the exported "nax" typo
// is read as "max", and numeric fields that fail to parse are left unset.
func ParseProductMetadata(raw map[string]string) ProductMetadata {
	var (
		meta     ProductMetadata
		features [maxFeatures]string
	)
	for key, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch normalizeMetadataKey(key) {
		case "product_id":
			meta.ProductID = value
		case "package_type":
			meta.PackageType = value
		case "description":
			meta.Description = value
		case "short_description":
			meta.ShortDescription = value
		case "long_description":
			meta.LongDescription = value
		case "one_line_description":
			meta.OneLineDescription = value
		case "usage_type":
			meta.UsageType = value
		case "aggregate_usage":
			meta.AggregateUsage = value
		case "unit":
			meta.Unit = value
		case "feature_1":
			features[0] = value
		case "feature_2":
			features[1] = value
		case "feature_3":
			features[2] = value
		case "feature_4":
			features[3] = value
		case "feature_5":
			features[4] = value
		case "feature_6":
			features[5] = value
		case "quantity_per_month", "quantity_month", "quantitypermonth":
			meta.QuantityPerMonth = parseNumber(value)
		case "min":
			meta.Min = parseNumber(value)
		case "max":
			meta.Max = parseNumber(value)
		case "step":
			meta.Step = parseNumber(value)
		}
	}
	for _, f := range features {
		if f != "" {
			meta.Features = append(meta.Features, f)
		}
	}
	return meta
}

func normalizeMetadataKey(key string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(key))
	for i, r := range runes {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			continue
		case i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]):
			b.WriteByte('_')
		case i > 0 && unicode.IsDigit(r) && unicode.IsLetter(runes[i-1]):
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	out := b.String()
	if out == "nax" {
		return "max"
	}
	return out
}

func parseNumber(value string) *float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}
